package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Statuts du cycle de vie d'une commande.
// Les transitions autorisées sont centralisées dans internal/reconcile (table de transitions).
type OrderStatus string

const (
	StatusDraft         OrderStatus = "draft"
	StatusPending       OrderStatus = "pending"
	StatusPaid          OrderStatus = "paid"
	StatusProcessing    OrderStatus = "processing"
	StatusShipped       OrderStatus = "shipped"
	StatusDelivered     OrderStatus = "delivered"
	StatusPaymentFailed OrderStatus = "payment_failed"
	StatusCancelled     OrderStatus = "cancelled"
	StatusRefunded      OrderStatus = "refunded"
)

// IsTerminal indique qu'aucune transition (paiement ou admin) n'est possible depuis ce statut
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusPaymentFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsValid vérifie qu'un statut reçu de l'extérieur (endpoint admin) est connu
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusPaymentFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // centimes, figé au moment de la commande
}

type Order struct {
	ID          gocql.UUID  `json:"id"`
	UserID      string      `json:"user_id"`
	Items       []OrderItem `json:"items"`        // snapshot immuable du panier
	TotalAmount int64       `json:"total_amount"` // centimes, immuable après création
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	Version     int64       `json:"version"` // compteur de séquence pour le CAS optimiste
	SessionID   string      `json:"session_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// StateChange est une entrée de l'historique d'états (append-only).
// Seq est égal à la version de la commande au moment de la transition.
type StateChange struct {
	Seq       int64       `json:"seq"`
	Status    OrderStatus `json:"status"`
	EventID   string      `json:"event_id"` // événement gateway (ou admin:<statut>) à l'origine
	CreatedAt time.Time   `json:"created_at"`
}

// OrderUpdate est le message poussé aux connexions temps réel après chaque transition commitée
type OrderUpdate struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Status  OrderStatus `json:"status"`
	Seq     int64       `json:"seq"`
	At      time.Time   `json:"at"`
}
