package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	"velora_back_end/internal/models"
	"velora_back_end/internal/orders"

	"github.com/gocql/gocql"
)

// ErrInvalidCartState : snapshot panier vide, total non positif ou quantité invalide
var ErrInvalidCartState = errors.New("panier invalide : vide ou total non positif")

// DefaultSessionTTL : durée de vie d'une session de checkout non consommée
const DefaultSessionTTL = 30 * time.Minute

// PaymentGateway crée la référence de paiement côté provider pour une session.
// Une implémentation par provider (Stripe ici), toutes produisent le même contrat.
type PaymentGateway interface {
	Provider() string
	// CreatePayment renvoie la référence gateway et l'identifiant de handoff
	// à remettre au SDK client (client_secret pour Stripe)
	CreatePayment(ctx context.Context, sess *models.CheckoutSession) (ref, clientSecret string, err error)
	// CancelPayment annule un paiement créé dont la session n'a pas pu être
	// persistée, pour ne pas laisser d'intent orphelin côté gateway
	CancelPayment(ctx context.Context, ref string) error
}

// Publisher pousse les transitions commitées vers les connexions temps réel
type Publisher interface {
	Publish(userID string, upd models.OrderUpdate)
}

// Manager crée les sessions de checkout et fait vivre leur expiration.
// L'expiration par sweep est le seul chemin d'abandon d'un brouillon de
// commande sans événement de paiement terminal.
type Manager struct {
	Orders   orders.Store
	Sessions SessionStore
	Gateway  PaymentGateway
	Hub      Publisher // optionnel
	TTL      time.Duration
}

func NewManager(store orders.Store, sessions SessionStore, gateway PaymentGateway) *Manager {
	return &Manager{Orders: store, Sessions: sessions, Gateway: gateway, TTL: DefaultSessionTTL}
}

// CreateSession valide le snapshot panier, crée le brouillon de commande et la
// session de paiement liée. Renvoie la session avec le ClientSecret de handoff.
func (m *Manager) CreateSession(ctx context.Context, userID, email string, items []models.CartItem) (*models.CheckoutSession, error) {
	if len(items) == 0 {
		return nil, ErrInvalidCartState
	}
	for _, item := range items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return nil, ErrInvalidCartState
		}
	}
	total := models.CartTotal(items)
	if total <= 0 {
		return nil, ErrInvalidCartState
	}

	now := time.Now()
	sessionID := gocql.TimeUUID()
	orderID := gocql.TimeUUID()

	cartJSON, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(cartJSON)

	sess := &models.CheckoutSession{
		ID:         sessionID,
		OrderID:    orderID,
		UserID:     userID,
		Email:      email,
		CartDigest: hex.EncodeToString(digest[:]),
		Amount:     total,
		Currency:   "eur",
		Status:     models.SessionCreated,
		ExpiresAt:  now.Add(m.TTL),
		CreatedAt:  now,
	}

	ref, clientSecret, err := m.Gateway.CreatePayment(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.GatewayRef = ref
	sess.ClientSecret = clientSecret

	// Snapshot immuable : les lignes et le total sont figés ici
	order := &models.Order{
		ID:          orderID,
		UserID:      userID,
		TotalAmount: total,
		Currency:    sess.Currency,
		SessionID:   sessionID.String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	if err := m.Orders.CreateDraft(ctx, order); err != nil {
		m.cancelPayment(ctx, ref)
		return nil, err
	}
	if err := m.Sessions.Create(ctx, sess); err != nil {
		m.cancelPayment(ctx, ref)
		return nil, err
	}

	log.Printf("💳 Session de checkout créée : %s (%.2f€) pour %s", sessionID, float64(total)/100, email)
	return sess, nil
}

// cancelPayment : annulation best-effort d'un paiement dont la persistance a échoué
func (m *Manager) cancelPayment(ctx context.Context, ref string) {
	if err := m.Gateway.CancelPayment(ctx, ref); err != nil {
		log.Printf("⚠️ Annulation du paiement %s échouée (intent orphelin côté gateway): %v", ref, err)
	}
}

// ExpireStaleSessions passe en expired les sessions created dont l'expiry est
// dépassée, et annule le brouillon de commande lié. Une session expirée ne peut
// plus être complétée par un webhook tardif (l'événement sera ignoré).
func (m *Manager) ExpireStaleSessions(ctx context.Context) (int, error) {
	stale, err := m.Sessions.ListExpirable(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sess := range stale {
		ok, err := m.Sessions.MarkExpired(ctx, sess.ID.String())
		if err != nil {
			log.Printf("⚠️ Erreur expiration session %s: %v", sess.ID, err)
			continue
		}
		if !ok {
			// Complétée ou expirée entre-temps
			continue
		}
		expired++

		order, err := m.Orders.GetByID(ctx, sess.OrderID)
		if err != nil || order.Status != models.StatusDraft {
			continue
		}
		now := time.Now()
		seq, err := m.Orders.ApplyTransition(ctx, order.ID, order.Version,
			models.StatusCancelled, "session-expired:"+sess.ID.String(), now)
		if err != nil {
			// Conflit de version = un webhook vient de gagner la course, on le laisse faire
			continue
		}
		if m.Hub != nil {
			m.Hub.Publish(order.UserID, models.OrderUpdate{
				OrderID: order.ID.String(),
				UserID:  order.UserID,
				Status:  models.StatusCancelled,
				Seq:     seq,
				At:      now,
			})
		}
	}

	if expired > 0 {
		log.Printf("🧹 %d session(s) de checkout expirée(s)", expired)
	}
	return expired, nil
}

// StartSweeper lance le sweep périodique d'expiration (à lancer en goroutine depuis main)
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ExpireStaleSessions(ctx); err != nil {
				log.Printf("⚠️ Erreur sweep sessions: %v", err)
			}
		}
	}
}
