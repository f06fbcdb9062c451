package models

import (
	"time"

	"github.com/gocql/gocql"
)

type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionCancelled SessionStatus = "cancelled"
)

// CheckoutSession relie un brouillon de commande à une tentative de paiement gateway.
// Une session passe à completed au plus une fois (CAS sur le statut).
type CheckoutSession struct {
	ID         gocql.UUID    `json:"id"` // token opaque renvoyé au client
	OrderID    gocql.UUID    `json:"order_id"`
	UserID     string        `json:"user_id"`
	Email      string        `json:"email"`
	CartDigest string        `json:"cart_digest"` // sha-256 du snapshot panier
	Amount     int64         `json:"amount"`      // centimes
	Currency   string        `json:"currency"`
	GatewayRef string        `json:"gateway_ref"` // identifiant côté gateway (ex: PaymentIntent Stripe)
	Status     SessionStatus `json:"status"`
	ExpiresAt  time.Time     `json:"expires_at"`
	CreatedAt  time.Time     `json:"created_at"`

	// ClientSecret est l'identifiant de handoff pour le SDK client du gateway.
	// Jamais persisté, renvoyé uniquement à la création.
	ClientSecret string `json:"client_secret,omitempty"`
}
