package checkout

import (
	"context"
	"errors"
	"time"

	"velora_back_end/internal/models"
)

var ErrSessionNotFound = errors.New("session de checkout introuvable")

// SessionStore persiste les sessions de checkout.
// Les changements de statut passent par des CAS (une session ne se complète qu'une fois).
type SessionStore interface {
	Create(ctx context.Context, s *models.CheckoutSession) error
	GetByID(ctx context.Context, id string) (*models.CheckoutSession, error)
	GetByGatewayRef(ctx context.Context, ref string) (*models.CheckoutSession, error)

	// MarkCompleted : created → completed. Renvoie false si la session n'était plus en created.
	MarkCompleted(ctx context.Context, id string) (bool, error)

	// MarkExpired : created → expired. Renvoie false si la session n'était plus en created.
	MarkExpired(ctx context.Context, id string) (bool, error)

	// ListExpirable renvoie les sessions en created dont l'expiry est dépassée
	ListExpirable(ctx context.Context, now time.Time) ([]models.CheckoutSession, error)
}
