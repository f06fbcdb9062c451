package orders

import (
	"context"
	"errors"
	"time"

	"velora_back_end/internal/models"

	"github.com/gocql/gocql"
)

var (
	ErrNotFound = errors.New("commande introuvable")

	// ErrVersionConflict : la version attendue ne correspond plus (écriture concurrente).
	// Le processeur de réconciliation relit et réessaie, dans une limite bornée.
	ErrVersionConflict = errors.New("conflit de version sur la commande")
)

// Store est le dépôt autoritaire de l'état des commandes.
// Lui seul mutate l'état, toujours via ApplyTransition (compare-and-swap sur la version) ;
// chaque transition appliquée ajoute une entrée d'historique avec seq = nouvelle version.
type Store interface {
	CreateDraft(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id gocql.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)

	// ApplyTransition écrit le nouveau statut si la version courante vaut expectedVersion.
	// Renvoie la nouvelle version (= seq de l'entrée d'historique), ou ErrVersionConflict.
	ApplyTransition(ctx context.Context, orderID gocql.UUID, expectedVersion int64,
		next models.OrderStatus, eventID string, at time.Time) (int64, error)

	// History renvoie les transitions de seq strictement supérieur à afterSeq, ordonnées par seq
	History(ctx context.Context, orderID gocql.UUID, afterSeq int64) ([]models.StateChange, error)
}
