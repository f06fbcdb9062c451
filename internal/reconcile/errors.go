package reconcile

import (
	"errors"
	"fmt"

	"velora_back_end/internal/models"
)

// ErrConcurrentModification : le budget de retry sur conflit de version est
// épuisé. Signal transitoire — l'appelant (ou la redélivraison gateway,
// la réservation d'idempotence ayant été libérée) peut retenter.
var ErrConcurrentModification = errors.New("modification concurrente de la commande, réessayez")

// InvalidTransitionError : transition admin refusée par la table de
// transitions. Porte l'état courant et l'état demandé pour que l'opérateur
// diagnostique une vue client périmée.
type InvalidTransitionError struct {
	Current   models.OrderStatus
	Attempted models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition invalide : %s → %s", e.Current, e.Attempted)
}
