// Package ledger : registre d'idempotence des événements gateway.
// Garantit qu'un event id redélivré (at-least-once côté gateway) ne produit
// qu'un seul effet : la première livraison réserve l'id, les suivantes
// récupèrent l'issue enregistrée par le gagnant.
package ledger

import (
	"context"
	"time"

	"velora_back_end/internal/models"
)

// Attente bornée quand un duplicata arrive pendant que le gagnant traite encore
const (
	awaitOutcomeBudget = 1 * time.Second
	awaitOutcomePoll   = 50 * time.Millisecond
)

// Reservation est le résultat de CheckAndReserve.
// Fresh = true : l'appelant a gagné la réservation et doit traiter l'événement
// puis appeler Commit (ou Release en cas d'échec transitoire).
// Fresh = false : Prior contient l'issue du gagnant (outcome "pending" si le
// gagnant n'a pas conclu dans le budget d'attente).
type Reservation struct {
	Fresh bool
	Prior *models.IdempotencyRecord
}

type Ledger interface {
	// CheckAndReserve pose atomiquement une réservation pour cet event id
	// (insert à contrainte d'unicité — deux livraisons concurrentes ne peuvent
	// pas gagner toutes les deux).
	CheckAndReserve(ctx context.Context, eventID string) (Reservation, error)

	// Commit finalise l'issue terminale. Un event id n'a qu'un record terminal.
	Commit(ctx context.Context, eventID string, rec models.IdempotencyRecord) error

	// Release libère une réservation dont le traitement a échoué de façon
	// transitoire, pour que la redélivraison gateway puisse aboutir.
	Release(ctx context.Context, eventID string) error
}
