package ledger

import (
	"context"
	"sync"
	"time"

	"velora_back_end/internal/models"
)

// MemoryLedger : implémentation en mémoire (dev et tests), même sémantique que ScyllaLedger
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*models.IdempotencyRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*models.IdempotencyRecord)}
}

func (l *MemoryLedger) CheckAndReserve(ctx context.Context, eventID string) (Reservation, error) {
	l.mu.Lock()
	if existing, ok := l.records[eventID]; ok {
		l.mu.Unlock()
		return Reservation{Fresh: false, Prior: l.awaitOutcome(ctx, eventID, existing)}, nil
	}
	l.records[eventID] = &models.IdempotencyRecord{
		EventID:    eventID,
		Outcome:    models.OutcomePending,
		RecordedAt: time.Now(),
	}
	l.mu.Unlock()
	return Reservation{Fresh: true}, nil
}

// awaitOutcome attend (borné) que le gagnant commit son issue
func (l *MemoryLedger) awaitOutcome(ctx context.Context, eventID string, last *models.IdempotencyRecord) *models.IdempotencyRecord {
	deadline := time.Now().Add(awaitOutcomeBudget)
	rec := last
	for rec.Outcome == models.OutcomePending && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			cp := *rec
			return &cp
		case <-time.After(awaitOutcomePoll):
		}
		l.mu.Lock()
		if cur, ok := l.records[eventID]; ok {
			rec = cur
		}
		l.mu.Unlock()
	}
	cp := *rec
	return &cp
}

func (l *MemoryLedger) Commit(_ context.Context, eventID string, rec models.IdempotencyRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.EventID = eventID
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	l.records[eventID] = &rec
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[eventID]; ok && rec.Outcome == models.OutcomePending {
		delete(l.records, eventID)
	}
	return nil
}

// PurgeOlderThan supprime les records plus vieux que age (rétention).
// L'implémentation ScyllaDB s'appuie sur un TTL de table à la place.
func (l *MemoryLedger) PurgeOlderThan(age time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-age)
	purged := 0
	for id, rec := range l.records {
		if rec.Outcome != models.OutcomePending && rec.RecordedAt.Before(cutoff) {
			delete(l.records, id)
			purged++
		}
	}
	return purged
}
