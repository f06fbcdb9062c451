package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"velora_back_end/internal/models"

	"github.com/gocql/gocql"
)

// MemoryStore est une implémentation en mémoire du Store (dev et tests).
// Même sémantique CAS que l'implémentation ScyllaDB.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[gocql.UUID]*models.Order
	history map[gocql.UUID][]models.StateChange
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[gocql.UUID]*models.Order),
		history: make(map[gocql.UUID][]models.StateChange),
	}
}

func (s *MemoryStore) CreateDraft(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.Status = models.StatusDraft
	o.Version = 1
	cp := *o
	s.orders[o.ID] = &cp
	s.history[o.ID] = []models.StateChange{{
		Seq:       1,
		Status:    models.StatusDraft,
		EventID:   "checkout:" + o.SessionID,
		CreatedAt: o.CreatedAt,
	}}
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id gocql.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (s *MemoryStore) ApplyTransition(_ context.Context, orderID gocql.UUID, expectedVersion int64,
	next models.OrderStatus, eventID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return 0, ErrNotFound
	}
	if o.Version != expectedVersion {
		return 0, ErrVersionConflict
	}

	o.Status = next
	o.Version++
	o.UpdatedAt = at
	s.history[orderID] = append(s.history[orderID], models.StateChange{
		Seq:       o.Version,
		Status:    next,
		EventID:   eventID,
		CreatedAt: at,
	})
	return o.Version, nil
}

func (s *MemoryStore) History(_ context.Context, orderID gocql.UUID, afterSeq int64) ([]models.StateChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, ErrNotFound
	}
	var out []models.StateChange
	for _, sc := range s.history[orderID] {
		if sc.Seq > afterSeq {
			out = append(out, sc)
		}
	}
	return out, nil
}
