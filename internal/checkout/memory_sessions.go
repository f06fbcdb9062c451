package checkout

import (
	"context"
	"sync"
	"time"

	"velora_back_end/internal/models"
)

// MemorySessionStore : implémentation en mémoire (dev et tests)
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.CheckoutSession
	byRef    map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.CheckoutSession),
		byRef:    make(map[string]string),
	}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *models.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	cp.ClientSecret = "" // jamais persisté
	s.sessions[sess.ID.String()] = &cp
	if sess.GatewayRef != "" {
		s.byRef[sess.GatewayRef] = sess.ID.String()
	}
	return nil
}

func (s *MemorySessionStore) GetByID(_ context.Context, id string) (*models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemorySessionStore) GetByGatewayRef(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	s.mu.Lock()
	id, ok := s.byRef[ref]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemorySessionStore) cas(id string, from, to models.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, ErrSessionNotFound
	}
	if sess.Status != from {
		return false, nil
	}
	sess.Status = to
	return true, nil
}

func (s *MemorySessionStore) MarkCompleted(_ context.Context, id string) (bool, error) {
	return s.cas(id, models.SessionCreated, models.SessionCompleted)
}

func (s *MemorySessionStore) MarkExpired(_ context.Context, id string) (bool, error) {
	return s.cas(id, models.SessionCreated, models.SessionExpired)
}

func (s *MemorySessionStore) ListExpirable(_ context.Context, now time.Time) ([]models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CheckoutSession
	for _, sess := range s.sessions {
		if sess.Status == models.SessionCreated && sess.ExpiresAt.Before(now) {
			out = append(out, *sess)
		}
	}
	return out, nil
}
