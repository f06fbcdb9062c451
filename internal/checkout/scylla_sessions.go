package checkout

import (
	"context"
	"time"

	"velora_back_end/internal/models"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// ScyllaSessionStore implémente SessionStore sur ScyllaDB.
// Les transitions de statut utilisent des LWT (IF status = 'created') :
// une session ne peut être complétée (ou expirée) qu'une seule fois.
type ScyllaSessionStore struct {
	session *gocql.Session
}

func NewScyllaSessionStore(session *gocql.Session) *ScyllaSessionStore {
	return &ScyllaSessionStore{session: session}
}

func (s *ScyllaSessionStore) Create(ctx context.Context, sess *models.CheckoutSession) error {
	err := s.session.Query(`
		INSERT INTO checkout_sessions (session_id, order_id, user_id, email, cart_digest, amount, currency, gateway_ref, status, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.OrderID, sess.UserID, sess.Email, sess.CartDigest, sess.Amount,
		sess.Currency, sess.GatewayRef, string(sess.Status), sess.ExpiresAt, sess.CreatedAt).
		WithContext(ctx).Exec()
	if err != nil {
		return err
	}
	if sess.GatewayRef == "" {
		return nil
	}
	return s.session.Query(`
		INSERT INTO sessions_by_gateway_ref (gateway_ref, session_id) VALUES (?, ?)
	`, sess.GatewayRef, sess.ID).WithContext(ctx).Exec()
}

func (s *ScyllaSessionStore) GetByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	var sess models.CheckoutSession
	var status string
	err = s.session.Query(`
		SELECT session_id, order_id, user_id, email, cart_digest, amount, currency, gateway_ref, status, expires_at, created_at
		FROM checkout_sessions WHERE session_id = ?
	`, gocql.UUID(sid)).WithContext(ctx).Scan(&sess.ID, &sess.OrderID, &sess.UserID, &sess.Email,
		&sess.CartDigest, &sess.Amount, &sess.Currency, &sess.GatewayRef, &status,
		&sess.ExpiresAt, &sess.CreatedAt)
	if err == gocql.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

func (s *ScyllaSessionStore) GetByGatewayRef(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	var sid gocql.UUID
	err := s.session.Query(`
		SELECT session_id FROM sessions_by_gateway_ref WHERE gateway_ref = ?
	`, ref).WithContext(ctx).Scan(&sid)
	if err == gocql.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, sid.String())
}

func (s *ScyllaSessionStore) cas(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return false, ErrSessionNotFound
	}

	var prev string
	applied, err := s.session.Query(`
		UPDATE checkout_sessions SET status = ? WHERE session_id = ? IF status = ?
	`, string(to), gocql.UUID(sid), string(from)).WithContext(ctx).ScanCAS(&prev)
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *ScyllaSessionStore) MarkCompleted(ctx context.Context, id string) (bool, error) {
	return s.cas(ctx, id, models.SessionCreated, models.SessionCompleted)
}

func (s *ScyllaSessionStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	return s.cas(ctx, id, models.SessionCreated, models.SessionExpired)
}

func (s *ScyllaSessionStore) ListExpirable(ctx context.Context, now time.Time) ([]models.CheckoutSession, error) {
	// Scan filtré, exécuté par le sweep périodique uniquement
	iter := s.session.Query(`
		SELECT session_id, order_id, user_id, email, amount, currency, gateway_ref, status, expires_at, created_at
		FROM checkout_sessions WHERE status = ? AND expires_at < ? ALLOW FILTERING
	`, string(models.SessionCreated), now).WithContext(ctx).Iter()

	var out []models.CheckoutSession
	var sess models.CheckoutSession
	var status string
	for iter.Scan(&sess.ID, &sess.OrderID, &sess.UserID, &sess.Email, &sess.Amount,
		&sess.Currency, &sess.GatewayRef, &status, &sess.ExpiresAt, &sess.CreatedAt) {
		sess.Status = models.SessionStatus(status)
		out = append(out, sess)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
