package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"velora_back_end/internal/models"

	"github.com/gocql/gocql"
)

// ScyllaStore implémente Store sur ScyllaDB (keyspace orders).
// L'unicité des transitions repose sur une LWT : UPDATE ... IF version = ?.
// Tables : orders, orders_by_user, order_history (voir scripts/scylladb_init.cql)
type ScyllaStore struct {
	session *gocql.Session
}

func NewScyllaStore(session *gocql.Session) *ScyllaStore {
	return &ScyllaStore{session: session}
}

func (s *ScyllaStore) CreateDraft(ctx context.Context, o *models.Order) error {
	o.Status = models.StatusDraft
	o.Version = 1

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("sérialisation items: %v", err)
	}

	err = s.session.Query(`
		INSERT INTO orders (order_id, user_id, items, total_amount, currency, status, version, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, string(itemsJSON), o.TotalAmount, o.Currency, string(o.Status),
		o.Version, o.SessionID, o.CreatedAt, o.CreatedAt).WithContext(ctx).Exec()
	if err != nil {
		return err
	}

	// Tables dénormalisées pour les lectures par utilisateur et par session
	if err := s.session.Query(`
		INSERT INTO orders_by_user (user_id, order_id, status, total_amount, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.UserID, o.ID, string(o.Status), o.TotalAmount, o.Currency, o.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return err
	}
	return s.session.Query(`
		INSERT INTO order_history (order_id, seq, status, event_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, o.ID, int64(1), string(models.StatusDraft), "checkout:"+o.SessionID, o.CreatedAt).WithContext(ctx).Exec()
}

func (s *ScyllaStore) GetByID(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	var (
		o         models.Order
		itemsJSON string
		status    string
	)
	err := s.session.Query(`
		SELECT order_id, user_id, items, total_amount, currency, status, version, session_id, created_at, updated_at
		FROM orders WHERE order_id = ?
	`, id).WithContext(ctx).Scan(&o.ID, &o.UserID, &itemsJSON, &o.TotalAmount, &o.Currency,
		&status, &o.Version, &o.SessionID, &o.CreatedAt, &o.UpdatedAt)
	if err == gocql.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Status = models.OrderStatus(status)
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
			return nil, fmt.Errorf("désérialisation items: %v", err)
		}
	}
	return &o, nil
}

func (s *ScyllaStore) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	iter := s.session.Query(`
		SELECT order_id FROM orders_by_user WHERE user_id = ?
	`, userID).WithContext(ctx).Iter()

	var ids []gocql.UUID
	var id gocql.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(ids))
	for _, oid := range ids {
		o, err := s.GetByID(ctx, oid)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

// ListAll parcourt toutes les commandes (endpoint admin — lourd sur un gros volume)
func (s *ScyllaStore) ListAll(ctx context.Context) ([]models.Order, error) {
	iter := s.session.Query(`
		SELECT order_id, user_id, total_amount, currency, status, version, session_id, created_at, updated_at
		FROM orders
	`).WithContext(ctx).Iter()

	var out []models.Order
	var o models.Order
	var status string
	for iter.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &status,
		&o.Version, &o.SessionID, &o.CreatedAt, &o.UpdatedAt) {
		o.Status = models.OrderStatus(status)
		out = append(out, o)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ScyllaStore) ApplyTransition(ctx context.Context, orderID gocql.UUID, expectedVersion int64,
	next models.OrderStatus, eventID string, at time.Time) (int64, error) {

	newVersion := expectedVersion + 1

	// CAS optimiste : seule l'écriture dont la version attendue est encore exacte est appliquée
	var prevVersion int64
	applied, err := s.session.Query(`
		UPDATE orders SET status = ?, version = ?, updated_at = ?
		WHERE order_id = ? IF version = ?
	`, string(next), newVersion, at, orderID, expectedVersion).WithContext(ctx).ScanCAS(&prevVersion)
	if err != nil {
		return 0, err
	}
	if !applied {
		return 0, ErrVersionConflict
	}

	// Historique append-only : seq = nouvelle version
	if err := s.session.Query(`
		INSERT INTO order_history (order_id, seq, status, event_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, orderID, newVersion, string(next), eventID, at).WithContext(ctx).Exec(); err != nil {
		return 0, err
	}

	// Propagation best-effort vers la table dénormalisée
	var userID string
	if err := s.session.Query(`SELECT user_id FROM orders WHERE order_id = ?`, orderID).
		WithContext(ctx).Scan(&userID); err == nil {
		s.session.Query(`UPDATE orders_by_user SET status = ? WHERE user_id = ? AND order_id = ?`,
			string(next), userID, orderID).WithContext(ctx).Exec()
	}

	return newVersion, nil
}

func (s *ScyllaStore) History(ctx context.Context, orderID gocql.UUID, afterSeq int64) ([]models.StateChange, error) {
	iter := s.session.Query(`
		SELECT seq, status, event_id, created_at
		FROM order_history WHERE order_id = ? AND seq > ?
	`, orderID, afterSeq).WithContext(ctx).Iter()

	var out []models.StateChange
	var sc models.StateChange
	var status string
	for iter.Scan(&sc.Seq, &status, &sc.EventID, &sc.CreatedAt) {
		sc.Status = models.OrderStatus(status)
		out = append(out, sc)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
