package ledger

import (
	"context"
	"time"

	"velora_back_end/internal/models"

	"github.com/gocql/gocql"
)

// ScyllaLedger implémente Ledger sur la table payment_event_ledger.
// La réservation atomique repose sur INSERT ... IF NOT EXISTS (LWT) :
// deux livraisons concurrentes du même event id ne peuvent pas gagner toutes les deux.
// La rétention (fenêtre de redélivraison gateway, plusieurs jours) est gérée
// par le TTL posé à l'insertion — pas de reaper applicatif.
type ScyllaLedger struct {
	session *gocql.Session
	ttl     time.Duration
}

func NewScyllaLedger(session *gocql.Session, retention time.Duration) *ScyllaLedger {
	return &ScyllaLedger{session: session, ttl: retention}
}

func (l *ScyllaLedger) CheckAndReserve(ctx context.Context, eventID string) (Reservation, error) {
	now := time.Now()

	// MapScanCAS et pas ScanCAS : sur un INSERT IF NOT EXISTS refusé, la ligne
	// existante revient dans l'ordre SELECT * (clé puis colonnes par ordre
	// alphabétique), pas dans l'ordre des colonnes de l'INSERT
	prev := make(map[string]interface{})
	applied, err := l.session.Query(`
		INSERT INTO payment_event_ledger (event_id, outcome, reason, order_id, order_status, seq, recorded_at)
		VALUES (?, ?, '', '', '', 0, ?) IF NOT EXISTS USING TTL ?
	`, eventID, models.OutcomePending, now, int(l.ttl.Seconds())).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return Reservation{}, err
	}
	if applied {
		return Reservation{Fresh: true}, nil
	}

	prior := recordFromRow(prev)
	if prior.EventID == "" {
		prior.EventID = eventID
	}
	if prior.Outcome == models.OutcomePending {
		prior = l.awaitOutcome(ctx, eventID, prior)
	}
	return Reservation{Fresh: false, Prior: prior}, nil
}

// recordFromRow reconstruit le record d'idempotence depuis une ligne renvoyée
// colonne-par-nom (MapScanCAS)
func recordFromRow(row map[string]interface{}) *models.IdempotencyRecord {
	rec := &models.IdempotencyRecord{}
	if v, ok := row["event_id"].(string); ok {
		rec.EventID = v
	}
	if v, ok := row["outcome"].(string); ok {
		rec.Outcome = v
	}
	if v, ok := row["reason"].(string); ok {
		rec.Reason = v
	}
	if v, ok := row["order_id"].(string); ok {
		rec.OrderID = v
	}
	if v, ok := row["order_status"].(string); ok {
		rec.OrderStatus = models.OrderStatus(v)
	}
	if v, ok := row["seq"].(int64); ok {
		rec.Seq = v
	}
	if v, ok := row["recorded_at"].(time.Time); ok {
		rec.RecordedAt = v
	}
	return rec
}

// awaitOutcome relit le record (borné) tant que le gagnant n'a pas commité
func (l *ScyllaLedger) awaitOutcome(ctx context.Context, eventID string, last *models.IdempotencyRecord) *models.IdempotencyRecord {
	deadline := time.Now().Add(awaitOutcomeBudget)
	rec := last
	for rec.Outcome == models.OutcomePending && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return rec
		case <-time.After(awaitOutcomePoll):
		}
		if cur, err := l.get(ctx, eventID); err == nil && cur != nil {
			rec = cur
		}
	}
	return rec
}

func (l *ScyllaLedger) get(ctx context.Context, eventID string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	var status string
	err := l.session.Query(`
		SELECT event_id, outcome, reason, order_id, order_status, seq, recorded_at
		FROM payment_event_ledger WHERE event_id = ?
	`, eventID).WithContext(ctx).Scan(&rec.EventID, &rec.Outcome, &rec.Reason,
		&rec.OrderID, &status, &rec.Seq, &rec.RecordedAt)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.OrderStatus = models.OrderStatus(status)
	return &rec, nil
}

func (l *ScyllaLedger) Commit(ctx context.Context, eventID string, rec models.IdempotencyRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	return l.session.Query(`
		UPDATE payment_event_ledger USING TTL ?
		SET outcome = ?, reason = ?, order_id = ?, order_status = ?, seq = ?, recorded_at = ?
		WHERE event_id = ?
	`, int(l.ttl.Seconds()), rec.Outcome, rec.Reason, rec.OrderID, string(rec.OrderStatus),
		rec.Seq, rec.RecordedAt, eventID).WithContext(ctx).Exec()
}

func (l *ScyllaLedger) Release(ctx context.Context, eventID string) error {
	// Ne libère que si la réservation est encore pending (le commit du gagnant prime)
	var prev string
	_, err := l.session.Query(`
		DELETE FROM payment_event_ledger WHERE event_id = ? IF outcome = ?
	`, eventID, models.OutcomePending).WithContext(ctx).ScanCAS(&prev)
	return err
}
