package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"velora_back_end/internal/checkout"
	"velora_back_end/internal/ledger"
	"velora_back_end/internal/models"
	"velora_back_end/internal/orders"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher enregistre les mises à jour publiées (mock du hub)
type capturePublisher struct {
	mu      sync.Mutex
	updates []models.OrderUpdate
}

func (c *capturePublisher) Publish(_ string, upd models.OrderUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, upd)
}

func (c *capturePublisher) all() []models.OrderUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.OrderUpdate(nil), c.updates...)
}

// conflictingStore force ErrVersionConflict sur les N premiers ApplyTransition
type conflictingStore struct {
	orders.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) ApplyTransition(ctx context.Context, orderID gocql.UUID, expectedVersion int64,
	next models.OrderStatus, eventID string, at time.Time) (int64, error) {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return 0, orders.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.Store.ApplyTransition(ctx, orderID, expectedVersion, next, eventID, at)
}

type fixture struct {
	proc  *Processor
	store *orders.MemoryStore
	sess  *checkout.MemorySessionStore
	hub   *capturePublisher
	order *models.Order
	token string // session id
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := orders.NewMemoryStore()
	sessions := checkout.NewMemorySessionStore()
	hub := &capturePublisher{}

	sessionID := gocql.TimeUUID()
	orderID := gocql.TimeUUID()

	order := &models.Order{
		ID:          orderID,
		UserID:      "user-1",
		TotalAmount: 4200,
		Currency:    "eur",
		SessionID:   sessionID.String(),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.CreateDraft(context.Background(), order))

	sess := &models.CheckoutSession{
		ID:         sessionID,
		OrderID:    orderID,
		UserID:     "user-1",
		Email:      "user@example.com",
		Amount:     4200,
		Currency:   "eur",
		GatewayRef: "pi_test_123",
		Status:     models.SessionCreated,
		ExpiresAt:  time.Now().Add(30 * time.Minute),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, sessions.Create(context.Background(), sess))

	proc := NewProcessor(store, ledger.NewMemoryLedger(), sessions)
	proc.Hub = hub

	return &fixture{proc: proc, store: store, sess: sessions, hub: hub, order: order, token: sessionID.String()}
}

func (f *fixture) event(id string, t models.EventType, amount int64) models.NormalizedEvent {
	return models.NormalizedEvent{
		ID:         id,
		Provider:   "stripe",
		Type:       t,
		SessionID:  f.token,
		GatewayRef: "pi_test_123",
		Amount:     amount,
		Currency:   "eur",
		ReceivedAt: time.Now(),
	}
}

func (f *fixture) currentOrder(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.store.GetByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	return o
}

func TestProcess_PaymentSucceededAppliesPaid(t *testing.T) {
	f := newFixture(t)

	rec, err := f.proc.Process(context.Background(), f.event("evt_1", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeApplied, rec.Outcome)
	assert.Equal(t, models.StatusPaid, rec.OrderStatus)
	assert.Equal(t, int64(2), rec.Seq)

	o := f.currentOrder(t)
	assert.Equal(t, models.StatusPaid, o.Status)
	assert.Equal(t, int64(2), o.Version)

	// La session est consommée
	sess, err := f.sess.GetByID(context.Background(), f.token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.Status)

	// Une mise à jour temps réel a été publiée
	updates := f.hub.all()
	require.Len(t, updates, 1)
	assert.Equal(t, models.StatusPaid, updates[0].Status)
	assert.Equal(t, int64(2), updates[0].Seq)
}

func TestProcess_RedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	evt := f.event("evt_dup", models.EventPaymentSucceeded, 4200)

	first, err := f.proc.Process(context.Background(), evt)
	require.NoError(t, err)

	// Cinq redélivrances du même event id
	for i := 0; i < 5; i++ {
		rec, err := f.proc.Process(context.Background(), evt)
		require.NoError(t, err)
		assert.Equal(t, first.Outcome, rec.Outcome)
		assert.Equal(t, first.Seq, rec.Seq)
		assert.Equal(t, first.OrderStatus, rec.OrderStatus)
	}

	// L'état n'a été appliqué qu'une seule fois
	o := f.currentOrder(t)
	assert.Equal(t, int64(2), o.Version)
	history, err := f.store.History(context.Background(), o.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2) // draft + paid
	assert.Len(t, f.hub.all(), 1)
}

func TestProcess_AmountMismatchGoesToPaymentFailed(t *testing.T) {
	f := newFixture(t)

	// Un centime de moins que le total de la commande
	rec, err := f.proc.Process(context.Background(), f.event("evt_short", models.EventPaymentSucceeded, 4199))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, rec.Outcome)
	assert.Equal(t, models.StatusPaymentFailed, rec.OrderStatus)
	assert.Equal(t, "amount_mismatch", rec.Reason)
	assert.Equal(t, models.StatusPaymentFailed, f.currentOrder(t).Status)

	// La tentative a échoué : la session ne doit pas être enregistrée complétée
	sess, err := f.sess.GetByID(context.Background(), f.token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCreated, sess.Status)

	// La redélivrance renvoie la même issue, sans nouvelle transition
	dup, err := f.proc.Process(context.Background(), f.event("evt_short", models.EventPaymentSucceeded, 4199))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentFailed, dup.OrderStatus)
	assert.Equal(t, int64(2), f.currentOrder(t).Version)
}

func TestProcess_RefundAfterPaid(t *testing.T) {
	f := newFixture(t)

	_, err := f.proc.Process(context.Background(), f.event("evt_pay", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)

	rec, err := f.proc.Process(context.Background(), f.event("evt_refund", models.EventPaymentRefunded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, rec.Outcome)
	assert.Equal(t, models.StatusRefunded, rec.OrderStatus)
	assert.Equal(t, models.StatusRefunded, f.currentOrder(t).Status)
}

func TestProcess_RefundBeforePaymentRejected(t *testing.T) {
	f := newFixture(t)

	rec, err := f.proc.Process(context.Background(), f.event("evt_early_refund", models.EventPaymentRefunded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, rec.Outcome)
	assert.Equal(t, models.StatusDraft, f.currentOrder(t).Status)
}

func TestProcess_TerminalStateIgnoresLateEvents(t *testing.T) {
	f := newFixture(t)

	_, err := f.proc.Process(context.Background(), f.event("evt_fail", models.EventPaymentFailed, 4200))
	require.NoError(t, err)
	require.Equal(t, models.StatusPaymentFailed, f.currentOrder(t).Status)

	// Succès tardif après échec terminal : ignoré, pas appliqué
	rec, err := f.proc.Process(context.Background(), f.event("evt_late", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, rec.Outcome)
	assert.Equal(t, models.StatusPaymentFailed, f.currentOrder(t).Status)
}

func TestProcess_SuccessAndRefundRace(t *testing.T) {
	// Succès et remboursement arrivent dans le désordre : le remboursement
	// avant paiement est rejeté, l'ordre final dépend du premier commit
	f := newFixture(t)

	refund, err := f.proc.Process(context.Background(), f.event("evt_r", models.EventPaymentRefunded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, refund.Outcome)

	pay, err := f.proc.Process(context.Background(), f.event("evt_p", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, pay.Outcome)
	assert.Equal(t, models.StatusPaid, f.currentOrder(t).Status)

	// La redélivrance du remboursement rejeté renvoie l'issue enregistrée :
	// il ne s'applique pas rétroactivement
	refundDup, err := f.proc.Process(context.Background(), f.event("evt_r", models.EventPaymentRefunded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, refundDup.Outcome)
	assert.Equal(t, models.StatusPaid, f.currentOrder(t).Status)
}

func TestProcess_UnknownSessionRejected(t *testing.T) {
	f := newFixture(t)

	evt := f.event("evt_orphan", models.EventPaymentSucceeded, 4200)
	evt.SessionID = gocql.TimeUUID().String()
	evt.GatewayRef = "pi_unknown"

	rec, err := f.proc.Process(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, rec.Outcome)
}

func TestProcess_ResolvesSessionByGatewayRef(t *testing.T) {
	f := newFixture(t)

	// Pas de session_id dans l'événement (metadata perdue côté gateway) :
	// la référence gateway sert de fallback
	evt := f.event("evt_byref", models.EventPaymentSucceeded, 4200)
	evt.SessionID = ""

	rec, err := f.proc.Process(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, rec.Outcome)
	assert.Equal(t, models.StatusPaid, f.currentOrder(t).Status)
}

func TestProcess_ExpiredSessionIgnoresLatePayment(t *testing.T) {
	f := newFixture(t)

	ok, err := f.sess.MarkExpired(context.Background(), f.token)
	require.NoError(t, err)
	require.True(t, ok)

	rec, err := f.proc.Process(context.Background(), f.event("evt_late_pay", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, rec.Outcome)
	assert.Equal(t, models.StatusDraft, f.currentOrder(t).Status)
}

func TestProcess_IgnoredTypeSkipsLedger(t *testing.T) {
	f := newFixture(t)

	evt := f.event("evt_noise", models.EventIgnored, 0)
	rec, err := f.proc.Process(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, rec.Outcome)

	// Le même id reste réservable : le type ignoré n'a pas consommé le registre
	res, err := f.proc.Ledger.CheckAndReserve(context.Background(), "evt_noise")
	require.NoError(t, err)
	assert.True(t, res.Fresh)
}

func TestProcess_RetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	f.proc.Orders = &conflictingStore{Store: f.proc.Orders, conflicts: 2}

	rec, err := f.proc.Process(context.Background(), f.event("evt_retry", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, rec.Outcome)
	assert.Equal(t, models.StatusPaid, f.currentOrder(t).Status)
}

func TestProcess_ConcurrentModificationReleasesReservation(t *testing.T) {
	f := newFixture(t)
	conflicting := &conflictingStore{Store: f.proc.Orders, conflicts: 100}
	f.proc.Orders = conflicting

	_, err := f.proc.Process(context.Background(), f.event("evt_contested", models.EventPaymentSucceeded, 4200))
	require.ErrorIs(t, err, ErrConcurrentModification)

	// La réservation a été libérée : la redélivrance du gateway aboutit
	conflicting.mu.Lock()
	conflicting.conflicts = 0
	conflicting.mu.Unlock()

	rec, err := f.proc.Process(context.Background(), f.event("evt_contested", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, rec.Outcome)
}

func TestProcess_ConcurrentDuplicatesApplyOnce(t *testing.T) {
	f := newFixture(t)
	evt := f.event("evt_race", models.EventPaymentSucceeded, 4200)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := f.proc.Process(context.Background(), evt)
			errs[i] = err
			if rec != nil {
				outcomes[i] = rec.Outcome
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, models.OutcomeApplied, outcomes[i])
	}

	// Une seule transition malgré les n livraisons concurrentes
	o := f.currentOrder(t)
	assert.Equal(t, int64(2), o.Version)
	assert.Equal(t, models.StatusPaid, o.Status)
}

func TestAdminAdvance_FullChain(t *testing.T) {
	f := newFixture(t)

	_, err := f.proc.Process(context.Background(), f.event("evt_pay", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)

	for _, target := range []models.OrderStatus{
		models.StatusProcessing, models.StatusShipped, models.StatusDelivered,
	} {
		o, err := f.proc.AdminAdvance(context.Background(), f.order.ID, target)
		require.NoError(t, err)
		assert.Equal(t, target, o.Status)
	}

	// La chaîne est monotone : retour en arrière refusé
	_, err = f.proc.AdminAdvance(context.Background(), f.order.ID, models.StatusShipped)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusDelivered, invalid.Current)
	assert.Equal(t, models.StatusShipped, invalid.Attempted)
}

func TestAdminAdvance_NoStepSkipping(t *testing.T) {
	f := newFixture(t)

	_, err := f.proc.Process(context.Background(), f.event("evt_pay", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)

	_, err = f.proc.AdminAdvance(context.Background(), f.order.ID, models.StatusDelivered)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusPaid, invalid.Current)
}

func TestAdminAdvance_CancelDraft(t *testing.T) {
	f := newFixture(t)

	o, err := f.proc.AdminAdvance(context.Background(), f.order.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)

	// Un paiement tardif sur une commande annulée est ignoré
	rec, err := f.proc.Process(context.Background(), f.event("evt_after_cancel", models.EventPaymentSucceeded, 4200))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, rec.Outcome)
}

func TestAdminAdvance_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.proc.AdminAdvance(context.Background(), gocql.TimeUUID(), models.StatusProcessing)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
