// Package reconcile : cœur de la réconciliation paiement/commande.
// Transforme un événement gateway normalisé en transition d'état autoritaire,
// avec exactement-une application effective par event id malgré la livraison
// at-least-once des webhooks.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"velora_back_end/internal/checkout"
	"velora_back_end/internal/ledger"
	"velora_back_end/internal/models"
	"velora_back_end/internal/orders"

	"github.com/gocql/gocql"
)

// Budget de retry local sur conflit de version (immédiat, en process —
// rien à voir avec la redélivraison gateway, qui est couverte par le registre d'idempotence)
const defaultMaxRetries = 3

// Publisher pousse les transitions commitées vers les connexions temps réel
type Publisher interface {
	Publish(userID string, upd models.OrderUpdate)
}

// Auditor trace les événements appliqués (indexation, best-effort)
type Auditor interface {
	IndexAppliedEvent(evt models.NormalizedEvent, rec models.IdempotencyRecord)
}

// Processor applique la machine à états des commandes.
// Il ne mutate jamais l'état directement : il calcule la transition et la
// demande au Store, qui l'applique atomiquement avec son contrôle de version.
type Processor struct {
	Orders   orders.Store
	Ledger   ledger.Ledger
	Sessions checkout.SessionStore
	Hub      Publisher // optionnel
	Audit    Auditor   // optionnel

	MaxRetries int
}

func NewProcessor(store orders.Store, lg ledger.Ledger, sessions checkout.SessionStore) *Processor {
	return &Processor{
		Orders:     store,
		Ledger:     lg,
		Sessions:   sessions,
		MaxRetries: defaultMaxRetries,
	}
}

// Process traite un événement de paiement normalisé et renvoie l'issue
// enregistrée. Sémantique exactement-une-fois : une redélivraison du même
// event id renvoie l'issue du premier passage, sans effet de bord.
func (p *Processor) Process(ctx context.Context, evt models.NormalizedEvent) (*models.IdempotencyRecord, error) {
	// Types non reconnus : acquittés sans passer par le registre
	if evt.Type == models.EventIgnored {
		return &models.IdempotencyRecord{
			EventID:    evt.ID,
			Outcome:    models.OutcomeIgnored,
			Reason:     "type d'événement sans rapport avec l'état des commandes",
			RecordedAt: time.Now(),
		}, nil
	}

	res, err := p.Ledger.CheckAndReserve(ctx, evt.ID)
	if err != nil {
		return nil, err
	}
	if !res.Fresh {
		log.Printf("🔁 Événement %s déjà traité (issue: %s), on renvoie l'issue enregistrée", evt.ID, res.Prior.Outcome)
		return res.Prior, nil
	}

	rec, err := p.apply(ctx, evt)
	if err != nil {
		// Échec transitoire : on libère la réservation pour que la
		// redélivraison gateway puisse aboutir
		if relErr := p.Ledger.Release(ctx, evt.ID); relErr != nil {
			log.Printf("⚠️ Libération réservation %s échouée: %v", evt.ID, relErr)
		}
		return nil, err
	}

	if err := p.Ledger.Commit(ctx, evt.ID, *rec); err != nil {
		return nil, err
	}

	if rec.Outcome == models.OutcomeApplied {
		if p.Audit != nil {
			go p.Audit.IndexAppliedEvent(evt, *rec)
		}
		log.Printf("✅ Événement %s appliqué : commande %s → %s (seq %d)",
			evt.ID, rec.OrderID, rec.OrderStatus, rec.Seq)
	}
	return rec, nil
}

// apply : résolution de session + boucle lire-décider-écrire (CAS borné)
func (p *Processor) apply(ctx context.Context, evt models.NormalizedEvent) (*models.IdempotencyRecord, error) {
	sess, err := p.resolveSession(ctx, evt)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionNotFound) {
			return &models.IdempotencyRecord{
				EventID:    evt.ID,
				Outcome:    models.OutcomeRejected,
				Reason:     "session de checkout inconnue",
				RecordedAt: time.Now(),
			}, nil
		}
		return nil, err
	}

	// Une session expirée ne peut plus promouvoir son brouillon : le webhook
	// tardif est ignoré, pas appliqué
	if sess.Status == models.SessionExpired &&
		(evt.Type == models.EventSessionCompleted || evt.Type == models.EventPaymentSucceeded) {
		return &models.IdempotencyRecord{
			EventID:    evt.ID,
			Outcome:    models.OutcomeIgnored,
			Reason:     "session de checkout expirée",
			RecordedAt: time.Now(),
		}, nil
	}

	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := p.Orders.GetByID(ctx, sess.OrderID)
		if err != nil {
			return nil, err
		}

		d := decide(order.Status, evt, order.TotalAmount, order.Currency)
		if d.outcome != models.OutcomeApplied {
			return &models.IdempotencyRecord{
				EventID:     evt.ID,
				Outcome:     d.outcome,
				Reason:      d.reason,
				OrderID:     order.ID.String(),
				OrderStatus: order.Status,
				RecordedAt:  time.Now(),
			}, nil
		}

		now := time.Now()
		seq, err := p.Orders.ApplyTransition(ctx, order.ID, order.Version, d.next, evt.ID, now)
		if errors.Is(err, orders.ErrVersionConflict) {
			continue // relire et redécider
		}
		if err != nil {
			return nil, err
		}

		// Marque la session consommée (CAS, au plus une fois — sans gravité si
		// déjà complétée par un événement antérieur). Uniquement si la commande
		// a bien avancé : un amount_mismatch routé vers payment_failed ne doit
		// pas enregistrer la session comme complétée
		if d.next == models.StatusPending || d.next == models.StatusPaid {
			if _, err := p.Sessions.MarkCompleted(ctx, sess.ID.String()); err != nil {
				log.Printf("⚠️ Marquage session %s complétée échoué: %v", sess.ID, err)
			}
		}

		if d.reason == "amount_mismatch" {
			log.Printf("⚠️ Montant inattendu pour la commande %s : reçu %d %s, attendu %d %s → payment_failed",
				order.ID, evt.Amount, evt.Currency, order.TotalAmount, order.Currency)
		}

		if p.Hub != nil {
			p.Hub.Publish(order.UserID, models.OrderUpdate{
				OrderID: order.ID.String(),
				UserID:  order.UserID,
				Status:  d.next,
				Seq:     seq,
				At:      now,
			})
		}

		return &models.IdempotencyRecord{
			EventID:     evt.ID,
			Outcome:     models.OutcomeApplied,
			Reason:      d.reason,
			OrderID:     order.ID.String(),
			OrderStatus: d.next,
			Seq:         seq,
			RecordedAt:  now,
		}, nil
	}

	return nil, ErrConcurrentModification
}

// resolveSession retrouve la session par notre token, sinon par la référence gateway
func (p *Processor) resolveSession(ctx context.Context, evt models.NormalizedEvent) (*models.CheckoutSession, error) {
	if evt.SessionID != "" {
		sess, err := p.Sessions.GetByID(ctx, evt.SessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, checkout.ErrSessionNotFound) {
			return nil, err
		}
	}
	if evt.GatewayRef != "" {
		return p.Sessions.GetByGatewayRef(ctx, evt.GatewayRef)
	}
	return nil, checkout.ErrSessionNotFound
}

// AdminAdvance applique une transition demandée par un admin (processing,
// shipped, delivered, ou annulation d'un brouillon). Même chemin d'écriture
// contrôlé par version, mais sans registre d'idempotence : ce ne sont pas des
// webhooks redélivrés.
func (p *Processor) AdminAdvance(ctx context.Context, orderID gocql.UUID, target models.OrderStatus) (*models.Order, error) {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := p.Orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if !adminAllowed(order.Status, target) {
			return nil, &InvalidTransitionError{Current: order.Status, Attempted: target}
		}

		now := time.Now()
		seq, err := p.Orders.ApplyTransition(ctx, order.ID, order.Version, target, "admin:"+string(target), now)
		if errors.Is(err, orders.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		order.Status = target
		order.Version = seq
		order.UpdatedAt = now

		if p.Hub != nil {
			p.Hub.Publish(order.UserID, models.OrderUpdate{
				OrderID: order.ID.String(),
				UserID:  order.UserID,
				Status:  target,
				Seq:     seq,
				At:      now,
			})
		}

		log.Printf("✅ Commande %s avancée par admin : %s (seq %d)", order.ID, target, seq)
		return order, nil
	}

	return nil, ErrConcurrentModification
}
