package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"velora_back_end/internal/models"

	"github.com/stripe/stripe-go/v83"
	stripewebhook "github.com/stripe/stripe-go/v83/webhook"
)

// StripeNormalizer vérifie la signature Stripe-Signature et mappe les types
// d'événements Stripe vers la forme interne. Les types non mappés sont
// acquittés en no-op (Stripe envoie beaucoup d'événements sans rapport avec
// l'état des commandes).
type StripeNormalizer struct {
	Secret string // STRIPE_WEBHOOK_SECRET
}

func (StripeNormalizer) Provider() string { return "stripe" }

func (StripeNormalizer) SignatureHeader() string { return "Stripe-Signature" }

func (n StripeNormalizer) Normalize(payload []byte, sigHeader string) (*models.NormalizedEvent, error) {
	// Fail closed : pas de secret configuré = aucun webhook accepté
	if n.Secret == "" {
		return nil, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET manquant", ErrSignatureInvalid)
	}

	event, err := stripewebhook.ConstructEvent(payload, sigHeader, n.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	evt := &models.NormalizedEvent{
		ID:         event.ID,
		Provider:   "stripe",
		Type:       models.EventIgnored,
		RawDigest:  payloadDigest(payload),
		ReceivedAt: time.Now(),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("décodage PaymentIntent: %v", err)
		}
		if event.Type == "payment_intent.succeeded" {
			evt.Type = models.EventPaymentSucceeded
		} else {
			evt.Type = models.EventPaymentFailed
		}
		evt.SessionID = pi.Metadata["session_id"]
		evt.GatewayRef = pi.ID
		evt.Amount = pi.Amount
		evt.Currency = string(pi.Currency)

	case "checkout.session.completed":
		// Gateway qui sépare « session complétée » de « fonds encaissés »
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("décodage CheckoutSession: %v", err)
		}
		evt.Type = models.EventSessionCompleted
		evt.SessionID = cs.Metadata["session_id"]
		if cs.PaymentIntent != nil {
			evt.GatewayRef = cs.PaymentIntent.ID
		}
		evt.Amount = cs.AmountTotal
		evt.Currency = string(cs.Currency)

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("décodage Charge: %v", err)
		}
		evt.Type = models.EventPaymentRefunded
		evt.SessionID = ch.Metadata["session_id"]
		if ch.PaymentIntent != nil {
			evt.GatewayRef = ch.PaymentIntent.ID
		}
		evt.Amount = ch.AmountRefunded
		evt.Currency = string(ch.Currency)
	}

	return evt, nil
}
