package checkout

import (
	"context"
	"log"

	"velora_back_end/internal/models"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// StripeGateway crée un PaymentIntent par session de checkout.
// Le session_id est embarqué dans les metadata : c'est lui que le normaliseur
// de webhooks relit pour rattacher l'événement à la commande.
type StripeGateway struct{}

func (StripeGateway) Provider() string { return "stripe" }

func (StripeGateway) CreatePayment(ctx context.Context, sess *models.CheckoutSession) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(sess.Amount),
		Currency: stripe.String(sess.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"session_id": sess.ID.String(),
			"order_id":   sess.OrderID.String(),
			"user_id":    sess.UserID,
			"email":      sess.Email,
		},
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		log.Printf("❌ Erreur Stripe: %v", err)
		return "", "", err
	}

	return intent.ID, intent.ClientSecret, nil
}

func (StripeGateway) CancelPayment(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := paymentintent.Cancel(ref, params); err != nil {
		log.Printf("❌ Erreur annulation PaymentIntent %s: %v", ref, err)
		return err
	}
	return nil
}
