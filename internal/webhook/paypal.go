package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"velora_back_end/internal/models"
)

// PayPalNormalizer vérifie la signature de transmission (HMAC-SHA256 sur
// webhook id + payload, schéma simplifié) et mappe les types d'événements
// PayPal. Le custom_id porte notre session_id, posé à la création de l'ordre
// PayPal côté checkout.
type PayPalNormalizer struct {
	WebhookID string // PAYPAL_WEBHOOK_ID
	Secret    string // PAYPAL_WEBHOOK_SECRET
}

func (PayPalNormalizer) Provider() string { return "paypal" }

func (PayPalNormalizer) SignatureHeader() string { return "Paypal-Transmission-Sig" }

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

func (n PayPalNormalizer) Normalize(payload []byte, sigHeader string) (*models.NormalizedEvent, error) {
	if n.Secret == "" || n.WebhookID == "" {
		return nil, fmt.Errorf("%w: configuration PayPal manquante", ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(n.Secret))
	mac.Write([]byte(n.WebhookID))
	mac.Write(payload)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(sigHeader)
	if err != nil || !hmac.Equal(expected, received) {
		return nil, fmt.Errorf("%w: transmission PayPal non authentifiée", ErrSignatureInvalid)
	}

	var pe paypalEvent
	if err := json.Unmarshal(payload, &pe); err != nil {
		return nil, fmt.Errorf("décodage événement PayPal: %v", err)
	}

	evt := &models.NormalizedEvent{
		ID:         pe.ID,
		Provider:   "paypal",
		Type:       models.EventIgnored,
		SessionID:  pe.Resource.CustomID,
		GatewayRef: pe.Resource.ID,
		RawDigest:  payloadDigest(payload),
		ReceivedAt: time.Now(),
	}

	switch pe.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		evt.Type = models.EventSessionCompleted
	case "PAYMENT.CAPTURE.COMPLETED":
		evt.Type = models.EventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		evt.Type = models.EventPaymentFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		evt.Type = models.EventPaymentRefunded
	default:
		return evt, nil
	}

	amount, err := paypalAmountToCents(pe.Resource.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("montant PayPal invalide %q: %v", pe.Resource.Amount.Value, err)
	}
	evt.Amount = amount
	evt.Currency = strings.ToLower(pe.Resource.Amount.CurrencyCode)

	return evt, nil
}

// paypalAmountToCents convertit "42.00" en 4200 centimes
func paypalAmountToCents(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}
