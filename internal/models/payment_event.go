package models

import "time"

// Types d'événements de paiement, normalisés quel que soit le provider
type EventType string

const (
	EventSessionCompleted EventType = "session-completed"
	EventPaymentSucceeded EventType = "payment-succeeded"
	EventPaymentFailed    EventType = "payment-failed"
	EventPaymentRefunded  EventType = "payment-refunded"

	// EventIgnored : type reconnu par aucun mapping — acquitté au gateway, jamais traité
	EventIgnored EventType = "ignored"
)

// NormalizedEvent est la forme interne unique des webhooks, quel que soit le provider.
// ID est l'identifiant d'événement attribué par le gateway : c'est la clé d'idempotence.
type NormalizedEvent struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`  // notre token de session (metadata / custom_id)
	GatewayRef string    `json:"gateway_ref"` // référence côté gateway, fallback de résolution
	Amount     int64     `json:"amount"`      // centimes
	Currency   string    `json:"currency"`
	RawDigest  string    `json:"raw_digest"` // sha-256 du payload brut, pour l'audit
	ReceivedAt time.Time `json:"received_at"`
}

// Issues possibles d'un événement dans le registre d'idempotence
const (
	OutcomePending  = "pending" // réservation posée, traitement en cours
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
)

// IdempotencyRecord est l'issue terminale enregistrée pour un event id donné.
// Une redélivraison du même event id renvoie ce record, sans effet de bord.
type IdempotencyRecord struct {
	EventID     string      `json:"event_id"`
	Outcome     string      `json:"outcome"`
	Reason      string      `json:"reason,omitempty"`
	OrderID     string      `json:"order_id,omitempty"`
	OrderStatus OrderStatus `json:"order_status,omitempty"` // statut résultant si applied
	Seq         int64       `json:"seq,omitempty"`
	RecordedAt  time.Time   `json:"recorded_at"`
}
