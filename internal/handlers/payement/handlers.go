package payement

import (
	"velora_back_end/internal/audit"
	"velora_back_end/internal/checkout"
	"velora_back_end/internal/reconcile"
	"velora_back_end/internal/webhook"
)

// Dépendances du package, câblées une fois depuis main
var (
	proc     *reconcile.Processor
	manager  *checkout.Manager
	sessions checkout.SessionStore
	registry *webhook.Registry
	recorder *audit.Recorder
)

func Init(p *reconcile.Processor, m *checkout.Manager, sess checkout.SessionStore,
	reg *webhook.Registry, rec *audit.Recorder) {
	proc = p
	manager = m
	sessions = sess
	registry = reg
	recorder = rec
}
