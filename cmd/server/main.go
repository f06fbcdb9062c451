package main

import (
	"context"
	"log"
	"os"
	"time"

	"velora_back_end/internal/audit"
	"velora_back_end/internal/broadcast"
	"velora_back_end/internal/checkout"
	"velora_back_end/internal/config"
	"velora_back_end/internal/database"
	"velora_back_end/internal/handlers/payement"
	"velora_back_end/internal/handlers/user"
	"velora_back_end/internal/ledger"
	"velora_back_end/internal/orders"
	"velora_back_end/internal/reconcile"
	"velora_back_end/internal/routes"
	"velora_back_end/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"
)

// Rétention du registre d'idempotence : au-delà, les gateways ne redélivrent plus
const ledgerRetention = 30 * 24 * time.Hour

func main() {
	config.Load()

	secret := os.Getenv("STRIPE_SECRET_KEY")
	stripe.Key = secret
	if stripe.Key == "" {
		log.Fatal("❌ Impossible d'initialiser Stripe : clé manquante")
	}
	log.Println("✅ Stripe initialisé")

	database.ConnectDatabases()

	session, err := database.GetOrdersSession()
	if err != nil {
		log.Fatalf("❌ Session ScyllaDB orders indisponible: %v", err)
	}

	// Couche de stockage
	store := orders.NewScyllaStore(session)
	sessions := checkout.NewScyllaSessionStore(session)
	eventLedger := ledger.NewScyllaLedger(session, ledgerRetention)

	// Fan-out temps réel : hub local + relais pub/sub Redis entre instances
	hub := broadcast.NewHub()
	dispatcher := &broadcast.Dispatcher{Hub: hub, Redis: database.Redis}

	// Audit (best-effort, clients optionnels)
	recorder := &audit.Recorder{
		Elastic: database.Elastic,
		Minio:   database.MinIO,
		Bucket:  os.Getenv("MINIO_BUCKET"),
	}

	manager := checkout.NewManager(store, sessions, checkout.StripeGateway{})
	manager.Hub = dispatcher

	proc := reconcile.NewProcessor(store, eventLedger, sessions)
	proc.Hub = dispatcher
	proc.Audit = recorder

	registry := webhook.NewRegistry(
		webhook.StripeNormalizer{Secret: os.Getenv("STRIPE_WEBHOOK_SECRET")},
		webhook.PayPalNormalizer{
			WebhookID: os.Getenv("PAYPAL_WEBHOOK_ID"),
			Secret:    os.Getenv("PAYPAL_WEBHOOK_SECRET"),
		},
	)

	payement.Init(proc, manager, sessions, registry, recorder)
	user.Init(store, hub)

	ctx := context.Background()
	go dispatcher.StartRelay(ctx)
	go manager.StartSweeper(ctx, time.Minute)

	r := gin.Default()
	routes.RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("🚀 Serveur Velora lancé sur le port", port)
	r.Run(":" + port)
}
