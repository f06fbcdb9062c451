package payement

import (
	"context"
	"errors"
	"log"
	"net/http"

	"velora_back_end/internal/models"
	"velora_back_end/internal/reconcile"
	"velora_back_end/internal/utils"
	"velora_back_end/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// HandleWebhook reçoit les callbacks signés des gateways de paiement.
// Répond vite et acquitte (200) les duplicatas comme les types sans intérêt :
// un non-2xx déclenche la redélivraison côté gateway — la sûreté vient du
// registre d'idempotence, pas d'un 200 systématique.
func HandleWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := c.GetRawData()
	if err != nil {
		log.Println("❌ Lecture payload échouée:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	provider := c.Param("provider")
	normalizer, ok := registry.Lookup(provider)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Provider inconnu"})
		return
	}

	evt, err := normalizer.Normalize(payload, c.GetHeader(normalizer.SignatureHeader()))
	if err != nil {
		if errors.Is(err, webhook.ErrSignatureInvalid) {
			// Jeté, jamais mis en file : un payload forgé ne doit pas pouvoir
			// confirmer un paiement
			log.Printf("❌ Signature %s invalide: %v", provider, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature invalide"})
			return
		}
		log.Printf("❌ Payload %s illisible: %v", provider, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload invalide"})
		return
	}

	log.Printf("📥 Événement %s reçu : %s (%s)", provider, evt.ID, evt.Type)

	// Archivage du payload brut (audit, best-effort)
	go recorder.ArchivePayload(provider, evt.RawDigest, payload)

	rec, err := proc.Process(c.Request.Context(), *evt)
	if err != nil {
		if errors.Is(err, reconcile.ErrConcurrentModification) {
			// Réservation libérée : la redélivraison gateway retentera
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Conflit transitoire, redélivrance attendue"})
			return
		}
		log.Printf("❌ Erreur traitement événement %s: %v", evt.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur traitement événement"})
		return
	}

	if rec.Outcome == models.OutcomeApplied {
		go notifyStatusChange(evt.SessionID, evt.GatewayRef, rec)
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"event_id": rec.EventID,
		"outcome":  rec.Outcome,
	})
}

// notifyStatusChange envoie l'e-mail de changement de statut (async, best-effort)
func notifyStatusChange(sessionID, gatewayRef string, rec *models.IdempotencyRecord) {
	ctx := context.Background()

	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil && gatewayRef != "" {
		sess, err = sessions.GetByGatewayRef(ctx, gatewayRef)
	}
	if err != nil || sess.Email == "" {
		return
	}

	orderUUID, err := uuid.Parse(rec.OrderID)
	if err != nil {
		return
	}
	order, err := proc.Orders.GetByID(ctx, gocql.UUID(orderUUID))
	if err != nil {
		return
	}

	if err := utils.SendOrderStatusEmail(sess.Email, *order, rec.OrderStatus); err != nil {
		log.Println("❌ Erreur envoi e-mail statut commande :", err)
	} else {
		log.Println("📧 E-mail de statut envoyé à", sess.Email)
	}
}
