package user

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Autoriser toutes les origines (à ajuster en production)
		return true
	},
}

// OrderWebSocket pousse les transitions de commandes en temps réel.
// Le client peut passer ?order_id=...&last_seq=N pour rejouer l'historique
// manqué pendant une déconnexion : l'abonnement au hub est pris AVANT le
// replay, donc une transition commitée pendant le replay arrive quand même
// (éventuellement en double — le client déduplique par seq).
func OrderWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(401, gin.H{"error": "Non authentifié"})
		return
	}

	orderID := c.Query("order_id")
	lastSeq, _ := strconv.ParseInt(c.Query("last_seq"), 10, 64)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Erreur upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	sub := hub.Subscribe(userID, connID)
	defer hub.Unsubscribe(userID, connID)

	conn.WriteJSON(map[string]interface{}{
		"type":    "connected",
		"message": "Suivi de commandes activé",
	})

	// Replay : rattrapage des transitions manquées depuis last_seq
	if orderID != "" {
		orderUUID, err := uuid.Parse(orderID)
		if err != nil {
			conn.WriteJSON(map[string]interface{}{
				"type":  "error",
				"error": "order_id invalide",
			})
			return
		}

		ctx := c.Request.Context()
		order, err := store.GetByID(ctx, gocql.UUID(orderUUID))
		if err != nil || order.UserID != userID {
			conn.WriteJSON(map[string]interface{}{
				"type":  "error",
				"error": "Commande introuvable",
			})
			return
		}

		missed, err := store.History(ctx, order.ID, lastSeq)
		if err != nil {
			log.Printf("❌ Erreur replay historique %s: %v", orderID, err)
			return
		}
		for _, chg := range missed {
			msg := map[string]interface{}{
				"type":     "order_update",
				"order_id": orderID,
				"status":   chg.Status,
				"seq":      chg.Seq,
				"at":       chg.CreatedAt,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}

	// Boucle d'écoute : mises à jour live + ping de keep-alive
	for {
		select {
		case upd, ok := <-sub.Updates():
			if !ok {
				return
			}
			msg := map[string]interface{}{
				"type":     "order_update",
				"order_id": upd.OrderID,
				"status":   upd.Status,
				"seq":      upd.Seq,
				"at":       upd.At,
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("❌ Erreur envoi WebSocket: %v", err)
				return
			}
		case <-time.After(30 * time.Second):
			// Ping pour garder la connexion active
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
