package user

import (
	"errors"
	"log"
	"net/http"

	"velora_back_end/internal/orders"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// GetMyOrders retourne les commandes de l'utilisateur connecté
func GetMyOrders(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Non authentifié"})
		return
	}

	list, err := store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		log.Printf("❌ Erreur lecture commandes de %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture commandes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": list,
		"count":  len(list),
	})
}

// GetOrderByID retourne une commande avec son historique d'états complet
func GetOrderByID(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Non authentifié"})
		return
	}

	orderUUID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	order, err := store.GetByID(c.Request.Context(), gocql.UUID(orderUUID))
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
			return
		}
		log.Printf("❌ Erreur lecture commande %s: %v", orderUUID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture commande"})
		return
	}

	// Une commande n'est visible que par son propriétaire
	if order.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	history, err := store.History(c.Request.Context(), order.ID, 0)
	if err != nil {
		log.Printf("❌ Erreur lecture historique %s: %v", orderUUID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture historique"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"history": history,
	})
}
