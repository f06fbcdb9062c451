package payement

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"velora_back_end/internal/checkout"
	"velora_back_end/internal/database"
	"velora_back_end/internal/models"

	"github.com/gin-gonic/gin"
)

// Checkout crée le brouillon de commande et la session de paiement à partir
// du snapshot panier tenu par le service panier (Redis)
func Checkout(c *gin.Context) {
	userID := c.GetString("user_id")
	email := c.GetString("email")

	if userID == "" || email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	// 1. Récupérer le snapshot panier depuis Redis
	ctx := context.Background()
	cartKey := "cart:" + userID

	cartData, err := database.Redis.Get(ctx, cartKey).Result()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Panier vide ou introuvable"})
		return
	}

	var cartItems []models.CartItem
	if err := json.Unmarshal([]byte(cartData), &cartItems); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture panier"})
		return
	}

	// 2. Créer le brouillon + la session (validations dans le manager)
	sess, err := manager.CreateSession(c.Request.Context(), userID, email, cartItems)
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidCartState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Panier invalide", "details": err.Error()})
			return
		}
		log.Printf("❌ Erreur création session checkout: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création paiement"})
		return
	}

	// 3. Réponse : token de session + identifiant de handoff pour le SDK client
	c.JSON(http.StatusOK, gin.H{
		"session_id":    sess.ID.String(),
		"order_id":      sess.OrderID.String(),
		"client_secret": sess.ClientSecret,
		"amount":        sess.Amount,
		"currency":      sess.Currency,
		"expires_at":    sess.ExpiresAt,
		"items_count":   len(cartItems),
	})
}
