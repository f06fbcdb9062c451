package payement

import (
	"errors"
	"log"
	"net/http"

	"velora_back_end/internal/models"
	"velora_back_end/internal/orders"
	"velora_back_end/internal/reconcile"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// UpdateOrderStatus permet à un admin de faire avancer une commande
// (processing → shipped → delivered, ou annulation d'un brouillon).
// La table de transitions est la seule autorité : pas de saut d'étape,
// pas de retour en arrière.
func UpdateOrderStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	target := models.OrderStatus(req.Status)
	if !target.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Statut invalide", "status": req.Status})
		return
	}

	orderUUID, err := uuid.Parse(orderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	order, err := proc.AdminAdvance(c.Request.Context(), gocql.UUID(orderUUID), target)
	if err != nil {
		var invalid *reconcile.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			// État courant + état demandé : l'opérateur voit que sa vue est périmée
			c.JSON(http.StatusConflict, gin.H{
				"error":            "Transition invalide",
				"current_status":   invalid.Current,
				"attempted_status": invalid.Attempted,
			})
		case errors.Is(err, reconcile.ErrConcurrentModification):
			c.JSON(http.StatusConflict, gin.H{"error": "Modification concurrente, réessayez"})
		case errors.Is(err, orders.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		default:
			log.Printf("❌ Erreur mise à jour commande %s: %v", orderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour commande"})
		}
		return
	}

	log.Printf("✅ Commande %s mise à jour: %s", orderID, order.Status)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"order_id":   orderID,
		"status":     order.Status,
		"seq":        order.Version,
		"updated_at": order.UpdatedAt,
	})
}

// GetAllOrders permet à un admin de récupérer toutes les commandes
func GetAllOrders(c *gin.Context) {
	list, err := proc.Orders.ListAll(c.Request.Context())
	if err != nil {
		log.Printf("❌ Erreur lecture commandes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture commandes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": list,
		"count":  len(list),
	})
}

// GetOrderStats retourne des statistiques sur les commandes
func GetOrderStats(c *gin.Context) {
	list, err := proc.Orders.ListAll(c.Request.Context())
	if err != nil {
		log.Printf("❌ Erreur lecture stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture statistiques"})
		return
	}

	stats := make(map[models.OrderStatus]int)
	var totalRevenue int64
	for _, o := range list {
		stats[o.Status]++
		switch o.Status {
		case models.StatusPaid, models.StatusProcessing, models.StatusShipped, models.StatusDelivered:
			totalRevenue += o.TotalAmount
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_orders":  len(list),
		"total_revenue": totalRevenue,
		"by_status":     stats,
	})
}
