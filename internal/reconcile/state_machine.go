package reconcile

import "velora_back_end/internal/models"

// Table de transitions du cycle de vie d'une commande :
// (statut courant × type d'événement) → statut suivant.
// Toute paire absente de la table est soit ignorée soit rejetée (voir decide).
// La chaîne admin draft→…→delivered est dans adminTransitions plus bas.
var paymentTransitions = map[models.OrderStatus]map[models.EventType]models.OrderStatus{
	models.StatusDraft: {
		models.EventSessionCompleted: models.StatusPending,
		// Gateway qui n'envoie pas de session-completed séparé : succès direct depuis draft
		models.EventPaymentSucceeded: models.StatusPaid,
		models.EventPaymentFailed:    models.StatusPaymentFailed,
	},
	models.StatusPending: {
		models.EventPaymentSucceeded: models.StatusPaid,
		models.EventPaymentFailed:    models.StatusPaymentFailed,
	},
	models.StatusPaid: {
		models.EventPaymentRefunded: models.StatusRefunded,
	},
	models.StatusProcessing: {
		models.EventPaymentRefunded: models.StatusRefunded,
	},
	models.StatusShipped: {
		models.EventPaymentRefunded: models.StatusRefunded,
	},
}

// Transitions admin autorisées. La chaîne paid→processing→shipped→delivered
// est monotone : jamais de retour en arrière, jamais de saut d'étape.
var adminTransitions = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.StatusDraft:      {models.StatusCancelled: true},
	models.StatusPending:    {models.StatusCancelled: true},
	models.StatusPaid:       {models.StatusProcessing: true},
	models.StatusProcessing: {models.StatusShipped: true},
	models.StatusShipped:    {models.StatusDelivered: true},
}

// decision est l'issue calculée pour un événement donné, sans effet de bord
type decision struct {
	outcome string // models.OutcomeApplied / OutcomeIgnored / OutcomeRejected
	next    models.OrderStatus
	reason  string
}

// decide calcule la transition pour un événement normalisé face à l'état
// courant de la commande. Logique pure : la version/CAS est gérée par l'appelant.
func decide(current models.OrderStatus, evt models.NormalizedEvent, orderAmount int64, orderCurrency string) decision {
	// Remboursement après livraison : erreur rapportée, jamais appliquée en
	// silence (nécessite un enregistrement de reversement hors périmètre commande)
	if evt.Type == models.EventPaymentRefunded {
		if current == models.StatusDelivered {
			return decision{outcome: models.OutcomeRejected, reason: "remboursement après livraison non supporté"}
		}
		if current == models.StatusDraft || current == models.StatusPending {
			return decision{outcome: models.OutcomeRejected, reason: "aucun paiement confirmé à rembourser"}
		}
	}

	if current.IsTerminal() {
		return decision{outcome: models.OutcomeIgnored, reason: "commande dans un état terminal (" + string(current) + ")"}
	}

	next, ok := paymentTransitions[current][evt.Type]
	if !ok {
		return decision{outcome: models.OutcomeIgnored, reason: "événement sans effet depuis l'état " + string(current)}
	}

	// Un paiement confirmé doit correspondre exactement au total de la commande ;
	// tout écart route la commande vers payment_failed (issue métier, pas une erreur)
	if evt.Type == models.EventPaymentSucceeded {
		if evt.Amount != orderAmount || evt.Currency != orderCurrency {
			return decision{
				outcome: models.OutcomeApplied,
				next:    models.StatusPaymentFailed,
				reason:  "amount_mismatch",
			}
		}
	}

	return decision{outcome: models.OutcomeApplied, next: next}
}

// adminAllowed vérifie qu'une transition demandée par un admin est le
// successeur immédiat autorisé de l'état courant
func adminAllowed(current, target models.OrderStatus) bool {
	return adminTransitions[current][target]
}
