// Package broadcast : fan-out des transitions de commandes vers les
// connexions temps réel. Livraison at-least-once par connexion, idempotente
// côté client via le numéro de séquence. Aucune file d'attente hors-ligne :
// un client déconnecté se resynchronise depuis l'historique du Store au
// prochain subscribe.
package broadcast

import (
	"log"
	"sync"

	"velora_back_end/internal/models"
)

// Taille du buffer par connexion : une connexion lente ou morte ne doit
// jamais bloquer le commit des transitions suivantes
const subscriberBuffer = 32

// Subscriber est une connexion abonnée aux mises à jour d'un utilisateur
type Subscriber struct {
	UserID string
	ConnID string
	ch     chan models.OrderUpdate
}

// Updates renvoie le canal de réception des mises à jour
func (s *Subscriber) Updates() <-chan models.OrderUpdate {
	return s.ch
}

// Hub est le registre des connexions vivantes, possédé explicitement par le
// process (pas d'état global ambiant) et passé aux composants qui publient.
// Subscribe/Unsubscribe sont les seules mutations ; Publish itère sur un
// snapshot, jamais sur la map vivante.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscriber // user_id → conn_id → subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[string]*Subscriber)}
}

func (h *Hub) Subscribe(userID, connID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		UserID: userID,
		ConnID: connID,
		ch:     make(chan models.OrderUpdate, subscriberBuffer),
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[string]*Subscriber)
	}
	h.subs[userID][connID] = sub
	return sub
}

func (h *Hub) Unsubscribe(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.subs[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.subs, userID)
		}
	}
}

// Publish pousse la mise à jour à toutes les connexions vivantes de
// l'utilisateur. Envoi non bloquant : buffer plein = mise à jour droppée pour
// cette connexion (le client rattrape par replay de séquence).
func (h *Hub) Publish(userID string, upd models.OrderUpdate) {
	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subs[userID]))
	for _, sub := range h.subs[userID] {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		select {
		case sub.ch <- upd:
		default:
			log.Printf("⚠️ Connexion %s saturée, mise à jour seq %d droppée (rattrapage par replay)",
				sub.ConnID, upd.Seq)
		}
	}
}

// ConnCount renvoie le nombre de connexions vivantes d'un utilisateur
func (h *Hub) ConnCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
