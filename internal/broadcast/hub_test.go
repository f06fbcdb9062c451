package broadcast

import (
	"testing"
	"time"

	"velora_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(seq int64, status models.OrderStatus) models.OrderUpdate {
	return models.OrderUpdate{
		OrderID: "order-1",
		UserID:  "user-1",
		Status:  status,
		Seq:     seq,
		At:      time.Now(),
	}
}

func TestHub_PublishReachesAllUserConnections(t *testing.T) {
	h := NewHub()

	a := h.Subscribe("user-1", "conn-a")
	b := h.Subscribe("user-1", "conn-b")
	other := h.Subscribe("user-2", "conn-c")

	h.Publish("user-1", update(2, models.StatusPaid))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case upd := <-sub.Updates():
			assert.Equal(t, int64(2), upd.Seq)
			assert.Equal(t, models.StatusPaid, upd.Status)
		default:
			t.Fatalf("connexion %s n'a rien reçu", sub.ConnID)
		}
	}

	// Les connexions des autres utilisateurs ne reçoivent rien
	select {
	case <-other.Updates():
		t.Fatal("fuite de mise à jour vers un autre utilisateur")
	default:
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()

	sub := h.Subscribe("user-1", "conn-a")
	require.Equal(t, 1, h.ConnCount("user-1"))

	h.Unsubscribe("user-1", "conn-a")
	assert.Equal(t, 0, h.ConnCount("user-1"))

	h.Publish("user-1", update(2, models.StatusPaid))
	select {
	case <-sub.Updates():
		t.Fatal("mise à jour reçue après désabonnement")
	default:
	}
}

func TestHub_SlowConsumerNeverBlocksPublish(t *testing.T) {
	h := NewHub()
	h.Subscribe("user-1", "conn-lente") // personne ne lit ce canal

	done := make(chan struct{})
	go func() {
		// Bien au-delà de la capacité du buffer : les surplus sont droppés
		for i := 0; i < subscriberBuffer*3; i++ {
			h.Publish("user-1", update(int64(i+1), models.StatusProcessing))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish a bloqué sur une connexion saturée")
	}
}

func TestHub_OrderedDeliveryPerConnection(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("user-1", "conn-a")

	statuses := []models.OrderStatus{models.StatusPending, models.StatusPaid, models.StatusProcessing}
	for i, st := range statuses {
		h.Publish("user-1", update(int64(i+2), st))
	}

	// Les seq arrivent dans l'ordre de publication : le client peut
	// dédupliquer et détecter les trous avec un simple compteur
	for i, want := range statuses {
		upd := <-sub.Updates()
		assert.Equal(t, int64(i+2), upd.Seq)
		assert.Equal(t, want, upd.Status)
	}
}

func TestHub_ResubscribeAfterDisconnect(t *testing.T) {
	// Déroulé d'une reconnexion : le client a vu jusqu'à seq 3, se déconnecte,
	// des transitions passent, il revient et ne doit rien perdre (le replay
	// depuis l'historique est fait par le handler ; ici on vérifie que le hub
	// livre bien tout ce qui suit le re-subscribe)
	h := NewHub()

	first := h.Subscribe("user-1", "conn-1")
	h.Publish("user-1", update(2, models.StatusPending))
	h.Publish("user-1", update(3, models.StatusPaid))
	<-first.Updates()
	<-first.Updates()
	h.Unsubscribe("user-1", "conn-1")

	// Transitions pendant la déconnexion : personne ne les reçoit
	h.Publish("user-1", update(4, models.StatusProcessing))

	second := h.Subscribe("user-1", "conn-2")
	h.Publish("user-1", update(5, models.StatusShipped))

	upd := <-second.Updates()
	assert.Equal(t, int64(5), upd.Seq)

	select {
	case <-second.Updates():
		t.Fatal("mise à jour antérieure au re-subscribe livrée par le hub")
	default:
	}
}
