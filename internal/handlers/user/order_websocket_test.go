package user

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"velora_back_end/internal/broadcast"
	"velora_back_end/internal/models"
	"velora_back_end/internal/orders"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Type    string             `json:"type"`
	OrderID string             `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
	Seq     int64              `json:"seq"`
	Error   string             `json:"error"`
}

func setupWSServer(t *testing.T, userID string) (*httptest.Server, *orders.MemoryStore, *broadcast.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memStore := orders.NewMemoryStore()
	h := broadcast.NewHub()
	Init(memStore, h)

	r := gin.New()
	// L'identité est posée par AuthRequired en production ; ici on la pose
	// directement pour exercer le handler seul
	r.GET("/api/orders/ws", func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}, OrderWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, memStore, h
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func seedOrderWithHistory(t *testing.T, store *orders.MemoryStore, userID string, statuses []models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:          gocql.TimeUUID(),
		UserID:      userID,
		TotalAmount: 4200,
		Currency:    "eur",
		SessionID:   gocql.TimeUUID().String(),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.CreateDraft(context.Background(), o))

	version := int64(1)
	for _, st := range statuses {
		seq, err := store.ApplyTransition(context.Background(), o.ID, version, st, "evt_seed", time.Now())
		require.NoError(t, err)
		version = seq
	}
	return o
}

func TestOrderWebSocket_ReplayThenLiveWithoutGap(t *testing.T) {
	srv, store, h := setupWSServer(t, "user-1")

	// Historique jusqu'à seq 5 : draft(1) pending(2) paid(3) processing(4) shipped(5)
	o := seedOrderWithHistory(t, store, "user-1", []models.OrderStatus{
		models.StatusPending, models.StatusPaid, models.StatusProcessing, models.StatusShipped,
	})

	// Le client a vu jusqu'à seq 2 avant sa déconnexion
	conn := dialWS(t, srv, "?order_id="+o.ID.String()+"&last_seq=2")

	// Le message de connexion part après l'abonnement au hub : à partir d'ici,
	// toute transition commitée sera livrée même si le replay est encore en cours
	hello := readMessage(t, conn)
	require.Equal(t, "connected", hello.Type)

	// Transition commitée pendant le rattrapage
	seq, err := store.ApplyTransition(context.Background(), o.ID, 5, models.StatusDelivered, "evt_live", time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(6), seq)
	h.Publish("user-1", models.OrderUpdate{
		OrderID: o.ID.String(),
		UserID:  "user-1",
		Status:  models.StatusDelivered,
		Seq:     6,
		At:      time.Now(),
	})

	// Le client doit voir chaque seq de 3 à 6, sans trou. Les doublons sont
	// tolérés (livraison at-least-once), il déduplique par seq.
	seen := make(map[int64]models.OrderStatus)
	lastSeq := int64(2)
	for len(seen) < 4 {
		msg := readMessage(t, conn)
		require.Equal(t, "order_update", msg.Type)
		if _, dup := seen[msg.Seq]; !dup {
			// Les premières livraisons arrivent en ordre croissant de seq
			assert.Greater(t, msg.Seq, lastSeq)
			lastSeq = msg.Seq
		}
		seen[msg.Seq] = msg.Status
	}

	for s := int64(3); s <= 6; s++ {
		assert.Contains(t, seen, s, "seq %d manquant", s)
	}
	assert.Equal(t, models.StatusPaid, seen[3])
	assert.Equal(t, models.StatusProcessing, seen[4])
	assert.Equal(t, models.StatusShipped, seen[5])
	assert.Equal(t, models.StatusDelivered, seen[6])
}

func TestOrderWebSocket_LiveOnlyWithoutReplay(t *testing.T) {
	srv, _, h := setupWSServer(t, "user-1")

	conn := dialWS(t, srv, "")
	require.Equal(t, "connected", readMessage(t, conn).Type)

	h.Publish("user-1", models.OrderUpdate{
		OrderID: gocql.TimeUUID().String(),
		UserID:  "user-1",
		Status:  models.StatusPaid,
		Seq:     2,
		At:      time.Now(),
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "order_update", msg.Type)
	assert.Equal(t, int64(2), msg.Seq)
	assert.Equal(t, models.StatusPaid, msg.Status)
}

func TestOrderWebSocket_RefusesForeignOrderReplay(t *testing.T) {
	srv, store, _ := setupWSServer(t, "user-1")

	// Commande d'un autre utilisateur : le replay est refusé
	other := seedOrderWithHistory(t, store, "user-2", []models.OrderStatus{models.StatusPending})

	conn := dialWS(t, srv, "?order_id="+other.ID.String()+"&last_seq=0")
	require.Equal(t, "connected", readMessage(t, conn).Type)

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.NotEmpty(t, msg.Error)
}

func TestOrderWebSocket_InvalidOrderID(t *testing.T) {
	srv, _, _ := setupWSServer(t, "user-1")

	conn := dialWS(t, srv, "?order_id=pas-un-uuid")
	require.Equal(t, "connected", readMessage(t, conn).Type)

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
}
