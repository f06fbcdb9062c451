package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"velora_back_end/internal/models"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "orders:"

// Dispatcher publie les transitions localement (Hub) et sur le pub/sub Redis
// pour que les connexions tenues par d'autres instances les reçoivent aussi.
// L'instance locale reçoit également sa propre publication Redis : le doublon
// qui en résulte est couvert par la tolérance at-least-once par connexion.
type Dispatcher struct {
	Hub   *Hub
	Redis *redis.Client // optionnel : nil = fan-out local uniquement
}

func (d *Dispatcher) Publish(userID string, upd models.OrderUpdate) {
	d.Hub.Publish(userID, upd)

	if d.Redis == nil {
		return
	}
	data, err := json.Marshal(upd)
	if err != nil {
		return
	}
	if err := d.Redis.Publish(context.Background(), channelPrefix+userID, data).Err(); err != nil {
		log.Printf("⚠️ Publication Redis échouée pour %s: %v", userID, err)
	}
}

// StartRelay écoute le pub/sub Redis et rejoue les mises à jour des autres
// instances dans le hub local (à lancer en goroutine depuis main)
func (d *Dispatcher) StartRelay(ctx context.Context) {
	if d.Redis == nil {
		return
	}

	pubsub := d.Redis.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("✅ Relais pub/sub des mises à jour de commandes démarré")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID := strings.TrimPrefix(msg.Channel, channelPrefix)
			var upd models.OrderUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				log.Printf("⚠️ Message pub/sub illisible sur %s: %v", msg.Channel, err)
				continue
			}
			d.Hub.Publish(userID, upd)
		}
	}
}
