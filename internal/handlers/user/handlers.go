package user

import (
	"velora_back_end/internal/broadcast"
	"velora_back_end/internal/orders"
)

// Dépendances du package, câblées une fois depuis main
var (
	store orders.Store
	hub   *broadcast.Hub
)

func Init(s orders.Store, h *broadcast.Hub) {
	store = s
	hub = h
}
