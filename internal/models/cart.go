package models

// CartItem est une ligne du snapshot panier fourni par le service panier (Redis, clé cart:<user_id>)
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // centimes
}

// CartTotal calcule le total du panier en centimes
func CartTotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}
