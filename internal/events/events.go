// Package events defines the logical event topics the core publishes for
// downstream relays (webhook delivery, search indexing). Payloads carry the
// affected entity id and its new state, never transport envelopes.
package events

import "github.com/shopspring/decimal"

const (
	TopicInventoryUpdated   = "inventory.updated"
	TopicCartUpdated        = "cart.updated"
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderCancelled     = "order.cancelled"
)

type InventoryUpdated struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
	Reason    string `json:"reason"`
}

type CartUpdated struct {
	CartID    int64  `json:"cart_id"`
	Token     string `json:"token"`
	ItemCount int64  `json:"item_count"`
}

type OrderCreated struct {
	OrderID int64           `json:"order_id"`
	Number  string          `json:"number"`
	Total   decimal.Decimal `json:"total"`
}

type OrderStatusChanged struct {
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type OrderCancelled struct {
	OrderID int64 `json:"order_id"`
	// Restocked lists the product ids whose quantity was restored.
	Restocked []int64 `json:"restocked"`
}
