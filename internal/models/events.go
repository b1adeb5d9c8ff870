package models

import "time"

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeOrderPaid         = "ORDER_PAID"
	EventTypeOrderShipped      = "ORDER_SHIPPED"
	EventTypeOrderCompleted    = "ORDER_COMPLETED"
	EventTypeOrderCancelled    = "ORDER_CANCELLED"
	EventTypePaymentSucceeded  = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed     = "PAYMENT_FAILED"
	EventTypeInventoryAdjusted = "INVENTORY_ADJUSTED"
	EventTypeGatewayResult     = "GATEWAY_RESULT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created with stock reserved
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount float64         `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on every state-machine transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// PaymentSucceededEvent published when a payment intent settles successfully
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID         string  `json:"order_id"`
	PaymentID       string  `json:"payment_id"`
	PaymentIntentID string  `json:"payment_intent_id"`
	Amount          float64 `json:"amount"`
}

// PaymentFailedEvent published when a payment intent is declined
type PaymentFailedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	PaymentID       string `json:"payment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason"`
}

// InventoryAdjustedEvent published after administrative stock adjustments
type InventoryAdjustedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Committed int    `json:"committed"`
}

// GatewayResultEvent is consumed from the gateway topic; it is the async
// equivalent of the payment webhook and drives confirmPayment.
type GatewayResultEvent struct {
	BaseEvent
	PaymentIntentID string `json:"payment_intent_id"`
	Succeeded       bool   `json:"succeeded"`
	Reason          string `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}
