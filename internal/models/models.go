package models

import (
	"database/sql"
	"time"

	"commerce-core/internal/apperr"
)

// Product is the catalog view this core needs to snapshot prices and
// validate existence.
type Product struct {
	ID        string    `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     float64   `db:"price" json:"price"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Inventory holds the three stock pools for a product. Mutated only under a
// row-level exclusive lock; version increments on every write.
type Inventory struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Available int       `db:"available_quantity" json:"available_quantity"`
	Reserved  int       `db:"reserved_quantity" json:"reserved_quantity"`
	Committed int       `db:"committed_quantity" json:"committed_quantity"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Total is the sum of all pools.
func (inv *Inventory) Total() int {
	return inv.Available + inv.Reserved + inv.Committed
}

// Inventory transaction types
const (
	TxTypeStockIn           = "STOCK_IN"
	TxTypeStockOut          = "STOCK_OUT"
	TxTypeReservation       = "RESERVATION"
	TxTypeCommit            = "COMMIT"
	TxTypeCancelReservation = "CANCEL_RESERVATION"
	TxTypeAdjustment        = "ADJUSTMENT"
)

// InventoryTransaction is one immutable ledger entry. The signed quantities,
// grouped by type, reconstruct the Inventory pools exactly.
type InventoryTransaction struct {
	ID        string         `db:"id" json:"id"`
	ProductID string         `db:"product_id" json:"product_id"`
	Type      string         `db:"type" json:"type"`
	Quantity  int            `db:"quantity" json:"quantity"`
	OrderID   sql.NullString `db:"order_id" json:"order_id,omitempty"`
	ActorID   sql.NullString `db:"actor_id" json:"actor_id,omitempty"`
	Reference string         `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ApplyMovement mutates the inventory pools for one ledger entry of the given
// type and signed quantity. It enforces the stock check for outflows (skipped
// for ADJUSTMENT by convention; administrative callers take the negative-pool
// guard instead) and rejects any movement that would drive a pool negative.
func ApplyMovement(inv *Inventory, txType string, quantity int) error {
	switch txType {
	case TxTypeStockIn:
		if quantity <= 0 {
			return apperr.Validation("STOCK_IN quantity must be positive, got %d", quantity)
		}
		inv.Available += quantity

	case TxTypeStockOut:
		if quantity >= 0 {
			return apperr.Validation("STOCK_OUT quantity must be negative, got %d", quantity)
		}
		if -quantity > inv.Available {
			return apperr.Conflict("insufficient stock for product %s: available=%d, requested=%d",
				inv.ProductID, inv.Available, -quantity)
		}
		inv.Available += quantity
		inv.Committed += -quantity

	case TxTypeAdjustment:
		if inv.Available+quantity < 0 {
			return apperr.Conflict("inventory for product %s would go negative", inv.ProductID)
		}
		inv.Available += quantity
		if quantity < 0 {
			inv.Committed += -quantity
		}

	case TxTypeReservation:
		if quantity >= 0 {
			return apperr.Validation("RESERVATION quantity must be negative, got %d", quantity)
		}
		if -quantity > inv.Available {
			return apperr.Conflict("insufficient stock for product %s: available=%d, requested=%d",
				inv.ProductID, inv.Available, -quantity)
		}
		inv.Available += quantity
		inv.Reserved += -quantity

	case TxTypeCommit:
		if quantity >= 0 {
			return apperr.Validation("COMMIT quantity must be negative, got %d", quantity)
		}
		if -quantity > inv.Reserved {
			return apperr.Conflict("cannot commit %d units for product %s: reserved=%d",
				-quantity, inv.ProductID, inv.Reserved)
		}
		inv.Reserved += quantity
		inv.Committed += -quantity

	case TxTypeCancelReservation:
		if quantity <= 0 {
			return apperr.Validation("CANCEL_RESERVATION quantity must be positive, got %d", quantity)
		}
		if quantity > inv.Reserved {
			return apperr.Conflict("cannot cancel %d reserved units for product %s: reserved=%d",
				quantity, inv.ProductID, inv.Reserved)
		}
		inv.Reserved -= quantity
		inv.Available += quantity

	default:
		return apperr.Validation("unknown inventory transaction type: %s", txType)
	}

	if inv.Available < 0 || inv.Reserved < 0 || inv.Committed < 0 {
		return apperr.Conflict("inventory for product %s would go negative", inv.ProductID)
	}

	inv.Version++
	return nil
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

// orderTransitions is the closed transition table. COMPLETED and CANCELLED
// are terminal.
var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	_, ok := orderTransitions[s]
	return ok
}

// ValidateTransition checks from → to against the transition table.
func ValidateTransition(from, to string) error {
	next, ok := orderTransitions[from]
	if !ok {
		return apperr.Validation("unknown order status: %s", from)
	}
	if !ValidOrderStatus(to) {
		return apperr.Validation("unknown order status: %s", to)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return apperr.Conflict("invalid status transition: %s → %s", from, to)
}

// Order is owned exclusively by the order state machine. Items are immutable
// after creation; prices are snapshotted, never recomputed from the catalog.
type Order struct {
	ID             string       `db:"id" json:"id"`
	UserID         string       `db:"user_id" json:"user_id"`
	Status         string       `db:"status" json:"status"`
	TotalAmount    float64      `db:"total_amount" json:"total_amount"`
	DiscountAmount float64      `db:"discount_amount" json:"discount_amount"`
	ShippingAmount float64      `db:"shipping_amount" json:"shipping_amount"`
	TaxAmount      float64      `db:"tax_amount" json:"tax_amount"`
	IdempotencyKey string       `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
	DeletedAt      sql.NullTime `db:"deleted_at" json:"-"`
}

// IsDeleted reports whether the order is soft-deleted. Store queries filter
// deleted rows; this guards code paths that already hold a row.
func (o *Order) IsDeleted() bool {
	return o.DeletedAt.Valid
}

// OrderItem snapshots quantity and unit price at order time.
type OrderItem struct {
	ID        string  `db:"id" json:"id"`
	OrderID   string  `db:"order_id" json:"order_id"`
	ProductID string  `db:"product_id" json:"product_id"`
	Quantity  int     `db:"quantity" json:"quantity"`
	Price     float64 `db:"price" json:"price"`
}

// OrderTotal computes sum(quantity*price) - discount + shipping + tax.
func OrderTotal(items []OrderItem, discount, shipping, tax float64) float64 {
	var subtotal float64
	for _, item := range items {
		subtotal += float64(item.Quantity) * item.Price
	}
	return subtotal - discount + shipping + tax
}

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

// AmountEpsilon is the tolerance for comparing payment amounts against order
// totals, in currency units.
const AmountEpsilon = 0.01

// AmountsMatch compares two amounts within AmountEpsilon.
func AmountsMatch(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= AmountEpsilon
}

// Payment is tied 1:1 to a pending order and confirmed exactly once.
type Payment struct {
	ID              string         `db:"id" json:"id"`
	IdempotencyKey  string         `db:"idempotency_key" json:"idempotency_key"`
	OrderID         string         `db:"order_id" json:"order_id"`
	Amount          float64        `db:"amount" json:"amount"`
	Currency        string         `db:"currency" json:"currency"`
	Status          string         `db:"status" json:"status"`
	PaymentIntentID string         `db:"payment_intent_id" json:"payment_intent_id"`
	ClientSecret    string         `db:"client_secret" json:"-"`
	FailureReason   sql.NullString `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}
