package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
)

// GetOrderByID retrieves an order by ID, excluding soft-deleted rows.
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND deleted_at IS NULL", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key. Returns
// nil, nil when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE idempotency_key = $1 AND deleted_at IS NULL", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order.
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY product_id", orderID)
	return items, err
}

// GetOrderForUpdate locks and loads an order row. The order lock is always
// taken before any inventory lock to keep the lock acquisition order stable.
func (t *Tx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found: %s", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return &order, nil
}

// InsertOrder inserts an order row with its pre-generated id.
func (t *Tx) InsertOrder(ctx context.Context, order *models.Order) error {
	err := t.tx.GetContext(ctx, order, `
		INSERT INTO orders (id, user_id, status, total_amount, discount_amount, shipping_amount, tax_amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		order.ID, order.UserID, order.Status, order.TotalAmount,
		order.DiscountAmount, order.ShippingAmount, order.TaxAmount, order.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// InsertOrderItem inserts one order item.
func (t *Tx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

// GetOrderItems retrieves order items inside the transaction.
func (t *Tx) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := t.tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY product_id", orderID)
	return items, err
}

// UpdateOrderStatus persists a validated status transition.
func (t *Tx) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}
