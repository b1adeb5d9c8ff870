package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
)

// GetPaymentByOrderID retrieves the latest payment for an order.
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found for order: %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByIntentID retrieves a payment by its external intent reference.
func (s *Store) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE payment_intent_id = $1", intentID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found: %s", intentID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByIntentForUpdate locks and loads a payment by intent reference.
// The lock makes confirmation single-shot under concurrent deliveries.
func (t *Tx) GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE payment_intent_id = $1 FOR UPDATE", intentID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found: %s", intentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return &payment, nil
}

// GetActivePaymentForOrder finds a PENDING or SUCCEEDED payment for an
// order, nil when none exists.
func (t *Tx) GetActivePaymentForOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment, `
		SELECT * FROM payments
		WHERE order_id = $1 AND status IN ($2, $3)
		LIMIT 1`,
		orderID, models.PaymentStatusPending, models.PaymentStatusSucceeded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// InsertPayment inserts a payment row.
func (t *Tx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	err := t.tx.GetContext(ctx, payment, `
		INSERT INTO payments (id, idempotency_key, order_id, amount, currency, status, payment_intent_id, client_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		payment.ID, payment.IdempotencyKey, payment.OrderID, payment.Amount,
		payment.Currency, payment.Status, payment.PaymentIntentID, payment.ClientSecret)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// UpdatePaymentResult records the settled status and optional failure reason.
func (t *Tx) UpdatePaymentResult(ctx context.Context, paymentID, status, failureReason string) error {
	reason := sql.NullString{String: failureReason, Valid: failureReason != ""}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3",
		status, reason, paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}
