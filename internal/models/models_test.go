package models

import (
	"database/sql"
	"testing"
	"time"

	"commerce-core/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventory(available, reserved, committed int) *Inventory {
	return &Inventory{
		ID:        "inv-1",
		ProductID: "prod-1",
		Available: available,
		Reserved:  reserved,
		Committed: committed,
		Version:   7,
	}
}

func TestApplyMovementReserveAndCancel(t *testing.T) {
	inv := newInventory(5, 0, 0)

	require.NoError(t, ApplyMovement(inv, TxTypeReservation, -5))
	assert.Equal(t, 0, inv.Available)
	assert.Equal(t, 5, inv.Reserved)
	assert.Equal(t, 0, inv.Committed)
	assert.Equal(t, int64(8), inv.Version)

	require.NoError(t, ApplyMovement(inv, TxTypeCancelReservation, 5))
	assert.Equal(t, 5, inv.Available)
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, 0, inv.Committed)
	assert.Equal(t, int64(9), inv.Version)
}

func TestApplyMovementCommitFinalizesReservation(t *testing.T) {
	inv := newInventory(3, 2, 0)

	require.NoError(t, ApplyMovement(inv, TxTypeCommit, -2))
	assert.Equal(t, 3, inv.Available)
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, 2, inv.Committed)
}

func TestApplyMovementInsufficientStock(t *testing.T) {
	inv := newInventory(1, 0, 0)

	err := ApplyMovement(inv, TxTypeReservation, -2)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Rejected entirely: no partial effect.
	assert.Equal(t, 1, inv.Available)
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, int64(7), inv.Version)
}

func TestApplyMovementStockOutCountsAsSale(t *testing.T) {
	inv := newInventory(10, 0, 0)

	require.NoError(t, ApplyMovement(inv, TxTypeStockOut, -4))
	assert.Equal(t, 6, inv.Available)
	assert.Equal(t, 4, inv.Committed)
}

func TestApplyMovementStockIn(t *testing.T) {
	inv := newInventory(0, 0, 0)

	require.NoError(t, ApplyMovement(inv, TxTypeStockIn, 25))
	assert.Equal(t, 25, inv.Available)

	err := ApplyMovement(inv, TxTypeStockIn, -1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestApplyMovementAdjustmentBypassesStockCheck(t *testing.T) {
	// ADJUSTMENT skips the availability check but the negative-pool guard
	// still rejects overdraws.
	inv := newInventory(3, 0, 0)

	require.NoError(t, ApplyMovement(inv, TxTypeAdjustment, -3))
	assert.Equal(t, 0, inv.Available)
	assert.Equal(t, 3, inv.Committed)

	err := ApplyMovement(inv, TxTypeAdjustment, -1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 0, inv.Available)
}

func TestApplyMovementCommitWithoutReservation(t *testing.T) {
	inv := newInventory(5, 0, 0)

	err := ApplyMovement(inv, TxTypeCommit, -1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestApplyMovementCancelMoreThanReserved(t *testing.T) {
	inv := newInventory(0, 2, 0)

	err := ApplyMovement(inv, TxTypeCancelReservation, 3)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 2, inv.Reserved)
}

func TestApplyMovementUnknownType(t *testing.T) {
	inv := newInventory(5, 0, 0)

	err := ApplyMovement(inv, "REFUND", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestApplyMovementPoolsNeverNegative(t *testing.T) {
	// Random-ish walk across all movement types; pools must stay
	// non-negative after every accepted movement.
	inv := newInventory(0, 0, 0)
	moves := []struct {
		txType string
		qty    int
	}{
		{TxTypeStockIn, 10},
		{TxTypeReservation, -4},
		{TxTypeCommit, -2},
		{TxTypeCancelReservation, 2},
		{TxTypeStockOut, -3},
		{TxTypeAdjustment, 5},
		{TxTypeReservation, -10},
		{TxTypeAdjustment, -20},
	}

	for _, m := range moves {
		_ = ApplyMovement(inv, m.txType, m.qty)
		assert.GreaterOrEqual(t, inv.Available, 0)
		assert.GreaterOrEqual(t, inv.Reserved, 0)
		assert.GreaterOrEqual(t, inv.Committed, 0)
	}
}

func TestValidateTransitionTable(t *testing.T) {
	allowed := []struct{ from, to string }{
		{OrderStatusPending, OrderStatusPaid},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusPaid, OrderStatusShipped},
		{OrderStatusPaid, OrderStatusCancelled},
		{OrderStatusShipped, OrderStatusCompleted},
		{OrderStatusShipped, OrderStatusCancelled},
	}
	for _, tr := range allowed {
		assert.NoError(t, ValidateTransition(tr.from, tr.to), "%s → %s", tr.from, tr.to)
	}

	statuses := []string{
		OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled,
	}
	allowedSet := make(map[[2]string]bool, len(allowed))
	for _, tr := range allowed {
		allowedSet[[2]string{tr.from, tr.to}] = true
	}
	for _, from := range statuses {
		for _, to := range statuses {
			if allowedSet[[2]string{from, to}] {
				continue
			}
			err := ValidateTransition(from, to)
			require.Error(t, err, "%s → %s should be rejected", from, to)
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}
	}
}

func TestValidateTransitionNamesThePair(t *testing.T) {
	err := ValidateTransition(OrderStatusPending, OrderStatusShipped)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PENDING → SHIPPED")
}

func TestValidateTransitionUnknownStatus(t *testing.T) {
	err := ValidateTransition(OrderStatusPending, "ARCHIVED")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTerminalStatusesHaveNoOutgoingTransitions(t *testing.T) {
	for _, terminal := range []string{OrderStatusCompleted, OrderStatusCancelled} {
		for _, to := range []string{
			OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
			OrderStatusCompleted, OrderStatusCancelled,
		} {
			assert.Error(t, ValidateTransition(terminal, to))
		}
	}
}

func TestOrderTotal(t *testing.T) {
	items := []OrderItem{
		{ProductID: "prod-1", Quantity: 2, Price: 10.00},
	}
	total := OrderTotal(items, 0, 3.00, 1.00)
	assert.InDelta(t, 24.00, total, 1e-9)
}

func TestOrderTotalWithDiscount(t *testing.T) {
	items := []OrderItem{
		{ProductID: "prod-1", Quantity: 3, Price: 5.50},
		{ProductID: "prod-2", Quantity: 1, Price: 12.00},
	}
	total := OrderTotal(items, 4.50, 2.00, 1.25)
	assert.InDelta(t, 3*5.50+12.00-4.50+2.00+1.25, total, 1e-9)
}

func TestAmountsMatch(t *testing.T) {
	assert.True(t, AmountsMatch(24.00, 24.00))
	assert.True(t, AmountsMatch(24.00, 24.009))
	assert.True(t, AmountsMatch(24.009, 24.00))
	assert.False(t, AmountsMatch(24.00, 24.02))
	assert.False(t, AmountsMatch(24.00, 23.98))
}

func TestOrderIsDeleted(t *testing.T) {
	order := &Order{ID: "order-1"}
	assert.False(t, order.IsDeleted())

	order.DeletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	assert.True(t, order.IsDeleted())
}

func TestInventoryTotal(t *testing.T) {
	inv := newInventory(3, 4, 5)
	assert.Equal(t, 12, inv.Total())
}
