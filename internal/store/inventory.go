package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/google/uuid"
)

// GetInventory retrieves the inventory record for a product without locking.
func (s *Store) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv, "SELECT * FROM inventory WHERE product_id = $1", productID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("inventory not found for product: %s", productID)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetLowStock retrieves inventory records with available stock below threshold.
func (s *Store) GetLowStock(ctx context.Context, threshold int) ([]models.Inventory, error) {
	var records []models.Inventory
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM inventory WHERE available_quantity < $1 ORDER BY available_quantity ASC",
		threshold)
	return records, err
}

// GetInventoryTransactions retrieves the ledger for a product, newest first.
func (s *Store) GetInventoryTransactions(ctx context.Context, productID string, limit int) ([]models.InventoryTransaction, error) {
	var txs []models.InventoryTransaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM inventory_transactions WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2",
		productID, limit)
	return txs, err
}

// GetInventoryProductIDs lists every product with an inventory record.
func (s *Store) GetInventoryProductIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, "SELECT product_id FROM inventory ORDER BY product_id")
	return ids, err
}

// LedgerTotals are the three pool values recomputed from the transaction log.
type LedgerTotals struct {
	Available int `db:"available"`
	Reserved  int `db:"reserved"`
	Committed int `db:"committed"`
}

// SumLedger reconstructs the inventory pools from the signed ledger rows.
// Reservation and cancellation rows net out of available directly; the
// reserved and committed pools are derived from the per-type movements.
func (s *Store) SumLedger(ctx context.Context, productID string) (*LedgerTotals, error) {
	// COMMIT rows move stock between reserved and committed without touching
	// available, so they are excluded from the available sum.
	const query = `
		SELECT
			COALESCE(SUM(CASE WHEN type <> 'COMMIT' THEN quantity ELSE 0 END), 0) AS available,
			COALESCE(SUM(CASE
				WHEN type IN ('RESERVATION', 'CANCEL_RESERVATION') THEN -quantity
				WHEN type = 'COMMIT' THEN quantity
				ELSE 0 END), 0) AS reserved,
			COALESCE(SUM(CASE
				WHEN type IN ('COMMIT', 'STOCK_OUT') THEN -quantity
				WHEN type = 'ADJUSTMENT' AND quantity < 0 THEN -quantity
				ELSE 0 END), 0) AS committed
		FROM inventory_transactions
		WHERE product_id = $1`

	var totals LedgerTotals
	if err := s.db.GetContext(ctx, &totals, query, productID); err != nil {
		return nil, err
	}
	return &totals, nil
}

// GetInventoryForUpdate locks and loads the inventory row for a product.
func (t *Tx) GetInventoryForUpdate(ctx context.Context, productID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := t.tx.GetContext(ctx, &inv,
		"SELECT * FROM inventory WHERE product_id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("inventory not found for product: %s", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}
	return &inv, nil
}

// CreateInventory inserts an all-zero inventory record for a product.
func (t *Tx) CreateInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	inv := &models.Inventory{ID: uuid.New().String(), ProductID: productID}
	err := t.tx.GetContext(ctx, inv, `
		INSERT INTO inventory (id, product_id, available_quantity, reserved_quantity, committed_quantity, version)
		VALUES ($1, $2, 0, 0, 0, 0)
		RETURNING *`,
		inv.ID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory: %w", err)
	}
	return inv, nil
}

// SaveInventory persists mutated pool counters and the bumped version.
func (t *Tx) SaveInventory(ctx context.Context, inv *models.Inventory) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE inventory
		SET available_quantity = $1, reserved_quantity = $2, committed_quantity = $3,
		    version = $4, updated_at = NOW()
		WHERE id = $5`,
		inv.Available, inv.Reserved, inv.Committed, inv.Version, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}
	return nil
}

// HasMovement reports whether a ledger row already exists for the
// (product, order, type) triple. Retried protocol operations are detected
// through this and applied at most once.
func (t *Tx) HasMovement(ctx context.Context, productID, orderID, txType string) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM inventory_transactions
			WHERE product_id = $1 AND order_id = $2 AND type = $3)`,
		productID, orderID, txType)
	return exists, err
}

// InsertInventoryTransaction appends one immutable ledger row.
func (t *Tx) InsertInventoryTransaction(ctx context.Context, row *models.InventoryTransaction) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, product_id, type, quantity, order_id, actor_id, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.ProductID, row.Type, row.Quantity, row.OrderID, row.ActorID, row.Reference)
	if err != nil {
		return fmt.Errorf("failed to append inventory transaction: %w", err)
	}
	return nil
}

// Movement describes one ledger mutation to apply under the row lock.
type Movement struct {
	ProductID string
	Type      string
	Quantity  int
	OrderID   string
	ActorID   string
	Reference string
}

// ApplyMovement locks the inventory row, applies the pool mutation, persists
// the record and appends the matching ledger row. Record and log commit
// atomically because the caller's transaction wraps both writes. Movements
// carrying an order id are idempotent: a retry that already left a
// (product, order, type) ledger row returns the current record untouched.
func (t *Tx) ApplyMovement(ctx context.Context, m Movement) (*models.Inventory, error) {
	inv, err := t.GetInventoryForUpdate(ctx, m.ProductID)
	if err != nil {
		return nil, err
	}

	if m.OrderID != "" {
		applied, err := t.HasMovement(ctx, m.ProductID, m.OrderID, m.Type)
		if err != nil {
			return nil, err
		}
		if applied {
			return inv, nil
		}
	}

	if err := models.ApplyMovement(inv, m.Type, m.Quantity); err != nil {
		return nil, err
	}

	if err := t.SaveInventory(ctx, inv); err != nil {
		return nil, err
	}

	row := &models.InventoryTransaction{
		ProductID: m.ProductID,
		Type:      m.Type,
		Quantity:  m.Quantity,
		Reference: m.Reference,
	}
	if m.OrderID != "" {
		row.OrderID = sql.NullString{String: m.OrderID, Valid: true}
	}
	if m.ActorID != "" {
		row.ActorID = sql.NullString{String: m.ActorID, Valid: true}
	}
	if err := t.InsertInventoryTransaction(ctx, row); err != nil {
		return nil, err
	}

	return inv, nil
}
