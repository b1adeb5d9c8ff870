package service

import (
	"context"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// snapshotTTL bounds staleness of the read-through inventory cache.
const snapshotTTL = 30 * time.Second

// InventoryService owns the stock ledger and the reservation/commit protocol
// layered on it. Every mutation runs in one database transaction holding the
// inventory row lock; the ledger row and the counters commit atomically.
type InventoryService struct {
	store             *store.Store
	redis             *redisclient.Client
	catalog           Catalog
	eventPublisher    *broker.EventPublisher
	logger            *zap.Logger
	lowStockThreshold int
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	s *store.Store,
	redis *redisclient.Client,
	catalog Catalog,
	eventPublisher *broker.EventPublisher,
	lowStockThreshold int,
) *InventoryService {
	return &InventoryService{
		store:             s,
		redis:             redis,
		catalog:           catalog,
		eventPublisher:    eventPublisher,
		logger:            util.GetLogger(),
		lowStockThreshold: lowStockThreshold,
	}
}

// GetOrCreate returns the inventory record for a product, creating an
// all-zero record on first access when the product exists in the catalog.
// Read paths may be served from the Redis snapshot; the snapshot is never
// consulted by mutating transactions.
func (s *InventoryService) GetOrCreate(ctx context.Context, productID string) (*models.Inventory, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetOrCreate")
	defer span.End()

	if snap, err := s.redis.GetInventorySnapshot(ctx, productID); err == nil && snap != nil {
		return snap, nil
	}

	inv, err := s.store.GetInventory(ctx, productID)
	if apperr.Is(err, apperr.KindNotFound) {
		if _, perr := s.catalog.FindProduct(ctx, productID); perr != nil {
			return nil, perr
		}
		err = s.store.RunTx(ctx, func(tx *store.Tx) error {
			inv, err = tx.CreateInventory(ctx, productID)
			return err
		})
		if store.IsUniqueViolation(err) {
			// Lost a concurrent first-access race; the record exists now.
			inv, err = s.store.GetInventory(ctx, productID)
		}
	}
	if err != nil {
		return nil, err
	}

	if cerr := s.redis.SetInventorySnapshot(ctx, inv, snapshotTTL); cerr != nil {
		s.logger.Warn("Failed to cache inventory snapshot",
			zap.String("product_id", productID), zap.Error(cerr))
	}
	return inv, nil
}

// Adjust applies an administrative stock movement (STOCK_IN, STOCK_OUT or
// ADJUSTMENT). The protocol types are driven by the order state machine and
// are rejected here.
func (s *InventoryService) Adjust(ctx context.Context, productID string, quantity int, txType, reference, actorID string) (*models.Inventory, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Adjust")
	defer span.End()

	switch txType {
	case models.TxTypeStockIn, models.TxTypeStockOut, models.TxTypeAdjustment:
	default:
		return nil, apperr.Validation("transaction type %s cannot be applied directly", txType)
	}

	if _, err := s.GetOrCreate(ctx, productID); err != nil {
		return nil, err
	}

	var inv *models.Inventory
	err := s.store.RunTx(ctx, func(tx *store.Tx) error {
		var err error
		inv, err = tx.ApplyMovement(ctx, store.Movement{
			ProductID: productID,
			Type:      txType,
			Quantity:  quantity,
			ActorID:   actorID,
			Reference: reference,
		})
		return err
	})
	if err != nil {
		util.InventoryMovementsFailed.WithLabelValues("adjust").Inc()
		return nil, err
	}

	util.InventoryMovementsTotal.WithLabelValues(txType).Inc()
	s.invalidateSnapshot(ctx, productID)

	event := &models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInventoryAdjusted,
			Timestamp: time.Now(),
		},
		ProductID: productID,
		Type:      txType,
		Quantity:  quantity,
		Available: inv.Available,
		Reserved:  inv.Reserved,
		Committed: inv.Committed,
	}
	if err := s.eventPublisher.PublishInventoryAdjusted(ctx, event); err != nil {
		s.logger.Error("Failed to publish InventoryAdjusted event", zap.Error(err))
	}

	return inv, nil
}

// Reserve moves quantity from available to reserved on behalf of an order.
func (s *InventoryService) Reserve(ctx context.Context, productID string, quantity int, orderID string) (*models.Inventory, error) {
	var inv *models.Inventory
	err := s.store.RunTx(ctx, func(tx *store.Tx) error {
		var err error
		inv, err = s.ReserveTx(ctx, tx, productID, quantity, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSnapshot(ctx, productID)
	return inv, nil
}

// ReserveTx is the transaction-scoped reserve used by the order state
// machine so reservation and order-row creation commit atomically.
func (s *InventoryService) ReserveTx(ctx context.Context, tx *store.Tx, productID string, quantity int, orderID string) (*models.Inventory, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("reservation quantity must be positive, got %d", quantity)
	}

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	inv, err := s.applyTx(ctx, tx, store.Movement{
		ProductID: productID,
		Type:      models.TxTypeReservation,
		Quantity:  -quantity,
		OrderID:   orderID,
		Reference: orderID,
	})
	if err != nil {
		util.InventoryMovementsFailed.WithLabelValues("reserve").Inc()
		return nil, err
	}
	util.InventoryMovementsTotal.WithLabelValues(models.TxTypeReservation).Inc()
	return inv, nil
}

// CommitReservationTx finalizes a held reservation into committed (sold)
// stock. Calling it without a prior reservation for the order/product pair
// is a caller error.
func (s *InventoryService) CommitReservationTx(ctx context.Context, tx *store.Tx, productID string, quantity int, orderID string) (*models.Inventory, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("commit quantity must be positive, got %d", quantity)
	}

	reserved, err := tx.HasMovement(ctx, productID, orderID, models.TxTypeReservation)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, apperr.Conflict("no reservation exists for product %s and order %s", productID, orderID)
	}

	inv, err := tx.ApplyMovement(ctx, store.Movement{
		ProductID: productID,
		Type:      models.TxTypeCommit,
		Quantity:  -quantity,
		OrderID:   orderID,
		Reference: orderID,
	})
	if err != nil {
		util.InventoryMovementsFailed.WithLabelValues("commit").Inc()
		return nil, err
	}
	util.InventoryMovementsTotal.WithLabelValues(models.TxTypeCommit).Inc()
	return inv, nil
}

// CancelReservation returns held stock to the available pool.
func (s *InventoryService) CancelReservation(ctx context.Context, productID string, quantity int, orderID string) (*models.Inventory, error) {
	var inv *models.Inventory
	err := s.store.RunTx(ctx, func(tx *store.Tx) error {
		var err error
		inv, err = s.CancelReservationTx(ctx, tx, productID, quantity, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSnapshot(ctx, productID)
	return inv, nil
}

// CancelReservationTx is the transaction-scoped inverse of ReserveTx.
func (s *InventoryService) CancelReservationTx(ctx context.Context, tx *store.Tx, productID string, quantity int, orderID string) (*models.Inventory, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("cancel quantity must be positive, got %d", quantity)
	}

	inv, err := tx.ApplyMovement(ctx, store.Movement{
		ProductID: productID,
		Type:      models.TxTypeCancelReservation,
		Quantity:  quantity,
		OrderID:   orderID,
		Reference: orderID,
	})
	if err != nil {
		util.InventoryMovementsFailed.WithLabelValues("cancel").Inc()
		return nil, err
	}
	util.InventoryMovementsTotal.WithLabelValues(models.TxTypeCancelReservation).Inc()
	return inv, nil
}

// applyTx applies a movement, lazily creating the inventory record when the
// product exists in the catalog.
func (s *InventoryService) applyTx(ctx context.Context, tx *store.Tx, m store.Movement) (*models.Inventory, error) {
	inv, err := tx.ApplyMovement(ctx, m)
	if !apperr.Is(err, apperr.KindNotFound) {
		return inv, err
	}

	if _, perr := s.catalog.FindProduct(ctx, m.ProductID); perr != nil {
		return nil, perr
	}
	if _, cerr := tx.CreateInventory(ctx, m.ProductID); cerr != nil {
		return nil, cerr
	}
	return tx.ApplyMovement(ctx, m)
}

// Transactions returns the audit trail for a product, newest first.
func (s *InventoryService) Transactions(ctx context.Context, productID string, limit int) ([]models.InventoryTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.store.GetInventory(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.GetInventoryTransactions(ctx, productID, limit)
}

// LowStock lists inventory records below the configured threshold.
func (s *InventoryService) LowStock(ctx context.Context) ([]models.Inventory, error) {
	return s.store.GetLowStock(ctx, s.lowStockThreshold)
}

// ReconcileReport compares the stored pool counters against the totals
// reconstructed from the transaction log.
type ReconcileReport struct {
	ProductID string             `json:"product_id"`
	Record    models.Inventory   `json:"record"`
	Ledger    store.LedgerTotals `json:"ledger"`
	InSync    bool               `json:"in_sync"`
}

// Reconcile recomputes a product's counters from the ledger. Drift is
// reported, never auto-corrected.
func (s *InventoryService) Reconcile(ctx context.Context, productID string) (*ReconcileReport, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reconcile")
	defer span.End()

	inv, err := s.store.GetInventory(ctx, productID)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.SumLedger(ctx, productID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		ProductID: productID,
		Record:    *inv,
		Ledger:    *totals,
		InSync: inv.Available == totals.Available &&
			inv.Reserved == totals.Reserved &&
			inv.Committed == totals.Committed,
	}
	if !report.InSync {
		util.ReconciliationDriftTotal.Inc()
		s.logger.Error("Inventory ledger drift detected",
			zap.String("product_id", productID),
			zap.Int("record_available", inv.Available),
			zap.Int("ledger_available", totals.Available),
			zap.Int("record_reserved", inv.Reserved),
			zap.Int("ledger_reserved", totals.Reserved),
			zap.Int("record_committed", inv.Committed),
			zap.Int("ledger_committed", totals.Committed))
	}
	return report, nil
}

func (s *InventoryService) invalidateSnapshot(ctx context.Context, productID string) {
	if err := s.redis.InvalidateInventorySnapshot(ctx, productID); err != nil {
		s.logger.Warn("Failed to invalidate inventory snapshot",
			zap.String("product_id", productID), zap.Error(err))
	}
}
