package service

import (
	"context"
	"sort"
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

// OrderService owns the order lifecycle. Status transitions follow a closed
// table; the transitions that move stock run in the same transaction as the
// status write.
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	inventory      *InventoryService
	catalog        Catalog
	cart           Cart
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	s *store.Store,
	redis *redisclient.Client,
	inventory *InventoryService,
	catalog Catalog,
	cart Cart,
	eventPublisher *broker.EventPublisher,
) *OrderService {
	return &OrderService{
		store:          s,
		redis:          redis,
		inventory:      inventory,
		catalog:        catalog,
		cart:           cart,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order. Items are
// optional; when absent the user's cart is read instead. Item prices never
// come from the client.
type CreateOrderRequest struct {
	UserID         string     `json:"user_id" binding:"required"`
	Items          []CartItem `json:"items,omitempty"`
	DiscountAmount float64    `json:"discount_amount"`
	ShippingAmount float64    `json:"shipping_amount"`
	TaxAmount      float64    `json:"tax_amount"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
}

// CreateOrder opens an order: prices are snapshotted from the catalog, stock
// is reserved for every item and the order row is inserted, all in one
// transaction. Inventory rows are locked in ascending product id order to
// avoid deadlock cycles between concurrent multi-item orders.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	} else {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return &CreateOrderResponse{
				OrderID:     existing.ID,
				Status:      existing.Status,
				TotalAmount: existing.TotalAmount,
			}, nil
		}
	}

	if req.DiscountAmount < 0 || req.ShippingAmount < 0 || req.TaxAmount < 0 {
		util.OrdersFailedTotal.WithLabelValues("invalid_amounts").Inc()
		return nil, apperr.Validation("discount, shipping and tax amounts must not be negative")
	}

	fromCart := len(req.Items) == 0
	cartItems := req.Items
	if fromCart {
		var err error
		cartItems, err = s.cart.GetCart(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
	}
	if len(cartItems) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.Conflict("cart is empty")
	}

	merged, err := mergeItems(cartItems)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	productIDs := make([]string, 0, len(merged))
	for _, item := range merged {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.catalog.FindProducts(ctx, productIDs)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("unknown_product").Inc()
		return nil, err
	}

	order := &models.Order{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Status:         models.OrderStatusPending,
		DiscountAmount: req.DiscountAmount,
		ShippingAmount: req.ShippingAmount,
		TaxAmount:      req.TaxAmount,
		IdempotencyKey: req.IdempotencyKey,
	}

	orderItems := make([]models.OrderItem, 0, len(merged))
	for _, item := range merged {
		orderItems = append(orderItems, models.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     products[item.ProductID].Price,
		})
	}
	order.TotalAmount = models.OrderTotal(orderItems, req.DiscountAmount, req.ShippingAmount, req.TaxAmount)

	err = s.store.RunTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for i := range orderItems {
			item := &orderItems[i]
			if _, err := s.inventory.ReserveTx(ctx, tx, item.ProductID, item.Quantity, order.ID); err != nil {
				return err
			}
			if err := tx.InsertOrderItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			if existing, gerr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey); gerr == nil && existing != nil {
				return &CreateOrderResponse{
					OrderID:     existing.ID,
					Status:      existing.Status,
					TotalAmount: existing.TotalAmount,
				}, nil
			}
		}
		if apperr.Is(err, apperr.KindConflict) {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Float64("total_amount", order.TotalAmount))

	s.invalidateSnapshots(ctx, productIDs)

	// Cart clearing is best-effort: the order is already committed and must
	// not be aborted by a cart failure.
	if fromCart {
		if err := s.cart.ClearCart(ctx, req.UserID); err != nil {
			s.logger.Warn("Failed to clear cart after order creation",
				zap.String("user_id", req.UserID), zap.Error(err))
		}
	}

	eventItems := make([]models.OrderItemData, 0, len(orderItems))
	for _, item := range orderItems {
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       eventItems,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
	}, nil
}

// mergeItems combines duplicate product lines and orders them by product id,
// which is also the lock acquisition order.
func mergeItems(items []CartItem) ([]CartItem, error) {
	byProduct := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, apperr.Validation("item product id must not be empty")
		}
		if item.Quantity <= 0 {
			return nil, apperr.Validation("item quantity must be positive, got %d", item.Quantity)
		}
		byProduct[item.ProductID] += item.Quantity
	}

	merged := make([]CartItem, 0, len(byProduct))
	for productID, qty := range byProduct {
		merged = append(merged, CartItem{ProductID: productID, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// UpdateStatus drives the order state machine. The order row lock is taken
// before any inventory lock; a failed stock movement rolls the whole
// transition back.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, newStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	var (
		order      *models.Order
		fromStatus string
		touched    []string
	)
	err := s.store.RunTx(ctx, func(tx *store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		fromStatus = order.Status
		touched, err = s.TransitionTx(ctx, tx, order, newStatus)
		return err
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			util.OrderTransitionsRejected.Inc()
		}
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(fromStatus, newStatus).Inc()
	s.invalidateSnapshots(ctx, touched)
	s.publishStatusChanged(ctx, order, fromStatus, newStatus)

	return order, nil
}

// TransitionTx validates and applies a status transition inside the caller's
// transaction. PENDING→PAID finalizes every reservation into committed
// stock; cancellation of a PENDING order returns every reservation to the
// available pool. Cancelling a PAID or SHIPPED order moves no stock: the
// sale is final in the ledger and restocking is an explicit administrative
// adjustment. Returns the product ids whose inventory changed.
func (s *OrderService) TransitionTx(ctx context.Context, tx *store.Tx, order *models.Order, newStatus string) ([]string, error) {
	if err := models.ValidateTransition(order.Status, newStatus); err != nil {
		return nil, err
	}

	var touched []string
	moveStock := (newStatus == models.OrderStatusPaid) ||
		(newStatus == models.OrderStatusCancelled && order.Status == models.OrderStatusPending)

	if moveStock {
		items, err := tx.GetOrderItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if newStatus == models.OrderStatusPaid {
				_, err = s.inventory.CommitReservationTx(ctx, tx, item.ProductID, item.Quantity, order.ID)
			} else {
				_, err = s.inventory.CancelReservationTx(ctx, tx, item.ProductID, item.Quantity, order.ID)
			}
			if err != nil {
				return nil, err
			}
			touched = append(touched, item.ProductID)
		}
	}

	if err := tx.UpdateOrderStatus(ctx, order.ID, newStatus); err != nil {
		return nil, err
	}
	order.Status = newStatus
	order.UpdatedAt = time.Now()
	return touched, nil
}

// GetOrder retrieves an order and its items.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders retrieves a user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, from, to string) {
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: statusEventType(to),
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		UserID:     order.UserID,
		FromStatus: from,
		ToStatus:   to,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish order status event",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func statusEventType(status string) string {
	switch status {
	case models.OrderStatusPaid:
		return models.EventTypeOrderPaid
	case models.OrderStatusShipped:
		return models.EventTypeOrderShipped
	case models.OrderStatusCompleted:
		return models.EventTypeOrderCompleted
	case models.OrderStatusCancelled:
		return models.EventTypeOrderCancelled
	default:
		return models.EventTypeOrderCreated
	}
}

func (s *OrderService) invalidateSnapshots(ctx context.Context, productIDs []string) {
	for _, productID := range productIDs {
		if err := s.redis.InvalidateInventorySnapshot(ctx, productID); err != nil {
			s.logger.Warn("Failed to invalidate inventory snapshot",
				zap.String("product_id", productID), zap.Error(err))
		}
	}
}
