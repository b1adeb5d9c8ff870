package service

import (
	"context"
	"encoding/json"
	"strings"
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

// PaymentService creates payment intents tied 1:1 to pending orders and
// confirms them exactly once. A successful confirmation drives the order's
// PENDING→PAID transition in the same transaction, finalizing reservations
// into committed stock.
type PaymentService struct {
	store          *store.Store
	redis          *redisclient.Client
	orders         *OrderService
	gateway        Gateway
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
	idempotencyTTL time.Duration
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	s *store.Store,
	redis *redisclient.Client,
	orders *OrderService,
	gateway Gateway,
	eventPublisher *broker.EventPublisher,
	idempotencyTTL time.Duration,
) *PaymentService {
	return &PaymentService{
		store:          s,
		redis:          redis,
		orders:         orders,
		gateway:        gateway,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
		idempotencyTTL: idempotencyTTL,
	}
}

// CreateIntentRequest represents a request for a new payment intent
type CreateIntentRequest struct {
	OrderID        string  `json:"order_id" binding:"required"`
	Amount         float64 `json:"amount" binding:"required"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// PaymentIntentResponse is cached verbatim under the idempotency key so
// retried requests replay byte-identical responses.
type PaymentIntentResponse struct {
	PaymentIntentID string  `json:"payment_intent_id"`
	OrderID         string  `json:"order_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	ClientSecret    string  `json:"client_secret"`
}

// CreatePaymentIntent verifies the order is PENDING with a matching amount,
// enforces at most one active payment per order and records a PENDING
// payment with a fresh external intent reference.
func (ps *PaymentService) CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*PaymentIntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	} else {
		cached, err := ps.redis.GetIdempotentResponse(ctx, req.IdempotencyKey)
		if err != nil {
			ps.logger.Warn("Idempotency cache read failed", zap.Error(err))
		}
		if cached != "" {
			var resp PaymentIntentResponse
			if err := json.Unmarshal([]byte(cached), &resp); err == nil {
				util.PaymentIdempotentReplays.Inc()
				return &resp, nil
			}
		}
	}

	intentID := "pi_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	payment := &models.Payment{
		ID:              uuid.New().String(),
		IdempotencyKey:  req.IdempotencyKey,
		OrderID:         req.OrderID,
		Amount:          req.Amount,
		Currency:        "USD",
		Status:          models.PaymentStatusPending,
		PaymentIntentID: intentID,
		ClientSecret:    intentID + "_secret_" + uuid.New().String(),
	}

	err := ps.store.RunTx(ctx, func(tx *store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return apperr.NotFound("pending order not found: %s", req.OrderID)
		}
		if !models.AmountsMatch(order.TotalAmount, req.Amount) {
			return apperr.Validation("amount %.2f does not match order total %.2f", req.Amount, order.TotalAmount)
		}

		existing, err := tx.GetActivePaymentForOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("payment already exists for order %s", req.OrderID)
		}

		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	util.PaymentIntentsCreatedTotal.Inc()
	ps.logger.Info("Payment intent created",
		zap.String("order_id", req.OrderID),
		zap.String("payment_intent_id", intentID))

	resp := &PaymentIntentResponse{
		PaymentIntentID: payment.PaymentIntentID,
		OrderID:         payment.OrderID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Status:          "requires_confirmation",
		ClientSecret:    payment.ClientSecret,
	}

	if body, err := json.Marshal(resp); err == nil {
		if cerr := ps.redis.SetIdempotentResponse(ctx, req.IdempotencyKey, string(body), ps.idempotencyTTL); cerr != nil {
			ps.logger.Warn("Idempotency cache write failed", zap.Error(cerr))
		}
	}

	return resp, nil
}

// ConfirmPaymentResponse reports the settled intent and the order it drove.
type ConfirmPaymentResponse struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	OrderID         string `json:"order_id"`
	OrderStatus     string `json:"order_status"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// ConfirmPayment settles an intent exactly once. The payment row lock plus
// the PENDING guard make confirmation single-shot; the gateway outcome and
// the order transition commit atomically. A failed gateway result leaves
// the order PENDING with its stock still reserved.
func (ps *PaymentService) ConfirmPayment(ctx context.Context, intentID string) (*ConfirmPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ConfirmPayment")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentConfirmLatency.Observe(time.Since(start).Seconds())
	}()

	var (
		payment *models.Payment
		order   *models.Order
		result  GatewayResult
		touched []string
	)
	err := ps.store.RunTx(ctx, func(tx *store.Tx) error {
		var err error
		payment, err = tx.GetPaymentByIntentForUpdate(ctx, intentID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentStatusPending {
			return apperr.Conflict("payment already %s", payment.Status)
		}

		result, err = ps.gateway.ProcessIntent(ctx, intentID)
		if err != nil {
			// Unknown outcome: roll back so the payment stays PENDING and
			// confirmation can be retried.
			return apperr.Wrap(apperr.KindUnavailable, err, "payment gateway unreachable")
		}

		status := models.PaymentStatusFailed
		if result.Success {
			status = models.PaymentStatusSucceeded
		}
		if err := tx.UpdatePaymentResult(ctx, payment.ID, status, result.Reason); err != nil {
			return err
		}
		payment.Status = status

		if result.Success {
			order, err = tx.GetOrderForUpdate(ctx, payment.OrderID)
			if err != nil {
				return err
			}
			touched, err = ps.orders.TransitionTx(ctx, tx, order, models.OrderStatusPaid)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ps.orders.invalidateSnapshots(ctx, touched)

	resp := &ConfirmPaymentResponse{
		PaymentIntentID: payment.PaymentIntentID,
		Status:          payment.Status,
		OrderID:         payment.OrderID,
		FailureReason:   result.Reason,
	}

	if result.Success {
		util.PaymentSuccessTotal.Inc()
		util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusPending, models.OrderStatusPaid).Inc()
		resp.OrderStatus = order.Status
		ps.logger.Info("Payment confirmed",
			zap.String("payment_intent_id", intentID),
			zap.String("order_id", payment.OrderID))

		ps.orders.publishStatusChanged(ctx, order, models.OrderStatusPending, models.OrderStatusPaid)
		ps.publishResult(ctx, payment, "", models.EventTypePaymentSucceeded)
	} else {
		util.PaymentFailedTotal.Inc()
		resp.OrderStatus = models.OrderStatusPending
		ps.logger.Warn("Payment declined",
			zap.String("payment_intent_id", intentID),
			zap.String("order_id", payment.OrderID),
			zap.String("reason", result.Reason))

		ps.publishResult(ctx, payment, result.Reason, models.EventTypePaymentFailed)
	}

	return resp, nil
}

// WebhookPayload mirrors the processor's event envelope.
type WebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook is a thin adapter over ConfirmPayment. Repeated deliveries
// of the same event hit the single-shot guard and are acknowledged without
// re-applying any effect.
func (ps *PaymentService) HandleWebhook(ctx context.Context, payload *WebhookPayload) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	intentID := payload.Data.Object.ID
	if intentID == "" {
		return apperr.Validation("webhook payload carries no payment intent id")
	}

	switch payload.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		ps.logger.Info("Ignoring webhook event", zap.String("type", payload.Type))
		return nil
	}

	_, err := ps.ConfirmPayment(ctx, intentID)
	if apperr.Is(err, apperr.KindConflict) {
		ps.logger.Info("Webhook replay for settled payment",
			zap.String("payment_intent_id", intentID))
		return nil
	}
	return err
}

// GetPayment retrieves the latest payment for an order.
func (ps *PaymentService) GetPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	return ps.store.GetPaymentByOrderID(ctx, orderID)
}

func (ps *PaymentService) publishResult(ctx context.Context, payment *models.Payment, reason, eventType string) {
	base := models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}

	var err error
	if eventType == models.EventTypePaymentSucceeded {
		err = ps.eventPublisher.PublishPaymentSucceeded(ctx, &models.PaymentSucceededEvent{
			BaseEvent:       base,
			OrderID:         payment.OrderID,
			PaymentID:       payment.ID,
			PaymentIntentID: payment.PaymentIntentID,
			Amount:          payment.Amount,
		})
	} else {
		err = ps.eventPublisher.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
			BaseEvent:       base,
			OrderID:         payment.OrderID,
			PaymentID:       payment.ID,
			PaymentIntentID: payment.PaymentIntentID,
			Reason:          reason,
		})
	}
	if err != nil {
		ps.logger.Error("Failed to publish payment event",
			zap.String("order_id", payment.OrderID), zap.Error(err))
	}
}
