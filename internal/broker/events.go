package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"commerce-core/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes an OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishOrderStatusChanged publishes a state-machine transition event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishPaymentSucceeded publishes a PaymentSucceeded event
func (ep *EventPublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishPaymentFailed publishes a PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishInventoryAdjusted publishes an InventoryAdjusted event
func (ep *EventPublisher) PublishInventoryAdjusted(ctx context.Context, event *models.InventoryAdjustedEvent) error {
	return ep.producer.PublishEvent(ctx, "product-"+event.ProductID, event)
}

// GatewayEventHandler routes asynchronous gateway results. It is the
// kafka-side twin of the payment webhook endpoint.
type GatewayEventHandler struct {
	onResult func(context.Context, *models.GatewayResultEvent) error
}

// NewGatewayEventHandler creates a new gateway event handler
func NewGatewayEventHandler() *GatewayEventHandler {
	return &GatewayEventHandler{}
}

// OnResult registers a handler for gateway result events
func (gh *GatewayEventHandler) OnResult(handler func(context.Context, *models.GatewayResultEvent) error) {
	gh.onResult = handler
}

// HandleMessage decodes and dispatches one gateway message
func (gh *GatewayEventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	if baseEvent.EventType != models.EventTypeGatewayResult {
		log.Printf("Ignoring event type: %s", baseEvent.EventType)
		return nil
	}

	if gh.onResult == nil {
		return nil
	}

	var event models.GatewayResultEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal gateway result event: %w", err)
	}
	return gh.onResult(ctx, &event)
}
