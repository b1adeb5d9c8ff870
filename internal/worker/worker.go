package worker

import (
	"context"
	"log"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/service"
	"commerce-core/internal/store"
)

// GatewayWorker consumes asynchronous gateway results and drives payment
// confirmation, the kafka-side twin of the webhook endpoint. Redelivered
// events hit the single-shot confirmation guard and are acknowledged.
type GatewayWorker struct {
	consumer *broker.Consumer
	handler  *broker.GatewayEventHandler
}

// NewGatewayWorker creates a new gateway worker
func NewGatewayWorker(consumer *broker.Consumer, payments *service.PaymentService) *GatewayWorker {
	handler := broker.NewGatewayEventHandler()
	handler.OnResult(func(ctx context.Context, event *models.GatewayResultEvent) error {
		if event.PaymentIntentID == "" {
			log.Printf("Gateway event %s carries no intent id, dropping", event.EventID)
			return nil
		}

		_, err := payments.ConfirmPayment(ctx, event.PaymentIntentID)
		switch {
		case err == nil:
			return nil
		case apperr.Is(err, apperr.KindConflict):
			log.Printf("Gateway event replay for settled intent %s", event.PaymentIntentID)
			return nil
		case apperr.Is(err, apperr.KindNotFound):
			log.Printf("Gateway event for unknown intent %s, dropping", event.PaymentIntentID)
			return nil
		default:
			return err
		}
	})

	return &GatewayWorker{consumer: consumer, handler: handler}
}

// Start starts the worker
func (w *GatewayWorker) Start(ctx context.Context) error {
	log.Println("Starting gateway worker...")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *GatewayWorker) Stop() error {
	log.Println("Stopping gateway worker...")
	return w.consumer.Close()
}

// ReconcilerWorker periodically recomputes inventory counters from the
// transaction log and reports drift. It never mutates stock.
type ReconcilerWorker struct {
	store     *store.Store
	inventory *service.InventoryService
	interval  time.Duration
}

// NewReconcilerWorker creates a new reconciler worker
func NewReconcilerWorker(s *store.Store, inventory *service.InventoryService, interval time.Duration) *ReconcilerWorker {
	return &ReconcilerWorker{store: s, inventory: inventory, interval: interval}
}

// Start runs reconciliation on a fixed interval until ctx is cancelled.
func (w *ReconcilerWorker) Start(ctx context.Context) error {
	log.Printf("Starting reconciler worker (interval %s)...", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconciler worker stopping...")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcilerWorker) runOnce(ctx context.Context) {
	productIDs, err := w.store.GetInventoryProductIDs(ctx)
	if err != nil {
		log.Printf("Reconciler failed to list products: %v", err)
		return
	}

	drifted := 0
	for _, productID := range productIDs {
		report, err := w.inventory.Reconcile(ctx, productID)
		if err != nil {
			log.Printf("Reconciliation failed for product %s: %v", productID, err)
			continue
		}
		if !report.InSync {
			drifted++
		}
	}

	if drifted > 0 {
		log.Printf("Reconciliation pass finished: %d of %d products drifted", drifted, len(productIDs))
	}
}
