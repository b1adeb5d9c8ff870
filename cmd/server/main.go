package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-core/config"
	"commerce-core/internal/api"
	"commerce-core/internal/broker"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/service"
	"commerce-core/internal/store"
	"commerce-core/internal/util"
	"commerce-core/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce core")

	tp, err := util.InitTracer("commerce-core", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.LockTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	catalog := service.NewStoreCatalog(db)
	cart := service.NewRedisCart(redisClient)

	var gateway service.Gateway
	if cfg.Gateway.URL != "" {
		gateway = service.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Timeout)
		log.Printf("Using HTTP payment gateway: %s", cfg.Gateway.URL)
	} else {
		gateway = service.NewMockGateway(cfg.Gateway.SuccessRate)
		log.Printf("Using mock payment gateway (success rate %.2f)", cfg.Gateway.SuccessRate)
	}

	inventoryService := service.NewInventoryService(db, redisClient, catalog, eventPublisher, cfg.Business.LowStockThreshold)
	orderService := service.NewOrderService(db, redisClient, inventoryService, catalog, cart, eventPublisher)
	paymentService := service.NewPaymentService(db, redisClient, orderService, gateway, eventPublisher, cfg.Business.IdempotencyTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	gatewayConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicGateway, cfg.Kafka.ConsumerGroup)
	gatewayWorker := worker.NewGatewayWorker(gatewayConsumer, paymentService)
	go func() {
		if err := gatewayWorker.Start(workerCtx); err != nil {
			log.Printf("Gateway worker error: %v", err)
		}
	}()

	reconciler := worker.NewReconcilerWorker(db, inventoryService, cfg.Business.ReconcileInterval)
	go func() {
		if err := reconciler.Start(workerCtx); err != nil {
			log.Printf("Reconciler worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, inventoryService, paymentService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	gatewayWorker.Stop()

	log.Println("Server exited")
}
