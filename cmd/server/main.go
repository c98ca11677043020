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

	"travel-service/config"
	"travel-service/internal/api"
	"travel-service/internal/broker"
	"travel-service/internal/gateway"
	"travel-service/internal/receipt"
	"travel-service/internal/redisclient"
	"travel-service/internal/service"
	"travel-service/internal/store"
	"travel-service/internal/util"
	"travel-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting travel service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("travel-service", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	// Without Redis the unique payment row still bounds concurrent initiations
	var guard service.InitiationGuard
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, initiation guard disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		guard = redisClient
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	chapa := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Chapa.BaseURL,
		SecretKey: cfg.Chapa.SecretKey,
		Timeout:   cfg.Chapa.Timeout,
	})

	bookingService := service.NewBookingService(db, service.NewBookingGuard(db))
	listingService := service.NewListingService(db)
	orchestrator := service.NewPaymentOrchestrator(db, chapa, guard, eventPublisher, service.OrchestratorConfig{
		CallbackURL:    cfg.Chapa.CallbackURL,
		ReturnURL:      cfg.Chapa.ReturnURL,
		GatewayTimeout: cfg.Chapa.Timeout,
	})

	var receipts worker.ReceiptWriter
	generator, err := receipt.NewGenerator(cfg.Business.ReceiptsDir)
	if err != nil {
		logger.Warn("Receipts disabled", zap.String("dir", cfg.Business.ReceiptsDir), zap.Error(err))
	} else {
		receipts = generator
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup)
	bookingWorker := worker.NewBookingWorker(paymentConsumer, db, bookingService, receipts)
	go func() {
		if err := bookingWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Booking worker error", zap.Error(err))
		}
	}()

	reconciler := worker.NewReconcileWorker(db, orchestrator, cfg.Business.ReconcileInterval, cfg.Business.ReconcileMinAge)
	go func() {
		if err := reconciler.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Reconcile worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orchestrator, bookingService, listingService, db, api.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		FrontendURL: cfg.Server.FrontendURL,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := bookingWorker.Stop(); err != nil {
		logger.Warn("Error stopping booking worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
