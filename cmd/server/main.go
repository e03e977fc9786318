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

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service",
		zap.String("env", cfg.Server.Env),
		zap.String("storage", cfg.Storage.Driver))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TracingSampleRate)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer db.Close()

	checks := map[string]api.ReadinessCheck{"storage": db.Ping}

	var locker service.Locker = service.NewLocalLocker()
	orderCfg := service.OrderServiceConfig{
		CacheTTL: cfg.Business.PaymentIdempotencyTTL,
		LockTTL:  cfg.Business.CartLockTTL,
	}
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		locker = redisClient
		orderCfg.Cache = redisClient
		checks["redis"] = redisClient.Ping
	}

	pricing, err := pricingFrom(cfg.Business)
	if err != nil {
		logger.Fatal("Invalid pricing configuration", zap.Error(err))
	}
	orderCfg.Pricing = pricing

	gateway := payment.NewSimulatedGateway(cfg.Payment.DeclineCards, cfg.Payment.DeclineRate, time.Now().UnixNano())

	inventoryClient := service.NewInventoryClient(db)
	cartService := service.NewCartService(db, inventoryClient, locker, pricing, cfg.Business.CartLockTTL)
	promotionService := service.NewPromotionService(db, cartService)
	paymentService := service.NewPaymentService(db, gateway)
	notificationService := service.NewNotificationService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var publisher service.EventPublisher
	var notificationWorker *worker.NotificationWorker
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, notificationService)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Notification worker stopped", zap.Error(err))
			}
		}()
	} else {
		publisher = service.NewDirectPublisher(notificationService)
	}

	orderService := service.NewOrderService(db, inventoryClient, paymentService, promotionService, publisher, locker, orderCfg)

	if cfg.Storage.SeedDemo {
		if err := seedDemoData(context.Background(), db, promotionService); err != nil {
			logger.Fatal("Failed to seed demo data", zap.Error(err))
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, promotionService, orderService, notificationService, checks)
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

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func openStorage(cfg *config.Config, logger *zap.Logger) (store.Storage, error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connected")

	if cfg.Storage.AutoMigrate {
		if err := db.Migrate(logger); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func pricingFrom(cfg config.BusinessConfig) (service.Pricing, error) {
	tax, err := models.NewMoney(cfg.TaxRatePercent)
	if err != nil {
		return service.Pricing{}, fmt.Errorf("tax rate: %w", err)
	}
	shipping, err := models.NewMoney(cfg.FlatShippingFee)
	if err != nil {
		return service.Pricing{}, fmt.Errorf("shipping fee: %w", err)
	}
	return service.Pricing{TaxRatePercent: tax, FlatShipping: shipping}, nil
}
