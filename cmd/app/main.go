package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/config"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/bootstrap"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/cache"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/gateway"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/kafka"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/pricing"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/provider"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/repository"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/service/saga"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	feePercentage, err := decimal.NewFromString(cfg.Booking.ServiceFeePercentage)
	if err != nil {
		logger.Fatal("invalid service_fee_percentage", zap.Error(err))
	}
	minimumFee, err := decimal.NewFromString(cfg.Booking.MinimumServiceFee)
	if err != nil {
		logger.Fatal("invalid minimum_service_fee", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)

	stripeGateway := gateway.NewStripeGateway(cfg.Stripe, logger)
	supplierClient := provider.NewClient(cfg.Amadeus, redisCache, logger)
	products := []saga.Product{
		saga.NewTransferProduct(supplierClient),
		saga.NewFlightProduct(supplierClient),
	}

	pricer := pricing.NewCalculator(feePercentage, minimumFee)
	lockTTL := time.Duration(cfg.Booking.LockTTLSeconds) * time.Second

	bookingSaga := saga.NewBookingSaga(
		bookingRepo,
		paymentRepo,
		historyRepo,
		stripeGateway,
		products,
		redisCache,
		producer,
		pricer,
		cfg.Kafka.BookingEventsTopic,
		lockTTL,
		logger,
		saga.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)
	coordinator := saga.NewCancellationCoordinator(
		bookingRepo,
		paymentRepo,
		historyRepo,
		stripeGateway,
		products,
		redisCache,
		producer,
		cfg.Kafka.BookingEventsTopic,
		cfg.Kafka.NotificationsTopic,
		lockTTL,
		logger,
	)

	if err := bootstrap.Run(ctx, cfg, bookingSaga, coordinator, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
