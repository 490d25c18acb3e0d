package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/ifnotGodTech/travelmate-backend-sub000/config"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/email"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/kafka"
	kafkaGo "github.com/segmentio/kafka-go"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender(logger)

	logger.Info("notification worker started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.NotificationsTopic))

	if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
		var event kafka.BookingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn("skipping undecodable event", zap.Error(err))
			return nil
		}
		if event.Status == string(domain.BookingStatusRefundFailed) {
			// Operators need to reconcile this one by hand.
			logger.Error("refund failed for booking",
				zap.String("booking_id", event.BookingID),
				zap.String("amount", event.Amount),
				zap.String("currency", event.Currency))
		}
		return emailSender.Send(ctx, event)
	}); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", zap.Error(err))
	}
}
