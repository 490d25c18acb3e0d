package email

import (
	"context"
	"fmt"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/kafka"
	"go.uber.org/zap"
)

// Sender turns booking events into customer notifications. Wire delivery
// is stubbed; the worker owns which statuses are worth a message.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

var subjects = map[string]string{
	"CONFIRMED":     "Your booking is confirmed",
	"CANCELLED":     "Your booking was cancelled",
	"REFUNDED":      "Your payment was refunded",
	"REFUND_FAILED": "We could not process your refund",
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, ok := subjects[event.Status]
	if !ok {
		return nil
	}

	body := fmt.Sprintf("Booking %s (%s) is now %s. Amount: %s %s.",
		event.BookingID, event.ProductType, event.Status, event.Amount, event.Currency)
	s.logger.Info("sending booking notification",
		zap.String("to", event.Email),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
