package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/config"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// StripeGateway charges and refunds through Stripe PaymentIntents. The
// client is constructed once with injected configuration; there is no
// process-global API key, so test and live keys cannot race.
type StripeGateway struct {
	client  *stripe.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewStripeGateway(cfg config.StripeConfig, logger *zap.Logger) *StripeGateway {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeGateway{
		client:  stripe.NewClient(cfg.SecretKey),
		timeout: timeout,
		logger:  logger,
	}
}

// CreateCharge captures a payment. The idempotency key is honored by
// Stripe, so retrying with the same key never produces a second charge.
// Failures come back as payment_declined or payment_gateway_unavailable.
func (g *StripeGateway) CreateCharge(ctx context.Context, amountMinorUnits int64, currency, idempotencyKey, paymentMethod string, metadata map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(amountMinorUnits),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(paymentMethod),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: metadata,
	}
	params.IdempotencyKey = stripe.String(idempotencyKey)

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return "", g.mapChargeError(err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		g.logger.Warn("payment intent not succeeded",
			zap.String("payment_intent", intent.ID),
			zap.String("status", string(intent.Status)))
		return "", domain.NewError(domain.KindPaymentDeclined, fmt.Sprintf("payment intent ended in status %s", intent.Status))
	}
	return intent.ID, nil
}

// Refund reverses a charge. A nil amount refunds the full remaining
// balance of the payment intent.
func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amountMinorUnits *int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(transactionID),
	}
	if amountMinorUnits != nil {
		params.Amount = stripe.Int64(*amountMinorUnits)
	}

	refund, err := g.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return "", domain.WrapError(domain.KindRefundFailed, "stripe refund failed", err)
	}
	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return "", domain.NewError(domain.KindRefundFailed, fmt.Sprintf("refund ended in status %s", refund.Status))
	}
	return refund.ID, nil
}

func (g *StripeGateway) mapChargeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 {
			return domain.WrapError(domain.KindPaymentGatewayUnavailable, "stripe unavailable", err)
		}
		return domain.WrapError(domain.KindPaymentDeclined, "charge declined", err)
	}
	// Transport errors and timeouts: no explicit decline happened.
	return domain.WrapError(domain.KindPaymentGatewayUnavailable, "stripe request failed", err)
}
