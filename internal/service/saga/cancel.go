package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/pricing"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CancelUseCase interface {
	Cancel(ctx context.Context, bookingID string, req CancelRequest) (*CancellationOutcome, error)
}

type CancelRequest struct {
	// ActorID identifies who asked for the cancellation, for the ledger.
	ActorID string
	Reason  string
	// RequestRefund asks for a refund of the captured payment. Amount nil
	// means a full refund of whatever is still refundable.
	RequestRefund bool
	Amount        *decimal.Decimal
}

type CancellationOutcome struct {
	Booking        *domain.Booking
	Message        string
	RefundedAmount decimal.Decimal
	// RefundError is set when the booking was cancelled but the requested
	// refund did not go through. The cancellation itself stands.
	RefundError string
}

// CancellationCoordinator cancels bookings. Supplier-side cancellation
// comes first and is fatal on failure: a booking is never marked
// cancelled locally while the supplier still holds a live reservation.
// A refund failure after that point is reported, never rolled back.
type CancellationCoordinator struct {
	bookings           repository.BookingRepository
	payments           repository.PaymentRepository
	history            repository.HistoryRepository
	gateway            PaymentGateway
	products           map[domain.ProductType]Product
	locks              Locker
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	lockTTL            time.Duration
	logger             *zap.Logger
}

func NewCancellationCoordinator(
	bookings repository.BookingRepository,
	payments repository.PaymentRepository,
	history repository.HistoryRepository,
	gateway PaymentGateway,
	products []Product,
	locks Locker,
	producer Producer,
	bookingTopic, notificationsTopic string,
	lockTTL time.Duration,
	logger *zap.Logger,
) *CancellationCoordinator {
	byType := make(map[domain.ProductType]Product, len(products))
	for _, p := range products {
		byType[p.Type()] = p
	}
	return &CancellationCoordinator{
		bookings:           bookings,
		payments:           payments,
		history:            history,
		gateway:            gateway,
		products:           byType,
		locks:              locks,
		producer:           producer,
		bookingTopic:       bookingTopic,
		notificationsTopic: notificationsTopic,
		lockTTL:            lockTTL,
		logger:             logger,
	}
}

// Cancel cancels a booking, optionally refunding the captured payment.
// Cancelling an already-cancelled booking is rejected without touching
// the ledger.
func (c *CancellationCoordinator) Cancel(ctx context.Context, bookingID string, req CancelRequest) (*CancellationOutcome, error) {
	if req.ActorID == "" {
		return nil, domain.NewError(domain.KindValidation, "actor id is required")
	}

	release, err := acquireBookingLock(ctx, c.locks, bookingID, c.lockTTL, c.logger)
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return nil, domain.NewError(domain.KindAlreadyCancelled, "booking is already cancelled")
	}
	if !domain.CanTransition(booking.Status, domain.BookingStatusCancelled) {
		return nil, domain.NewError(domain.KindStatusConflict,
			fmt.Sprintf("booking in status %s cannot be cancelled", booking.Status))
	}
	details, err := c.bookings.GetDetails(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// Validate the refund request before anything irreversible happens.
	var payment *domain.PaymentRecord
	if req.RequestRefund {
		payment, err = c.refundablePayment(ctx, bookingID, req.Amount)
		if err != nil {
			return nil, err
		}
	}

	if details.SupplierReference != "" {
		product, ok := c.products[booking.ProductType]
		if !ok {
			return nil, domain.NewError(domain.KindValidation, fmt.Sprintf("unsupported product type %s", booking.ProductType))
		}
		if err := product.CancelExternalReservation(ctx, details.SupplierReference); err != nil {
			c.logger.Warn("supplier cancellation failed, booking left untouched",
				zap.String("booking_id", bookingID),
				zap.String("supplier_reference", details.SupplierReference),
				zap.Error(err))
			return nil, err
		}
	}

	now := time.Now()
	if err := c.bookings.SetCancellation(ctx, bookingID, req.ActorID, req.Reason, now); err != nil {
		return nil, err
	}
	booking, err = c.bookings.Transition(ctx, bookingID, booking.Status, domain.BookingStatusCancelled,
		domain.StatusHistoryEntry{
			Note:  cancellationNote(req.Reason),
			Actor: req.ActorID,
		})
	if err != nil {
		return nil, err
	}
	c.publish(ctx, "booking_cancelled", booking, details.Customer.Email)

	outcome := &CancellationOutcome{Booking: booking, Message: "booking cancelled"}
	if req.RequestRefund {
		c.refund(ctx, booking, details, payment, req, outcome)
	}
	return outcome, nil
}

// refund runs after the booking is already CANCELLED. Failures are
// recorded in the ledger and surfaced on the outcome, they never revert
// the cancellation.
func (c *CancellationCoordinator) refund(ctx context.Context, booking *domain.Booking, details *domain.ReservationDetails, payment *domain.PaymentRecord, req CancelRequest, outcome *CancellationOutcome) {
	amount := payment.RemainingRefundable()
	var amountMinor *int64
	if req.Amount != nil {
		amount = *req.Amount
		minor := pricing.MinorUnits(amount, payment.Currency)
		amountMinor = &minor
	}

	refundID, err := c.gateway.Refund(ctx, payment.TransactionID, amountMinor)
	if err != nil {
		c.logger.Error("refund after cancellation failed, manual reconciliation required",
			zap.String("booking_id", booking.ID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err))
		if rerr := c.history.Record(ctx, domain.StatusHistoryEntry{
			BookingID:    booking.ID,
			Status:       domain.BookingStatusCancelled,
			Note:         fmt.Sprintf("Refund of %s %s failed: %v", amount, payment.Currency, err),
			Actor:        domain.ActorSystem,
			FieldChanges: map[string]string{"refund": "failed"},
		}); rerr != nil {
			c.logger.Error("failed to record refund failure", zap.String("booking_id", booking.ID), zap.Error(rerr))
		}
		c.publishRefundFailed(ctx, booking, details.Customer.Email)
		outcome.Message = "booking cancelled, refund failed"
		outcome.RefundError = err.Error()
		return
	}

	totalRefunded := payment.RefundAmount.Add(amount)
	status := domain.PaymentStatusRefunded
	if totalRefunded.LessThan(payment.Amount) {
		status = domain.PaymentStatusPartiallyRefunded
	}
	if err := c.payments.RecordRefund(ctx, booking.ID, totalRefunded, req.Reason, status, time.Now()); err != nil {
		c.logger.Error("refund succeeded but payment record update failed",
			zap.String("booking_id", booking.ID),
			zap.String("refund_id", refundID),
			zap.Error(err))
		outcome.RefundError = err.Error()
		return
	}
	if err := c.history.Record(ctx, domain.StatusHistoryEntry{
		BookingID:    booking.ID,
		Status:       domain.BookingStatusCancelled,
		Note:         fmt.Sprintf("Refund of %s %s processed (refund %s)", amount, payment.Currency, refundID),
		Actor:        domain.ActorSystem,
		FieldChanges: map[string]string{"payment.status": fmt.Sprintf("%s -> %s", domain.PaymentStatusCompleted, status)},
	}); err != nil {
		c.logger.Error("failed to record refund", zap.String("booking_id", booking.ID), zap.Error(err))
	}
	c.publishRefunded(ctx, booking, details.Customer.Email)
	outcome.Message = "booking cancelled, refund processed"
	outcome.RefundedAmount = amount
}

func (c *CancellationCoordinator) refundablePayment(ctx context.Context, bookingID string, amount *decimal.Decimal) (*domain.PaymentRecord, error) {
	payment, err := c.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.NewError(domain.KindValidation, "no payment to refund for this booking")
		}
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted && payment.Status != domain.PaymentStatusPartiallyRefunded {
		return nil, domain.NewError(domain.KindValidation,
			fmt.Sprintf("payment in status %s is not refundable", payment.Status))
	}
	if amount != nil {
		if !amount.IsPositive() {
			return nil, domain.NewError(domain.KindValidation, "refund amount must be positive")
		}
		if amount.GreaterThan(payment.RemainingRefundable()) {
			return nil, domain.NewError(domain.KindValidation,
				fmt.Sprintf("refund amount %s exceeds the refundable balance %s", amount, payment.RemainingRefundable()))
		}
	}
	return payment, nil
}

func (c *CancellationCoordinator) publish(ctx context.Context, eventType string, booking *domain.Booking, email string) {
	publishEvent(ctx, c.producer, c.bookingTopic, c.notificationsTopic, c.logger, eventType, booking, email)
}

// The booking itself stays CANCELLED; the refund outcome rides on the
// event status so the worker can pick the right notification.
func (c *CancellationCoordinator) publishRefunded(ctx context.Context, booking *domain.Booking, email string) {
	b := *booking
	b.Status = domain.BookingStatusRefunded
	publishEvent(ctx, c.producer, c.bookingTopic, c.notificationsTopic, c.logger, "booking_refunded", &b, email)
}

func (c *CancellationCoordinator) publishRefundFailed(ctx context.Context, booking *domain.Booking, email string) {
	b := *booking
	b.Status = domain.BookingStatusRefundFailed
	publishEvent(ctx, c.producer, c.bookingTopic, c.notificationsTopic, c.logger, "refund_failed", &b, email)
}

func cancellationNote(reason string) string {
	if reason == "" {
		return "Booking cancelled"
	}
	return "Booking cancelled: " + reason
}

var _ CancelUseCase = (*CancellationCoordinator)(nil)
