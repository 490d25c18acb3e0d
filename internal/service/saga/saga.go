package saga

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/kafka"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/pricing"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	Create(ctx context.Context, input CreateInput) (*domain.Booking, error)
	CapturePayment(ctx context.Context, bookingID, paymentMethod string) (*PaymentOutcome, error)
	ConfirmReservation(ctx context.Context, bookingID string) (*ReservationOutcome, error)
	History(ctx context.Context, bookingID string) ([]domain.StatusHistoryEntry, error)
}

// PaymentGateway creates charges and refunds. Implementations map every
// gateway-specific failure to a taxonomy error; the saga never branches on
// anything else.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, amountMinorUnits int64, currency, idempotencyKey, paymentMethod string, metadata map[string]string) (string, error)
	Refund(ctx context.Context, transactionID string, amountMinorUnits *int64) (string, error)
}

// Locker serializes saga steps per booking id.
type Locker interface {
	AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	ReleaseBookingLock(ctx context.Context, bookingID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateInput struct {
	UserID          string
	ProductType     domain.ProductType
	BaseCost        decimal.Decimal
	Currency        string
	Customer        domain.Customer
	Transfer        *domain.TransferDetails
	Flight          *domain.FlightDetails
	SpecialRequests string
}

type PaymentOutcome struct {
	Booking       *domain.Booking
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
}

type ReservationOutcome struct {
	Booking           *domain.Booking
	SupplierReference string
}

// BookingSaga drives a booking from creation through payment capture and
// supplier reservation to confirmation, compensating with a refund when
// the reservation step fails after money has moved.
type BookingSaga struct {
	bookings           repository.BookingRepository
	payments           repository.PaymentRepository
	history            repository.HistoryRepository
	gateway            PaymentGateway
	products           map[domain.ProductType]Product
	locks              Locker
	producer           Producer
	pricer             *pricing.Calculator
	bookingTopic       string
	notificationsTopic string
	lockTTL            time.Duration
	logger             *zap.Logger
}

type BookingSagaOption func(*BookingSaga)

func WithNotificationsTopic(topic string) BookingSagaOption {
	return func(s *BookingSaga) {
		s.notificationsTopic = topic
	}
}

func NewBookingSaga(
	bookings repository.BookingRepository,
	payments repository.PaymentRepository,
	history repository.HistoryRepository,
	gateway PaymentGateway,
	products []Product,
	locks Locker,
	producer Producer,
	pricer *pricing.Calculator,
	bookingTopic string,
	lockTTL time.Duration,
	logger *zap.Logger,
	opts ...BookingSagaOption,
) *BookingSaga {
	byType := make(map[domain.ProductType]Product, len(products))
	for _, p := range products {
		byType[p.Type()] = p
	}
	s := &BookingSaga{
		bookings:     bookings,
		payments:     payments,
		history:      history,
		gateway:      gateway,
		products:     byType,
		locks:        locks,
		producer:     producer,
		pricer:       pricer,
		bookingTopic: bookingTopic,
		lockTTL:      lockTTL,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the input, prices the product and persists the booking
// at PENDING. No external system is touched here.
func (s *BookingSaga) Create(ctx context.Context, input CreateInput) (*domain.Booking, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	quote := s.pricer.Quote(input.BaseCost)
	booking := &domain.Booking{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		ProductType: input.ProductType,
		TotalPrice:  quote.Total,
		Currency:    input.Currency,
	}
	details := &domain.ReservationDetails{
		BookingID:        booking.ID,
		BookingReference: newBookingReference(),
		BaseCost:         quote.BaseCost,
		ServiceFee:       quote.ServiceFee,
		Currency:         input.Currency,
		Customer:         input.Customer,
		Transfer:         input.Transfer,
		Flight:           input.Flight,
		SpecialRequests:  input.SpecialRequests,
	}

	if err := s.bookings.CreateWithDetails(ctx, booking, details); err != nil {
		return nil, err
	}

	s.publish(ctx, "booking_created", booking, input.Customer.Email)
	return booking, nil
}

// CapturePayment charges the booking total through the payment gateway.
// The idempotency key is derived from the booking id, so a client retry
// can never double-charge. A decline is terminal: no money moved, nothing
// to compensate.
func (s *BookingSaga) CapturePayment(ctx context.Context, bookingID, paymentMethod string) (*PaymentOutcome, error) {
	if paymentMethod == "" {
		return nil, domain.NewError(domain.KindValidation, "payment method is required")
	}

	release, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingStatusPending {
		return nil, domain.NewError(domain.KindStatusConflict,
			fmt.Sprintf("payment can only be captured for a pending booking, current status is %s", booking.Status))
	}
	details, err := s.bookings.GetDetails(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	booking, err = s.bookings.Transition(ctx, bookingID, domain.BookingStatusPending, domain.BookingStatusPaymentProcessing,
		domain.StatusHistoryEntry{Note: "Payment processing started"})
	if err != nil {
		return nil, err
	}

	amountMinor := pricing.MinorUnits(booking.TotalPrice, booking.Currency)
	metadata := map[string]string{
		"booking_id":  booking.ID,
		"base_cost":   details.BaseCost.String(),
		"service_fee": details.ServiceFee.String(),
	}

	transactionID, err := s.gateway.CreateCharge(ctx, amountMinor, booking.Currency, chargeIdempotencyKey(bookingID), paymentMethod, metadata)
	if err != nil {
		s.logger.Warn("payment capture failed",
			zap.String("booking_id", bookingID),
			zap.Error(err))
		failed, terr := s.bookings.Transition(ctx, bookingID, domain.BookingStatusPaymentProcessing, domain.BookingStatusPaymentFailed,
			domain.StatusHistoryEntry{Note: fmt.Sprintf("Payment failed: %v", err)})
		if terr != nil {
			s.logger.Error("failed to record payment failure", zap.String("booking_id", bookingID), zap.Error(terr))
		} else {
			s.publish(ctx, "payment_failed", failed, details.Customer.Email)
		}
		return nil, err
	}

	record := &domain.PaymentRecord{
		BookingID:     booking.ID,
		Amount:        booking.TotalPrice,
		Currency:      booking.Currency,
		Method:        "STRIPE",
		TransactionID: transactionID,
		Status:        domain.PaymentStatusCompleted,
		Metadata: map[string]string{
			"base_cost":         details.BaseCost.String(),
			"service_fee":       details.ServiceFee.String(),
			"payment_intent_id": transactionID,
		},
	}
	if err := s.payments.Create(ctx, record); err != nil {
		// The charge exists: keep the failure loud and leave the ledger
		// trail for reconciliation instead of losing the transaction id.
		s.logger.Error("charge succeeded but payment record insert failed",
			zap.String("booking_id", bookingID),
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return nil, err
	}

	booking, err = s.bookings.Transition(ctx, bookingID, domain.BookingStatusPaymentProcessing, domain.BookingStatusPaymentComplete,
		domain.StatusHistoryEntry{Note: fmt.Sprintf("Payment captured, transaction %s", transactionID)})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "payment_captured", booking, details.Customer.Email)
	return &PaymentOutcome{
		Booking:       booking,
		TransactionID: transactionID,
		Amount:        booking.TotalPrice,
		Currency:      booking.Currency,
	}, nil
}

// ConfirmReservation books the product with the supplier. On any supplier
// failure the captured payment is refunded in full, exactly once; if even
// the refund fails the booking lands in REFUND_FAILED and the returned
// error states that the charge was not reversed.
func (s *BookingSaga) ConfirmReservation(ctx context.Context, bookingID string) (*ReservationOutcome, error) {
	release, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingStatusPaymentComplete {
		return nil, domain.NewError(domain.KindStatusConflict,
			fmt.Sprintf("reservation requires a paid booking, current status is %s", booking.Status))
	}
	details, err := s.bookings.GetDetails(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	product, ok := s.products[booking.ProductType]
	if !ok {
		return nil, domain.NewError(domain.KindValidation, fmt.Sprintf("unsupported product type %s", booking.ProductType))
	}

	booking, err = s.bookings.Transition(ctx, bookingID, domain.BookingStatusPaymentComplete, domain.BookingStatusReservationPending,
		domain.StatusHistoryEntry{Note: "Supplier reservation started"})
	if err != nil {
		return nil, err
	}

	reference, resErr := product.CreateExternalReservation(ctx, details)
	if resErr == nil {
		if err := s.bookings.SetSupplierReference(ctx, bookingID, reference); err != nil {
			return nil, err
		}
		booking, err = s.bookings.Transition(ctx, bookingID, domain.BookingStatusReservationPending, domain.BookingStatusConfirmed,
			domain.StatusHistoryEntry{Note: fmt.Sprintf("Supplier reservation reference: %s", reference)})
		if err != nil {
			return nil, err
		}
		s.publish(ctx, "booking_confirmed", booking, details.Customer.Email)
		return &ReservationOutcome{Booking: booking, SupplierReference: reference}, nil
	}

	s.logger.Warn("supplier reservation failed, compensating",
		zap.String("booking_id", bookingID),
		zap.Error(resErr))
	booking, err = s.bookings.Transition(ctx, bookingID, domain.BookingStatusReservationPending, domain.BookingStatusReservationFailed,
		domain.StatusHistoryEntry{Note: fmt.Sprintf("Supplier reservation failed: %v", resErr)})
	if err != nil {
		return nil, err
	}

	if err := s.compensate(ctx, booking, details, resErr); err != nil {
		return nil, err
	}
	return nil, resErr
}

// compensate refunds the captured payment in full. One attempt only:
// a failed refund goes to operators, not back into the gateway.
func (s *BookingSaga) compensate(ctx context.Context, booking *domain.Booking, details *domain.ReservationDetails, cause error) error {
	payment, err := s.payments.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return err
	}

	booking, err = s.bookings.Transition(ctx, booking.ID, domain.BookingStatusReservationFailed, domain.BookingStatusRefundInitiated,
		domain.StatusHistoryEntry{Note: fmt.Sprintf("Refund of transaction %s initiated to compensate failed reservation", payment.TransactionID)})
	if err != nil {
		return err
	}

	refundID, refundErr := s.gateway.Refund(ctx, payment.TransactionID, nil)
	if refundErr != nil {
		s.logger.Error("compensating refund failed, manual reconciliation required",
			zap.String("booking_id", booking.ID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(refundErr))
		failed, terr := s.bookings.Transition(ctx, booking.ID, domain.BookingStatusRefundInitiated, domain.BookingStatusRefundFailed,
			domain.StatusHistoryEntry{Note: fmt.Sprintf("Refund of transaction %s failed: %v", payment.TransactionID, refundErr)})
		if terr != nil {
			return terr
		}
		s.publish(ctx, "refund_failed", failed, details.Customer.Email)
		return domain.WrapError(domain.KindRefundFailed,
			fmt.Sprintf("reservation failed and the charge %s was NOT reversed", payment.TransactionID), refundErr)
	}

	now := time.Now()
	reason := fmt.Sprintf("compensation for failed reservation: %v", cause)
	if err := s.payments.RecordRefund(ctx, booking.ID, payment.Amount, reason, domain.PaymentStatusRefunded, now); err != nil {
		return err
	}
	refunded, err := s.bookings.Transition(ctx, booking.ID, domain.BookingStatusRefundInitiated, domain.BookingStatusRefunded,
		domain.StatusHistoryEntry{
			Note:         fmt.Sprintf("Transaction %s refunded in full (refund %s)", payment.TransactionID, refundID),
			FieldChanges: map[string]string{"payment.status": "COMPLETED -> REFUNDED"},
		})
	if err != nil {
		return err
	}
	s.publish(ctx, "booking_refunded", refunded, details.Customer.Email)
	return nil
}

// History exposes the append-only ledger, unfiltered and in write order.
func (s *BookingSaga) History(ctx context.Context, bookingID string) ([]domain.StatusHistoryEntry, error) {
	return s.history.History(ctx, bookingID)
}

func (s *BookingSaga) lock(ctx context.Context, bookingID string) (func(), error) {
	return acquireBookingLock(ctx, s.locks, bookingID, s.lockTTL, s.logger)
}

// acquireBookingLock takes the per-booking mutex and returns the release
// function. Both the saga and the cancellation coordinator serialize on it.
func acquireBookingLock(ctx context.Context, locks Locker, bookingID string, ttl time.Duration, logger *zap.Logger) (func(), error) {
	ok, err := locks.AcquireBookingLock(ctx, bookingID, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewError(domain.KindStatusConflict, "another operation is in progress for this booking")
	}
	return func() {
		if err := locks.ReleaseBookingLock(ctx, bookingID); err != nil {
			logger.Warn("failed to release booking lock", zap.String("booking_id", bookingID), zap.Error(err))
		}
	}, nil
}

func (s *BookingSaga) publish(ctx context.Context, eventType string, booking *domain.Booking, email string) {
	publishEvent(ctx, s.producer, s.bookingTopic, s.notificationsTopic, s.logger, eventType, booking, email)
}

func validateCreateInput(input CreateInput) error {
	switch {
	case input.UserID == "":
		return domain.NewError(domain.KindValidation, "user id is required")
	case len(input.Currency) != 3:
		return domain.NewError(domain.KindValidation, "currency must be a 3-letter code")
	case !input.BaseCost.IsPositive():
		return domain.NewError(domain.KindValidation, "base cost must be positive")
	case input.Customer.FirstName == "" || input.Customer.LastName == "":
		return domain.NewError(domain.KindValidation, "customer first and last name are required")
	case input.Customer.Email == "" || input.Customer.Phone == "":
		return domain.NewError(domain.KindValidation, "customer email and phone number are required")
	}

	now := time.Now()
	switch input.ProductType {
	case domain.ProductTypeTransfer:
		t := input.Transfer
		if t == nil {
			return domain.NewError(domain.KindValidation, "transfer details are required")
		}
		if t.OfferID == "" || t.PickupLocation == "" || t.DropoffLocation == "" {
			return domain.NewError(domain.KindValidation, "transfer offer and locations are required")
		}
		if t.Passengers <= 0 {
			return domain.NewError(domain.KindValidation, "passenger count must be positive")
		}
		if t.ChildSeats < 0 {
			return domain.NewError(domain.KindValidation, "child seat count cannot be negative")
		}
		if t.PickupAt.Before(now) {
			return domain.NewError(domain.KindValidation, "pickup time cannot be in the past")
		}
	case domain.ProductTypeFlight:
		f := input.Flight
		if f == nil {
			return domain.NewError(domain.KindValidation, "flight details are required")
		}
		if f.OfferID == "" || len(f.Segments) == 0 {
			return domain.NewError(domain.KindValidation, "flight offer and at least one segment are required")
		}
		if f.Passengers <= 0 {
			return domain.NewError(domain.KindValidation, "passenger count must be positive")
		}
		for _, seg := range f.Segments {
			if seg.CarrierCode == "" || seg.FlightNumber == "" || seg.DepartureAirport == "" || seg.ArrivalAirport == "" {
				return domain.NewError(domain.KindValidation, "flight segment is incomplete")
			}
			if seg.DepartsAt.Before(now) {
				return domain.NewError(domain.KindValidation, "departure time cannot be in the past")
			}
		}
	default:
		return domain.NewError(domain.KindValidation, fmt.Sprintf("unknown product type %q", input.ProductType))
	}
	return nil
}

func chargeIdempotencyKey(bookingID string) string {
	return "charge-" + bookingID
}

func newBookingReference() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
}

func publishEvent(ctx context.Context, producer Producer, bookingTopic, notificationsTopic string, logger *zap.Logger, eventType string, booking *domain.Booking, email string) {
	if producer == nil || bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:        eventType,
		BookingID:   booking.ID,
		ProductType: string(booking.ProductType),
		Status:      string(booking.Status),
		UserID:      booking.UserID,
		Email:       email,
		Amount:      booking.TotalPrice.String(),
		Currency:    booking.Currency,
		OccurredAt:  time.Now(),
	}
	if err := producer.Publish(ctx, bookingTopic, booking.ID, event); err != nil {
		logger.Warn("failed to publish booking event",
			zap.String("booking_id", booking.ID),
			zap.String("type", eventType),
			zap.Error(err))
	}
	if notificationsTopic != "" {
		if err := producer.Publish(ctx, notificationsTopic, booking.ID, event); err != nil {
			logger.Warn("failed to publish notification event",
				zap.String("booking_id", booking.ID),
				zap.String("type", eventType),
				zap.Error(err))
		}
	}
}

var _ BookingUseCase = (*BookingSaga)(nil)
