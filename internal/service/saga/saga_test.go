package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// Mock structures

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CreateWithDetails(ctx context.Context, booking *domain.Booking, details *domain.ReservationDetails) error {
	args := m.Called(ctx, booking, details)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetDetails(ctx context.Context, bookingID string) (*domain.ReservationDetails, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReservationDetails), args.Error(1)
}

func (m *MockBookingRepository) Transition(ctx context.Context, id string, from, to domain.BookingStatus, entry domain.StatusHistoryEntry) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) SetSupplierReference(ctx context.Context, bookingID, reference string) error {
	args := m.Called(ctx, bookingID, reference)
	return args.Error(0)
}

func (m *MockBookingRepository) SetCancellation(ctx context.Context, bookingID, cancelledBy, reason string, at time.Time) error {
	args := m.Called(ctx, bookingID, cancelledBy, reason, at)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.PaymentRecord) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) RecordRefund(ctx context.Context, bookingID string, refunded decimal.Decimal, reason string, status domain.PaymentStatus, at time.Time) error {
	args := m.Called(ctx, bookingID, refunded, reason, status, at)
	return args.Error(0)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Record(ctx context.Context, entry domain.StatusHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockHistoryRepository) History(ctx context.Context, bookingID string) ([]domain.StatusHistoryEntry, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.StatusHistoryEntry), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCharge(ctx context.Context, amountMinorUnits int64, currency, idempotencyKey, paymentMethod string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, amountMinorUnits, currency, idempotencyKey, paymentMethod, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, transactionID string, amountMinorUnits *int64) (string, error) {
	args := m.Called(ctx, transactionID, amountMinorUnits)
	return args.String(0), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, bookingID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseBookingLock(ctx context.Context, bookingID string) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockProduct struct {
	mock.Mock
	productType domain.ProductType
}

func (m *MockProduct) Type() domain.ProductType {
	return m.productType
}

func (m *MockProduct) CreateExternalReservation(ctx context.Context, details *domain.ReservationDetails) (string, error) {
	args := m.Called(ctx, details)
	return args.String(0), args.Error(1)
}

func (m *MockProduct) CancelExternalReservation(ctx context.Context, reference string) error {
	args := m.Called(ctx, reference)
	return args.Error(0)
}

type sagaMocks struct {
	bookings *MockBookingRepository
	payments *MockPaymentRepository
	history  *MockHistoryRepository
	gateway  *MockGateway
	locks    *MockLocker
	producer *MockProducer
	product  *MockProduct
}

func newTestSaga(t *testing.T) (*BookingSaga, *sagaMocks) {
	t.Helper()
	m := &sagaMocks{
		bookings: &MockBookingRepository{},
		payments: &MockPaymentRepository{},
		history:  &MockHistoryRepository{},
		gateway:  &MockGateway{},
		locks:    &MockLocker{},
		producer: &MockProducer{},
		product:  &MockProduct{productType: domain.ProductTypeTransfer},
	}
	saga := &BookingSaga{
		bookings:     m.bookings,
		payments:     m.payments,
		history:      m.history,
		gateway:      m.gateway,
		products:     map[domain.ProductType]Product{domain.ProductTypeTransfer: m.product},
		locks:        m.locks,
		producer:     m.producer,
		pricer:       pricing.NewCalculator(decimal.NewFromInt(10), decimal.NewFromInt(5)),
		bookingTopic: "booking_topic",
		lockTTL:      time.Minute,
		logger:       zap.NewNop(),
	}
	return saga, m
}

func validCreateInput() CreateInput {
	return CreateInput{
		UserID:      "user-1",
		ProductType: domain.ProductTypeTransfer,
		BaseCost:    decimal.RequireFromString("100.00"),
		Currency:    "USD",
		Customer: domain.Customer{
			Title:     "MR",
			FirstName: "John",
			LastName:  "Doe",
			Email:     "john@example.com",
			Phone:     "+15550001111",
		},
		Transfer: &domain.TransferDetails{
			OfferID:         "offer-1",
			PickupLocation:  "CDG",
			DropoffLocation: "PAR-CENTER",
			PickupAt:        time.Now().Add(48 * time.Hour),
			Passengers:      2,
			VehicleType:     "SEDAN",
		},
	}
}

// Test 1: booking creation, happy path
func TestBookingSaga_Create_Success(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	input := validCreateInput()

	m.bookings.On("CreateWithDetails", ctx, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("*domain.ReservationDetails")).Return(nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", mock.Anything, mock.Anything).Return(nil).Once()

	booking, err := saga.Create(ctx, input)

	assert.NoError(t, err)
	assert.NotNil(t, booking)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, input.UserID, booking.UserID)
	// 100.00 base + 10% fee
	assert.True(t, booking.TotalPrice.Equal(decimal.RequireFromString("110.00")), "total is %s", booking.TotalPrice)

	m.bookings.AssertExpectations(t)
	m.producer.AssertExpectations(t)
}

// Test 2: the minimum fee applies when the percentage falls below it
func TestBookingSaga_Create_MinimumFee(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	input := validCreateInput()
	input.BaseCost = decimal.RequireFromString("20.00")

	m.bookings.On("CreateWithDetails", ctx, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		details := args.Get(2).(*domain.ReservationDetails)
		assert.True(t, details.ServiceFee.Equal(decimal.NewFromInt(5)), "fee is %s", details.ServiceFee)
	}).Return(nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", mock.Anything, mock.Anything).Return(nil).Once()

	booking, err := saga.Create(ctx, input)

	assert.NoError(t, err)
	assert.True(t, booking.TotalPrice.Equal(decimal.RequireFromString("25.00")), "total is %s", booking.TotalPrice)
	m.bookings.AssertExpectations(t)
}

// Test 3: creation validation errors
func TestBookingSaga_Create_ValidationErrors(t *testing.T) {
	saga, _ := newTestSaga(t)
	ctx := context.Background()

	testCases := []struct {
		name        string
		mutate      func(*CreateInput)
		expectedErr string
	}{
		{
			name:        "missing user",
			mutate:      func(in *CreateInput) { in.UserID = "" },
			expectedErr: "user id is required",
		},
		{
			name:        "bad currency",
			mutate:      func(in *CreateInput) { in.Currency = "EURO" },
			expectedErr: "currency must be a 3-letter code",
		},
		{
			name:        "zero base cost",
			mutate:      func(in *CreateInput) { in.BaseCost = decimal.Zero },
			expectedErr: "base cost must be positive",
		},
		{
			name:        "missing customer email",
			mutate:      func(in *CreateInput) { in.Customer.Email = "" },
			expectedErr: "customer email and phone number are required",
		},
		{
			name:        "missing transfer payload",
			mutate:      func(in *CreateInput) { in.Transfer = nil },
			expectedErr: "transfer details are required",
		},
		{
			name:        "pickup in the past",
			mutate:      func(in *CreateInput) { in.Transfer.PickupAt = time.Now().Add(-time.Hour) },
			expectedErr: "pickup time cannot be in the past",
		},
		{
			name:        "no passengers",
			mutate:      func(in *CreateInput) { in.Transfer.Passengers = 0 },
			expectedErr: "passenger count must be positive",
		},
		{
			name:        "unknown product type",
			mutate:      func(in *CreateInput) { in.ProductType = "HOTEL" },
			expectedErr: "unknown product type",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(&input)

			booking, err := saga.Create(ctx, input)

			assert.Error(t, err)
			assert.Nil(t, booking)
			assert.Contains(t, err.Error(), tc.expectedErr)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

// Test 4: payment capture, happy path
func TestBookingSaga_CapturePayment_Success(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	pending := &domain.Booking{
		ID:          bookingID,
		UserID:      "user-1",
		ProductType: domain.ProductTypeTransfer,
		Status:      domain.BookingStatusPending,
		TotalPrice:  decimal.RequireFromString("110.00"),
		Currency:    "USD",
	}
	processing := &domain.Booking{ID: bookingID, Status: domain.BookingStatusPaymentProcessing, TotalPrice: pending.TotalPrice, Currency: "USD"}
	complete := &domain.Booking{ID: bookingID, Status: domain.BookingStatusPaymentComplete, TotalPrice: pending.TotalPrice, Currency: "USD"}
	details := &domain.ReservationDetails{
		BookingID:  bookingID,
		BaseCost:   decimal.RequireFromString("100.00"),
		ServiceFee: decimal.RequireFromString("10.00"),
		Currency:   "USD",
		Customer:   domain.Customer{Email: "john@example.com"},
	}

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(pending, nil).Once()
	m.bookings.On("GetDetails", ctx, bookingID).Return(details, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPending, domain.BookingStatusPaymentProcessing, mock.Anything).Return(processing, nil).Once()
	m.gateway.On("CreateCharge", ctx, int64(11000), "USD", "charge-booking-1", "pm_card", mock.Anything).Return("pi_123", nil).Once()
	m.payments.On("Create", ctx, mock.AnythingOfType("*domain.PaymentRecord")).Run(func(args mock.Arguments) {
		record := args.Get(1).(*domain.PaymentRecord)
		assert.Equal(t, domain.PaymentStatusCompleted, record.Status)
		assert.Equal(t, "pi_123", record.TransactionID)
	}).Return(nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPaymentProcessing, domain.BookingStatusPaymentComplete, mock.Anything).Return(complete, nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", bookingID, mock.Anything).Return(nil).Once()

	outcome, err := saga.CapturePayment(ctx, bookingID, "pm_card")

	assert.NoError(t, err)
	assert.NotNil(t, outcome)
	assert.Equal(t, "pi_123", outcome.TransactionID)
	assert.Equal(t, domain.BookingStatusPaymentComplete, outcome.Booking.Status)

	m.locks.AssertExpectations(t)
	m.bookings.AssertExpectations(t)
	m.gateway.AssertExpectations(t)
	m.payments.AssertExpectations(t)
	m.producer.AssertExpectations(t)
}

// Test 5: a declined charge ends in PAYMENT_FAILED with no payment record
func TestBookingSaga_CapturePayment_Declined(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	pending := &domain.Booking{ID: bookingID, Status: domain.BookingStatusPending, TotalPrice: decimal.RequireFromString("110.00"), Currency: "USD"}
	processing := &domain.Booking{ID: bookingID, Status: domain.BookingStatusPaymentProcessing, TotalPrice: pending.TotalPrice, Currency: "USD"}
	failed := &domain.Booking{ID: bookingID, Status: domain.BookingStatusPaymentFailed, TotalPrice: pending.TotalPrice, Currency: "USD"}
	details := &domain.ReservationDetails{BookingID: bookingID, BaseCost: decimal.NewFromInt(100), ServiceFee: decimal.NewFromInt(10), Currency: "USD"}

	declined := domain.NewError(domain.KindPaymentDeclined, "card declined")

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(pending, nil).Once()
	m.bookings.On("GetDetails", ctx, bookingID).Return(details, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPending, domain.BookingStatusPaymentProcessing, mock.Anything).Return(processing, nil).Once()
	m.gateway.On("CreateCharge", ctx, int64(11000), "USD", "charge-booking-1", "pm_card", mock.Anything).Return("", declined).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPaymentProcessing, domain.BookingStatusPaymentFailed, mock.Anything).Return(failed, nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", bookingID, mock.Anything).Return(nil).Once()

	outcome, err := saga.CapturePayment(ctx, bookingID, "pm_card")

	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, errors.Is(err, domain.ErrPaymentDeclined))

	m.bookings.AssertExpectations(t)
	m.gateway.AssertExpectations(t)
	m.payments.AssertNotCalled(t, "Create")
}

// Test 6: capture refuses a booking that is not pending
func TestBookingSaga_CapturePayment_WrongStatus(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	confirmed := &domain.Booking{ID: bookingID, Status: domain.BookingStatusConfirmed}

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(confirmed, nil).Once()

	outcome, err := saga.CapturePayment(ctx, bookingID, "pm_card")

	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, errors.Is(err, domain.ErrStatusConflict))
	m.bookings.AssertNotCalled(t, "Transition")
	m.gateway.AssertNotCalled(t, "CreateCharge")
}

// Test 7: the booking is locked by another operation
func TestBookingSaga_CapturePayment_LockContention(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(false, nil).Once()

	outcome, err := saga.CapturePayment(ctx, bookingID, "pm_card")

	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.Contains(t, err.Error(), "another operation is in progress")

	m.locks.AssertExpectations(t)
	m.locks.AssertNotCalled(t, "ReleaseBookingLock")
	m.bookings.AssertNotCalled(t, "GetByID")
}

// Test 8: reservation confirmation, happy path
func TestBookingSaga_ConfirmReservation_Success(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	paid := &domain.Booking{ID: bookingID, ProductType: domain.ProductTypeTransfer, Status: domain.BookingStatusPaymentComplete, TotalPrice: decimal.NewFromInt(110), Currency: "USD"}
	reserving := &domain.Booking{ID: bookingID, ProductType: domain.ProductTypeTransfer, Status: domain.BookingStatusReservationPending}
	confirmed := &domain.Booking{ID: bookingID, ProductType: domain.ProductTypeTransfer, Status: domain.BookingStatusConfirmed}
	details := &domain.ReservationDetails{BookingID: bookingID, Customer: domain.Customer{Email: "john@example.com"}}

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(paid, nil).Once()
	m.bookings.On("GetDetails", ctx, bookingID).Return(details, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPaymentComplete, domain.BookingStatusReservationPending, mock.Anything).Return(reserving, nil).Once()
	m.product.On("CreateExternalReservation", ctx, details).Return("ORDER-42", nil).Once()
	m.bookings.On("SetSupplierReference", ctx, bookingID, "ORDER-42").Return(nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusReservationPending, domain.BookingStatusConfirmed, mock.Anything).Return(confirmed, nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", bookingID, mock.Anything).Return(nil).Once()

	outcome, err := saga.ConfirmReservation(ctx, bookingID)

	assert.NoError(t, err)
	assert.NotNil(t, outcome)
	assert.Equal(t, "ORDER-42", outcome.SupplierReference)
	assert.Equal(t, domain.BookingStatusConfirmed, outcome.Booking.Status)

	m.bookings.AssertExpectations(t)
	m.product.AssertExpectations(t)
	m.gateway.AssertNotCalled(t, "Refund")
}

// Test 9: supplier failure triggers a full compensating refund
func TestBookingSaga_ConfirmReservation_FailureRefunds(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	paid := &domain.Booking{ID: bookingID, ProductType: domain.ProductTypeTransfer, Status: domain.BookingStatusPaymentComplete, TotalPrice: decimal.NewFromInt(110), Currency: "USD"}
	reserving := &domain.Booking{ID: bookingID, Status: domain.BookingStatusReservationPending}
	resFailed := &domain.Booking{ID: bookingID, Status: domain.BookingStatusReservationFailed}
	refundInitiated := &domain.Booking{ID: bookingID, Status: domain.BookingStatusRefundInitiated}
	refunded := &domain.Booking{ID: bookingID, Status: domain.BookingStatusRefunded}
	details := &domain.ReservationDetails{BookingID: bookingID, Customer: domain.Customer{Email: "john@example.com"}}
	payment := &domain.PaymentRecord{
		BookingID:     bookingID,
		Amount:        decimal.NewFromInt(110),
		Currency:      "USD",
		TransactionID: "pi_123",
		Status:        domain.PaymentStatusCompleted,
	}

	supplierErr := domain.NewError(domain.KindReservationRejected, "offer no longer available")

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(paid, nil).Once()
	m.bookings.On("GetDetails", ctx, bookingID).Return(details, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPaymentComplete, domain.BookingStatusReservationPending, mock.Anything).Return(reserving, nil).Once()
	m.product.On("CreateExternalReservation", ctx, details).Return("", supplierErr).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusReservationPending, domain.BookingStatusReservationFailed, mock.Anything).Return(resFailed, nil).Once()
	m.payments.On("GetByBookingID", ctx, bookingID).Return(payment, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusReservationFailed, domain.BookingStatusRefundInitiated, mock.Anything).Return(refundInitiated, nil).Once()
	m.gateway.On("Refund", ctx, "pi_123", (*int64)(nil)).Return("re_123", nil).Once()
	m.payments.On("RecordRefund", ctx, bookingID, payment.Amount, mock.Anything, domain.PaymentStatusRefunded, mock.AnythingOfType("time.Time")).Return(nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusRefundInitiated, domain.BookingStatusRefunded, mock.Anything).Return(refunded, nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", bookingID, mock.Anything).Return(nil).Once()

	outcome, err := saga.ConfirmReservation(ctx, bookingID)

	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, errors.Is(err, domain.ErrReservationRejected))

	m.bookings.AssertExpectations(t)
	m.payments.AssertExpectations(t)
	m.gateway.AssertExpectations(t)
}

// Test 10: the compensating refund itself fails, exactly one attempt is made
func TestBookingSaga_ConfirmReservation_RefundFails(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	paid := &domain.Booking{ID: bookingID, ProductType: domain.ProductTypeTransfer, Status: domain.BookingStatusPaymentComplete, TotalPrice: decimal.NewFromInt(110), Currency: "USD"}
	reserving := &domain.Booking{ID: bookingID, Status: domain.BookingStatusReservationPending}
	resFailed := &domain.Booking{ID: bookingID, Status: domain.BookingStatusReservationFailed}
	refundInitiated := &domain.Booking{ID: bookingID, Status: domain.BookingStatusRefundInitiated}
	refundFailed := &domain.Booking{ID: bookingID, Status: domain.BookingStatusRefundFailed}
	details := &domain.ReservationDetails{BookingID: bookingID, Customer: domain.Customer{Email: "john@example.com"}}
	payment := &domain.PaymentRecord{BookingID: bookingID, Amount: decimal.NewFromInt(110), Currency: "USD", TransactionID: "pi_123", Status: domain.PaymentStatusCompleted}

	supplierErr := domain.NewError(domain.KindReservationProviderUnavailable, "supplier timeout")
	refundErr := domain.NewError(domain.KindRefundFailed, "gateway rejected refund")

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(paid, nil).Once()
	m.bookings.On("GetDetails", ctx, bookingID).Return(details, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusPaymentComplete, domain.BookingStatusReservationPending, mock.Anything).Return(reserving, nil).Once()
	m.product.On("CreateExternalReservation", ctx, details).Return("", supplierErr).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusReservationPending, domain.BookingStatusReservationFailed, mock.Anything).Return(resFailed, nil).Once()
	m.payments.On("GetByBookingID", ctx, bookingID).Return(payment, nil).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusReservationFailed, domain.BookingStatusRefundInitiated, mock.Anything).Return(refundInitiated, nil).Once()
	m.gateway.On("Refund", ctx, "pi_123", (*int64)(nil)).Return("", refundErr).Once()
	m.bookings.On("Transition", ctx, bookingID, domain.BookingStatusRefundInitiated, domain.BookingStatusRefundFailed, mock.Anything).Return(refundFailed, nil).Once()
	m.producer.On("Publish", ctx, "booking_topic", bookingID, mock.Anything).Return(nil).Once()

	outcome, err := saga.ConfirmReservation(ctx, bookingID)

	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, errors.Is(err, domain.ErrRefundFailed))
	assert.Contains(t, err.Error(), "NOT reversed")

	m.gateway.AssertNumberOfCalls(t, "Refund", 1)
	m.payments.AssertNotCalled(t, "RecordRefund")
	m.bookings.AssertExpectations(t)
}

// Test 11: confirmation refuses a booking that has not paid
func TestBookingSaga_ConfirmReservation_WrongStatus(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()
	bookingID := "booking-1"

	pending := &domain.Booking{ID: bookingID, Status: domain.BookingStatusPending}

	m.locks.On("AcquireBookingLock", ctx, bookingID, time.Minute).Return(true, nil).Once()
	m.locks.On("ReleaseBookingLock", ctx, bookingID).Return(nil).Once()
	m.bookings.On("GetByID", ctx, bookingID).Return(pending, nil).Once()

	outcome, err := saga.ConfirmReservation(ctx, bookingID)

	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, errors.Is(err, domain.ErrStatusConflict))
	m.product.AssertNotCalled(t, "CreateExternalReservation")
}

// Test 12: history passthrough
func TestBookingSaga_History(t *testing.T) {
	saga, m := newTestSaga(t)
	ctx := context.Background()

	entries := []domain.StatusHistoryEntry{
		{BookingID: "booking-1", Status: domain.BookingStatusPending},
		{BookingID: "booking-1", Status: domain.BookingStatusPaymentProcessing},
	}
	m.history.On("History", ctx, "booking-1").Return(entries, nil).Once()

	got, err := saga.History(ctx, "booking-1")

	assert.NoError(t, err)
	assert.Equal(t, entries, got)
	m.history.AssertExpectations(t)
}
