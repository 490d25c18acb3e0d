package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending            BookingStatus = "PENDING"
	BookingStatusPaymentProcessing  BookingStatus = "PAYMENT_PROCESSING"
	BookingStatusPaymentComplete    BookingStatus = "PAYMENT_COMPLETE"
	BookingStatusPaymentFailed      BookingStatus = "PAYMENT_FAILED"
	BookingStatusReservationPending BookingStatus = "RESERVATION_PENDING"
	BookingStatusConfirmed          BookingStatus = "CONFIRMED"
	BookingStatusReservationFailed  BookingStatus = "RESERVATION_FAILED"
	BookingStatusRefundInitiated    BookingStatus = "REFUND_INITIATED"
	BookingStatusRefunded           BookingStatus = "REFUNDED"
	BookingStatusRefundFailed       BookingStatus = "REFUND_FAILED"
	BookingStatusCancelled          BookingStatus = "CANCELLED"
)

// Terminal reports whether no further saga step may move the booking.
// REFUND_FAILED is terminal too: it goes to operators, not back into the saga.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusPaymentFailed,
		BookingStatusRefunded, BookingStatusRefundFailed, BookingStatusCancelled:
		return true
	}
	return false
}

var allowedTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:            {BookingStatusPaymentProcessing, BookingStatusCancelled},
	BookingStatusPaymentProcessing:  {BookingStatusPaymentComplete, BookingStatusPaymentFailed},
	BookingStatusPaymentComplete:    {BookingStatusReservationPending, BookingStatusCancelled},
	BookingStatusReservationPending: {BookingStatusConfirmed, BookingStatusReservationFailed},
	BookingStatusReservationFailed:  {BookingStatusRefundInitiated},
	BookingStatusRefundInitiated:    {BookingStatusRefunded, BookingStatusRefundFailed},
	BookingStatusConfirmed:          {BookingStatusCancelled},
}

// CanTransition reports whether the state machine allows moving from one
// status to another. Transitions are monotonic: there is no way back.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ProductType string

const (
	ProductTypeTransfer ProductType = "TRANSFER"
	ProductTypeFlight   ProductType = "FLIGHT"
)

type Booking struct {
	ID          string
	UserID      string
	ProductType ProductType
	Status      BookingStatus
	TotalPrice  decimal.Decimal
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransferDetails carries the product payload for a vehicle transfer.
type TransferDetails struct {
	OfferID         string    `json:"offer_id"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	PickupAt        time.Time `json:"pickup_at"`
	Passengers      int       `json:"passengers"`
	ChildSeats      int       `json:"child_seats"`
	VehicleType     string    `json:"vehicle_type"`
}

// FlightSegment is one leg of a flight reservation.
type FlightSegment struct {
	CarrierCode      string    `json:"carrier_code"`
	FlightNumber     string    `json:"flight_number"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	DepartsAt        time.Time `json:"departs_at"`
	ArrivesAt        time.Time `json:"arrives_at"`
}

type FlightDetails struct {
	OfferID    string          `json:"offer_id"`
	Segments   []FlightSegment `json:"segments"`
	Passengers int             `json:"passengers"`
}

// Customer is the contact block forwarded to the supplier.
type Customer struct {
	Title     string `json:"title"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ReservationDetails is owned 1:1 by a Booking.
type ReservationDetails struct {
	BookingID          string
	BookingReference   string
	BaseCost           decimal.Decimal
	ServiceFee         decimal.Decimal
	Currency           string
	SupplierReference  string
	Customer           Customer
	Transfer           *TransferDetails
	Flight             *FlightDetails
	SpecialRequests    string
	CancelledBy        string
	CancellationReason string
	CancelledAt        *time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// PaymentRecord is created only after the gateway confirms a capture.
type PaymentRecord struct {
	BookingID     string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	TransactionID string
	Status        PaymentStatus
	RefundAmount  decimal.Decimal
	RefundDate    *time.Time
	RefundReason  string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// RemainingRefundable is the amount still eligible for refund.
func (p *PaymentRecord) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}

// StatusHistoryEntry is one row of the append-only audit ledger.
type StatusHistoryEntry struct {
	ID           int64
	BookingID    string
	Status       BookingStatus
	Note         string
	Actor        string
	FieldChanges map[string]string
	CreatedAt    time.Time
}

// ActorSystem marks ledger entries written by the saga itself.
const ActorSystem = "system"
