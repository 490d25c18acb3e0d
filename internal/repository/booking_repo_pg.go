package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type BookingRepository interface {
	// CreateWithDetails persists the booking, its reservation details and
	// the initial PENDING ledger row in one local transaction.
	CreateWithDetails(ctx context.Context, booking *domain.Booking, details *domain.ReservationDetails) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetDetails(ctx context.Context, bookingID string) (*domain.ReservationDetails, error)
	// Transition performs a status-guarded compare-and-swap on the booking
	// row and appends the matching ledger entry in the same transaction.
	// It fails with a status-conflict error when the booking is no longer
	// in the expected status.
	Transition(ctx context.Context, id string, from, to domain.BookingStatus, entry domain.StatusHistoryEntry) (*domain.Booking, error)
	SetSupplierReference(ctx context.Context, bookingID, reference string) error
	SetCancellation(ctx context.Context, bookingID, cancelledBy, reason string, at time.Time) error
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) CreateWithDetails(ctx context.Context, booking *domain.Booking, details *domain.ReservationDetails) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	booking.Status = domain.BookingStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO bookings (id, user_id, product_type, status, total_price, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		booking.ID, booking.UserID, booking.ProductType, booking.Status, booking.TotalPrice.String(), booking.Currency).
		Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	payload, err := marshalProductPayload(details)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO reservation_details
		(booking_id, booking_reference, base_cost, service_fee, currency, customer_title, customer_first_name, customer_last_name, customer_email, customer_phone, special_requests, product_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		details.BookingID, details.BookingReference, details.BaseCost.String(), details.ServiceFee.String(), details.Currency,
		details.Customer.Title, details.Customer.FirstName, details.Customer.LastName, details.Customer.Email, details.Customer.Phone,
		details.SpecialRequests, payload); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO status_history (booking_id, status, note, actor, field_changes)
		VALUES ($1, $2, $3, $4, $5)`,
		booking.ID, domain.BookingStatusPending, "Booking created", domain.ActorSystem, "{}"); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, product_type, status, total_price, currency, created_at, updated_at FROM bookings WHERE id=$1`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "booking not found")
		}
		return nil, err
	}
	return booking, nil
}

func (r *PGBookingRepository) GetDetails(ctx context.Context, bookingID string) (*domain.ReservationDetails, error) {
	row := r.db.QueryRow(ctx, `SELECT booking_id, booking_reference, base_cost, service_fee, currency, supplier_reference,
		customer_title, customer_first_name, customer_last_name, customer_email, customer_phone,
		special_requests, cancelled_by, cancellation_reason, cancelled_at, product_payload
		FROM reservation_details WHERE booking_id=$1`, bookingID)

	var d domain.ReservationDetails
	var baseCost, serviceFee string
	var supplierRef, cancelledBy, cancelReason *string
	var payload []byte
	if err := row.Scan(&d.BookingID, &d.BookingReference, &baseCost, &serviceFee, &d.Currency, &supplierRef,
		&d.Customer.Title, &d.Customer.FirstName, &d.Customer.LastName, &d.Customer.Email, &d.Customer.Phone,
		&d.SpecialRequests, &cancelledBy, &cancelReason, &d.CancelledAt, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "reservation details not found")
		}
		return nil, err
	}

	var err error
	if d.BaseCost, err = decimal.NewFromString(baseCost); err != nil {
		return nil, fmt.Errorf("parse base_cost: %w", err)
	}
	if d.ServiceFee, err = decimal.NewFromString(serviceFee); err != nil {
		return nil, fmt.Errorf("parse service_fee: %w", err)
	}
	if supplierRef != nil {
		d.SupplierReference = *supplierRef
	}
	if cancelledBy != nil {
		d.CancelledBy = *cancelledBy
	}
	if cancelReason != nil {
		d.CancellationReason = *cancelReason
	}
	if err := unmarshalProductPayload(payload, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PGBookingRepository) Transition(ctx context.Context, id string, from, to domain.BookingStatus, entry domain.StatusHistoryEntry) (*domain.Booking, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.NewError(domain.KindStatusConflict, fmt.Sprintf("transition %s -> %s is not allowed", from, to))
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 AND status=$3
		RETURNING id, user_id, product_type, status, total_price, currency, created_at, updated_at`, to, id, from)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindStatusConflict, fmt.Sprintf("booking %s is not in status %s", id, from))
		}
		return nil, err
	}

	changes, err := marshalFieldChanges(entry.FieldChanges)
	if err != nil {
		return nil, err
	}
	actor := entry.Actor
	if actor == "" {
		actor = domain.ActorSystem
	}
	if _, err := tx.Exec(ctx, `INSERT INTO status_history (booking_id, status, note, actor, field_changes)
		VALUES ($1, $2, $3, $4, $5)`, id, to, entry.Note, actor, changes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *PGBookingRepository) SetSupplierReference(ctx context.Context, bookingID, reference string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE reservation_details SET supplier_reference=$1 WHERE booking_id=$2`, reference, bookingID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NewError(domain.KindNotFound, "reservation details not found")
	}
	return nil
}

func (r *PGBookingRepository) SetCancellation(ctx context.Context, bookingID, cancelledBy, reason string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE reservation_details SET cancelled_by=$1, cancellation_reason=$2, cancelled_at=$3 WHERE booking_id=$4`,
		cancelledBy, reason, at, bookingID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NewError(domain.KindNotFound, "reservation details not found")
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var total string
	if err := row.Scan(&b.ID, &b.UserID, &b.ProductType, &b.Status, &total, &b.Currency, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total_price: %w", err)
	}
	b.TotalPrice = price
	return &b, nil
}

type productPayload struct {
	Transfer *domain.TransferDetails `json:"transfer,omitempty"`
	Flight   *domain.FlightDetails   `json:"flight,omitempty"`
}

func marshalProductPayload(d *domain.ReservationDetails) ([]byte, error) {
	return json.Marshal(productPayload{Transfer: d.Transfer, Flight: d.Flight})
}

func unmarshalProductPayload(data []byte, d *domain.ReservationDetails) error {
	if len(data) == 0 {
		return nil
	}
	var p productPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse product_payload: %w", err)
	}
	d.Transfer = p.Transfer
	d.Flight = p.Flight
	return nil
}

func marshalFieldChanges(changes map[string]string) ([]byte, error) {
	if changes == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(changes)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
