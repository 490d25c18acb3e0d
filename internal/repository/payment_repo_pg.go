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

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.PaymentRecord) error
	GetByBookingID(ctx context.Context, bookingID string) (*domain.PaymentRecord, error)
	// RecordRefund updates the refund columns after a gateway refund
	// succeeded. The amount is cumulative across partial refunds.
	RecordRefund(ctx context.Context, bookingID string, refunded decimal.Decimal, reason string, status domain.PaymentStatus, at time.Time) error
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

func (r *PGPaymentRepository) Create(ctx context.Context, payment *domain.PaymentRecord) error {
	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `INSERT INTO payments (booking_id, amount, currency, payment_method, transaction_id, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		payment.BookingID, payment.Amount.String(), payment.Currency, payment.Method, payment.TransactionID, payment.Status, metadata).
		Scan(&payment.CreatedAt)
}

func (r *PGPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.PaymentRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT booking_id, amount, currency, payment_method, transaction_id, status,
		COALESCE(refund_amount::text, '0'), refund_date, COALESCE(refund_reason, ''), metadata, created_at
		FROM payments WHERE booking_id=$1`, bookingID)

	var p domain.PaymentRecord
	var amount, refundAmount string
	var metadata []byte
	if err := row.Scan(&p.BookingID, &amount, &p.Currency, &p.Method, &p.TransactionID, &p.Status,
		&refundAmount, &p.RefundDate, &p.RefundReason, &metadata, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "payment record not found")
		}
		return nil, err
	}

	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if p.RefundAmount, err = decimal.NewFromString(refundAmount); err != nil {
		return nil, fmt.Errorf("parse refund_amount: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &p, nil
}

func (r *PGPaymentRepository) RecordRefund(ctx context.Context, bookingID string, refunded decimal.Decimal, reason string, status domain.PaymentStatus, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET status=$1, refund_amount=$2, refund_reason=$3, refund_date=$4 WHERE booking_id=$5`,
		status, refunded.String(), reason, at, bookingID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NewError(domain.KindNotFound, "payment record not found")
	}
	return nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
