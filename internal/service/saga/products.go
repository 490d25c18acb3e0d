package saga

import (
	"context"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
)

// Product is one bookable product kind. The saga is product-agnostic;
// everything supplier-specific lives behind this interface.
type Product interface {
	Type() domain.ProductType
	CreateExternalReservation(ctx context.Context, details *domain.ReservationDetails) (string, error)
	CancelExternalReservation(ctx context.Context, reference string) error
}

// ReservationClient is the slice of the supplier API the products need.
type ReservationClient interface {
	CreateTransferOrder(ctx context.Context, details *domain.ReservationDetails) (string, error)
	CancelTransferOrder(ctx context.Context, reference string) error
	CreateFlightOrder(ctx context.Context, details *domain.ReservationDetails) (string, error)
	CancelFlightOrder(ctx context.Context, reference string) error
}

type transferProduct struct {
	client ReservationClient
}

func NewTransferProduct(client ReservationClient) Product {
	return &transferProduct{client: client}
}

func (p *transferProduct) Type() domain.ProductType {
	return domain.ProductTypeTransfer
}

func (p *transferProduct) CreateExternalReservation(ctx context.Context, details *domain.ReservationDetails) (string, error) {
	return p.client.CreateTransferOrder(ctx, details)
}

func (p *transferProduct) CancelExternalReservation(ctx context.Context, reference string) error {
	return p.client.CancelTransferOrder(ctx, reference)
}

type flightProduct struct {
	client ReservationClient
}

func NewFlightProduct(client ReservationClient) Product {
	return &flightProduct{client: client}
}

func (p *flightProduct) Type() domain.ProductType {
	return domain.ProductTypeFlight
}

func (p *flightProduct) CreateExternalReservation(ctx context.Context, details *domain.ReservationDetails) (string, error) {
	return p.client.CreateFlightOrder(ctx, details)
}

func (p *flightProduct) CancelExternalReservation(ctx context.Context, reference string) error {
	return p.client.CancelFlightOrder(ctx, reference)
}
