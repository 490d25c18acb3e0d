package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
)

type orderResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// CreateTransferOrder books a vehicle transfer against a previously
// quoted offer and returns the supplier's order reference.
func (c *Client) CreateTransferOrder(ctx context.Context, details *domain.ReservationDetails) (string, error) {
	transfer := details.Transfer
	if transfer == nil {
		return "", domain.NewError(domain.KindValidation, "reservation details carry no transfer payload")
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type":       "transferBooking",
			"transferId": transfer.OfferID,
			"customer": map[string]string{
				"title":     details.Customer.Title,
				"firstName": details.Customer.FirstName,
				"lastName":  details.Customer.LastName,
				"email":     details.Customer.Email,
				"phone":     details.Customer.Phone,
			},
			"pickup": map[string]string{
				"locationId": transfer.PickupLocation,
				"date":       transfer.PickupAt.Format("2006-01-02"),
				"time":       transfer.PickupAt.Format("15:04"),
			},
			"dropoff": map[string]string{
				"locationId": transfer.DropoffLocation,
			},
			"passengers": transfer.Passengers,
			"vehicle":    map[string]string{"type": transfer.VehicleType},
			"price": map[string]string{
				"amount":   details.BaseCost.String(),
				"currency": details.Currency,
			},
			"remarks": fmt.Sprintf("Booking created via API for booking %s", details.BookingReference),
		},
	}
	if transfer.ChildSeats > 0 {
		payload["data"].(map[string]interface{})["extras"] = []map[string]interface{}{
			{"type": "CHILD_SEAT", "quantity": transfer.ChildSeats},
		}
	}

	var resp orderResponse
	path := "/v1/ordering/transfer-orders?offerId=" + url.QueryEscape(transfer.OfferID)
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", domain.NewError(domain.KindReservationProviderUnavailable, "supplier returned no order reference")
	}
	return resp.Data.ID, nil
}

// CancelTransferOrder cancels a transfer order upstream.
func (c *Client) CancelTransferOrder(ctx context.Context, reference string) error {
	path := fmt.Sprintf("/v1/ordering/transfer-orders/%s/transfers/cancellation", url.PathEscape(reference))
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// CreateFlightOrder books the flight offer and returns the supplier's
// order reference.
func (c *Client) CreateFlightOrder(ctx context.Context, details *domain.ReservationDetails) (string, error) {
	flight := details.Flight
	if flight == nil {
		return "", domain.NewError(domain.KindValidation, "reservation details carry no flight payload")
	}

	segments := make([]map[string]interface{}, 0, len(flight.Segments))
	for _, s := range flight.Segments {
		segments = append(segments, map[string]interface{}{
			"carrierCode": s.CarrierCode,
			"number":      s.FlightNumber,
			"departure": map[string]string{
				"iataCode": s.DepartureAirport,
				"at":       s.DepartsAt.Format("2006-01-02T15:04:05"),
			},
			"arrival": map[string]string{
				"iataCode": s.ArrivalAirport,
				"at":       s.ArrivesAt.Format("2006-01-02T15:04:05"),
			},
		})
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type":    "flight-order",
			"offerId": flight.OfferID,
			"travelers": []map[string]interface{}{
				{
					"id": "1",
					"name": map[string]string{
						"firstName": details.Customer.FirstName,
						"lastName":  details.Customer.LastName,
					},
					"contact": map[string]interface{}{
						"emailAddress": details.Customer.Email,
						"phones": []map[string]string{
							{"deviceType": "MOBILE", "number": details.Customer.Phone},
						},
					},
				},
			},
			"segments":   segments,
			"passengers": flight.Passengers,
			"price": map[string]string{
				"amount":   details.BaseCost.String(),
				"currency": details.Currency,
			},
			"remarks": fmt.Sprintf("Booking created via API for booking %s", details.BookingReference),
		},
	}

	var resp orderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/booking/flight-orders", payload, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", domain.NewError(domain.KindReservationProviderUnavailable, "supplier returned no order reference")
	}
	return resp.Data.ID, nil
}

// CancelFlightOrder cancels a flight order upstream.
func (c *Client) CancelFlightOrder(ctx context.Context, reference string) error {
	path := "/v1/booking/flight-orders/" + url.PathEscape(reference)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
