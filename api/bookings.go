package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/service/saga"
	"github.com/shopspring/decimal"
)

type BookingHandler struct {
	bookings saga.BookingUseCase
	cancels  saga.CancelUseCase
}

func NewBookingHandler(bookings saga.BookingUseCase, cancels saga.CancelUseCase) *BookingHandler {
	return &BookingHandler{bookings: bookings, cancels: cancels}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.POST("/:id/payment", h.capturePayment)
	router.POST("/:id/reservation", h.confirmReservation)
	router.DELETE("/:id", h.cancel)
	router.GET("/:id/history", h.history)
}

type customerRequest struct {
	Title     string `json:"title"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type createBookingRequest struct {
	UserID          string                  `json:"user_id"`
	ProductType     string                  `json:"product_type"`
	BaseCost        string                  `json:"base_cost"`
	Currency        string                  `json:"currency"`
	Customer        customerRequest         `json:"customer"`
	Transfer        *domain.TransferDetails `json:"transfer,omitempty"`
	Flight          *domain.FlightDetails   `json:"flight,omitempty"`
	SpecialRequests string                  `json:"special_requests,omitempty"`
}

type bookingResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ProductType string `json:"product_type"`
	Status      string `json:"status"`
	TotalPrice  string `json:"total_price"`
	Currency    string `json:"currency"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:          b.ID,
		UserID:      b.UserID,
		ProductType: string(b.ProductType),
		Status:      string(b.Status),
		TotalPrice:  b.TotalPrice.String(),
		Currency:    b.Currency,
	}
	if !b.CreatedAt.IsZero() {
		resp.CreatedAt = b.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	baseCost, err := decimal.NewFromString(req.BaseCost)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_cost must be a decimal string"})
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), saga.CreateInput{
		UserID:      req.UserID,
		ProductType: domain.ProductType(req.ProductType),
		BaseCost:    baseCost,
		Currency:    req.Currency,
		Customer: domain.Customer{
			Title:     req.Customer.Title,
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
		Transfer:        req.Transfer,
		Flight:          req.Flight,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(booking))
}

type capturePaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type paymentResponse struct {
	Booking       bookingResponse `json:"booking"`
	TransactionID string          `json:"transaction_id"`
	Amount        string          `json:"amount"`
	Currency      string          `json:"currency"`
}

func (h *BookingHandler) capturePayment(c *gin.Context) {
	var req capturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.bookings.CapturePayment(c.Request.Context(), c.Param("id"), req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentResponse{
		Booking:       toBookingResponse(outcome.Booking),
		TransactionID: outcome.TransactionID,
		Amount:        outcome.Amount.String(),
		Currency:      outcome.Currency,
	})
}

type reservationResponse struct {
	Booking           bookingResponse `json:"booking"`
	SupplierReference string          `json:"supplier_reference"`
}

func (h *BookingHandler) confirmReservation(c *gin.Context) {
	outcome, err := h.bookings.ConfirmReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reservationResponse{
		Booking:           toBookingResponse(outcome.Booking),
		SupplierReference: outcome.SupplierReference,
	})
}

type cancelRequest struct {
	ActorID       string  `json:"actor_id"`
	Reason        string  `json:"reason"`
	RequestRefund bool    `json:"request_refund"`
	Amount        *string `json:"amount,omitempty"`
}

type cancelResponse struct {
	Booking        bookingResponse `json:"booking"`
	Message        string          `json:"message"`
	RefundedAmount string          `json:"refunded_amount,omitempty"`
	RefundError    string          `json:"refund_error,omitempty"`
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		parsed, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
			return
		}
		amount = &parsed
	}

	outcome, err := h.cancels.Cancel(c.Request.Context(), c.Param("id"), saga.CancelRequest{
		ActorID:       req.ActorID,
		Reason:        req.Reason,
		RequestRefund: req.RequestRefund,
		Amount:        amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := cancelResponse{
		Booking:     toBookingResponse(outcome.Booking),
		Message:     outcome.Message,
		RefundError: outcome.RefundError,
	}
	if !outcome.RefundedAmount.IsZero() {
		resp.RefundedAmount = outcome.RefundedAmount.String()
	}
	c.JSON(http.StatusOK, resp)
}

type historyEntryResponse struct {
	Status       string            `json:"status"`
	Note         string            `json:"note"`
	Actor        string            `json:"actor"`
	FieldChanges map[string]string `json:"field_changes,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

func (h *BookingHandler) history(c *gin.Context) {
	entries, err := h.bookings.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyEntryResponse{
			Status:       string(e.Status),
			Note:         e.Note,
			Actor:        e.Actor,
			FieldChanges: e.FieldChanges,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": resp})
}

// respondError maps the error taxonomy to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindStatusConflict, domain.KindAlreadyCancelled:
			status = http.StatusConflict
		case domain.KindPaymentDeclined:
			status = http.StatusPaymentRequired
		case domain.KindPaymentGatewayUnavailable, domain.KindReservationProviderUnavailable:
			status = http.StatusBadGateway
		case domain.KindReservationRejected:
			status = http.StatusUnprocessableEntity
		case domain.KindRefundFailed:
			status = http.StatusBadGateway
		}
	} else {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
