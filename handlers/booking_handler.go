package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"trip-booking/models"
	"trip-booking/services"
	"trip-booking/status"
)

type BookingHandler struct {
	app      *pocketbase.PocketBase
	bookings *services.BookingService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{
		app:      app,
		bookings: bookings,
	}
}

// Hold - place a 15 minute hold on a seat set
func (h *BookingHandler) Hold(e *core.RequestEvent) error {
	var req struct {
		TripID     string             `json:"trip_id"`
		Seats      []string           `json:"seats"`
		Passengers []models.Passenger `json:"passengers"`
		Contact    models.Contact     `json:"contact"`
	}

	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	booking, err := h.bookings.Hold(e.Request.Context(), services.HoldInput{
		TripID:     req.TripID,
		Seats:      req.Seats,
		Passengers: req.Passengers,
		Contact:    req.Contact,
		Holder:     holderFor(e, req.Contact.Email),
	})
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, holdResponse(booking))
}

// Extend - push a pending hold forward by one hold window
func (h *BookingHandler) Extend(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	var req struct {
		Email string `json:"email"`
	}
	// Body is optional for authenticated holders.
	_ = e.BindBody(&req)

	booking, err := h.bookings.Extend(e.Request.Context(), bookingID, holderFor(e, req.Email))
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, holdResponse(booking))
}

// Release - abandon a pending hold
func (h *BookingHandler) Release(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	var req struct {
		Email string `json:"email"`
	}
	_ = e.BindBody(&req)
	if req.Email == "" {
		req.Email = e.Request.URL.Query().Get("email")
	}

	if err := h.bookings.Release(e.Request.Context(), bookingID, holderFor(e, req.Email)); err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"released": true})
}

// Confirm - called by the payment collaborator after it verified the
// gateway callback. Tolerates duplicate deliveries.
func (h *BookingHandler) Confirm(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.PaymentRef == "" {
		return apis.NewBadRequestError("payment_ref is required", nil)
	}

	booking, err := h.bookings.Confirm(e.Request.Context(), bookingID, req.PaymentRef)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Cancel - cancel a pending or confirmed booking and report the refund
func (h *BookingHandler) Cancel(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	actor := "operator"
	if e.Auth != nil {
		actor = e.Auth.Id
	}

	booking, err := h.bookings.Cancel(e.Request.Context(), bookingID, req.Reason, actor)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"booking":       booking,
		"refund_amount": booking.RefundAmount,
		"refund_status": booking.RefundStatus,
	})
}

// Complete - post-trip bookkeeping for operator tooling
func (h *BookingHandler) Complete(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	if err := h.bookings.MarkCompleted(e.Request.Context(), bookingID); err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"completed": true})
}

// ByCode - guest booking lookup by human-readable code
func (h *BookingHandler) ByCode(e *core.RequestEvent) error {
	code := e.Request.PathValue("code")

	booking, err := h.bookings.ByCode(e.Request.Context(), code)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// History - the holder's bookings, newest first
func (h *BookingHandler) History(e *core.RequestEvent) error {
	email := e.Request.URL.Query().Get("email")
	holder := holderFor(e, email)
	if holder.IsZero() {
		return apis.NewUnauthorizedError("Authentication or contact email required", nil)
	}

	bookings, err := h.bookings.HistoryForHolder(e.Request.Context(), holder, 20)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, bookings)
}

// holderFor resolves the acting holder: the authenticated user when
// present, otherwise a guest identified by contact email.
func holderFor(e *core.RequestEvent, email string) models.Holder {
	if e.Auth != nil {
		return models.AuthenticatedHolder(e.Auth.Id)
	}
	if email == "" {
		return models.Holder{}
	}
	return models.GuestHolder(email)
}

func holdResponse(booking *models.Booking) map[string]any {
	resp := map[string]any{
		"booking_id":   booking.ID,
		"code":         booking.Code,
		"status":       booking.Status,
		"trip_id":      booking.TripID,
		"seats":        booking.Seats,
		"final_amount": booking.FinalAmount,
	}
	if booking.HoldExpiry != nil {
		resp["hold_expiry"] = booking.HoldExpiry
		resp["remaining_seconds"] = int(time.Until(*booking.HoldExpiry).Seconds())
	}
	return resp
}

// toAPIError maps the service failure taxonomy onto HTTP responses. Seat
// conflicts always list the exact seats so the client can re-render its
// selection without a reload.
func toAPIError(err error) error {
	var conflict *status.SeatConflictError
	if errors.As(err, &conflict) {
		return apis.NewApiError(http.StatusConflict, "Some seats are unavailable", map[string]any{
			"unavailable_seats": conflict.Seats(),
			"held_seats":        conflict.Held,
			"booked_seats":      conflict.Booked,
		})
	}

	switch {
	case errors.Is(err, status.ErrValidation), errors.Is(err, status.ErrTripNotBookable):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrNotHolder):
		return apis.NewForbiddenError(err.Error(), nil)
	case errors.Is(err, status.ErrHoldExpired):
		return apis.NewApiError(http.StatusGone, err.Error(), nil)
	case errors.Is(err, status.ErrWrongState),
		errors.Is(err, status.ErrSeatAlreadyHeld),
		errors.Is(err, status.ErrSeatAlreadyBooked):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, status.ErrStoreUnavailable):
		return apis.NewApiError(http.StatusServiceUnavailable, "Temporarily unavailable, please retry", nil)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", nil)
	}
}
