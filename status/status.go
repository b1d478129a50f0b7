package status

import (
	"errors"
	"fmt"
	"strings"
)

// Failure taxonomy for the reservation core. Services wrap these with
// operation context via %w; handlers map them onto HTTP responses.
var (
	ErrValidation        = errors.New("booking: invalid request")
	ErrSeatAlreadyHeld   = errors.New("seat: held by another holder")
	ErrSeatAlreadyBooked = errors.New("seat: already booked")
	ErrNotHolder         = errors.New("seat: lock owned by a different holder")
	ErrHoldExpired       = errors.New("booking: hold expired")
	ErrNotFound          = errors.New("booking: not found")
	ErrWrongState        = errors.New("booking: operation not allowed in current state")
	ErrTripNotBookable   = errors.New("trip: not open for booking")
	ErrStoreUnavailable  = errors.New("store: unavailable")
)

// SeatConflictError reports exactly which seats blocked a multi-seat
// operation so the client can re-render its selection without a reload.
type SeatConflictError struct {
	Held   []string
	Booked []string
}

func (e *SeatConflictError) Error() string {
	var parts []string
	if len(e.Held) > 0 {
		parts = append(parts, "held: "+strings.Join(e.Held, ","))
	}
	if len(e.Booked) > 0 {
		parts = append(parts, "booked: "+strings.Join(e.Booked, ","))
	}
	return fmt.Sprintf("seats unavailable (%s)", strings.Join(parts, "; "))
}

// Unwrap exposes the dominant conflict class to errors.Is.
func (e *SeatConflictError) Unwrap() error {
	if len(e.Booked) > 0 {
		return ErrSeatAlreadyBooked
	}
	return ErrSeatAlreadyHeld
}

// Seats returns every conflicting seat label, held first.
func (e *SeatConflictError) Seats() []string {
	seats := make([]string, 0, len(e.Held)+len(e.Booked))
	seats = append(seats, e.Held...)
	seats = append(seats, e.Booked...)
	return seats
}
