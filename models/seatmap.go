package models

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"
	SeatBooked    SeatState = "booked"
)

// SeatMapMessage is the frame pushed to every connection watching a trip.
// Revision increases monotonically per trip; clients drop frames with a
// revision lower than the last one they rendered.
type SeatMapMessage struct {
	Type           string               `json:"type"`
	TripID         string               `json:"trip_id"`
	Revision       int64                `json:"revision"`
	Action         string               `json:"action,omitempty"`
	AffectedSeats  []string             `json:"affected_seats,omitempty"`
	Seats          map[string]SeatState `json:"seats"`
	AvailableSeats int                  `json:"available_seats"`
	Timestamp      int64                `json:"timestamp"`
}

// BookingEvent is published on the booking-events channel after a state
// transition commits, for ticket-issuance and notification collaborators.
type BookingEvent struct {
	Type       string   `json:"type"`
	BookingID  string   `json:"booking_id"`
	Code       string   `json:"code"`
	TripID     string   `json:"trip_id"`
	Seats      []string `json:"seats"`
	PaymentRef string   `json:"payment_ref,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}
