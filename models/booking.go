package models

import (
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Passenger carries the per-seat traveller details captured at hold time.
type Passenger struct {
	Seat     string `json:"seat"`
	FullName string `json:"full_name"`
	Age      int    `json:"age,omitempty"`
	Document string `json:"document,omitempty"`
}

// Contact is the booking's point of contact. For guest bookings the email
// also derives the lock-ownership key.
type Contact struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Booking is one customer's claim (pending) or purchase (confirmed) of a
// seat set on one trip.
type Booking struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	TripID         string        `json:"trip_id"`
	Seats          []string      `json:"seats"`
	Passengers     []Passenger   `json:"passengers"`
	Contact        Contact       `json:"contact"`
	HolderKey      string        `json:"-"`
	Status         BookingStatus `json:"status"`
	HoldExpiry     *time.Time    `json:"hold_expiry,omitempty"`
	PaymentRef     string        `json:"payment_ref,omitempty"`
	BaseAmount     float64       `json:"base_amount"`
	DiscountAmount float64       `json:"discount_amount"`
	FinalAmount    float64       `json:"final_amount"`
	RefundAmount   float64       `json:"refund_amount,omitempty"`
	RefundStatus   string        `json:"refund_status,omitempty"`
	CancelReason   string        `json:"cancel_reason,omitempty"`
	CancelledBy    string        `json:"cancelled_by,omitempty"`
	LoyaltyPoints  int64         `json:"loyalty_points,omitempty"`
	Created        time.Time     `json:"created"`
}

// Expired reports whether a pending hold has lapsed at the given instant.
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == BookingPending && b.HoldExpiry != nil && !now.Before(*b.HoldExpiry)
}
