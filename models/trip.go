package models

import (
	"time"
)

type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripOngoing   TripStatus = "ongoing"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// Trip is the authoritative seat inventory for one scheduled departure.
// BookedSeats is mutated only through confirm/cancel transitions.
type Trip struct {
	ID          string     `json:"id"`
	Route       string     `json:"route"`
	Vehicle     string     `json:"vehicle"`
	TotalSeats  int        `json:"total_seats"`
	SeatLabels  []string   `json:"seat_labels"`
	BookedSeats []string   `json:"booked_seats"`
	Fare        float64    `json:"fare"`
	Status      TripStatus `json:"status"`
	DepartsAt   time.Time  `json:"departs_at"`
}

// AvailableSeats derives the free-seat count from the booked set.
func (t *Trip) AvailableSeats() int {
	return t.TotalSeats - len(t.BookedSeats)
}

// HasSeat reports whether label belongs to this trip's layout.
func (t *Trip) HasSeat(label string) bool {
	for _, s := range t.SeatLabels {
		if s == label {
			return true
		}
	}
	return false
}

// IsBooked reports whether label is part of the confirmed inventory.
func (t *Trip) IsBooked(label string) bool {
	for _, s := range t.BookedSeats {
		if s == label {
			return true
		}
	}
	return false
}

// Bookable reports whether new holds may be placed on the trip.
func (t *Trip) Bookable(now time.Time) bool {
	return t.Status == TripScheduled && now.Before(t.DepartsAt)
}
