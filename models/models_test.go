package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHolder_Key(t *testing.T) {
	user := AuthenticatedHolder("abc123")
	assert.Equal(t, "user:abc123", user.Key())
	assert.False(t, user.IsGuest())

	guest := GuestHolder("Khamla@Example.com")
	assert.True(t, guest.IsGuest())
	assert.True(t, strings.HasPrefix(guest.Key(), "guest:"))

	// Guest keys are stable across whitespace and case variations of the
	// same email, and don't leak the address itself.
	assert.Equal(t, guest.Key(), GuestHolder("  khamla@example.com ").Key())
	assert.NotContains(t, guest.Key(), "khamla")

	// Different identities never collide on the key.
	assert.NotEqual(t, guest.Key(), GuestHolder("other@example.com").Key())
	assert.NotEqual(t, user.Key(), guest.Key())
}

func TestHolder_IsZero(t *testing.T) {
	assert.True(t, Holder{}.IsZero())
	assert.False(t, AuthenticatedHolder("u1").IsZero())
	assert.False(t, GuestHolder("a@b.c").IsZero())
}

func TestTrip_SeatHelpers(t *testing.T) {
	trip := &Trip{
		ID:          "trip-1",
		TotalSeats:  4,
		SeatLabels:  []string{"A1", "A2", "B1", "B2"},
		BookedSeats: []string{"B1"},
		Status:      TripScheduled,
		DepartsAt:   time.Now().Add(time.Hour),
	}

	assert.Equal(t, 3, trip.AvailableSeats())
	assert.True(t, trip.HasSeat("A1"))
	assert.False(t, trip.HasSeat("Z9"))
	assert.True(t, trip.IsBooked("B1"))
	assert.False(t, trip.IsBooked("A1"))
}

func TestTrip_Bookable(t *testing.T) {
	now := time.Now()
	future := now.Add(2 * time.Hour)
	past := now.Add(-time.Minute)

	assert.True(t, (&Trip{Status: TripScheduled, DepartsAt: future}).Bookable(now))
	assert.False(t, (&Trip{Status: TripScheduled, DepartsAt: past}).Bookable(now))
	assert.False(t, (&Trip{Status: TripOngoing, DepartsAt: future}).Bookable(now))
	assert.False(t, (&Trip{Status: TripCancelled, DepartsAt: future}).Bookable(now))
	assert.False(t, (&Trip{Status: TripCompleted, DepartsAt: future}).Bookable(now))
}

func TestBooking_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	pendingPast := &Booking{Status: BookingPending, HoldExpiry: &past}
	assert.True(t, pendingPast.Expired(now))

	pendingFuture := &Booking{Status: BookingPending, HoldExpiry: &future}
	assert.False(t, pendingFuture.Expired(now))

	// Expiry boundary counts as expired.
	pendingNow := &Booking{Status: BookingPending, HoldExpiry: &now}
	assert.True(t, pendingNow.Expired(now))

	// Only pending holds expire.
	confirmed := &Booking{Status: BookingConfirmed, HoldExpiry: &past}
	assert.False(t, confirmed.Expired(now))

	noExpiry := &Booking{Status: BookingPending}
	assert.False(t, noExpiry.Expired(now))
}
