package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"trip-booking/models"
	"trip-booking/status"
)

func validInput() HoldInput {
	return HoldInput{
		TripID: "trip-1",
		Seats:  []string{"A1", "A2"},
		Passengers: []models.Passenger{
			{Seat: "A1", FullName: "Khamla Vong", Age: 34},
			{Seat: "A2", FullName: "Noy Vong", Age: 31},
		},
		Contact: models.Contact{
			FullName: "Khamla Vong",
			Email:    "khamla@example.com",
			Phone:    "+85620555000",
		},
		Holder: models.AuthenticatedHolder("u1"),
	}
}

func TestValidateHold(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HoldInput)
		wantErr bool
	}{
		{"valid", func(in *HoldInput) {}, false},
		{"missing trip", func(in *HoldInput) { in.TripID = "" }, true},
		{"no seats", func(in *HoldInput) { in.Seats = nil; in.Passengers = nil }, true},
		{"too many seats", func(in *HoldInput) {
			in.Seats = []string{"A1", "A2", "A3", "A4", "B1", "B2", "B3"}
			in.Passengers = make([]models.Passenger, 7)
			for i := range in.Passengers {
				in.Passengers[i] = models.Passenger{FullName: "P", Seat: in.Seats[i]}
			}
		}, true},
		{"duplicate seat", func(in *HoldInput) {
			in.Seats = []string{"A1", "A1"}
		}, true},
		{"empty seat label", func(in *HoldInput) {
			in.Seats = []string{"A1", ""}
		}, true},
		{"passenger count mismatch", func(in *HoldInput) {
			in.Passengers = in.Passengers[:1]
		}, true},
		{"passenger without name", func(in *HoldInput) {
			in.Passengers[0].FullName = ""
		}, true},
		{"passenger on unrequested seat", func(in *HoldInput) {
			in.Passengers[0].Seat = "Z9"
		}, true},
		{"unassigned passenger seat is fine", func(in *HoldInput) {
			in.Passengers[0].Seat = ""
		}, false},
		{"missing contact email", func(in *HoldInput) {
			in.Contact.Email = ""
		}, true},
		{"missing holder", func(in *HoldInput) {
			in.Holder = models.Holder{}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			err := validateHold(in, 6)
			if tt.wantErr {
				assert.True(t, errors.Is(err, status.ErrValidation), "expected validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRefundPercent(t *testing.T) {
	tests := []struct {
		hours float64
		want  int64
	}{
		{48, 90},
		{24, 90},
		{23.9, 70},
		{12, 70},
		{11.9, 50},
		{6, 50},
		{5.9, 0},
		{1, 0},
		{0, 0},
		{-3, 0}, // trip already departed
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RefundPercent(tt.hours), "hours=%v", tt.hours)
	}

	// The schedule never pays more for cancelling later.
	prev := RefundPercent(100)
	for h := 99.5; h >= -1; h -= 0.5 {
		cur := RefundPercent(h)
		assert.LessOrEqual(t, cur, prev, "refund percent increased at %v hours", h)
		prev = cur
	}
}

func TestRefundAmount(t *testing.T) {
	paid := decimal.NewFromFloat(150000)

	assert.True(t, RefundAmount(paid, 90).Equal(decimal.NewFromFloat(135000)))
	assert.True(t, RefundAmount(paid, 70).Equal(decimal.NewFromFloat(105000)))
	assert.True(t, RefundAmount(paid, 50).Equal(decimal.NewFromFloat(75000)))
	assert.True(t, RefundAmount(paid, 0).IsZero())

	// Cent-level amounts round to 2 decimal places.
	odd := decimal.NewFromFloat(99.99)
	assert.True(t, RefundAmount(odd, 70).Equal(decimal.NewFromFloat(69.99)))
}

func TestLoyaltyPoints(t *testing.T) {
	assert.Equal(t, int64(15000), LoyaltyPoints(decimal.NewFromFloat(150000)))
	assert.Equal(t, int64(9), LoyaltyPoints(decimal.NewFromFloat(99.99)))
	assert.Equal(t, int64(0), LoyaltyPoints(decimal.Zero))
}
