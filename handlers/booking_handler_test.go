package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-booking/status"
)

func httpStatusOf(t *testing.T, err error) int {
	t.Helper()
	apiErr, ok := err.(*router.ApiError)
	require.True(t, ok, "expected an ApiError, got %T", err)
	return apiErr.Status
}

func TestToAPIError_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: bad seats", status.ErrValidation), http.StatusBadRequest},
		{"trip not bookable", status.ErrTripNotBookable, http.StatusBadRequest},
		{"not found", status.ErrNotFound, http.StatusNotFound},
		{"not holder", status.ErrNotHolder, http.StatusForbidden},
		{"hold expired", status.ErrHoldExpired, http.StatusGone},
		{"wrong state", status.ErrWrongState, http.StatusConflict},
		{"store unavailable", status.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatusOf(t, toAPIError(tt.err)))
		})
	}
}

func TestToAPIError_SeatConflictListsSeats(t *testing.T) {
	conflict := &status.SeatConflictError{
		Held:   []string{"A2"},
		Booked: []string{"B1"},
	}

	err := toAPIError(conflict)
	require.Equal(t, http.StatusConflict, httpStatusOf(t, err))

	apiErr := err.(*router.ApiError)
	data, ok := apiErr.RawData().(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"A2", "B1"}, data["unavailable_seats"])
	assert.Equal(t, []string{"A2"}, data["held_seats"])
	assert.Equal(t, []string{"B1"}, data["booked_seats"])
}
