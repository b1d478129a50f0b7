package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-booking/models"
)

func setupTestBroadcaster() (*Broadcaster, *InventoryService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	locks := NewSeatLockManager(db)
	inventory := NewInventoryService(nil, locks)
	broadcaster := NewBroadcaster(db, nil, inventory, nil)
	return broadcaster, inventory, mock
}

func testTrip() *models.Trip {
	return &models.Trip{
		ID:          "trip-1",
		Route:       "VTE-LPQ",
		TotalSeats:  4,
		SeatLabels:  []string{"A1", "A2", "B1", "B2"},
		BookedSeats: []string{"B1"},
		Fare:        150000,
		Status:      models.TripScheduled,
		DepartsAt:   time.Now().Add(48 * time.Hour),
	}
}

func TestSeatStates(t *testing.T) {
	_, inventory, mock := setupTestBroadcaster()
	defer mock.ClearExpect()

	mock.ExpectMGet(
		"seatlock:trip-1:A1",
		"seatlock:trip-1:A2",
		"seatlock:trip-1:B1",
		"seatlock:trip-1:B2",
	).SetVal([]interface{}{"user:u1", nil, nil, nil})

	states, err := inventory.SeatStates(context.Background(), testTrip())

	require.NoError(t, err)
	assert.Equal(t, map[string]models.SeatState{
		"A1": models.SeatHeld,
		"A2": models.SeatAvailable,
		"B1": models.SeatBooked,
		"B2": models.SeatAvailable,
	}, states)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatStates_BookedWinsOverStaleLock(t *testing.T) {
	_, inventory, mock := setupTestBroadcaster()
	defer mock.ClearExpect()

	// A lock lingering on an already-booked seat must not downgrade it.
	mock.ExpectMGet(
		"seatlock:trip-1:A1",
		"seatlock:trip-1:A2",
		"seatlock:trip-1:B1",
		"seatlock:trip-1:B2",
	).SetVal([]interface{}{nil, nil, "user:stale", nil})

	states, err := inventory.SeatStates(context.Background(), testTrip())

	require.NoError(t, err)
	assert.Equal(t, models.SeatBooked, states["B1"])
}

func TestBuildMessage(t *testing.T) {
	broadcaster, _, mock := setupTestBroadcaster()
	defer mock.ClearExpect()

	mock.ExpectMGet(
		"seatlock:trip-1:A1",
		"seatlock:trip-1:A2",
		"seatlock:trip-1:B1",
		"seatlock:trip-1:B2",
	).SetVal([]interface{}{"user:u1", nil, nil, nil})

	msg, err := broadcaster.buildMessage(context.Background(), testTrip(), 7, []string{"A1"}, "hold")

	require.NoError(t, err)
	assert.Equal(t, "seat_map", msg.Type)
	assert.Equal(t, "trip-1", msg.TripID)
	assert.Equal(t, int64(7), msg.Revision)
	assert.Equal(t, "hold", msg.Action)
	assert.Equal(t, []string{"A1"}, msg.AffectedSeats)
	assert.Equal(t, 2, msg.AvailableSeats) // A2 and B2
	assert.NotZero(t, msg.Timestamp)
}

func TestNextRevision(t *testing.T) {
	broadcaster, _, mock := setupTestBroadcaster()
	defer mock.ClearExpect()

	mock.ExpectIncr("seatmap:rev:trip-1").SetVal(42)

	rev, err := broadcaster.nextRevision(context.Background(), "trip-1")

	require.NoError(t, err)
	assert.Equal(t, int64(42), rev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribeUnsubscribe(t *testing.T) {
	broadcaster, _, mock := setupTestBroadcaster()
	defer mock.ClearExpect()

	mock.ExpectSRem("watchers:trip-1", "conn-9").SetVal(1)
	require.NoError(t, broadcaster.Unsubscribe(context.Background(), "trip-1", "conn-9"))

	mock.ExpectSCard("watchers:trip-1").SetVal(3)
	count, err := broadcaster.WatcherCount(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBroadcaster_ShutdownAgainstConcurrentPublishes(t *testing.T) {
	broadcaster, _, mock := setupTestBroadcaster()
	defer mock.ClearExpect()

	// Publishes racing the drain must either be tracked by the wait group
	// or dropped; under -race this flushes out an Add racing Wait.
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			broadcaster.Publish(context.Background(), "trip-1", []string{"A1"}, "hold")
		}()
	}

	broadcaster.Shutdown()
	wg.Wait()

	// After shutdown new publishes are dropped outright.
	broadcaster.Publish(context.Background(), "trip-1", []string{"A1"}, "hold")
	broadcaster.Shutdown()
}

func TestTripChannel(t *testing.T) {
	assert.Equal(t, "trip-abc123", TripChannel("abc123"))
}
