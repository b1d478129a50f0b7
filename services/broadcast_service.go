package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"trip-booking/models"
	"trip-booking/monitoring"
	"trip-booking/status"
	"trip-booking/utils"
)

// Broadcaster fans out the recomputed per-trip seat map to every
// connection watching that trip. Publishes are fire-and-forget and never
// block the booking transition that triggered them; a per-trip revision
// counter lets clients discard frames that lost the race.
type Broadcaster struct {
	redis     *redis.Client
	pubnub    *pubnub.PubNub
	inventory *InventoryService
	breaker   *utils.CircuitBreaker
	monitor   *monitoring.Monitor

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewBroadcaster(redisClient *redis.Client, pn *pubnub.PubNub, inventory *InventoryService, monitor *monitoring.Monitor) *Broadcaster {
	return &Broadcaster{
		redis:     redisClient,
		pubnub:    pn,
		inventory: inventory,
		breaker:   utils.NewCircuitBreaker("availability-broadcast"),
		monitor:   monitor,
	}
}

// TripChannel is the push channel a client subscribes to for one trip.
func TripChannel(tripID string) string {
	return "trip-" + tripID
}

func watchersKey(tripID string) string {
	return fmt.Sprintf("watchers:%s", tripID)
}

func revisionKey(tripID string) string {
	return fmt.Sprintf("seatmap:rev:%s", tripID)
}

// Subscribe registers a connection for a trip and returns the current
// seat map so the client renders immediately without waiting for the
// first push.
func (b *Broadcaster) Subscribe(ctx context.Context, tripID, connectionID string) (*models.SeatMapMessage, error) {
	if err := b.redis.SAdd(ctx, watchersKey(tripID), connectionID).Err(); err != nil {
		return nil, fmt.Errorf("%w: register watcher: %v", status.ErrStoreUnavailable, err)
	}
	// Watchers that never unsubscribe are dropped with the registry key.
	b.redis.Expire(ctx, watchersKey(tripID), 24*time.Hour)

	trip, err := b.inventory.TripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	rev, err := b.nextRevision(ctx, tripID)
	if err != nil {
		return nil, err
	}

	return b.buildMessage(ctx, trip, rev, nil, "snapshot")
}

// Unsubscribe removes a connection from a trip's watcher registry.
func (b *Broadcaster) Unsubscribe(ctx context.Context, tripID, connectionID string) error {
	if err := b.redis.SRem(ctx, watchersKey(tripID), connectionID).Err(); err != nil {
		return fmt.Errorf("%w: remove watcher: %v", status.ErrStoreUnavailable, err)
	}
	return nil
}

// WatcherCount reports how many connections watch a trip.
func (b *Broadcaster) WatcherCount(ctx context.Context, tripID string) (int64, error) {
	return b.redis.SCard(ctx, watchersKey(tripID)).Result()
}

// Publish recomputes the seat map for tripID and pushes it to the trip's
// channel. It returns immediately; the fan-out runs on its own goroutine
// with its own timeout so a slow push service cannot stall a transition.
func (b *Broadcaster) Publish(ctx context.Context, tripID string, seats []string, action string) {
	// The Add must not race Shutdown's Wait, so both run under the mutex
	// guarding the closed flag.
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.wg.Done()

		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := b.publishNow(pushCtx, tripID, seats, action); err != nil {
			slog.Error("seat map broadcast failed", "trip", tripID, "action", action, "error", err)
			b.monitor.TrackBroadcast(action, "error")
			return
		}
		b.monitor.TrackBroadcast(action, "success")
	}()
}

func (b *Broadcaster) publishNow(ctx context.Context, tripID string, seats []string, action string) error {
	// Without a configured push client there is nobody to fan out to.
	if b.pubnub == nil {
		return nil
	}

	// The revision is taken before the snapshot read, so a frame carrying
	// revision N reflects state at least as new as the Nth transition.
	rev, err := b.nextRevision(ctx, tripID)
	if err != nil {
		return err
	}

	trip, err := b.inventory.TripByID(ctx, tripID)
	if err != nil {
		return err
	}

	msg, err := b.buildMessage(ctx, trip, rev, seats, action)
	if err != nil {
		return err
	}

	_, err = b.breaker.Execute(ctx, func() (interface{}, error) {
		_, _, err := b.pubnub.Publish().
			Channel(TripChannel(tripID)).
			Message(msg).
			Execute()
		return nil, err
	})
	return err
}

func (b *Broadcaster) nextRevision(ctx context.Context, tripID string) (int64, error) {
	rev, err := b.redis.Incr(ctx, revisionKey(tripID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: seat map revision: %v", status.ErrStoreUnavailable, err)
	}
	return rev, nil
}

func (b *Broadcaster) buildMessage(ctx context.Context, trip *models.Trip, revision int64, affected []string, action string) (*models.SeatMapMessage, error) {
	states, err := b.inventory.SeatStates(ctx, trip)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, state := range states {
		if state == models.SeatAvailable {
			available++
		}
	}

	return &models.SeatMapMessage{
		Type:           "seat_map",
		TripID:         trip.ID,
		Revision:       revision,
		Action:         action,
		AffectedSeats:  affected,
		Seats:          states,
		AvailableSeats: available,
		Timestamp:      time.Now().UnixMilli(),
	}, nil
}

// Shutdown stops accepting publishes and waits for in-flight ones to
// drain.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		slog.Warn("timeout waiting for broadcasts to drain")
	}
}
