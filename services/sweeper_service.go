package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"trip-booking/models"
	"trip-booking/monitoring"
	"trip-booking/status"
)

// Sweeper is the backstop for TTL-based expiry: the lock store frees
// seats on its own, but the pending booking record behind a lapsed hold
// still has to be reconciled. One sweep cycle is directly invokable so
// the behavior is testable without waiting on the ticker.
type Sweeper struct {
	app      core.App
	locks    *SeatLockManager
	monitor  *monitoring.Monitor
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(app core.App, locks *SeatLockManager, monitor *monitoring.Monitor, interval time.Duration) *Sweeper {
	return &Sweeper{
		app:      app,
		locks:    locks,
		monitor:  monitor,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Println("Expiry sweeper started")

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.SweepOnce(ctx); err != nil {
				slog.Error("sweep cycle failed", "error", err)
			}
			cancel()
		case <-s.stopChan:
			log.Println("Expiry sweeper stopping")
			return
		}
	}
}

// SweepOnce reconciles every pending booking whose hold expiry has
// passed: lingering locks are released best-effort and the booking is
// deleted, the same compensating action an explicit release performs.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var rows []dbx.NullStringMap
	err := s.app.DB().
		NewQuery("SELECT id FROM bookings WHERE status = 'pending' AND hold_expiry != '' AND hold_expiry <= {:now}").
		Bind(dbx.Params{"now": types.NowDateTime().String()}).
		All(&rows)
	if err != nil {
		return 0, fmt.Errorf("%w: query expired holds: %v", status.ErrStoreUnavailable, err)
	}

	swept := 0
	for _, row := range rows {
		id := row["id"].String
		if id == "" {
			continue
		}
		if err := s.sweepBooking(ctx, id); err != nil {
			slog.Error("sweep booking failed", "booking", id, "error", err)
			continue
		}
		swept++
	}

	if swept > 0 {
		slog.Info("expired holds reconciled", "count", swept)
		s.monitor.TrackSwept(swept)
	}
	return swept, nil
}

func (s *Sweeper) sweepBooking(ctx context.Context, bookingID string) error {
	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		// Already gone; an explicit release won the race.
		return nil
	}

	booking := bookingFromRecord(record)
	if booking.Status != models.BookingPending || !booking.Expired(time.Now()) {
		return nil
	}

	// Locks usually expired with the hold; any survivors are released so
	// availability never lags behind the store TTL.
	if err := s.locks.Release(ctx, booking.TripID, booking.Seats, booking.HolderKey); err != nil {
		slog.Error("lock release during sweep failed", "booking", bookingID, "error", err)
	}

	if err := s.app.Delete(record); err != nil {
		return fmt.Errorf("%w: delete expired booking: %v", status.ErrStoreUnavailable, err)
	}
	return nil
}

// Shutdown stops the loop and waits for an in-flight cycle to finish.
func (s *Sweeper) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("Timeout waiting for sweeper to stop")
	}
}
