package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"

	"trip-booking/models"
	"trip-booking/status"
)

// InventoryService owns the update protocol for the authoritative per-trip
// seat inventory. The booked-seat set is only ever mutated here, inside a
// transaction that re-reads the trip record, so concurrent confirmations
// cannot append the same seat twice.
type InventoryService struct {
	app   core.App
	locks *SeatLockManager
}

func NewInventoryService(app core.App, locks *SeatLockManager) *InventoryService {
	return &InventoryService{app: app, locks: locks}
}

// TripByID loads a trip's inventory snapshot.
func (s *InventoryService) TripByID(ctx context.Context, tripID string) (*models.Trip, error) {
	record, err := s.app.FindRecordById("trips", tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: trip %s", status.ErrNotFound, tripID)
	}
	return tripFromRecord(record), nil
}

// AddBookedSeats appends seats to the trip's booked set, but only if none
// of them is already present. The check and the write happen inside one
// transaction against a fresh read of the record.
func (s *InventoryService) AddBookedSeats(ctx context.Context, tripID string, seats []string) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("trips", tripID)
		if err != nil {
			return fmt.Errorf("%w: trip %s", status.ErrNotFound, tripID)
		}

		booked := record.GetStringSlice("booked_seats")
		if overlap := intersect(booked, seats); len(overlap) > 0 {
			return &status.SeatConflictError{Booked: overlap}
		}

		booked = append(booked, seats...)
		record.Set("booked_seats", booked)
		record.Set("available_seats", record.GetInt("total_seats")-len(booked))

		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("%w: save trip inventory: %v", status.ErrStoreUnavailable, err)
		}
		return nil
	})
}

// RemoveBookedSeats takes seats out of the booked set (confirmed-booking
// cancellation). Seats not present are ignored.
func (s *InventoryService) RemoveBookedSeats(ctx context.Context, tripID string, seats []string) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("trips", tripID)
		if err != nil {
			return fmt.Errorf("%w: trip %s", status.ErrNotFound, tripID)
		}

		remove := make(map[string]bool, len(seats))
		for _, seat := range seats {
			remove[seat] = true
		}

		booked := record.GetStringSlice("booked_seats")
		kept := booked[:0]
		for _, seat := range booked {
			if !remove[seat] {
				kept = append(kept, seat)
			}
		}

		record.Set("booked_seats", kept)
		record.Set("available_seats", record.GetInt("total_seats")-len(kept))

		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("%w: save trip inventory: %v", status.ErrStoreUnavailable, err)
		}
		return nil
	})
}

// SeatStates computes the visible per-seat state for a trip: the document
// inventory decides booked, live locks decide held, the rest is available.
func (s *InventoryService) SeatStates(ctx context.Context, trip *models.Trip) (map[string]models.SeatState, error) {
	held, err := s.locks.HeldSeats(ctx, trip.ID, trip.SeatLabels)
	if err != nil {
		return nil, err
	}

	states := make(map[string]models.SeatState, len(trip.SeatLabels))
	for _, label := range trip.SeatLabels {
		switch {
		case trip.IsBooked(label):
			states[label] = models.SeatBooked
		case held[label] != "":
			states[label] = models.SeatHeld
		default:
			states[label] = models.SeatAvailable
		}
	}
	return states, nil
}

// SyncBookedMirror rebuilds the Redis booked mirror from the document
// store, used at startup so lock-phase checks see confirmed seats.
func (s *InventoryService) SyncBookedMirror(ctx context.Context, tripID string) error {
	trip, err := s.TripByID(ctx, tripID)
	if err != nil {
		return err
	}

	key := BookedKey(tripID)
	if err := s.locks.Redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: reset booked mirror: %v", status.ErrStoreUnavailable, err)
	}
	if len(trip.BookedSeats) == 0 {
		return nil
	}

	members := make([]interface{}, len(trip.BookedSeats))
	for i, seat := range trip.BookedSeats {
		members[i] = seat
	}
	if err := s.locks.Redis.SAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("%w: sync booked mirror: %v", status.ErrStoreUnavailable, err)
	}

	slog.Info("booked mirror synced", "trip", tripID, "seats", len(trip.BookedSeats))
	return nil
}

func tripFromRecord(r *core.Record) *models.Trip {
	return &models.Trip{
		ID:          r.Id,
		Route:       r.GetString("route"),
		Vehicle:     r.GetString("vehicle"),
		TotalSeats:  r.GetInt("total_seats"),
		SeatLabels:  r.GetStringSlice("seat_labels"),
		BookedSeats: r.GetStringSlice("booked_seats"),
		Fare:        r.GetFloat("fare"),
		Status:      models.TripStatus(r.GetString("status")),
		DepartsAt:   r.GetDateTime("departs_at").Time(),
	}
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var out []string
	for _, s := range b {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
