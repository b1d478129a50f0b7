package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"trip-booking/config"
	"trip-booking/models"
	"trip-booking/monitoring"
	"trip-booking/status"
	"trip-booking/utils"
)

// BookingService owns the booking state machine. It is the only writer of
// booking records and the only caller of the inventory update protocol;
// seat ownership during the hold phase is decided exclusively by the
// SeatLockManager's atomic acquire, never by read-then-write here.
type BookingService struct {
	app         core.App
	locks       *SeatLockManager
	inventory   *InventoryService
	broadcaster *Broadcaster
	events      *EventPublisher
	monitor     *monitoring.Monitor
	cfg         *config.Config
}

func NewBookingService(
	app core.App,
	locks *SeatLockManager,
	inventory *InventoryService,
	broadcaster *Broadcaster,
	events *EventPublisher,
	monitor *monitoring.Monitor,
	cfg *config.Config,
) *BookingService {
	return &BookingService{
		app:         app,
		locks:       locks,
		inventory:   inventory,
		broadcaster: broadcaster,
		events:      events,
		monitor:     monitor,
		cfg:         cfg,
	}
}

// HoldInput is a request to place a time-bounded claim on a seat set.
type HoldInput struct {
	TripID     string
	Seats      []string
	Passengers []models.Passenger
	Contact    models.Contact
	Holder     models.Holder
}

// Hold validates the request, acquires all seat locks atomically and
// creates the pending booking. If the booking cannot be persisted after
// the locks were acquired, the locks are released before returning.
func (s *BookingService) Hold(ctx context.Context, in HoldInput) (*models.Booking, error) {
	if err := validateHold(in, s.cfg.MaxHoldSeats); err != nil {
		s.monitor.TrackBookingOperation("hold", "invalid")
		return nil, err
	}

	trip, err := s.inventory.TripByID(ctx, in.TripID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !trip.Bookable(now) {
		return nil, fmt.Errorf("%w: trip %s is %s", status.ErrTripNotBookable, trip.ID, trip.Status)
	}
	for _, seat := range in.Seats {
		if !trip.HasSeat(seat) {
			return nil, fmt.Errorf("%w: unknown seat %q", status.ErrValidation, seat)
		}
	}

	// Cheap pre-check against the document inventory. The lock store is
	// still the arbiter: a seat confirmed between this read and the
	// acquire is caught by the booked mirror inside the script.
	if overlap := intersect(trip.BookedSeats, in.Seats); len(overlap) > 0 {
		s.monitor.TrackBookingOperation("hold", "conflict")
		return nil, &status.SeatConflictError{Booked: overlap}
	}

	holderKey := in.Holder.Key()
	start := time.Now()
	expiry, err := s.locks.Acquire(ctx, trip.ID, in.Seats, holderKey, s.cfg.HoldTTL)
	s.monitor.TrackLockDuration("acquire", time.Since(start))
	if err != nil {
		s.monitor.TrackBookingOperation("hold", "conflict")
		return nil, err
	}

	code, err := utils.GenerateCode(4)
	if err != nil {
		s.releaseAfterFailure(ctx, trip.ID, in.Seats, holderKey)
		return nil, fmt.Errorf("generate booking code: %w", err)
	}

	base := decimal.NewFromFloat(trip.Fare).Mul(decimal.NewFromInt(int64(len(in.Seats))))
	final := base

	collection, err := s.app.FindCollectionByNameOrId("bookings")
	if err != nil {
		s.releaseAfterFailure(ctx, trip.ID, in.Seats, holderKey)
		return nil, fmt.Errorf("%w: bookings collection: %v", status.ErrStoreUnavailable, err)
	}

	record := core.NewRecord(collection)
	record.Set("code", code)
	record.Set("trip", trip.ID)
	record.Set("seats", in.Seats)
	record.Set("passengers", in.Passengers)
	record.Set("contact_name", in.Contact.FullName)
	record.Set("contact_email", in.Contact.Email)
	record.Set("contact_phone", in.Contact.Phone)
	record.Set("holder_key", holderKey)
	record.Set("status", string(models.BookingPending))
	record.Set("hold_expiry", expiry)
	record.Set("base_amount", base.InexactFloat64())
	record.Set("discount_amount", 0.0)
	record.Set("final_amount", final.InexactFloat64())

	if err := s.app.Save(record); err != nil {
		// Seats must never stay locked without a corresponding booking.
		s.releaseAfterFailure(ctx, trip.ID, in.Seats, holderKey)
		s.monitor.TrackBookingOperation("hold", "error")
		return nil, fmt.Errorf("%w: save booking: %v", status.ErrStoreUnavailable, err)
	}

	s.monitor.TrackBookingOperation("hold", "success")
	slog.Info("booking held", "booking", record.Id, "trip", trip.ID, "seats", in.Seats, "expiry", expiry)
	return bookingFromRecord(record), nil
}

// Extend pushes a pending hold's expiry forward by one full hold window.
func (s *BookingService) Extend(ctx context.Context, bookingID string, holder models.Holder) (*models.Booking, error) {
	record, booking, err := s.find(bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != models.BookingPending {
		return nil, fmt.Errorf("%w: extend on %s booking", status.ErrWrongState, booking.Status)
	}
	if booking.HolderKey != holder.Key() {
		return nil, status.ErrNotHolder
	}
	if booking.Expired(time.Now()) {
		return nil, status.ErrHoldExpired
	}

	start := time.Now()
	expiry, err := s.locks.Extend(ctx, booking.TripID, booking.Seats, booking.HolderKey, s.cfg.HoldTTL)
	s.monitor.TrackLockDuration("extend", time.Since(start))
	if err != nil {
		s.monitor.TrackBookingOperation("extend", "error")
		return nil, err
	}

	record.Set("hold_expiry", expiry)
	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: save booking: %v", status.ErrStoreUnavailable, err)
	}

	s.monitor.TrackBookingOperation("extend", "success")
	return bookingFromRecord(record), nil
}

// Release abandons a pending hold: the locks are dropped and the booking
// record is deleted, as if the hold had never existed.
func (s *BookingService) Release(ctx context.Context, bookingID string, holder models.Holder) error {
	record, booking, err := s.find(bookingID)
	if err != nil {
		return err
	}

	if booking.Status != models.BookingPending {
		return fmt.Errorf("%w: release on %s booking", status.ErrWrongState, booking.Status)
	}
	if booking.HolderKey != holder.Key() {
		return status.ErrNotHolder
	}

	if err := s.locks.Release(ctx, booking.TripID, booking.Seats, booking.HolderKey); err != nil {
		return err
	}

	if err := s.app.Delete(record); err != nil {
		return fmt.Errorf("%w: delete booking: %v", status.ErrStoreUnavailable, err)
	}

	s.monitor.TrackBookingOperation("release", "success")
	slog.Info("booking released", "booking", bookingID, "trip", booking.TripID)
	return nil
}

// Confirm promotes a pending booking to confirmed after payment success.
// Non-expiry is re-checked here, not trusted from hold time, and the call
// is idempotent under duplicate payment-gateway callbacks.
func (s *BookingService) Confirm(ctx context.Context, bookingID, paymentRef string) (*models.Booking, error) {
	record, booking, err := s.find(bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.BookingConfirmed {
		if booking.PaymentRef == paymentRef {
			// Duplicate gateway callback.
			s.monitor.TrackBookingOperation("confirm", "duplicate")
			return booking, nil
		}
		return nil, fmt.Errorf("%w: already confirmed with a different payment reference", status.ErrWrongState)
	}
	if booking.Status != models.BookingPending {
		return nil, fmt.Errorf("%w: confirm on %s booking", status.ErrWrongState, booking.Status)
	}
	if booking.Expired(time.Now()) {
		s.monitor.TrackBookingOperation("confirm", "expired")
		return nil, status.ErrHoldExpired
	}

	// Permanence is recorded in Trip Inventory first; the conditional
	// append fails if any seat is already booked.
	if err := s.inventory.AddBookedSeats(ctx, booking.TripID, booking.Seats); err != nil {
		if recovered, ok := s.duplicateAfterConflict(bookingID, paymentRef, err); ok {
			s.monitor.TrackBookingOperation("confirm", "duplicate")
			return recovered, nil
		}
		s.monitor.TrackBookingOperation("confirm", "conflict")
		return nil, err
	}

	final := decimal.NewFromFloat(booking.FinalAmount)
	record.Set("status", string(models.BookingConfirmed))
	record.Set("hold_expiry", "")
	record.Set("payment_ref", paymentRef)
	record.Set("loyalty_points", LoyaltyPoints(final))

	if err := s.app.Save(record); err != nil {
		// Roll the inventory write back so seats are not booked without
		// a confirmed booking behind them.
		if invErr := s.inventory.RemoveBookedSeats(ctx, booking.TripID, booking.Seats); invErr != nil {
			slog.Error("inventory rollback failed", "booking", bookingID, "error", invErr)
		}
		s.monitor.TrackBookingOperation("confirm", "error")
		return nil, fmt.Errorf("%w: save booking: %v", status.ErrStoreUnavailable, err)
	}

	start := time.Now()
	if err := s.locks.Promote(ctx, booking.TripID, booking.Seats, booking.HolderKey); err != nil {
		// The locks expire on their own and the inventory already owns
		// the seats, so this only delays visibility.
		slog.Error("lock promotion failed", "booking", bookingID, "error", err)
	}
	s.monitor.TrackLockDuration("promote", time.Since(start))

	confirmed := bookingFromRecord(record)
	s.events.BookingConfirmed(confirmed)
	s.monitor.TrackBookingOperation("confirm", "success")
	slog.Info("booking confirmed", "booking", bookingID, "trip", booking.TripID, "payment_ref", paymentRef)
	return confirmed, nil
}

// Cancel closes a pending or confirmed booking. The refund follows the
// time-to-departure schedule; money movement itself is a collaborator's
// job.
func (s *BookingService) Cancel(ctx context.Context, bookingID, reason, actor string) (*models.Booking, error) {
	record, booking, err := s.find(bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != models.BookingPending && booking.Status != models.BookingConfirmed {
		return nil, fmt.Errorf("%w: cancel on %s booking", status.ErrWrongState, booking.Status)
	}

	trip, err := s.inventory.TripByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}

	refund := decimal.Zero
	wasConfirmed := booking.Status == models.BookingConfirmed

	if wasConfirmed {
		pct := RefundPercent(time.Until(trip.DepartsAt).Hours())
		refund = RefundAmount(decimal.NewFromFloat(booking.FinalAmount), pct)

		if err := s.inventory.RemoveBookedSeats(ctx, booking.TripID, booking.Seats); err != nil {
			return nil, err
		}
		if err := s.locks.Unbook(ctx, booking.TripID, booking.Seats); err != nil {
			slog.Error("booked mirror cleanup failed", "booking", bookingID, "error", err)
		}
	} else {
		// Lingering locks are best-effort; TTL covers the rest.
		if err := s.locks.Release(ctx, booking.TripID, booking.Seats, booking.HolderKey); err != nil {
			slog.Error("lock release on cancel failed", "booking", bookingID, "error", err)
		}
	}

	refundStatus := "none"
	if refund.IsPositive() {
		refundStatus = "pending"
	}

	record.Set("status", string(models.BookingCancelled))
	record.Set("hold_expiry", "")
	record.Set("cancel_reason", reason)
	record.Set("cancelled_by", actor)
	record.Set("refund_amount", refund.InexactFloat64())
	record.Set("refund_status", refundStatus)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: save booking: %v", status.ErrStoreUnavailable, err)
	}

	if wasConfirmed {
		s.broadcaster.Publish(ctx, booking.TripID, booking.Seats, "cancel")
	}

	cancelled := bookingFromRecord(record)
	s.events.BookingCancelled(cancelled)
	s.monitor.TrackBookingOperation("cancel", "success")
	slog.Info("booking cancelled", "booking", bookingID, "refund", refund.String(), "actor", actor)
	return cancelled, nil
}

// MarkCompleted is post-trip bookkeeping, outside the concurrency path.
func (s *BookingService) MarkCompleted(ctx context.Context, bookingID string) error {
	record, booking, err := s.find(bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingConfirmed {
		return fmt.Errorf("%w: complete on %s booking", status.ErrWrongState, booking.Status)
	}

	record.Set("status", string(models.BookingCompleted))
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("%w: save booking: %v", status.ErrStoreUnavailable, err)
	}
	return nil
}

// ByID returns one booking.
func (s *BookingService) ByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	_, booking, err := s.find(bookingID)
	return booking, err
}

// ByCode looks a booking up by its human-readable code (guest flow).
func (s *BookingService) ByCode(ctx context.Context, code string) (*models.Booking, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"bookings",
		"code = {:code}",
		dbx.Params{"code": code},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: code %s", status.ErrNotFound, code)
	}
	return bookingFromRecord(record), nil
}

// HistoryForHolder lists a holder's bookings, newest first.
func (s *BookingService) HistoryForHolder(ctx context.Context, holder models.Holder, limit int) ([]*models.Booking, error) {
	if limit <= 0 {
		limit = 20
	}

	records, err := s.app.FindRecordsByFilter(
		"bookings",
		"holder_key = {:key}",
		"-created",
		limit,
		0,
		dbx.Params{"key": holder.Key()},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: booking history: %v", status.ErrStoreUnavailable, err)
	}

	bookings := make([]*models.Booking, len(records))
	for i, record := range records {
		bookings[i] = bookingFromRecord(record)
	}
	return bookings, nil
}

// duplicateAfterConflict distinguishes a real seat conflict from losing
// the inventory race to a concurrent confirm of the same booking: when
// the fresh record is already confirmed with the same payment reference,
// the seats were appended exactly once and this call reports success.
func (s *BookingService) duplicateAfterConflict(bookingID, paymentRef string, cause error) (*models.Booking, bool) {
	var conflict *status.SeatConflictError
	if !errors.As(cause, &conflict) {
		return nil, false
	}

	_, fresh, err := s.find(bookingID)
	if err != nil {
		return nil, false
	}
	if fresh.Status == models.BookingConfirmed && fresh.PaymentRef == paymentRef {
		return fresh, true
	}
	return nil, false
}

func (s *BookingService) find(bookingID string) (*core.Record, *models.Booking, error) {
	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: booking %s", status.ErrNotFound, bookingID)
	}
	return record, bookingFromRecord(record), nil
}

func (s *BookingService) releaseAfterFailure(ctx context.Context, tripID string, seats []string, holderKey string) {
	if err := s.locks.Release(ctx, tripID, seats, holderKey); err != nil {
		slog.Error("compensating lock release failed", "trip", tripID, "seats", seats, "error", err)
	}
}

func validateHold(in HoldInput, maxSeats int) error {
	if in.TripID == "" {
		return fmt.Errorf("%w: trip id is required", status.ErrValidation)
	}
	if len(in.Seats) == 0 {
		return fmt.Errorf("%w: at least one seat is required", status.ErrValidation)
	}
	if len(in.Seats) > maxSeats {
		return fmt.Errorf("%w: at most %d seats per booking", status.ErrValidation, maxSeats)
	}

	seen := make(map[string]bool, len(in.Seats))
	for _, seat := range in.Seats {
		if seat == "" {
			return fmt.Errorf("%w: empty seat label", status.ErrValidation)
		}
		if seen[seat] {
			return fmt.Errorf("%w: duplicate seat %q", status.ErrValidation, seat)
		}
		seen[seat] = true
	}

	if len(in.Passengers) != len(in.Seats) {
		return fmt.Errorf("%w: passenger count (%d) must match seat count (%d)",
			status.ErrValidation, len(in.Passengers), len(in.Seats))
	}
	for _, p := range in.Passengers {
		if p.FullName == "" {
			return fmt.Errorf("%w: passenger name is required", status.ErrValidation)
		}
		if p.Seat != "" && !seen[p.Seat] {
			return fmt.Errorf("%w: passenger assigned to unrequested seat %q", status.ErrValidation, p.Seat)
		}
	}

	if in.Contact.Email == "" {
		return fmt.Errorf("%w: contact email is required", status.ErrValidation)
	}
	if in.Holder.IsZero() {
		return fmt.Errorf("%w: holder identity is required", status.ErrValidation)
	}
	return nil
}

// RefundPercent implements the time-to-departure refund schedule.
func RefundPercent(hoursUntilDeparture float64) int64 {
	switch {
	case hoursUntilDeparture >= 24:
		return 90
	case hoursUntilDeparture >= 12:
		return 70
	case hoursUntilDeparture >= 6:
		return 50
	default:
		return 0
	}
}

// RefundAmount applies a refund percentage to the amount paid.
func RefundAmount(paid decimal.Decimal, percent int64) decimal.Decimal {
	return paid.Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100)).Round(2)
}

// LoyaltyPoints awards one point per ten currency units of the final fare.
func LoyaltyPoints(finalAmount decimal.Decimal) int64 {
	return finalAmount.Div(decimal.NewFromInt(10)).IntPart()
}

func bookingFromRecord(r *core.Record) *models.Booking {
	booking := &models.Booking{
		ID:     r.Id,
		Code:   r.GetString("code"),
		TripID: r.GetString("trip"),
		Seats:  r.GetStringSlice("seats"),
		Contact: models.Contact{
			FullName: r.GetString("contact_name"),
			Email:    r.GetString("contact_email"),
			Phone:    r.GetString("contact_phone"),
		},
		HolderKey:      r.GetString("holder_key"),
		Status:         models.BookingStatus(r.GetString("status")),
		PaymentRef:     r.GetString("payment_ref"),
		BaseAmount:     r.GetFloat("base_amount"),
		DiscountAmount: r.GetFloat("discount_amount"),
		FinalAmount:    r.GetFloat("final_amount"),
		RefundAmount:   r.GetFloat("refund_amount"),
		RefundStatus:   r.GetString("refund_status"),
		CancelReason:   r.GetString("cancel_reason"),
		CancelledBy:    r.GetString("cancelled_by"),
		LoyaltyPoints:  int64(r.GetInt("loyalty_points")),
		Created:        r.GetDateTime("created").Time(),
	}

	if raw := r.GetString("passengers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &booking.Passengers); err != nil {
			slog.Error("decode booking passengers", "booking", r.Id, "error", err)
		}
	}

	if expiry := r.GetDateTime("hold_expiry"); !expiry.IsZero() {
		t := expiry.Time()
		booking.HoldExpiry = &t
	}

	return booking
}
