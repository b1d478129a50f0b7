package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trip-booking/status"
)

// AvailabilityNotifier receives the affected seat set after every
// successful lock transition. Delivery is fire-and-forget.
type AvailabilityNotifier interface {
	Publish(ctx context.Context, tripID string, seats []string, action string)
}

// SeatLockManager implements the short-lived mutual-exclusion layer on top
// of Redis. Every multi-seat operation runs as a single Lua script so the
// seat set transitions all-or-nothing; the scripts are the sole arbiter of
// seat ownership during the hold phase.
type SeatLockManager struct {
	Redis    *redis.Client
	notifier AvailabilityNotifier
}

func NewSeatLockManager(redisClient *redis.Client) *SeatLockManager {
	return &SeatLockManager{Redis: redisClient}
}

// SetNotifier wires the availability broadcaster. Set once during startup.
func (s *SeatLockManager) SetNotifier(n AvailabilityNotifier) {
	s.notifier = n
}

func LockKey(tripID, seat string) string {
	return fmt.Sprintf("seatlock:%s:%s", tripID, seat)
}

func BookedKey(tripID string) string {
	return fmt.Sprintf("booked:%s", tripID)
}

// acquireScript creates a lock for every requested seat, or none.
// KEYS[1] is the booked mirror set, KEYS[2..] the lock keys.
// ARGV[1] holder key, ARGV[2] TTL ms, ARGV[3..] seat labels.
// Returns an empty array on success, otherwise "held:<seat>" /
// "booked:<seat>" entries for every conflicting seat.
const acquireScript = `
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])
local conflicts = {}
for i = 2, #KEYS do
  local seat = ARGV[i + 1]
  if redis.call("SISMEMBER", KEYS[1], seat) == 1 then
    table.insert(conflicts, "booked:" .. seat)
  else
    local owner = redis.call("GET", KEYS[i])
    if owner and owner ~= holder then
      table.insert(conflicts, "held:" .. seat)
    end
  end
end
if #conflicts > 0 then
  return conflicts
end
for i = 2, #KEYS do
  redis.call("SET", KEYS[i], holder, "PX", ttl)
end
return {}
`

// extendScript refreshes expiry only when the holder owns every seat.
// KEYS are the lock keys; ARGV[1] holder key, ARGV[2] TTL ms.
const extendScript = `
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])
for i = 1, #KEYS do
  if redis.call("GET", KEYS[i]) ~= holder then
    return 0
  end
end
for i = 1, #KEYS do
  redis.call("PEXPIRE", KEYS[i], ttl)
end
return 1
`

// releaseScript deletes only the locks owned by the holder. Releasing an
// expired or foreign lock is a no-op, which makes release idempotent.
const releaseScript = `
local holder = ARGV[1]
local removed = 0
for i = 1, #KEYS do
  if redis.call("GET", KEYS[i]) == holder then
    redis.call("DEL", KEYS[i])
    removed = removed + 1
  end
end
return removed
`

// promoteScript moves seats from lock-based to permanent exclusivity:
// drops the holder's locks and records the seats in the booked mirror
// set. A lock re-acquired by someone else (after premature TTL loss) is
// left alone; the mirror entry alone blocks their confirm.
// KEYS[1] booked mirror set, KEYS[2..] lock keys, ARGV[1] holder,
// ARGV[2..] seat labels.
const promoteScript = `
local holder = ARGV[1]
for i = 2, #KEYS do
  if redis.call("GET", KEYS[i]) == holder then
    redis.call("DEL", KEYS[i])
  end
  redis.call("SADD", KEYS[1], ARGV[i])
end
return 1
`

// Acquire atomically locks every seat in seats for holderKey, or none of
// them. Returns the lock expiry instant on success.
func (s *SeatLockManager) Acquire(ctx context.Context, tripID string, seats []string, holderKey string, ttl time.Duration) (time.Time, error) {
	keys := make([]string, 0, len(seats)+1)
	keys = append(keys, BookedKey(tripID))
	args := []interface{}{holderKey, ttl.Milliseconds()}
	for _, seat := range seats {
		keys = append(keys, LockKey(tripID, seat))
		args = append(args, seat)
	}

	expiry := time.Now().Add(ttl)
	conflicts, err := s.Redis.Eval(ctx, acquireScript, keys, args...).StringSlice()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: acquire seat locks: %v", status.ErrStoreUnavailable, err)
	}

	if len(conflicts) > 0 {
		return time.Time{}, conflictError(conflicts)
	}

	slog.Info("seat locks acquired", "trip", tripID, "seats", seats, "holder", holderKey)
	s.notify(ctx, tripID, seats, "hold")
	return expiry, nil
}

// Extend refreshes the expiry of every seat lock, failing atomically when
// any of them is no longer owned by holderKey.
func (s *SeatLockManager) Extend(ctx context.Context, tripID string, seats []string, holderKey string, ttl time.Duration) (time.Time, error) {
	keys := make([]string, len(seats))
	for i, seat := range seats {
		keys[i] = LockKey(tripID, seat)
	}

	expiry := time.Now().Add(ttl)
	ok, err := s.Redis.Eval(ctx, extendScript, keys, holderKey, ttl.Milliseconds()).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: extend seat locks: %v", status.ErrStoreUnavailable, err)
	}
	if ok != 1 {
		return time.Time{}, status.ErrNotHolder
	}

	s.notify(ctx, tripID, seats, "extend")
	return expiry, nil
}

// Release deletes the holder's locks. Locks already expired or owned by
// someone else are skipped, so repeated calls are safe.
func (s *SeatLockManager) Release(ctx context.Context, tripID string, seats []string, holderKey string) error {
	keys := make([]string, len(seats))
	for i, seat := range seats {
		keys[i] = LockKey(tripID, seat)
	}

	if _, err := s.Redis.Eval(ctx, releaseScript, keys, holderKey).Int64(); err != nil {
		return fmt.Errorf("%w: release seat locks: %v", status.ErrStoreUnavailable, err)
	}

	s.notify(ctx, tripID, seats, "release")
	return nil
}

// Promote is called inside the confirm transition after the seats are
// durably recorded in Trip Inventory. It drops the short-lived locks and
// mirrors the seats into the persistent booked set.
func (s *SeatLockManager) Promote(ctx context.Context, tripID string, seats []string, holderKey string) error {
	keys := make([]string, 0, len(seats)+1)
	keys = append(keys, BookedKey(tripID))
	args := []interface{}{holderKey}
	for _, seat := range seats {
		keys = append(keys, LockKey(tripID, seat))
		args = append(args, seat)
	}

	if _, err := s.Redis.Eval(ctx, promoteScript, keys, args...).Int64(); err != nil {
		return fmt.Errorf("%w: promote seat locks: %v", status.ErrStoreUnavailable, err)
	}

	slog.Info("seat locks promoted", "trip", tripID, "seats", seats)
	s.notify(ctx, tripID, seats, "confirm")
	return nil
}

// Unbook removes seats from the booked mirror set after a confirmed
// booking is cancelled.
func (s *SeatLockManager) Unbook(ctx context.Context, tripID string, seats []string) error {
	members := make([]interface{}, len(seats))
	for i, seat := range seats {
		members[i] = seat
	}

	if err := s.Redis.SRem(ctx, BookedKey(tripID), members...).Err(); err != nil {
		return fmt.Errorf("%w: unbook seats: %v", status.ErrStoreUnavailable, err)
	}
	return nil
}

// HeldSeats returns, for the given labels, which ones currently carry a
// live lock. A single MGET keeps the read consistent enough for display.
func (s *SeatLockManager) HeldSeats(ctx context.Context, tripID string, labels []string) (map[string]string, error) {
	keys := make([]string, len(labels))
	for i, label := range labels {
		keys[i] = LockKey(tripID, label)
	}

	values, err := s.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read seat locks: %v", status.ErrStoreUnavailable, err)
	}

	held := make(map[string]string)
	for i, v := range values {
		if owner, ok := v.(string); ok && owner != "" {
			held[labels[i]] = owner
		}
	}
	return held, nil
}

func (s *SeatLockManager) notify(ctx context.Context, tripID string, seats []string, action string) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, tripID, seats, action)
	}
}

func conflictError(conflicts []string) *status.SeatConflictError {
	conflict := &status.SeatConflictError{}
	for _, c := range conflicts {
		switch {
		case len(c) > 5 && c[:5] == "held:":
			conflict.Held = append(conflict.Held, c[5:])
		case len(c) > 7 && c[:7] == "booked:":
			conflict.Booked = append(conflict.Booked, c[7:])
		}
	}
	return conflict
}
