package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Booking lifecycle operations by outcome",
		},
		[]string{"operation", "status"},
	)

	liveSeatLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_seat_locks_total",
			Help: "Current number of live seat locks across all trips",
		},
	)

	lockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seat_lock_operation_duration_seconds",
			Help:    "Duration of seat lock store operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_map_broadcasts_total",
			Help: "Seat map publishes by action and outcome",
		},
		[]string{"action", "status"},
	)

	sweptBookings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swept_bookings_total",
			Help: "Pending bookings reconciled by the expiry sweeper",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m.collectLockMetrics(ctx)
		cancel()
	}
}

func (m *Monitor) collectLockMetrics(ctx context.Context) {
	keys, err := m.redis.Keys(ctx, "seatlock:*").Result()
	if err != nil {
		return
	}
	liveSeatLocks.Set(float64(len(keys)))
}

// TrackBookingOperation records a lifecycle operation outcome.
func (m *Monitor) TrackBookingOperation(operation, status string) {
	bookingOperations.WithLabelValues(operation, status).Inc()
}

// TrackLockDuration records how long a lock store operation took.
func (m *Monitor) TrackLockDuration(operation string, duration time.Duration) {
	lockOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TrackBroadcast records a seat map publish outcome.
func (m *Monitor) TrackBroadcast(action, status string) {
	broadcasts.WithLabelValues(action, status).Inc()
}

// TrackSwept records bookings reconciled by one sweep cycle.
func (m *Monitor) TrackSwept(count int) {
	sweptBookings.Add(float64(count))
}
