package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trip-booking/config"
	"trip-booking/handlers"
	"trip-booking/monitoring"
	"trip-booking/security"
	"trip-booking/services"
	"trip-booking/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"

	_ "trip-booking/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	monitor := monitoring.NewMonitor(redisClient)
	locks := services.NewSeatLockManager(redisClient)
	inventory := services.NewInventoryService(app, locks)
	broadcaster := services.NewBroadcaster(redisClient, pn, inventory, monitor)
	locks.SetNotifier(broadcaster)
	events := services.NewEventPublisher(pn)
	bookingService := services.NewBookingService(app, locks, inventory, broadcaster, events, monitor, cfg)
	sweeper := services.NewSweeper(app, locks, monitor, cfg.SweepInterval)
	paymentListener := services.NewPaymentListener(pn, bookingService)

	holdLimiter := security.NewRateLimiter(redisClient, cfg.HoldRateLimit, cfg.HoldRateWindow)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(app, bookingService)
	seatHandler := handlers.NewSeatHandler(app, inventory, broadcaster)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	sweeper.Start()
	go paymentListener.Run(ctx)

	// Setup graceful shutdown
	go handleShutdown(cancel, sweeper, broadcaster)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncBookedSeatsToRedis(app, inventory)

		// Booking lifecycle
		e.Router.POST("/api/v1/bookings/hold", holdLimiter.Wrap(bookingHandler.Hold))
		e.Router.POST("/api/v1/bookings/{bookingId}/extend", bookingHandler.Extend)
		e.Router.DELETE("/api/v1/bookings/{bookingId}/hold", bookingHandler.Release)
		e.Router.POST("/api/v1/bookings/{bookingId}/confirm", bookingHandler.Confirm)
		e.Router.POST("/api/v1/bookings/{bookingId}/cancel", bookingHandler.Cancel)
		e.Router.POST("/api/v1/bookings/{bookingId}/complete", bookingHandler.Complete)
		e.Router.GET("/api/v1/bookings/code/{code}", bookingHandler.ByCode)
		e.Router.GET("/api/v1/bookings/history", bookingHandler.History)

		// Seat map
		e.Router.GET("/api/v1/trips/{tripId}/seat-status", seatHandler.SeatStatus)
		e.Router.POST("/api/v1/trips/{tripId}/watch", seatHandler.Watch)
		e.Router.DELETE("/api/v1/trips/{tripId}/watch", seatHandler.Unwatch)

		// Prometheus metrics
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// syncBookedSeatsToRedis rebuilds the booked seat mirror for every trip
// that can still take bookings. The document store is the durable source,
// the mirror only has to match it at startup.
func syncBookedSeatsToRedis(app *pocketbase.PocketBase, inventory *services.InventoryService) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT id FROM trips WHERE status IN ('scheduled', 'ongoing')",
	).All(&records); err != nil {
		log.Printf("Error fetching active trips: %v", err)
		return
	}

	synced := 0
	for _, record := range records {
		tripID := record["id"].String
		if tripID == "" {
			continue
		}
		if err := inventory.SyncBookedMirror(ctx, tripID); err != nil {
			slog.Error("booked mirror sync failed", "tripID", tripID, "error", err)
			continue
		}
		synced++
	}
	log.Printf("Synced booked seat mirrors for %d active trips", synced)
}

func handleShutdown(cancel context.CancelFunc, sweeper *services.Sweeper, broadcaster *services.Broadcaster) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	cancel()
	sweeper.Shutdown()
	broadcaster.Shutdown()
}
