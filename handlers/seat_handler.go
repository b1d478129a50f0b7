package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"trip-booking/services"
)

type SeatHandler struct {
	app         *pocketbase.PocketBase
	inventory   *services.InventoryService
	broadcaster *services.Broadcaster
}

func NewSeatHandler(app *pocketbase.PocketBase, inventory *services.InventoryService, broadcaster *services.Broadcaster) *SeatHandler {
	return &SeatHandler{
		app:         app,
		inventory:   inventory,
		broadcaster: broadcaster,
	}
}

// SeatStatus - point-in-time seat map for a trip. Clients use this for
// the initial render and then follow the per-trip channel for deltas.
func (h *SeatHandler) SeatStatus(e *core.RequestEvent) error {
	tripID := e.Request.PathValue("tripId")

	trip, err := h.inventory.TripByID(e.Request.Context(), tripID)
	if err != nil {
		return toAPIError(err)
	}

	seats, err := h.inventory.SeatStates(e.Request.Context(), trip)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"trip_id":         trip.ID,
		"trip_status":     trip.Status,
		"total_seats":     trip.TotalSeats,
		"available_seats": trip.AvailableSeats(),
		"seats":           seats,
	})
}

// Watch - register interest in a trip's seat map and hand back the
// snapshot plus the channel to follow
func (h *SeatHandler) Watch(e *core.RequestEvent) error {
	tripID := e.Request.PathValue("tripId")

	var req struct {
		ConnectionID string `json:"connection_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ConnectionID == "" {
		return apis.NewBadRequestError("connection_id is required", nil)
	}

	snapshot, err := h.broadcaster.Subscribe(e.Request.Context(), tripID, req.ConnectionID)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"channel":  services.TripChannel(tripID),
		"snapshot": snapshot,
	})
}

// Unwatch - drop a watcher registration
func (h *SeatHandler) Unwatch(e *core.RequestEvent) error {
	tripID := e.Request.PathValue("tripId")

	connectionID := e.Request.URL.Query().Get("connection_id")
	if connectionID == "" {
		return apis.NewBadRequestError("connection_id is required", nil)
	}

	if err := h.broadcaster.Unsubscribe(e.Request.Context(), tripID, connectionID); err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"unwatched": true})
}
