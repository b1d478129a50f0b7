package services

import (
	"context"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"

	"trip-booking/models"
	"trip-booking/utils"
)

// bookingEventsChannel carries post-commit lifecycle events for the
// ticket-issuance and notification collaborators. Their failure never
// rolls back a committed transition.
const bookingEventsChannel = "booking-events"

type EventPublisher struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewEventPublisher(pn *pubnub.PubNub) *EventPublisher {
	return &EventPublisher{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("booking-events"),
	}
}

// BookingConfirmed announces a committed confirmation.
func (p *EventPublisher) BookingConfirmed(booking *models.Booking) {
	p.publish(models.BookingEvent{
		Type:       "booking.confirmed",
		BookingID:  booking.ID,
		Code:       booking.Code,
		TripID:     booking.TripID,
		Seats:      booking.Seats,
		PaymentRef: booking.PaymentRef,
		Timestamp:  time.Now().UnixMilli(),
	})
}

// BookingCancelled announces a committed cancellation.
func (p *EventPublisher) BookingCancelled(booking *models.Booking) {
	p.publish(models.BookingEvent{
		Type:      "booking.cancelled",
		BookingID: booking.ID,
		Code:      booking.Code,
		TripID:    booking.TripID,
		Seats:     booking.Seats,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (p *EventPublisher) publish(event models.BookingEvent) {
	if p.pubnub == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := p.breaker.Execute(ctx, func() (interface{}, error) {
			_, _, err := p.pubnub.Publish().
				Channel(bookingEventsChannel).
				Message(event).
				Execute()
			return nil, err
		})
		if err != nil {
			slog.Error("booking event publish failed", "type", event.Type, "booking", event.BookingID, "error", err)
		}
	}()
}
