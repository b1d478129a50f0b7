package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"trip-booking/status"
)

// paymentEventsChannel is where the payment collaborator posts gateway
// outcomes after verifying their authenticity. Callbacks may repeat;
// Confirm absorbs duplicates.
const paymentEventsChannel = "payment-events"

// PaymentListener feeds verified payment results into the booking state
// machine.
type PaymentListener struct {
	pubnub   *pubnub.PubNub
	bookings *BookingService
	listener *pubnub.Listener
}

func NewPaymentListener(pn *pubnub.PubNub, bookings *BookingService) *PaymentListener {
	return &PaymentListener{
		pubnub:   pn,
		bookings: bookings,
		listener: pubnub.NewListener(),
	}
}

type paymentNotification struct {
	BookingID  string `json:"booking_id"`
	PaymentRef string `json:"payment_ref"`
	Status     string `json:"status"`
}

// Run subscribes to the payment channel and processes notifications until
// the context is cancelled.
func (l *PaymentListener) Run(ctx context.Context) {
	l.pubnub.AddListener(l.listener)
	l.pubnub.Subscribe().
		Channels([]string{paymentEventsChannel}).
		Execute()

	log.Println("Payment listener started")

	for {
		select {
		case pnStatus := <-l.listener.Status:
			switch pnStatus.Category {
			case pubnub.PNConnectedCategory:
				log.Println("payment listener connected to pubnub")
			case pubnub.PNReconnectedCategory:
				log.Println("payment listener reconnected to pubnub")
			case pubnub.PNDisconnectedCategory:
				log.Println("payment listener disconnected from pubnub")
			}

		case message := <-l.listener.Message:
			l.handle(ctx, message)

		case <-ctx.Done():
			l.pubnub.Unsubscribe().
				Channels([]string{paymentEventsChannel}).
				Execute()
			log.Println("Payment listener stopped")
			return
		}
	}
}

func (l *PaymentListener) handle(ctx context.Context, message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]interface{})
	if !ok {
		return
	}

	jsonData, _ := json.Marshal(data)
	var notification paymentNotification
	if err := json.Unmarshal(jsonData, &notification); err != nil {
		slog.Error("parse payment notification", "error", err)
		return
	}

	if notification.Status != "success" || notification.BookingID == "" {
		return
	}

	_, err := l.bookings.Confirm(ctx, notification.BookingID, notification.PaymentRef)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrHoldExpired):
		slog.Warn("payment arrived after hold expiry", "booking", notification.BookingID, "payment_ref", notification.PaymentRef)
	default:
		slog.Error("confirm from payment notification failed", "booking", notification.BookingID, "error", err)
	}
}
