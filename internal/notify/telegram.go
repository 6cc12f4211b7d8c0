package notify

import (
	"encoding/json"
	"fmt"

	"p5glab/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the Telegram API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards booking events to the lab managers' chats.
// Delivery is best effort; a failed send only logs.
type TelegramNotifier struct {
	bot      Sender
	managers []int64
	logger   *zerolog.Logger
}

func NewTelegramNotifier(bot Sender, managers []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, managers: managers, logger: logger}
}

// Register subscribes the notifier to booking events on the bus.
func (n *TelegramNotifier) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingCreated, n.handle)
	bus.Subscribe(events.EventBookingCancelled, n.handle)
	bus.Subscribe(events.EventBookingActivated, n.handle)
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		n.logger.Error().Err(err).Str("event_type", event.Type).Msg("decode event payload")
		return nil
	}

	text := formatMessage(event.Type, payload)
	if text == "" {
		return nil
	}

	for _, chatID := range n.managers {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send notification")
		}
	}
	return nil
}

func formatMessage(eventType string, p events.BookingEventPayload) string {
	exp := p.ExpName
	if exp == "" {
		exp = p.ExpKey
	}
	window := fmt.Sprintf("%s %s-%s",
		p.StartTime.Format("2006-01-02"),
		p.StartTime.Format("15:04"),
		p.EndTime.Format("15:04"))

	switch eventType {
	case events.EventBookingCreated:
		return fmt.Sprintf("New booking #%d: %s booked %s for %s", p.BookingID, p.Username, exp, window)
	case events.EventBookingCancelled:
		return fmt.Sprintf("Booking #%d cancelled: %s freed %s (%s)", p.BookingID, p.Username, exp, window)
	case events.EventBookingActivated:
		return fmt.Sprintf("Restart triggered on %s by %s (booking #%d)", exp, p.Username, p.BookingID)
	default:
		return ""
	}
}
