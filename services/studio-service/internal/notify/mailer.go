package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// EmailHandler returns a consumer handler that mails every session event to
// the studio inbox. Undecodable messages are logged and dropped.
func EmailHandler(sender Sender, inbox string, logger *slog.Logger) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev SessionEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.ErrorContext(ctx, "invalid session event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if ev.SessionID == "" {
			logger.ErrorContext(ctx, "session event without session id", "topic", msg.Topic)
			return nil
		}
		subject, body, ok := compose(msg.Topic, ev)
		if !ok {
			logger.WarnContext(ctx, "unsupported topic", "topic", msg.Topic)
			return nil
		}
		if err := sender.Send(inbox, subject, body); err != nil {
			return fmt.Errorf("send %s email: %w", msg.Topic, err)
		}
		logger.InfoContext(ctx, "session email sent", "session_id", ev.SessionID, "topic", msg.Topic)
		return nil
	}
}

func compose(topic string, ev SessionEvent) (string, string, bool) {
	when := fmt.Sprintf("%s %s-%s", ev.Slot.Date, ev.Slot.StartTime, ev.Slot.EndTime)
	who := fmt.Sprintf("client %s with trainer %s", ev.ClientID, ev.TrainerID)
	switch topic {
	case TopicSessionBooked:
		return "Session booked: " + when,
			fmt.Sprintf("%s booked for %s on %s.", ev.Type, who, when), true
	case TopicSessionRescheduled:
		from := "an earlier slot"
		if ev.Previous != nil {
			from = fmt.Sprintf("%s %s-%s", ev.Previous.Date, ev.Previous.StartTime, ev.Previous.EndTime)
		}
		return "Session rescheduled: " + when,
			fmt.Sprintf("%s for %s moved from %s to %s.", ev.Type, who, from, when), true
	case TopicSessionCancelled:
		return "Session cancelled: " + when,
			fmt.Sprintf("%s for %s on %s was cancelled.", ev.Type, who, when), true
	}
	return "", "", false
}
