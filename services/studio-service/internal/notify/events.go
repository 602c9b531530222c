package notify

import "github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"

// Kafka topics. The outbox publisher uses the event type as the topic.
const (
	TopicSessionBooked      = "studio.session.booked.v1"
	TopicSessionRescheduled = "studio.session.rescheduled.v1"
	TopicSessionCancelled   = "studio.session.cancelled.v1"
)

// Topics lists every topic the email handler consumes.
var Topics = []string{TopicSessionBooked, TopicSessionRescheduled, TopicSessionCancelled}

type slotPayload struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SessionEvent is the JSON payload of every session topic.
type SessionEvent struct {
	SessionID  string       `json:"session_id"`
	ClientID   string       `json:"client_id"`
	TrainerID  string       `json:"trainer_id"`
	PackageID  string       `json:"package_id,omitempty"`
	Type       string       `json:"type"`
	Status     string       `json:"status"`
	Slot       slotPayload  `json:"slot"`
	Previous   *slotPayload `json:"previous,omitempty"`
	OccurredAt string       `json:"occurred_at"`
}

func toSlot(s model.Slot) slotPayload {
	return slotPayload{Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime}
}
