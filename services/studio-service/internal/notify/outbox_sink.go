package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/outbox"
)

// OutboxSink records session changes as outbox rows once the session write
// has committed. The row is written in its own statement, not in the session
// transaction, so a failure here only loses the notification. The publisher
// relays rows to Kafka.
type OutboxSink struct {
	db    outbox.Execer
	repo  *outbox.Repository
	clock func() time.Time
}

func NewOutboxSink(db outbox.Execer, repo *outbox.Repository) *OutboxSink {
	return &OutboxSink{db: db, repo: repo, clock: time.Now}
}

func (o *OutboxSink) BookingCreated(ctx context.Context, s model.Session) error {
	return o.write(ctx, TopicSessionBooked, s, nil)
}

func (o *OutboxSink) Rescheduled(ctx context.Context, s model.Session, from, to model.Slot) error {
	prev := toSlot(from)
	s.Date, s.StartTime, s.EndTime = to.Date, to.StartTime, to.EndTime
	return o.write(ctx, TopicSessionRescheduled, s, &prev)
}

func (o *OutboxSink) Cancelled(ctx context.Context, s model.Session) error {
	return o.write(ctx, TopicSessionCancelled, s, nil)
}

func (o *OutboxSink) write(ctx context.Context, topic string, s model.Session, prev *slotPayload) error {
	payload, err := json.Marshal(SessionEvent{
		SessionID:  s.ID,
		ClientID:   s.ClientID,
		TrainerID:  s.TrainerID,
		PackageID:  s.PackageID,
		Type:       string(s.Type),
		Status:     string(s.Status),
		Slot:       toSlot(s.Slot()),
		Previous:   prev,
		OccurredAt: o.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = o.repo.Insert(ctx, o.db, outbox.Event{
		AggregateType: "session",
		AggregateID:   s.ID,
		EventType:     topic,
		Payload:       payload,
	})
	return err
}
