package calendar

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

// UpsertEventMethod is the full gRPC method name of the calendar bridge.
// Requests and responses are google.protobuf.Struct messages.
const UpsertEventMethod = "/studio.calendar.v1.CalendarService/UpsertEvent"

var ErrNoEventID = errors.New("calendar: response carried no event_id")

// Client pushes sessions to the calendar bridge, which owns the per-person
// Google or Outlook credentials.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) UpsertEvent(ctx context.Context, personID string, ev model.CalendarEvent) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"person_id":  personID,
		"session_id": ev.SessionID,
		"title":      ev.Title,
		"date":       ev.Date,
		"start_time": ev.StartTime,
		"end_time":   ev.EndTime,
		"timezone":   ev.Timezone,
		"cancelled":  ev.Cancelled,
	})
	if err != nil {
		return "", err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, UpsertEventMethod, req, resp); err != nil {
		return "", fmt.Errorf("calendar upsert for %s: %w", personID, err)
	}
	id := resp.GetFields()["event_id"].GetStringValue()
	if id == "" {
		return "", ErrNoEventID
	}
	return id, nil
}
