package conflict

import (
	"fmt"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/timeofday"
)

// Proposal is a session interval being checked on behalf of one party.
type Proposal struct {
	PersonID string
	Role     model.Role
	Date     string
	Interval timeofday.Interval
}

// Conflict names the existing session a proposal collides with.
type Conflict struct {
	Role      model.Role
	PersonID  string
	SessionID string
	StartTime string
	EndTime   string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s already has session %s at %s-%s", c.Role, c.PersonID, c.SessionID, c.StartTime, c.EndTime)
}

// Detect returns the first active session in existing that belongs to the
// proposal's party on the same date and overlaps its interval. The session
// with id excludeID is skipped so a session never conflicts with itself when
// it is being moved.
func Detect(p Proposal, existing []model.Session, excludeID string) (*Conflict, error) {
	for _, s := range existing {
		if !s.Status.Active() || s.Date != p.Date || s.PersonID(p.Role) != p.PersonID {
			continue
		}
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		iv, err := timeofday.ParseInterval(s.StartTime, s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID, err)
		}
		if iv.Overlaps(p.Interval) {
			return &Conflict{
				Role:      p.Role,
				PersonID:  p.PersonID,
				SessionID: s.ID,
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
			}, nil
		}
	}
	return nil, nil
}
