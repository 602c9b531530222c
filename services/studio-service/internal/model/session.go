package model

import "time"

// DateLayout is the calendar-date format used for session and exclusion dates.
const DateLayout = "2006-01-02"

type Role string

const (
	RoleClient  Role = "client"
	RoleTrainer Role = "trainer"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleTrainer, RoleAdmin:
		return true
	}
	return false
}

type SessionType string

const (
	SessionPersonal SessionType = "Personal Training"
	SessionPartner  SessionType = "Partner Training"
	SessionVirtual  SessionType = "Virtual Training"
	SessionGroup    SessionType = "Group Training"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionPersonal, SessionPartner, SessionVirtual, SessionGroup:
		return true
	}
	return false
}

type SessionStatus string

const (
	StatusConfirmed SessionStatus = "confirmed"
	StatusPending   SessionStatus = "pending"
	StatusCancelled SessionStatus = "cancelled"
)

// ActiveStatuses are the statuses that occupy a time slot.
var ActiveStatuses = []SessionStatus{StatusConfirmed, StatusPending}

func (s SessionStatus) Active() bool {
	return s == StatusConfirmed || s == StatusPending
}

type RescheduleStatus string

const (
	RescheduleNone     RescheduleStatus = "none"
	ReschedulePending  RescheduleStatus = "pending"
	RescheduleApproved RescheduleStatus = "approved"
	RescheduleDenied   RescheduleStatus = "denied"
)

// Slot is a date plus a start/end wall-clock time ("HH:MM").
type Slot struct {
	Date      string
	StartTime string
	EndTime   string
}

type Session struct {
	ID               string
	ClientID         string
	TrainerID        string
	PackageID        string
	Date             string
	StartTime        string
	EndTime          string
	Type             SessionType
	Status           SessionStatus
	RescheduleStatus RescheduleStatus
	Proposed         *Slot
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s Session) Slot() Slot {
	return Slot{Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime}
}

// PersonID returns the id of the party playing role in this session.
func (s Session) PersonID(role Role) string {
	if role == RoleTrainer {
		return s.TrainerID
	}
	return s.ClientID
}

// CalendarEvent is what gets pushed to a participant's external calendar.
type CalendarEvent struct {
	SessionID string
	Title     string
	Date      string
	StartTime string
	EndTime   string
	Timezone  string
	Cancelled bool
}
