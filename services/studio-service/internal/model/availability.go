package model

import "time"

// WeeklyWindow is a recurring block during which a trainer accepts sessions.
type WeeklyWindow struct {
	TrainerID string
	Weekday   time.Weekday
	StartTime string
	EndTime   string
}

// UnavailableSlot is a one-off exclusion carved out of the weekly windows for one date.
type UnavailableSlot struct {
	ID        string
	TrainerID string
	Date      string
	StartTime string
	EndTime   string
	Reason    string
	CreatedAt time.Time
}
