package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/timeofday"
)

const (
	// SessionMinutes is the only session length the studio books.
	SessionMinutes = 60
	// StepMinutes is the granularity of candidate start times.
	StepMinutes = 30
)

// Reason explains why a grid step is not bookable.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonWindowEnd   Reason = "window_end"
	ReasonUnavailable Reason = "unavailable"
	ReasonBooked      Reason = "booked"
)

// SlotCandidate is a legitimate session start: a 60-minute session beginning
// here fits entirely inside one weekly window.
type SlotCandidate struct {
	StartTime string
	EndTime   string
}

// SlotWithAvailability is one step of the dense client grid.
type SlotWithAvailability struct {
	StartTime string
	EndTime   string
	Available bool
	Reason    Reason
}

// Candidates returns the distinct session starts for day, ascending.
// A day with no weekly windows yields an empty result.
func Candidates(windows []model.WeeklyWindow, day time.Time) ([]SlotCandidate, error) {
	wins, err := windowsFor(windows, day.Weekday())
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	for _, w := range wins {
		for t := w.Start; t+SessionMinutes <= w.End; t += StepMinutes {
			seen[t] = struct{}{}
		}
	}

	starts := make([]int, 0, len(seen))
	for t := range seen {
		starts = append(starts, t)
	}
	sort.Ints(starts)

	out := make([]SlotCandidate, 0, len(starts))
	for _, t := range starts {
		out = append(out, SlotCandidate{
			StartTime: timeofday.Format(t),
			EndTime:   timeofday.Format(t + SessionMinutes),
		})
	}
	return out, nil
}

// ClientGrid returns every 30-minute step across the day's windows so a UI can
// render a dense grid. Each cell covers [step, step+30). A cell is unavailable
// when a session starting there would run past the window end, or when the
// cell itself overlaps an exclusion or an active booking.
func ClientGrid(windows []model.WeeklyWindow, unavailable []model.UnavailableSlot, booked []model.Session, day time.Time) ([]SlotWithAvailability, error) {
	wins, err := windowsFor(windows, day.Weekday())
	if err != nil {
		return nil, err
	}
	blocked, busy, err := busyIntervals(unavailable, booked, day)
	if err != nil {
		return nil, err
	}

	// A start that fits in any window is a candidate, even if another window
	// on the same weekday ends too early for it.
	fits := make(map[int]bool)
	for _, w := range wins {
		for t := w.Start; t < w.End; t += StepMinutes {
			fits[t] = fits[t] || t+SessionMinutes <= w.End
		}
	}

	steps := make([]int, 0, len(fits))
	for t := range fits {
		steps = append(steps, t)
	}
	sort.Ints(steps)

	out := make([]SlotWithAvailability, 0, len(steps))
	for _, t := range steps {
		cell := timeofday.Interval{Start: t, End: t + StepMinutes}
		slot := SlotWithAvailability{
			StartTime: timeofday.Format(cell.Start),
			EndTime:   formatEnd(cell.End),
			Available: true,
		}
		switch {
		case !fits[t]:
			slot.Available, slot.Reason = false, ReasonWindowEnd
		case overlapsAny(cell, blocked):
			slot.Available, slot.Reason = false, ReasonUnavailable
		case overlapsAny(cell, busy):
			slot.Available, slot.Reason = false, ReasonBooked
		}
		out = append(out, slot)
	}
	return out, nil
}

// TrainerQuickPick returns the starts whose whole 60-minute session is free of
// exclusions and active bookings. When day is today in loc, starts at or
// before now are dropped.
func TrainerQuickPick(windows []model.WeeklyWindow, unavailable []model.UnavailableSlot, booked []model.Session, day, now time.Time, loc *time.Location) ([]string, error) {
	candidates, err := Candidates(windows, day)
	if err != nil {
		return nil, err
	}
	blocked, busy, err := busyIntervals(unavailable, booked, day)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	localNow := now.In(loc)
	cutoff := -1
	if localNow.Format(model.DateLayout) == day.Format(model.DateLayout) {
		cutoff = localNow.Hour()*60 + localNow.Minute()
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		session, err := timeofday.ParseInterval(c.StartTime, c.EndTime)
		if err != nil {
			return nil, err
		}
		if session.Start <= cutoff || overlapsAny(session, blocked) || overlapsAny(session, busy) {
			continue
		}
		out = append(out, c.StartTime)
	}
	return out, nil
}

// IsLegitimateStart reports whether session is exactly one 60-minute session
// starting on a candidate step for day.
func IsLegitimateStart(windows []model.WeeklyWindow, day time.Time, session timeofday.Interval) (bool, error) {
	if session.Duration() != SessionMinutes {
		return false, nil
	}
	wins, err := windowsFor(windows, day.Weekday())
	if err != nil {
		return false, err
	}
	for _, w := range wins {
		if !w.Contains(session) {
			continue
		}
		if (session.Start-w.Start)%StepMinutes == 0 {
			return true, nil
		}
	}
	return false, nil
}

// BlockedBy returns the first exclusion for day that overlaps session.
func BlockedBy(unavailable []model.UnavailableSlot, day time.Time, session timeofday.Interval) (model.UnavailableSlot, bool, error) {
	date := day.Format(model.DateLayout)
	for _, u := range unavailable {
		if u.Date != date {
			continue
		}
		iv, err := timeofday.ParseInterval(u.StartTime, u.EndTime)
		if err != nil {
			return model.UnavailableSlot{}, false, fmt.Errorf("unavailable slot %s: %w", u.ID, err)
		}
		if iv.Overlaps(session) {
			return u, true, nil
		}
	}
	return model.UnavailableSlot{}, false, nil
}

func windowsFor(windows []model.WeeklyWindow, weekday time.Weekday) ([]timeofday.Interval, error) {
	var out []timeofday.Interval
	for _, w := range windows {
		if w.Weekday != weekday {
			continue
		}
		iv, err := timeofday.ParseInterval(w.StartTime, w.EndTime)
		if err != nil {
			return nil, fmt.Errorf("weekly window %s %s-%s: %w", w.Weekday, w.StartTime, w.EndTime, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

func busyIntervals(unavailable []model.UnavailableSlot, booked []model.Session, day time.Time) ([]timeofday.Interval, []timeofday.Interval, error) {
	date := day.Format(model.DateLayout)
	blocked, err := exclusionIntervals(unavailable, date)
	if err != nil {
		return nil, nil, err
	}
	busy, err := bookedIntervals(booked, date)
	if err != nil {
		return nil, nil, err
	}
	return blocked, busy, nil
}

func formatEnd(m int) string {
	if m >= timeofday.MinutesPerDay {
		return timeofday.Format(timeofday.MinutesPerDay - 1)
	}
	return timeofday.Format(m)
}

func exclusionIntervals(unavailable []model.UnavailableSlot, date string) ([]timeofday.Interval, error) {
	var out []timeofday.Interval
	for _, u := range unavailable {
		if u.Date != date {
			continue
		}
		iv, err := timeofday.ParseInterval(u.StartTime, u.EndTime)
		if err != nil {
			return nil, fmt.Errorf("unavailable slot %s: %w", u.ID, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

func bookedIntervals(sessions []model.Session, date string) ([]timeofday.Interval, error) {
	var out []timeofday.Interval
	for _, s := range sessions {
		if s.Date != date || !s.Status.Active() {
			continue
		}
		iv, err := timeofday.ParseInterval(s.StartTime, s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

func overlapsAny(session timeofday.Interval, busy []timeofday.Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if session.Overlaps(b) {
			return true
		}
	}
	return false
}
