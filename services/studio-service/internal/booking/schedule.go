package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/availability"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/timeofday"
)

type View string

const (
	ViewClient  View = "client"
	ViewTrainer View = "trainer"
)

// Slots is a trainer's bookable day. Grid is filled for the client view and
// QuickPick for the trainer view.
type Slots struct {
	TrainerID string
	Date      string
	View      View
	Grid      []availability.SlotWithAvailability
	QuickPick []string
}

// Slots expands the trainer's weekly windows for date, minus exclusions and
// active bookings.
func (s *Service) Slots(ctx context.Context, trainerID, date string, view View) (Slots, error) {
	const op = "booking.Slots"

	day, err := time.ParseInLocation(model.DateLayout, date, s.loc)
	if err != nil {
		return Slots{}, reject(op, KindInvalidInput, "date must be YYYY-MM-DD")
	}
	if view == "" {
		view = ViewClient
	}
	if view != ViewClient && view != ViewTrainer {
		return Slots{}, reject(op, KindInvalidInput, "view must be client or trainer")
	}

	windows, err := s.store.ListWeeklyAvailability(ctx, trainerID)
	if err != nil {
		return Slots{}, persistence(op, err)
	}
	unavailable, err := s.store.ListUnavailable(ctx, trainerID, date)
	if err != nil {
		return Slots{}, persistence(op, err)
	}
	booked, err := s.store.ListSessions(ctx, model.RoleTrainer, trainerID, date)
	if err != nil {
		return Slots{}, persistence(op, err)
	}

	out := Slots{TrainerID: trainerID, Date: date, View: view}
	if view == ViewTrainer {
		out.QuickPick, err = availability.TrainerQuickPick(windows, unavailable, booked, day, s.now(), s.loc)
	} else {
		out.Grid, err = availability.ClientGrid(windows, unavailable, booked, day)
	}
	if err != nil {
		return Slots{}, persistence(op, err)
	}
	return out, nil
}

func (s *Service) WeeklyAvailability(ctx context.Context, trainerID string) ([]model.WeeklyWindow, error) {
	const op = "booking.WeeklyAvailability"

	windows, err := s.store.ListWeeklyAvailability(ctx, trainerID)
	if err != nil {
		return nil, persistence(op, err)
	}
	return windows, nil
}

// ReplaceWeeklyAvailability swaps the trainer's whole weekly schedule for
// windows in one transaction.
func (s *Service) ReplaceWeeklyAvailability(ctx context.Context, caller Caller, trainerID string, windows []model.WeeklyWindow) ([]model.WeeklyWindow, error) {
	const op = "booking.ReplaceWeeklyAvailability"

	if err := authorizeTrainer(op, caller, trainerID); err != nil {
		return nil, err
	}
	out := make([]model.WeeklyWindow, 0, len(windows))
	for i, w := range windows {
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			return nil, reject(op, KindInvalidInput, "window %d: weekday must be 0-6", i)
		}
		iv, err := timeofday.ParseInterval(w.StartTime, w.EndTime)
		if err != nil {
			e := timeError(op, err).(*Error)
			e.Msg = fmt.Sprintf("window %d: %s", i, e.Msg)
			return nil, e
		}
		out = append(out, model.WeeklyWindow{
			TrainerID: trainerID,
			Weekday:   w.Weekday,
			StartTime: timeofday.Format(iv.Start),
			EndTime:   timeofday.Format(iv.End),
		})
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ReplaceWeeklyAvailability(ctx, trainerID, out); err != nil {
			return persistence(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "weekly availability replaced", "trainer_id", trainerID, "windows", len(out))
	return out, nil
}

func (s *Service) ListUnavailable(ctx context.Context, trainerID, date string) ([]model.UnavailableSlot, error) {
	const op = "booking.ListUnavailable"

	if date != "" {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return nil, reject(op, KindInvalidInput, "date must be YYYY-MM-DD")
		}
	}
	slots, err := s.store.ListUnavailable(ctx, trainerID, date)
	if err != nil {
		return nil, persistence(op, err)
	}
	return slots, nil
}

// CreateUnavailable blocks part of one date. Sessions already booked inside
// the block are left alone.
func (s *Service) CreateUnavailable(ctx context.Context, caller Caller, u model.UnavailableSlot) (model.UnavailableSlot, error) {
	const op = "booking.CreateUnavailable"

	if err := authorizeTrainer(op, caller, u.TrainerID); err != nil {
		return model.UnavailableSlot{}, err
	}
	if _, err := time.Parse(model.DateLayout, u.Date); err != nil {
		return model.UnavailableSlot{}, reject(op, KindInvalidInput, "date must be YYYY-MM-DD")
	}
	iv, err := timeofday.ParseInterval(u.StartTime, u.EndTime)
	if err != nil {
		return model.UnavailableSlot{}, timeError(op, err)
	}
	u.StartTime, u.EndTime = timeofday.Format(iv.Start), timeofday.Format(iv.End)

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateUnavailable(ctx, &u); err != nil {
			return persistence(op, err)
		}
		return nil
	})
	if err != nil {
		return model.UnavailableSlot{}, err
	}
	return u, nil
}

func (s *Service) DeleteUnavailable(ctx context.Context, caller Caller, trainerID, id string) error {
	const op = "booking.DeleteUnavailable"

	if err := authorizeTrainer(op, caller, trainerID); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUnavailable(ctx, id)
		if err != nil {
			return storeError(op, err)
		}
		if u.TrainerID != trainerID {
			return reject(op, KindNotFound, "unavailable slot not found")
		}
		if err := tx.DeleteUnavailable(ctx, id); err != nil {
			return storeError(op, err)
		}
		return nil
	})
}

// GetSession returns a session visible to caller.
func (s *Service) GetSession(ctx context.Context, caller Caller, id string) (model.Session, error) {
	const op = "booking.GetSession"

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, sessionError(op, err)
	}
	if err := authorizeParty(op, caller, sess); err != nil {
		if errors.Is(err, ErrForbidden) {
			return model.Session{}, reject(op, KindSessionNotFound, "session not found")
		}
		return model.Session{}, err
	}
	return sess, nil
}

// ListSessions returns the sessions of the caller on date, or of personID
// when the caller is an admin.
func (s *Service) ListSessions(ctx context.Context, caller Caller, role model.Role, personID, date string) ([]model.Session, error) {
	const op = "booking.ListSessions"

	if role != model.RoleClient && role != model.RoleTrainer {
		return nil, reject(op, KindInvalidInput, "role must be client or trainer")
	}
	if caller.Role != model.RoleAdmin && (caller.Role != role || caller.UserID != personID) {
		return nil, reject(op, KindForbidden, "cannot list another person's sessions")
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, reject(op, KindInvalidInput, "date must be YYYY-MM-DD")
	}
	sessions, err := s.store.ListSessions(ctx, role, personID, date)
	if err != nil {
		return nil, persistence(op, err)
	}
	return sessions, nil
}

func authorizeTrainer(op string, caller Caller, trainerID string) error {
	if trainerID == "" {
		return reject(op, KindInvalidInput, "trainer is required")
	}
	if caller.Role == model.RoleAdmin || (caller.Role == model.RoleTrainer && caller.UserID == trainerID) {
		return nil
	}
	return reject(op, KindForbidden, "only the trainer can change this schedule")
}
