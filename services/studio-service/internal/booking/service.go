// Package booking commits session bookings, reschedules and cancellations
// together with the package debit or credit they imply.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/availability"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/conflict"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/entitlements"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/timeofday"
)

const (
	defaultLockTTL           = 10 * time.Second
	defaultSideEffectTimeout = 5 * time.Second
)

// Caller is the authenticated user an operation runs on behalf of.
type Caller struct {
	UserID string
	Role   model.Role
}

// SystemCaller is used for work triggered by trusted integrations such as
// payment webhooks.
var SystemCaller = Caller{UserID: "system", Role: model.RoleAdmin}

type Options struct {
	Locker   Locker
	Notifier Notifier
	Calendar CalendarSync
	// Location is the studio's timezone. Dates and wall-clock times are
	// interpreted in it.
	Location *time.Location
	Clock    func() time.Time
	LockTTL  time.Duration
	// SideEffectTimeout bounds each notification or calendar call made after
	// a commit.
	SideEffectTimeout time.Duration
}

type Service struct {
	store    Store
	log      *slog.Logger
	locker   Locker
	notifier Notifier
	calendar CalendarSync
	loc      *time.Location
	now      func() time.Time
	lockTTL  time.Duration
	sideTTL  time.Duration
	tracer   trace.Tracer
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		log:      logger,
		locker:   opts.Locker,
		notifier: opts.Notifier,
		calendar: opts.Calendar,
		loc:      opts.Location,
		now:      opts.Clock,
		lockTTL:  opts.LockTTL,
		sideTTL:  opts.SideEffectTimeout,
		tracer:   otel.Tracer("booking"),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.sideTTL <= 0 {
		s.sideTTL = defaultSideEffectTimeout
	}
	return s
}

// Result describes a committed change. Warnings collect side effects that
// failed after the commit; they never undo it.
type Result struct {
	Session   model.Session
	Package   *model.Package
	Unchanged bool
	Warnings  []string
}

type BookRequest struct {
	ClientID  string
	TrainerID string
	Type      model.SessionType
	Date      string
	StartTime string
	// EndTime defaults to StartTime plus one session length.
	EndTime string
	// Status defaults to confirmed.
	Status model.SessionStatus
}

// Book validates the slot, checks both parties for overlaps, debits the
// soonest-expiring usable package and creates the session in one
// transaction.
func (s *Service) Book(ctx context.Context, caller Caller, req BookRequest) (Result, error) {
	const op = "booking.Book"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("client.id", req.ClientID),
		attribute.String("trainer.id", req.TrainerID),
		attribute.String("session.date", req.Date),
	))
	defer span.End()

	res, err := s.book(ctx, op, caller, req)
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (s *Service) book(ctx context.Context, op string, caller Caller, req BookRequest) (Result, error) {
	if req.ClientID == "" || req.TrainerID == "" {
		return Result{}, reject(op, KindInvalidInput, "client and trainer are required")
	}
	if !req.Type.Valid() {
		return Result{}, reject(op, KindInvalidInput, "unknown session type %q", req.Type)
	}
	status := req.Status
	if status == "" {
		status = model.StatusConfirmed
	}
	if !status.Active() {
		return Result{}, reject(op, KindInvalidInput, "a new session must be confirmed or pending")
	}
	switch caller.Role {
	case model.RoleAdmin:
	case model.RoleClient:
		if caller.UserID != req.ClientID {
			return Result{}, reject(op, KindForbidden, "clients can only book for themselves")
		}
	case model.RoleTrainer:
		if caller.UserID != req.TrainerID {
			return Result{}, reject(op, KindForbidden, "trainers can only book into their own schedule")
		}
	default:
		return Result{}, reject(op, KindForbidden, "unknown role")
	}

	slot, iv, err := s.validateSlot(ctx, op, req.TrainerID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return Result{}, err
	}

	unlock, err := s.lockSlot(ctx, op, req.TrainerID, slot.Date)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var out Result
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockParties(ctx, req.ClientID, req.TrainerID); err != nil {
			return persistence(op, err)
		}
		if err := s.checkConflicts(ctx, op, tx, req.ClientID, req.TrainerID, slot.Date, iv, ""); err != nil {
			return err
		}

		ledger := entitlements.NewLedger(tx)
		pkg, err := ledger.FindDebitable(ctx, req.ClientID, req.Type, s.now())
		if err != nil {
			return entitlementError(op, req.Type, err)
		}
		pkg, err = ledger.Debit(ctx, pkg.ID)
		if err != nil {
			return entitlementError(op, req.Type, err)
		}

		sess := model.Session{
			ClientID:         req.ClientID,
			TrainerID:        req.TrainerID,
			PackageID:        pkg.ID,
			Date:             slot.Date,
			StartTime:        slot.StartTime,
			EndTime:          slot.EndTime,
			Type:             req.Type,
			Status:           status,
			RescheduleStatus: model.RescheduleNone,
		}
		if err := tx.CreateSession(ctx, &sess); err != nil {
			return storeError(op, err)
		}
		out.Session = sess
		out.Package = &pkg
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.InfoContext(ctx, "session booked",
		"session_id", out.Session.ID,
		"client_id", out.Session.ClientID,
		"trainer_id", out.Session.TrainerID,
		"package_id", out.Package.ID,
		"sessions_used", out.Package.SessionsUsed,
	)
	out.Warnings = s.afterCommit(ctx, out.Session, func(ctx context.Context) error {
		return s.notifier.BookingCreated(ctx, out.Session)
	})
	return out, nil
}

type RescheduleRequest struct {
	SessionID string
	Date      string
	StartTime string
	EndTime   string
}

// Reschedule moves an active session to a new slot. No package is debited.
// Moving a session onto its current slot succeeds with Unchanged set.
func (s *Service) Reschedule(ctx context.Context, caller Caller, req RescheduleRequest) (Result, error) {
	const op = "booking.Reschedule"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	res, err := s.move(ctx, op, caller, req, func(sess *model.Session) error {
		// A direct move supersedes any open request.
		if sess.RescheduleStatus == model.ReschedulePending {
			sess.RescheduleStatus = model.RescheduleNone
			sess.Proposed = nil
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

// move validates and applies a reschedule. prepare runs on the locked session
// row before the move and may reject it or adjust request state.
func (s *Service) move(ctx context.Context, op string, caller Caller, req RescheduleRequest, prepare func(*model.Session) error) (Result, error) {
	current, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return Result{}, sessionError(op, err)
	}
	if err := authorizeParty(op, caller, current); err != nil {
		return Result{}, err
	}
	if !current.Status.Active() {
		return Result{}, reject(op, KindInvalidTransition, "session is %s", current.Status)
	}

	slot, iv, err := s.validateSlot(ctx, op, current.TrainerID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		// A move onto the current slot is a no-op even when that slot has
		// since dropped out of the trainer's availability.
		if sameSlot(current, req) {
			return Result{Session: current, Unchanged: true}, nil
		}
		return Result{}, err
	}

	unlock, err := s.lockSlot(ctx, op, current.TrainerID, slot.Date)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var (
		out  Result
		from model.Slot
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockParties(ctx, current.ClientID, current.TrainerID); err != nil {
			return persistence(op, err)
		}
		sess, err := tx.GetSessionForUpdate(ctx, req.SessionID)
		if err != nil {
			return sessionError(op, err)
		}
		if !sess.Status.Active() {
			return reject(op, KindInvalidTransition, "session is %s", sess.Status)
		}
		if err := prepare(&sess); err != nil {
			return err
		}
		if sess.Slot() == slot && sess.RescheduleStatus == current.RescheduleStatus {
			out = Result{Session: sess, Unchanged: true}
			return nil
		}
		if sess.Slot() != slot {
			if err := s.checkConflicts(ctx, op, tx, sess.ClientID, sess.TrainerID, slot.Date, iv, sess.ID); err != nil {
				return err
			}
		}

		from = sess.Slot()
		sess.Date, sess.StartTime, sess.EndTime = slot.Date, slot.StartTime, slot.EndTime
		if err := tx.UpdateSession(ctx, &sess); err != nil {
			return storeError(op, err)
		}
		out.Session = sess
		out.Unchanged = from == slot
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if out.Unchanged {
		return out, nil
	}

	s.log.InfoContext(ctx, "session rescheduled",
		"session_id", out.Session.ID,
		"from", from.Date+" "+from.StartTime,
		"to", slot.Date+" "+slot.StartTime,
	)
	out.Warnings = s.afterCommit(ctx, out.Session, func(ctx context.Context) error {
		return s.notifier.Rescheduled(ctx, out.Session, from, slot)
	})
	return out, nil
}

// Cancel cancels an active session and credits the package that paid for
// it. Cancelling a cancelled session changes nothing.
func (s *Service) Cancel(ctx context.Context, caller Caller, sessionID string) (Result, error) {
	const op = "booking.Cancel"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	res, err := s.cancel(ctx, op, caller, sessionID)
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (s *Service) cancel(ctx context.Context, op string, caller Caller, sessionID string) (Result, error) {
	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, sessionError(op, err)
	}
	if err := authorizeParty(op, caller, current); err != nil {
		return Result{}, err
	}

	var out Result
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockParties(ctx, current.ClientID, current.TrainerID); err != nil {
			return persistence(op, err)
		}
		sess, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return sessionError(op, err)
		}
		if sess.Status == model.StatusCancelled {
			out = Result{Session: sess, Unchanged: true}
			return nil
		}

		sess.Status = model.StatusCancelled
		if sess.RescheduleStatus == model.ReschedulePending {
			sess.RescheduleStatus = model.RescheduleNone
			sess.Proposed = nil
		}
		if err := tx.UpdateSession(ctx, &sess); err != nil {
			return storeError(op, err)
		}
		out.Session = sess

		pkgID := sess.PackageID
		if pkgID == "" {
			pkgs, err := tx.ListPackages(ctx, sess.ClientID, sess.Type)
			if err != nil {
				return persistence(op, err)
			}
			latest, usable, ok := entitlements.MostRecentlyPurchased(pkgs, sess.Type, s.now())
			if !ok {
				out.Warnings = append(out.Warnings, fmt.Sprintf("no %s package found to credit", sess.Type))
				return nil
			}
			if !usable {
				out.Warnings = append(out.Warnings, fmt.Sprintf("no active %s package; credited expired package %s", sess.Type, latest.ID))
			}
			pkgID = latest.ID
		}
		pkg, err := entitlements.NewLedger(tx).Credit(ctx, pkgID)
		if err != nil {
			return entitlementError(op, sess.Type, err)
		}
		out.Package = &pkg
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if out.Unchanged {
		return out, nil
	}

	s.log.InfoContext(ctx, "session cancelled", "session_id", out.Session.ID, "credited", out.Package != nil)
	out.Warnings = append(out.Warnings, s.afterCommit(ctx, out.Session, func(ctx context.Context) error {
		return s.notifier.Cancelled(ctx, out.Session)
	})...)
	return out, nil
}

// RequestReschedule records a client's proposal to move a session. The
// proposal is validated like a reschedule but the session stays put until
// the trainer approves it.
func (s *Service) RequestReschedule(ctx context.Context, caller Caller, req RescheduleRequest) (Result, error) {
	const op = "booking.RequestReschedule"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	res, err := s.requestReschedule(ctx, op, caller, req)
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (s *Service) requestReschedule(ctx context.Context, op string, caller Caller, req RescheduleRequest) (Result, error) {
	current, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return Result{}, sessionError(op, err)
	}
	if caller.Role != model.RoleAdmin && caller.UserID != current.ClientID {
		return Result{}, reject(op, KindForbidden, "only the client can request a reschedule")
	}
	if !current.Status.Active() {
		return Result{}, reject(op, KindInvalidTransition, "session is %s", current.Status)
	}
	if sameSlot(current, req) {
		return Result{Session: current, Unchanged: true}, nil
	}

	slot, iv, err := s.validateSlot(ctx, op, current.TrainerID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return Result{}, err
	}

	var out Result
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockParties(ctx, current.ClientID, current.TrainerID); err != nil {
			return persistence(op, err)
		}
		sess, err := tx.GetSessionForUpdate(ctx, req.SessionID)
		if err != nil {
			return sessionError(op, err)
		}
		if !sess.Status.Active() {
			return reject(op, KindInvalidTransition, "session is %s", sess.Status)
		}
		if sess.RescheduleStatus == model.ReschedulePending {
			return reject(op, KindInvalidTransition, "a reschedule request is already pending")
		}
		if err := s.checkConflicts(ctx, op, tx, sess.ClientID, sess.TrainerID, slot.Date, iv, sess.ID); err != nil {
			return err
		}
		proposed := slot
		sess.RescheduleStatus = model.ReschedulePending
		sess.Proposed = &proposed
		if err := tx.UpdateSession(ctx, &sess); err != nil {
			return storeError(op, err)
		}
		out.Session = sess
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.log.InfoContext(ctx, "reschedule requested", "session_id", out.Session.ID, "proposed", slot.Date+" "+slot.StartTime)
	return out, nil
}

// ApproveReschedule applies the pending proposal of a session.
func (s *Service) ApproveReschedule(ctx context.Context, caller Caller, sessionID string) (Result, error) {
	const op = "booking.ApproveReschedule"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	res, err := s.approve(ctx, op, caller, sessionID)
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (s *Service) approve(ctx context.Context, op string, caller Caller, sessionID string) (Result, error) {
	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, sessionError(op, err)
	}
	if caller.Role != model.RoleAdmin && caller.UserID != current.TrainerID {
		return Result{}, reject(op, KindForbidden, "only the trainer can approve a reschedule")
	}
	if current.RescheduleStatus != model.ReschedulePending || current.Proposed == nil {
		return Result{}, reject(op, KindInvalidTransition, "no pending reschedule request")
	}
	proposed := *current.Proposed

	req := RescheduleRequest{
		SessionID: sessionID,
		Date:      proposed.Date,
		StartTime: proposed.StartTime,
		EndTime:   proposed.EndTime,
	}
	return s.move(ctx, op, caller, req, func(sess *model.Session) error {
		if sess.RescheduleStatus != model.ReschedulePending || sess.Proposed == nil || *sess.Proposed != proposed {
			return reject(op, KindInvalidTransition, "reschedule request changed")
		}
		sess.RescheduleStatus = model.RescheduleApproved
		sess.Proposed = nil
		return nil
	})
}

// DenyReschedule drops the pending proposal of a session.
func (s *Service) DenyReschedule(ctx context.Context, caller Caller, sessionID string) (Result, error) {
	const op = "booking.DenyReschedule"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, sessionError(op, err)
	}
	if caller.Role != model.RoleAdmin && caller.UserID != current.TrainerID {
		return Result{}, reject(op, KindForbidden, "only the trainer can deny a reschedule")
	}

	var out Result
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return sessionError(op, err)
		}
		if sess.RescheduleStatus != model.ReschedulePending {
			return reject(op, KindInvalidTransition, "no pending reschedule request")
		}
		sess.RescheduleStatus = model.RescheduleDenied
		sess.Proposed = nil
		if err := tx.UpdateSession(ctx, &sess); err != nil {
			return storeError(op, err)
		}
		out.Session = sess
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	return out, nil
}

// validateSlot parses the requested slot and checks it is a legitimate start
// in the trainer's weekly availability that no exclusion covers.
func (s *Service) validateSlot(ctx context.Context, op, trainerID, date, start, end string) (model.Slot, timeofday.Interval, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, s.loc)
	if err != nil {
		return model.Slot{}, timeofday.Interval{}, reject(op, KindInvalidInput, "date must be YYYY-MM-DD")
	}
	if end == "" {
		end, err = timeofday.AddMinutes(start, availability.SessionMinutes)
		if err != nil {
			return model.Slot{}, timeofday.Interval{}, timeError(op, err)
		}
	}
	iv, err := timeofday.ParseInterval(start, end)
	if err != nil {
		return model.Slot{}, timeofday.Interval{}, timeError(op, err)
	}

	startsAt := time.Date(day.Year(), day.Month(), day.Day(), iv.Start/60, iv.Start%60, 0, 0, s.loc)
	if !startsAt.After(s.now()) {
		return model.Slot{}, timeofday.Interval{}, reject(op, KindInvalidSlot, "slot %s %s is in the past", date, iv)
	}

	windows, err := s.store.ListWeeklyAvailability(ctx, trainerID)
	if err != nil {
		return model.Slot{}, timeofday.Interval{}, persistence(op, err)
	}
	ok, err := availability.IsLegitimateStart(windows, day, iv)
	if err != nil {
		return model.Slot{}, timeofday.Interval{}, persistence(op, err)
	}
	if !ok {
		return model.Slot{}, timeofday.Interval{}, reject(op, KindInvalidSlot, "%s %s is not an available %d-minute slot", date, iv, availability.SessionMinutes)
	}

	unavailable, err := s.store.ListUnavailable(ctx, trainerID, date)
	if err != nil {
		return model.Slot{}, timeofday.Interval{}, persistence(op, err)
	}
	if u, blocked, err := availability.BlockedBy(unavailable, day, iv); err != nil {
		return model.Slot{}, timeofday.Interval{}, persistence(op, err)
	} else if blocked {
		msg := fmt.Sprintf("trainer is unavailable %s-%s", u.StartTime, u.EndTime)
		if u.Reason != "" {
			msg += " (" + u.Reason + ")"
		}
		return model.Slot{}, timeofday.Interval{}, reject(op, KindInvalidSlot, "%s", msg)
	}

	slot := model.Slot{
		Date:      day.Format(model.DateLayout),
		StartTime: timeofday.Format(iv.Start),
		EndTime:   timeofday.Format(iv.End),
	}
	return slot, iv, nil
}

// checkConflicts runs the overlap check for the client, then the trainer.
func (s *Service) checkConflicts(ctx context.Context, op string, tx Tx, clientID, trainerID, date string, iv timeofday.Interval, excludeID string) error {
	parties := []conflict.Proposal{
		{PersonID: clientID, Role: model.RoleClient, Date: date, Interval: iv},
		{PersonID: trainerID, Role: model.RoleTrainer, Date: date, Interval: iv},
	}
	for _, p := range parties {
		existing, err := tx.ListSessions(ctx, p.Role, p.PersonID, p.Date)
		if err != nil {
			return persistence(op, err)
		}
		c, err := conflict.Detect(p, existing, excludeID)
		if err != nil {
			return persistence(op, err)
		}
		if c == nil {
			continue
		}
		kind := KindClientConflict
		if p.Role == model.RoleTrainer {
			kind = KindTrainerConflict
		}
		return &Error{Kind: kind, Op: op, Msg: c.String()}
	}
	return nil
}

// lockSlot takes the cross-replica lock for a trainer's day. The returned
// func releases it and is safe to defer when no locker is configured.
func (s *Service) lockSlot(ctx context.Context, op, trainerID, date string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("trainer:%s:%s", trainerID, date)
	token, ok, err := s.locker.Lock(ctx, key, s.lockTTL)
	if err != nil {
		// The database locks still serialise writers; the shared lock only
		// sheds contention early.
		s.log.WarnContext(ctx, "slot lock unavailable", "key", key, "err", err)
		return func() {}, nil
	}
	if !ok {
		return nil, reject(op, KindSlotLocked, "another booking for this trainer and date is in progress")
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.locker.Unlock(ctx, key, token); err != nil {
			s.log.WarnContext(ctx, "slot unlock failed", "key", key, "err", err)
		}
	}, nil
}

// afterCommit runs notify and then mirrors sess into both participants'
// calendars. Each call gets its own timeout and outlives a cancelled request.
func (s *Service) afterCommit(ctx context.Context, sess model.Session, notify func(context.Context) error) []string {
	base := context.WithoutCancel(ctx)
	var warnings []string

	if s.notifier != nil {
		nctx, cancel := context.WithTimeout(base, s.sideTTL)
		err := notify(nctx)
		cancel()
		if err != nil {
			s.log.WarnContext(ctx, "notification failed", "session_id", sess.ID, "err", err)
			warnings = append(warnings, "notification could not be sent")
		}
	}

	if s.calendar != nil {
		ev := s.calendarEvent(sess)
		for _, p := range []struct {
			role model.Role
			id   string
		}{{model.RoleClient, sess.ClientID}, {model.RoleTrainer, sess.TrainerID}} {
			cctx, cancel := context.WithTimeout(base, s.sideTTL)
			_, err := s.calendar.UpsertEvent(cctx, p.id, ev)
			cancel()
			if err != nil {
				s.log.WarnContext(ctx, "calendar sync failed", "session_id", sess.ID, "role", p.role, "err", err)
				warnings = append(warnings, fmt.Sprintf("%s calendar could not be updated", p.role))
			}
		}
	}
	return warnings
}

func (s *Service) calendarEvent(sess model.Session) model.CalendarEvent {
	return model.CalendarEvent{
		SessionID: sess.ID,
		Title:     string(sess.Type) + " session",
		Date:      sess.Date,
		StartTime: sess.StartTime,
		EndTime:   sess.EndTime,
		Timezone:  s.loc.String(),
		Cancelled: sess.Status == model.StatusCancelled,
	}
}

func authorizeParty(op string, caller Caller, sess model.Session) error {
	switch caller.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleClient:
		if caller.UserID == sess.ClientID {
			return nil
		}
	case model.RoleTrainer:
		if caller.UserID == sess.TrainerID {
			return nil
		}
	}
	return reject(op, KindForbidden, "not a participant of this session")
}

func sameSlot(sess model.Session, req RescheduleRequest) bool {
	if sess.Date != req.Date {
		return false
	}
	start, err := timeofday.ParseMinutes(req.StartTime)
	if err != nil {
		return false
	}
	cur, err := timeofday.ParseInterval(sess.StartTime, sess.EndTime)
	if err != nil || cur.Start != start {
		return false
	}
	if req.EndTime == "" {
		return cur.Duration() == availability.SessionMinutes
	}
	end, err := timeofday.ParseMinutes(req.EndTime)
	return err == nil && end == cur.End
}

func timeError(op string, err error) error {
	switch {
	case errors.Is(err, timeofday.ErrInvalidFormat):
		return &Error{Kind: KindInvalidTimeFormat, Op: op, Msg: "times must be HH:MM", Err: err}
	case errors.Is(err, timeofday.ErrOutOfRange):
		return &Error{Kind: KindOutOfRange, Op: op, Msg: "session must end before midnight", Err: err}
	case errors.Is(err, timeofday.ErrEmptyInterval):
		return &Error{Kind: KindInvalidSlot, Op: op, Msg: "end time must be after start time", Err: err}
	}
	return &Error{Kind: KindInvalidInput, Op: op, Err: err}
}

func entitlementError(op string, t model.SessionType, err error) error {
	switch {
	case errors.Is(err, entitlements.ErrNoPackage):
		return reject(op, KindNoPackage, "no %s package; purchase one to book", t)
	case errors.Is(err, entitlements.ErrPackageExpired):
		return reject(op, KindPackageExpired, "your %s package has expired", t)
	case errors.Is(err, entitlements.ErrPackageExhausted):
		return reject(op, KindPackageExhausted, "no %s sessions remaining", t)
	case errors.Is(err, entitlements.ErrPackageNotFound):
		return reject(op, KindPackageNotFound, "package not found")
	}
	return persistence(op, err)
}

func sessionError(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return reject(op, KindSessionNotFound, "session not found")
	}
	return persistence(op, err)
}

func storeError(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrClientOverlap):
		return &Error{Kind: KindClientConflict, Op: op, Msg: "client already has a session at this time", Err: err}
	case errors.Is(err, model.ErrTrainerOverlap):
		return &Error{Kind: KindTrainerConflict, Op: op, Msg: "trainer already has a session at this time", Err: err}
	case errors.Is(err, model.ErrNotFound):
		return reject(op, KindNotFound, "not found")
	}
	return persistence(op, err)
}
