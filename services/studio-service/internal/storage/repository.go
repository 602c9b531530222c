package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/studiosched/libs/db"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

const (
	clientOverlapConstraint  = "sessions_client_no_overlap"
	trainerOverlapConstraint = "sessions_trainer_no_overlap"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *db.Pool
	reads
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, reads: reads{q: pool}}
}

// InTx runs fn in a read-committed transaction and commits when it returns nil.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Tx{reads: reads{q: tx}, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Tx is the write side. It only exists inside InTx.
type Tx struct {
	reads
	tx pgx.Tx
}

var (
	_ booking.Store = (*Repository)(nil)
	_ booking.Tx    = (*Tx)(nil)
)

type reads struct {
	q querier
}

func (r reads) ListWeeklyAvailability(ctx context.Context, trainerID string) ([]model.WeeklyWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT trainer_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM weekly_availability
		WHERE trainer_id = $1
		ORDER BY weekday, start_time
	`, trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyWindow
	for rows.Next() {
		var (
			w       model.WeeklyWindow
			weekday int16
		)
		if err := rows.Scan(&w.TrainerID, &weekday, &w.StartTime, &w.EndTime); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r reads) ListUnavailable(ctx context.Context, trainerID, date string) ([]model.UnavailableSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+unavailableColumns+`
		FROM unavailable_slots
		WHERE trainer_id = $1
			AND ($2 = '' OR date = NULLIF($2, '')::date)
		ORDER BY date, start_time
	`, trainerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UnavailableSlot
	for rows.Next() {
		u, err := scanUnavailable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r reads) ListSessions(ctx context.Context, role model.Role, personID, date string) ([]model.Session, error) {
	column := "client_id"
	if role == model.RoleTrainer {
		column = "trainer_id"
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+column+` = $1 AND date = $2
		ORDER BY start_time
	`, personID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r reads) GetSession(ctx context.Context, id string) (model.Session, error) {
	return r.getSession(ctx, id, "")
}

func (r reads) getSession(ctx context.Context, id, suffix string) (model.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Session{}, model.ErrNotFound
	}
	s, err := scanSession(r.q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
	`+suffix, id))
	if err != nil {
		if IsNotFound(err) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, err
	}
	return s, nil
}

func (r reads) ListPackages(ctx context.Context, clientID string, t model.SessionType) ([]model.Package, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE client_id = $1
			AND ($2 = '' OR package_type = $2)
		ORDER BY purchase_date DESC
	`, clientID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// LockParties takes transaction-scoped advisory locks in a stable order so two
// bookings sharing a client and a trainer cannot deadlock.
func (t *Tx) LockParties(ctx context.Context, ids ...string) error {
	uniq := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			uniq[id] = struct{}{}
		}
	}
	keys := make([]string, 0, len(uniq))
	for id := range uniq {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return fmt.Errorf("advisory lock %s: %w", k, err)
		}
	}
	return nil
}

func (t *Tx) GetSessionForUpdate(ctx context.Context, id string) (model.Session, error) {
	return t.getSession(ctx, id, " FOR UPDATE")
}

func (t *Tx) CreateSession(ctx context.Context, s *model.Session) error {
	s.ID = uuid.NewString()
	pDate, pStart, pEnd := proposedArgs(s.Proposed)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sessions
			(id, client_id, trainer_id, package_id, date, start_time, end_time, type, status,
			 reschedule_status, proposed_date, proposed_start_time, proposed_end_time)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, s.ID, s.ClientID, s.TrainerID, s.PackageID, s.Date, s.StartTime, s.EndTime, string(s.Type), string(s.Status),
		string(s.RescheduleStatus), pDate, pStart, pEnd).Scan(&s.CreatedAt, &s.UpdatedAt)
	return overlapError(err)
}

func (t *Tx) UpdateSession(ctx context.Context, s *model.Session) error {
	pDate, pStart, pEnd := proposedArgs(s.Proposed)
	err := t.tx.QueryRow(ctx, `
		UPDATE sessions
		SET date = $2,
			start_time = $3,
			end_time = $4,
			status = $5,
			reschedule_status = $6,
			proposed_date = $7,
			proposed_start_time = $8,
			proposed_end_time = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, s.ID, s.Date, s.StartTime, s.EndTime, string(s.Status), string(s.RescheduleStatus), pDate, pStart, pEnd).Scan(&s.UpdatedAt)
	if IsNotFound(err) {
		return model.ErrNotFound
	}
	return overlapError(err)
}

func (t *Tx) GetPackageForUpdate(ctx context.Context, id string) (model.Package, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Package{}, model.ErrNotFound
	}
	p, err := scanPackage(t.tx.QueryRow(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return model.Package{}, model.ErrNotFound
		}
		return model.Package{}, err
	}
	return p, nil
}

func (t *Tx) UpdatePackageUsage(ctx context.Context, id string, used int, status model.PackageStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE packages
		SET sessions_used = $2,
			status = $3,
			updated_at = now()
		WHERE id = $1
	`, id, used, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) CreatePackage(ctx context.Context, p *model.Package) error {
	p.ID = uuid.NewString()
	return t.tx.QueryRow(ctx, `
		INSERT INTO packages
			(id, client_id, package_type, sessions_included, sessions_used, status, purchase_date, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.ClientID, string(p.PackageType), p.SessionsIncluded, p.SessionsUsed, string(p.Status),
		p.PurchaseDate, p.ExpiryDate).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (t *Tx) ReplaceWeeklyAvailability(ctx context.Context, trainerID string, windows []model.WeeklyWindow) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM weekly_availability WHERE trainer_id = $1`, trainerID); err != nil {
		return err
	}
	if len(windows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, w := range windows {
		batch.Queue(`
			INSERT INTO weekly_availability (id, trainer_id, weekday, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.NewString(), trainerID, int16(w.Weekday), w.StartTime, w.EndTime)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *Tx) GetUnavailable(ctx context.Context, id string) (model.UnavailableSlot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.UnavailableSlot{}, model.ErrNotFound
	}
	u, err := scanUnavailable(t.tx.QueryRow(ctx, `
		SELECT `+unavailableColumns+`
		FROM unavailable_slots
		WHERE id = $1
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return model.UnavailableSlot{}, model.ErrNotFound
		}
		return model.UnavailableSlot{}, err
	}
	return u, nil
}

func (t *Tx) CreateUnavailable(ctx context.Context, u *model.UnavailableSlot) error {
	u.ID = uuid.NewString()
	return t.tx.QueryRow(ctx, `
		INSERT INTO unavailable_slots (id, trainer_id, date, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at
	`, u.ID, u.TrainerID, u.Date, u.StartTime, u.EndTime, u.Reason).Scan(&u.CreatedAt)
}

func (t *Tx) DeleteUnavailable(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM unavailable_slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) MarkProviderEvent(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO provider_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const sessionColumns = `id::text, client_id, trainer_id, COALESCE(package_id::text, ''), date::text,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), type, status, reschedule_status,
	COALESCE(proposed_date::text, ''), COALESCE(to_char(proposed_start_time, 'HH24:MI'), ''),
	COALESCE(to_char(proposed_end_time, 'HH24:MI'), ''), created_at, updated_at`

const packageColumns = `id::text, client_id, package_type, sessions_included, sessions_used, status,
	purchase_date, expiry_date, created_at, updated_at`

const unavailableColumns = `id::text, trainer_id, date::text, to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'), COALESCE(reason, ''), created_at`

func scanSession(row pgx.Row) (model.Session, error) {
	var (
		s                   model.Session
		typ, status, rs     string
		pDate, pStart, pEnd string
	)
	err := row.Scan(
		&s.ID,
		&s.ClientID,
		&s.TrainerID,
		&s.PackageID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&typ,
		&status,
		&rs,
		&pDate,
		&pStart,
		&pEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}
	s.Type = model.SessionType(typ)
	s.Status = model.SessionStatus(status)
	s.RescheduleStatus = model.RescheduleStatus(rs)
	if pDate != "" {
		s.Proposed = &model.Slot{Date: pDate, StartTime: pStart, EndTime: pEnd}
	}
	return s, nil
}

func scanPackage(row pgx.Row) (model.Package, error) {
	var (
		p           model.Package
		typ, status string
		expiry      *time.Time
	)
	err := row.Scan(
		&p.ID,
		&p.ClientID,
		&typ,
		&p.SessionsIncluded,
		&p.SessionsUsed,
		&status,
		&p.PurchaseDate,
		&expiry,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return model.Package{}, err
	}
	p.PackageType = model.SessionType(typ)
	p.Status = model.PackageStatus(status)
	p.ExpiryDate = expiry
	return p, nil
}

func scanUnavailable(row pgx.Row) (model.UnavailableSlot, error) {
	var u model.UnavailableSlot
	err := row.Scan(&u.ID, &u.TrainerID, &u.Date, &u.StartTime, &u.EndTime, &u.Reason, &u.CreatedAt)
	return u, err
}

func proposedArgs(p *model.Slot) (date, start, end *string) {
	if p == nil {
		return nil, nil, nil
	}
	return &p.Date, &p.StartTime, &p.EndTime
}

// overlapError translates an exclusion constraint violation into the model
// error for the party whose constraint fired.
func overlapError(err error) error {
	if err == nil || !IsConflict(err) {
		return err
	}
	var pgErr *pgconn.PgError
	errors.As(err, &pgErr)
	switch pgErr.ConstraintName {
	case clientOverlapConstraint:
		return fmt.Errorf("%w: %s", model.ErrClientOverlap, pgErr.Message)
	case trainerOverlapConstraint:
		return fmt.Errorf("%w: %s", model.ErrTrainerOverlap, pgErr.Message)
	}
	return err
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
