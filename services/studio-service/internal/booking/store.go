package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

// Reader is the read side of the studio database.
type Reader interface {
	ListWeeklyAvailability(ctx context.Context, trainerID string) ([]model.WeeklyWindow, error)
	// ListUnavailable returns every exclusion for the trainer when date is empty.
	ListUnavailable(ctx context.Context, trainerID, date string) ([]model.UnavailableSlot, error)
	ListSessions(ctx context.Context, role model.Role, personID, date string) ([]model.Session, error)
	GetSession(ctx context.Context, id string) (model.Session, error)
	// ListPackages returns every package of the client when t is empty.
	ListPackages(ctx context.Context, clientID string, t model.SessionType) ([]model.Package, error)
}

// Tx is a unit of work. Every write the service performs goes through one.
type Tx interface {
	Reader

	// LockParties serialises writers touching the same client or trainer
	// until the transaction ends.
	LockParties(ctx context.Context, ids ...string) error

	GetSessionForUpdate(ctx context.Context, id string) (model.Session, error)
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error

	GetPackageForUpdate(ctx context.Context, id string) (model.Package, error)
	UpdatePackageUsage(ctx context.Context, id string, used int, status model.PackageStatus) error
	CreatePackage(ctx context.Context, p *model.Package) error

	ReplaceWeeklyAvailability(ctx context.Context, trainerID string, windows []model.WeeklyWindow) error
	GetUnavailable(ctx context.Context, id string) (model.UnavailableSlot, error)
	CreateUnavailable(ctx context.Context, u *model.UnavailableSlot) error
	DeleteUnavailable(ctx context.Context, id string) error

	// MarkProviderEvent records a payment provider event id. It reports false
	// when the event was already processed.
	MarkProviderEvent(ctx context.Context, provider, eventID string) (bool, error)
}

// Store runs fn inside a transaction that commits when fn returns nil.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier announces committed changes to the parties of a session.
type Notifier interface {
	BookingCreated(ctx context.Context, s model.Session) error
	Rescheduled(ctx context.Context, s model.Session, from, to model.Slot) error
	Cancelled(ctx context.Context, s model.Session) error
}

// CalendarSync mirrors a session into a participant's external calendar.
type CalendarSync interface {
	UpsertEvent(ctx context.Context, personID string, ev model.CalendarEvent) (string, error)
}

// Locker is a short-lived advisory lock shared between service replicas.
// Lock returns an owner token when it acquires key; Unlock releases key only
// while it is still held under that token.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}
