// Package entitlements decides which purchased package pays for a session and
// keeps sessions_used within [0, sessions_included].
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

var (
	ErrNoPackage        = errors.New("no package of this type")
	ErrPackageExpired   = errors.New("package expired")
	ErrPackageExhausted = errors.New("no sessions remaining")
	ErrPackageNotFound  = errors.New("package not found")
)

// SelectDebitable picks the package that should pay for a session of type t:
// active, unexpired at asOf, with sessions remaining. The soonest-expiring
// package wins; packages without an expiry go last; ties fall back to the
// oldest purchase.
func SelectDebitable(pkgs []model.Package, t model.SessionType, asOf time.Time) (model.Package, bool) {
	var usable []model.Package
	for _, p := range pkgs {
		if p.PackageType != t || p.Status != model.PackageActive {
			continue
		}
		if p.ExpiredAt(asOf) || p.Remaining() <= 0 {
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) == 0 {
		return model.Package{}, false
	}
	sort.SliceStable(usable, func(i, j int) bool {
		a, b := usable[i], usable[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		return a.PurchaseDate.Before(b.PurchaseDate)
	})
	return usable[0], true
}

// Diagnose explains why SelectDebitable found nothing. The answers are
// mutually exclusive: no package of the type at all, every one of them
// expired, or the rest are used up.
func Diagnose(pkgs []model.Package, t model.SessionType, asOf time.Time) error {
	var ofType, expired int
	for _, p := range pkgs {
		if p.PackageType != t || p.Status == model.PackageCancelled {
			continue
		}
		ofType++
		if p.ExpiredAt(asOf) {
			expired++
		}
	}
	switch {
	case ofType == 0:
		return ErrNoPackage
	case expired == ofType:
		return ErrPackageExpired
	default:
		return ErrPackageExhausted
	}
}

// Debit consumes one session. The package is completed once nothing remains.
func Debit(p model.Package) (model.Package, error) {
	if p.Remaining() <= 0 {
		return p, ErrPackageExhausted
	}
	p.SessionsUsed++
	if p.SessionsUsed >= p.SessionsIncluded {
		p.Status = model.PackageCompleted
	}
	return p, nil
}

// Credit returns one session. sessions_used never drops below zero and a
// completed package becomes usable again.
func Credit(p model.Package) model.Package {
	if p.SessionsUsed > 0 {
		p.SessionsUsed--
	}
	if p.Status == model.PackageCompleted && p.Remaining() > 0 {
		p.Status = model.PackageActive
	}
	return p
}

// MostRecentlyPurchased picks the package that credits a session booked
// before packages were linked to sessions: the newest one of type t that is
// still usable at asOf. When none is, it falls back to the newest
// non-cancelled package and reports usable as false.
func MostRecentlyPurchased(pkgs []model.Package, t model.SessionType, asOf time.Time) (p model.Package, usable, ok bool) {
	var best, fallback *model.Package
	for i := range pkgs {
		c := &pkgs[i]
		if c.PackageType != t || c.Status == model.PackageCancelled {
			continue
		}
		if !c.ExpiredAt(asOf) {
			if best == nil || c.PurchaseDate.After(best.PurchaseDate) {
				best = c
			}
			continue
		}
		if fallback == nil || c.PurchaseDate.After(fallback.PurchaseDate) {
			fallback = c
		}
	}
	switch {
	case best != nil:
		return *best, true, true
	case fallback != nil:
		return *fallback, false, true
	default:
		return model.Package{}, false, false
	}
}

// Grant describes a newly purchased or manually granted package.
type Grant struct {
	ClientID         string
	PackageType      model.SessionType
	SessionsIncluded int
	PurchaseDate     time.Time
	// Validity is how long the package stays usable. Zero means no expiry.
	Validity time.Duration
}

// NewPackage builds the active package for g.
func NewPackage(g Grant) (model.Package, error) {
	if g.ClientID == "" {
		return model.Package{}, errors.New("client id is required")
	}
	if !g.PackageType.Valid() {
		return model.Package{}, fmt.Errorf("unknown package type %q", g.PackageType)
	}
	if g.SessionsIncluded <= 0 {
		return model.Package{}, errors.New("sessions included must be positive")
	}
	if g.Validity < 0 {
		return model.Package{}, errors.New("validity must not be negative")
	}
	p := model.Package{
		ClientID:         g.ClientID,
		PackageType:      g.PackageType,
		SessionsIncluded: g.SessionsIncluded,
		Status:           model.PackageActive,
		PurchaseDate:     g.PurchaseDate,
	}
	if g.Validity > 0 {
		exp := g.PurchaseDate.Add(g.Validity)
		p.ExpiryDate = &exp
	}
	return p, nil
}

// Store is the package persistence the ledger needs. Implementations are
// expected to run inside the caller's transaction.
type Store interface {
	ListPackages(ctx context.Context, clientID string, t model.SessionType) ([]model.Package, error)
	GetPackageForUpdate(ctx context.Context, id string) (model.Package, error)
	UpdatePackageUsage(ctx context.Context, id string, used int, status model.PackageStatus) error
}

// Ledger applies debits and credits through a Store.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// FindDebitable returns the package to debit for a booking, or the reason
// there is none.
func (l *Ledger) FindDebitable(ctx context.Context, clientID string, t model.SessionType, asOf time.Time) (model.Package, error) {
	pkgs, err := l.store.ListPackages(ctx, clientID, t)
	if err != nil {
		return model.Package{}, fmt.Errorf("list packages: %w", err)
	}
	if p, ok := SelectDebitable(pkgs, t, asOf); ok {
		return p, nil
	}
	return model.Package{}, Diagnose(pkgs, t, asOf)
}

// Debit locks the package row and consumes one session.
func (l *Ledger) Debit(ctx context.Context, id string) (model.Package, error) {
	p, err := l.load(ctx, id)
	if err != nil {
		return model.Package{}, err
	}
	next, err := Debit(p)
	if err != nil {
		return p, err
	}
	if err := l.store.UpdatePackageUsage(ctx, id, next.SessionsUsed, next.Status); err != nil {
		return p, fmt.Errorf("update package usage: %w", err)
	}
	return next, nil
}

// Credit locks the package row and returns one session.
func (l *Ledger) Credit(ctx context.Context, id string) (model.Package, error) {
	p, err := l.load(ctx, id)
	if err != nil {
		return model.Package{}, err
	}
	next := Credit(p)
	if err := l.store.UpdatePackageUsage(ctx, id, next.SessionsUsed, next.Status); err != nil {
		return p, fmt.Errorf("update package usage: %w", err)
	}
	return next, nil
}

func (l *Ledger) load(ctx context.Context, id string) (model.Package, error) {
	if id == "" {
		return model.Package{}, ErrPackageNotFound
	}
	p, err := l.store.GetPackageForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Package{}, ErrPackageNotFound
		}
		return model.Package{}, fmt.Errorf("get package: %w", err)
	}
	return p, nil
}
