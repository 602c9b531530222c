package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrClientOverlap and ErrTrainerOverlap are returned by the store when a
	// write trips the database exclusion constraint for that party.
	ErrClientOverlap  = errors.New("client already has a session in this interval")
	ErrTrainerOverlap = errors.New("trainer already has a session in this interval")
)

type PackageStatus string

const (
	PackageActive    PackageStatus = "active"
	PackageCompleted PackageStatus = "completed"
	PackageExpired   PackageStatus = "expired"
	PackageCancelled PackageStatus = "cancelled"
)

type Package struct {
	ID               string
	ClientID         string
	PackageType      SessionType
	SessionsIncluded int
	SessionsUsed     int
	Status           PackageStatus
	PurchaseDate     time.Time
	ExpiryDate       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p Package) Remaining() int {
	r := p.SessionsIncluded - p.SessionsUsed
	if r < 0 {
		return 0
	}
	return r
}

// ExpiredAt reports whether the package can no longer be used at instant t.
func (p Package) ExpiredAt(t time.Time) bool {
	if p.Status == PackageExpired {
		return true
	}
	return p.ExpiryDate != nil && !t.Before(*p.ExpiryDate)
}
