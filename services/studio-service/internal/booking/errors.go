package booking

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was rejected.
type Kind string

const (
	KindInvalidSlot        Kind = "invalid_slot"
	KindClientConflict     Kind = "client_conflict"
	KindTrainerConflict    Kind = "trainer_conflict"
	KindNoPackage          Kind = "no_package"
	KindPackageExpired     Kind = "package_expired"
	KindPackageExhausted   Kind = "package_exhausted"
	KindPackageNotFound    Kind = "package_not_found"
	KindSessionNotFound    Kind = "session_not_found"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindSlotLocked         Kind = "slot_locked"
	KindPersistenceFailure Kind = "persistence_failure"
	KindOutOfRange         Kind = "out_of_range"
	KindInvalidTimeFormat  Kind = "invalid_time_format"
	KindInvalidInput       Kind = "invalid_input"
	KindForbidden          Kind = "forbidden"
)

// Error is returned by every Service operation that fails. Two errors match
// under errors.Is when their kinds are equal, so callers compare against the
// Err* sentinels below.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidSlot        = &Error{Kind: KindInvalidSlot}
	ErrClientConflict     = &Error{Kind: KindClientConflict}
	ErrTrainerConflict    = &Error{Kind: KindTrainerConflict}
	ErrNoPackage          = &Error{Kind: KindNoPackage}
	ErrPackageExpired     = &Error{Kind: KindPackageExpired}
	ErrPackageExhausted   = &Error{Kind: KindPackageExhausted}
	ErrPackageNotFound    = &Error{Kind: KindPackageNotFound}
	ErrSessionNotFound    = &Error{Kind: KindSessionNotFound}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrSlotLocked         = &Error{Kind: KindSlotLocked}
	ErrPersistenceFailure = &Error{Kind: KindPersistenceFailure}
	ErrOutOfRange         = &Error{Kind: KindOutOfRange}
	ErrInvalidTimeFormat  = &Error{Kind: KindInvalidTimeFormat}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrForbidden          = &Error{Kind: KindForbidden}
)

// KindOf returns the kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func reject(op string, kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func persistence(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindPersistenceFailure, Op: op, Msg: "storage error", Err: err}
}
