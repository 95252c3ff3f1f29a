// Package market implements the matching and lifecycle core of the task
// marketplace: the per-task auction protocol, deterministic offer scoring,
// the task status state machine, the execution lifecycle and the decayed
// reputation feedback loop. Persistence, settlement and notification fan-out
// are collaborators passed in at construction.
package market

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error independently of any transport.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindAuction    ErrorKind = "auction"
)

// Error is the single domain error type returned to callers. Kind is
// machine-readable; callers map it to their own status codes.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Msg
}

func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Auctionf(format string, args ...interface{}) error {
	return &Error{Kind: KindAuction, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a domain error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsDomain reports whether err is a domain error.
func IsDomain(err error) bool {
	return KindOf(err) != ""
}
