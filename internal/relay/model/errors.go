package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the relay core, mirroring the teacher's
// internal/application/common/errors.go style.
var (
	ErrSourceDisabled   = errors.New("source is disabled")
	ErrDailyCapReached  = errors.New("daily post cap reached")
	ErrNoParentResolved = errors.New("no thread parent resolved")
)

// PublisherErrorKind closes the set of typed publisher failures (spec.md §7,
// §9 "cross-cutting error variants ... sum type with a carried payload").
type PublisherErrorKind string

const (
	ErrKindNotFound        PublisherErrorKind = "not_found"
	ErrKindEditNotAllowed  PublisherErrorKind = "edit_not_allowed"
	ErrKindValidation      PublisherErrorKind = "validation"
	ErrKindRateLimited     PublisherErrorKind = "rate_limited"
	ErrKindTransient       PublisherErrorKind = "transient"
)

// PublisherError carries the payload retry logic pattern-matches on.
type PublisherError struct {
	Kind       PublisherErrorKind
	StatusCode int
	RetryAfter int // seconds; only meaningful for ErrKindRateLimited
	Message    string
	Err        error
}

func (e *PublisherError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
}

func (e *PublisherError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *PublisherError of the given kind.
func IsKind(err error, kind PublisherErrorKind) bool {
	var pe *PublisherError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
