package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an upstream call failed.
type Kind int

const (
	KindUnavailable Kind = iota // transport failure, timeout, 5xx
	KindNotFound
	KindRateLimited
	KindAuth
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	default:
		return "unavailable"
	}
}

// Error is returned by Client and the provider adapters built on it.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error.
func NewError(provider string, kind Kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err. Errors that did not come from this
// package count as KindUnavailable.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUnavailable
}

// IsKind reports whether err is an upstream error of kind k.
func IsKind(err error, k Kind) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Kind == k
}

// IsRetryable reports whether retrying the same request could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindForStatus maps a non-2xx HTTP status onto a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	default:
		return KindUnavailable
	}
}
