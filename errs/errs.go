// Package errs contains the sentinel errors shared by the cache, upstream and
// HTTP layers so that outcomes can be mapped with errors.Is at any boundary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates a session or derived-data miss with no fetch result.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable covers network failures, timeouts and non-2xx
	// responses from an upstream collaborator.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse indicates an upstream payload with an unexpected
	// shape (e.g. a missing "data" envelope).
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrDegraded marks a catalog value served from stale or fallback data.
	ErrDegraded = errors.New("degraded")

	// ErrUnauthorized indicates failed authentication or an expired token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the upstream denied access to the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates too many requests, locally or upstream.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidArgument indicates a caller-supplied value failed validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCircuitOpen indicates the upstream breaker is refusing calls.
	ErrCircuitOpen = errors.New("circuit open")
)

// UpstreamError describes a failed call to an upstream collaborator. Kind is
// one of the sentinels above and is what errors.Is matches against.
type UpstreamError struct {
	Op     string
	Status int
	Kind   error
	Err    error
}

func (e *UpstreamError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FromStatus classifies a non-2xx HTTP status code.
func FromStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUpstreamUnavailable
	}
}

// Upstream builds an UpstreamError for op.
func Upstream(op string, status int, kind, cause error) error {
	return &UpstreamError{Op: op, Status: status, Kind: kind, Err: cause}
}

// Code returns a stable machine-readable code for err, used in API bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrMalformedResponse):
		return "MALFORMED_RESPONSE"
	case errors.Is(err, ErrCircuitOpen):
		return "CIRCUIT_OPEN"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
