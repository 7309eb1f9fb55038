package engine

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and abort decisions.
type Kind string

const (
	// KindRateLimited means the external system rejected the call for
	// exceeding its published rate limit. Transient.
	KindRateLimited Kind = "rate_limited"
	// KindServerUnavailable means the external system returned a temporary
	// server-side failure. Transient.
	KindServerUnavailable Kind = "server_unavailable"
	// KindNetworkTimeout means the call did not complete within its
	// deadline. Transient.
	KindNetworkTimeout Kind = "network_timeout"
	// KindTokenInvalid means the source rejected a supplied resume token as
	// stale or expired. Triggers one full-window fallback fetch.
	KindTokenInvalid Kind = "token_invalid"
	// KindRecordInvalid means a single source record is malformed. The
	// record is skipped and counted; never retried.
	KindRecordInvalid Kind = "record_invalid"
	// KindUnauthorized means authentication or authorization failed.
	// Further calls will fail identically, so the remaining batch aborts.
	KindUnauthorized Kind = "unauthorized"
	// KindSchemaMismatch means the destination rejected the payload shape.
	// Aborts the remaining batch like an auth failure.
	KindSchemaMismatch Kind = "schema_mismatch"
	// KindUnknown is any unclassified failure. Treated as permanent.
	KindUnknown Kind = "unknown"
)

// Fault is a classified failure from a source or destination call.
type Fault struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Unwrap exposes the underlying cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err with a failure kind.
func NewFault(kind Kind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

// Faultf builds a classified failure from a format string.
func Faultf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind of err. A context deadline classifies as a
// network timeout; anything without an explicit classification is unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}
	return KindUnknown
}

// IsTransient reports whether err is expected to succeed if retried.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindServerUnavailable, KindNetworkTimeout:
		return true
	default:
		return false
	}
}

// IsPermanent reports whether err makes further calls to the same system
// pointless for the rest of the run.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindUnauthorized, KindSchemaMismatch, KindUnknown:
		return true
	default:
		return false
	}
}
