package engine

import (
	"context"
	"time"

	"sync-bridge/core/state"
)

// RawRecord is a source record before transformation. Integrations define the
// concrete type; the engine never inspects it.
type RawRecord any

// Window bounds a full (non-incremental) fetch. Zero values mean unbounded on
// that side.
type Window struct {
	Start time.Time
	End   time.Time
}

// FetchResult is one batch of source records plus the token to resume from on
// the next incremental run. An empty token means the source reported nothing
// new to resume from.
type FetchResult struct {
	Records     []RawRecord
	ResumeToken string
}

// FetchFunc yields source records. When resumeToken is non-empty the source
// should return only changes since the token was issued; a stale token fails
// with KindTokenInvalid.
type FetchFunc func(ctx context.Context, resumeToken string, window Window) (FetchResult, error)

// TransformFunc converts a raw record into its stable external id and a
// destination payload. It must be pure: re-deriving the same external id for
// the same logical record on every run is what makes reconciliation
// idempotent. Malformed records fail with KindRecordInvalid.
type TransformFunc func(record RawRecord) (externalID string, payload *Payload, err error)

// Destination performs create and update calls against the destination
// system. Failures use the same kind taxonomy as fetches.
type Destination interface {
	// Create inserts a new destination record and returns its id.
	Create(ctx context.Context, payload *Payload) (string, error)
	// Update overwrites the payload fields of an existing destination record.
	Update(ctx context.Context, destinationID string, payload *Payload) error
}

// Integration bundles the collaborators for one (source, record kind) pair.
// The surrounding process registers integrations at startup; the engine
// treats them as opaque.
type Integration struct {
	// Source names the integration/channel, e.g. "google_calendar".
	Source string
	// Kind is the logical record type, e.g. "calendar_event".
	Kind string

	Fetch       FetchFunc
	Transform   TransformFunc
	Destination Destination

	// CallsPerSecond bounds the outbound call rate against the destination.
	// Zero disables throttling.
	CallsPerSecond float64
	// Incremental enables resume-token plumbing for this integration.
	Incremental bool
	// Lookback and Lookahead bound full-window fetches. Zero means unbounded
	// on that side.
	Lookback  time.Duration
	Lookahead time.Duration
}

// Options are per-run switches.
type Options struct {
	// DryRun reports the create/update/skip decisions without calling the
	// destination or mutating any store.
	DryRun bool
	// Full ignores any stored resume token and fetches the full window. The
	// token returned by the fetch is still captured for the next run.
	Full bool
}

// RunStatus is the logged outcome of a run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailure RunStatus = "failure"
)

// Decision is the action the reconciler chose for one record.
type Decision string

const (
	DecisionCreate Decision = "create"
	DecisionUpdate Decision = "update"
	DecisionSkip   Decision = "skip"
)

// Preview is one dry-run decision.
type Preview struct {
	ExternalID string   `json:"external_id"`
	Decision   Decision `json:"decision"`
}

// RunStats summarizes one reconciliation run. Counts are reported even on
// partial failure.
type RunStats struct {
	Fetched  int           `json:"fetched"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errors   int           `json:"errors"`
	Status   RunStatus     `json:"status"`
	Duration time.Duration `json:"duration"`
	// LastError is a summary of the last per-record or run-level error.
	LastError string `json:"last_error,omitempty"`
	// Previews holds dry-run decisions; empty for real runs.
	Previews []Preview `json:"previews,omitempty"`
}

// Clean reports whether the run finished without any error.
func (s RunStats) Clean() bool {
	return s.Errors == 0 && s.Status != StatusFailure && s.Status != StatusPartial
}

// MappingStore is the engine's view of the durable mapping table.
type MappingStore interface {
	Lookup(ctx context.Context, externalID string) (destinationID string, found bool, err error)
	Upsert(ctx context.Context, m state.ExternalMapping) error
}

// CursorStore is the engine's view of the per-source sync cursors.
type CursorStore interface {
	ResumeToken(ctx context.Context, sourceName string) (string, error)
	ClearToken(ctx context.Context, sourceName string) error
	RecordAttempt(ctx context.Context, a state.Attempt) error
}

// RunLog is the engine's view of the append-only run history.
type RunLog interface {
	Append(ctx context.Context, run state.SyncRun) error
}
