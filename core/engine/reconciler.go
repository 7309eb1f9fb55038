package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sync-bridge/core/state"

	"go.uber.org/zap"
)

// Reconciler runs the create-or-update loop for registered integrations. All
// collaborators are injected; the reconciler owns no global state and is safe
// to share across concurrent runs for distinct sources.
type Reconciler struct {
	mappings MappingStore
	cursors  CursorStore
	runs     RunLog
	retry    *RetryPolicy
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewReconciler creates a reconciler. A nil logger falls back to a no-op
// logger; a nil retry policy falls back to the defaults.
func NewReconciler(mappings MappingStore, cursors CursorStore, runs RunLog, retry *RetryPolicy, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = NewRetryPolicy(3, 2)
	}
	return &Reconciler{
		mappings: mappings,
		cursors:  cursors,
		runs:     runs,
		retry:    retry,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*Limiter),
	}
}

// limiterFor returns the shared limiter for an integration's source. Rate
// limits are per external system, so two runs against the same source share
// one limiter while distinct sources never do.
func (r *Reconciler) limiterFor(integ Integration) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[integ.Source]
	if !ok {
		l = NewLimiter(integ.CallsPerSecond)
		r.limiters[integ.Source] = l
	}
	return l
}

// Run reconciles one batch for the given integration.
//
// Per-record failures (malformed records, exhausted retries) are counted and
// never abort the batch. Run-level failures (fetch failure, permanent faults,
// unavailable cursor store) abort the remaining batch and are returned;
// stats are populated either way. Cancellation is honored between records,
// never mid-record, so a destination call and its mapping write are never
// left inconsistent with each other.
func (r *Reconciler) Run(ctx context.Context, integ Integration, opts Options) (RunStats, error) {
	start := r.now()
	stats := RunStats{}
	log := r.logger.With(
		zap.String("source", integ.Source),
		zap.String("kind", integ.Kind),
		zap.Bool("dry_run", opts.DryRun),
	)

	if integ.Source == "" || integ.Fetch == nil || integ.Transform == nil {
		return stats, fmt.Errorf("integration %q is missing collaborators", integ.Source)
	}
	if integ.Destination == nil && !opts.DryRun {
		return stats, fmt.Errorf("integration %q has no destination", integ.Source)
	}

	result, err := r.fetch(ctx, integ, opts, log)
	if err != nil {
		stats.Status = StatusFailure
		stats.LastError = err.Error()
		stats.Duration = r.now().Sub(start)
		if !opts.DryRun {
			if cerr := r.cursors.RecordAttempt(ctx, state.Attempt{
				SourceName: integ.Source,
				Success:    false,
				Error:      stats.LastError,
				Failed:     1,
			}); cerr != nil {
				log.Error("Failed to record attempt", zap.Error(cerr))
			}
			r.finish(ctx, integ, stats, log)
		}
		return stats, fmt.Errorf("fetch failed for %s: %w", integ.Source, err)
	}

	stats.Fetched = len(result.Records)
	newToken := result.ResumeToken

	limiter := r.limiterFor(integ)

	// Tracks external ids already handled in this batch, so a duplicate
	// upstream record becomes an update of the first occurrence's freshly
	// created mapping, never a second create.
	seen := make(map[string]string, len(result.Records))

	var runErr error
	cancelled := false

	for _, rec := range result.Records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		externalID, payload, terr := integ.Transform(rec)
		if terr != nil {
			stats.Errors++
			stats.LastError = NewFault(KindRecordInvalid, terr).Error()
			log.Warn("Record transform failed", zap.Error(terr))
			continue
		}
		if externalID == "" {
			stats.Skipped++
			continue
		}
		if payload == nil {
			stats.Errors++
			stats.LastError = Faultf(KindRecordInvalid, "transform returned no payload for %s", externalID).Error()
			log.Warn("Record transform returned no payload", zap.String("external_id", externalID))
			continue
		}

		destID, found, lerr := r.mappings.Lookup(ctx, externalID)
		if lerr != nil {
			stats.Errors++
			stats.LastError = lerr.Error()
			log.Warn("Mapping lookup failed", zap.String("external_id", externalID), zap.Error(lerr))
			continue
		}
		if !found {
			if prior, dup := seen[externalID]; dup {
				destID, found = prior, true
			}
		}

		if opts.DryRun {
			decision := DecisionCreate
			if found {
				decision = DecisionUpdate
			}
			stats.Previews = append(stats.Previews, Preview{ExternalID: externalID, Decision: decision})
			if found {
				stats.Updated++
			} else {
				stats.Created++
			}
			seen[externalID] = destID
			continue
		}

		var callErr error
		if !found {
			callErr = r.retry.Do(ctx, func() error {
				if werr := limiter.Wait(ctx); werr != nil {
					return werr
				}
				id, cerr := integ.Destination.Create(ctx, payload)
				if cerr != nil {
					return cerr
				}
				destID = id
				return nil
			})
		} else {
			callErr = r.retry.Do(ctx, func() error {
				if werr := limiter.Wait(ctx); werr != nil {
					return werr
				}
				return integ.Destination.Update(ctx, destID, payload)
			})
		}

		if callErr != nil {
			stats.Errors++
			stats.LastError = callErr.Error()
			if IsPermanent(callErr) {
				// Further calls will fail identically; stop burning quota.
				runErr = fmt.Errorf("permanent failure for %s: %w", integ.Source, callErr)
				log.Error("Aborting remaining batch", zap.String("external_id", externalID), zap.Error(callErr))
				break
			}
			log.Warn("Destination call failed", zap.String("external_id", externalID), zap.Error(callErr))
			continue
		}

		if uerr := r.mappings.Upsert(ctx, state.ExternalMapping{
			ExternalID:    externalID,
			DestinationID: destID,
			SourceName:    integ.Source,
			RecordKind:    integ.Kind,
			SyncedFields:  state.FieldList(payload.Fields()),
		}); uerr != nil {
			stats.Errors++
			stats.LastError = uerr.Error()
			log.Warn("Mapping write failed", zap.String("external_id", externalID), zap.Error(uerr))
			continue
		}

		seen[externalID] = destID
		if found {
			stats.Updated++
		} else {
			stats.Created++
		}
	}

	stats.Duration = r.now().Sub(start)
	stats.Status = runStatus(stats, runErr != nil, cancelled)

	if opts.DryRun {
		return stats, nil
	}

	attempt := state.Attempt{
		SourceName: integ.Source,
		Success:    stats.Status == StatusSuccess,
		Error:      stats.LastError,
		Synced:     stats.Created + stats.Updated,
		Failed:     stats.Errors,
	}
	// The token only advances after the whole batch was durably mapped;
	// never speculatively.
	if attempt.Success {
		attempt.ResumeToken = newToken
	}
	if cerr := r.cursors.RecordAttempt(ctx, attempt); cerr != nil {
		log.Error("Failed to record attempt", zap.Error(cerr))
		if runErr == nil {
			runErr = cerr
		}
	}

	r.finish(ctx, integ, stats, log)

	log.Info("Reconciliation finished",
		zap.String("status", string(stats.Status)),
		zap.Int("fetched", stats.Fetched),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", stats.Duration),
	)

	return stats, runErr
}

// fetch performs step 1 of the run: read the stored resume token when
// incremental sync is on, fetch, and fall back once to a full-window fetch if
// the source rejects the token as stale.
func (r *Reconciler) fetch(ctx context.Context, integ Integration, opts Options, log *zap.Logger) (FetchResult, error) {
	window := r.windowFor(integ)

	token := ""
	if integ.Incremental && !opts.Full {
		var err error
		token, err = r.cursors.ResumeToken(ctx, integ.Source)
		if err != nil {
			return FetchResult{}, err
		}
	}

	result, err := integ.Fetch(ctx, token, window)
	if err != nil && token != "" && KindOf(err) == KindTokenInvalid {
		log.Warn("Resume token rejected, refetching full window")
		if !opts.DryRun {
			if cerr := r.cursors.ClearToken(ctx, integ.Source); cerr != nil {
				return FetchResult{}, cerr
			}
		}
		result, err = integ.Fetch(ctx, "", window)
	}
	if err != nil {
		return FetchResult{}, err
	}
	return result, nil
}

// windowFor derives the full-window bounds from the integration's configured
// lookback/lookahead range.
func (r *Reconciler) windowFor(integ Integration) Window {
	now := r.now()
	w := Window{}
	if integ.Lookback > 0 {
		w.Start = now.Add(-integ.Lookback)
	}
	if integ.Lookahead > 0 {
		w.End = now.Add(integ.Lookahead)
	}
	return w
}

// finish appends the run history row. Append failures are logged, not
// returned; the run outcome itself is already decided.
func (r *Reconciler) finish(ctx context.Context, integ Integration, stats RunStats, log *zap.Logger) {
	details, _ := json.Marshal(map[string]any{
		"fetched": stats.Fetched,
		"skipped": stats.Skipped,
	})

	run := state.SyncRun{
		Timestamp:       r.now(),
		SourceName:      integ.Source,
		RecordKind:      integ.Kind,
		Status:          string(stats.Status),
		ItemsSynced:     stats.Created + stats.Updated,
		ItemsUpdated:    stats.Updated,
		ItemsFailed:     stats.Errors,
		DurationSeconds: stats.Duration.Seconds(),
		ErrorMessage:    stats.LastError,
		Details:         string(details),
	}
	if err := r.runs.Append(ctx, run); err != nil {
		log.Error("Failed to append run history", zap.Error(err))
	}
}

// runStatus derives the logged status from the counters.
func runStatus(stats RunStats, aborted, cancelled bool) RunStatus {
	switch {
	case stats.Errors == 0 && !aborted && !cancelled:
		return StatusSuccess
	case stats.Created+stats.Updated > 0 || cancelled:
		return StatusPartial
	default:
		return StatusFailure
	}
}
