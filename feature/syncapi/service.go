package syncapi

import (
	"context"
	"fmt"

	"sync-bridge/core/engine"
	"sync-bridge/core/state"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service wires the reconciler, the integration registry and the stores
// behind the HTTP handlers.
type Service struct {
	registry   *engine.Registry
	reconciler *engine.Reconciler
	mappings   *state.MappingStore
	cursors    *state.CursorStore
	runs       *state.RunLogStore
	logger     *zap.Logger
	sf         singleflight.Group
}

// NewService creates a new syncapi service.
func NewService(
	registry *engine.Registry,
	reconciler *engine.Reconciler,
	mappings *state.MappingStore,
	cursors *state.CursorStore,
	runs *state.RunLogStore,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   registry,
		reconciler: reconciler,
		mappings:   mappings,
		cursors:    cursors,
		runs:       runs,
		logger:     logger,
	}
}

// Sources returns the registered integration names.
func (s *Service) Sources() []string {
	return s.registry.Names()
}

// Trigger runs a reconciliation for the named source. Concurrent triggers
// for the same source share a single run via singleflight; rate limits are
// per external system, so coalescing is keyed by source alone.
func (s *Service) Trigger(ctx context.Context, source string, opts engine.Options) (engine.RunStats, error) {
	integ, ok := s.registry.Get(source)
	if !ok {
		return engine.RunStats{}, fmt.Errorf("unknown source %q (registered: %v)", source, s.registry.Names())
	}

	v, err, shared := s.sf.Do(source, func() (any, error) {
		stats, runErr := s.reconciler.Run(ctx, integ, opts)
		// The stats are meaningful even when the run failed; return both.
		return stats, runErr
	})
	if shared {
		s.logger.Info("Run trigger coalesced with in-flight run", zap.String("source", source))
	}

	stats, _ := v.(engine.RunStats)
	return stats, err
}

// SourceStats is the per-source slice of the stats surface.
type SourceStats struct {
	Cursor   state.SyncCursor `json:"cursor"`
	Mappings int64            `json:"mappings"`
}

// Stats returns cursor rows plus mapping counts, optionally scoped to one
// source.
func (s *Service) Stats(ctx context.Context, source string) ([]SourceStats, error) {
	cursors, err := s.cursors.Stats(ctx, source)
	if err != nil {
		return nil, err
	}

	out := make([]SourceStats, 0, len(cursors))
	for _, cur := range cursors {
		kind := ""
		if integ, ok := s.registry.Get(cur.SourceName); ok {
			kind = integ.Kind
		}
		n, err := s.mappings.Count(ctx, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, SourceStats{Cursor: cur, Mappings: n})
	}
	return out, nil
}

// Runs returns the most recent run history rows.
func (s *Service) Runs(ctx context.Context, source string, limit int) ([]state.SyncRun, error) {
	return s.runs.Recent(ctx, source, limit)
}

// Reset clears the cursor and all mappings for a source, forcing the next
// run to perform a clean full resync.
func (s *Service) Reset(ctx context.Context, source string) error {
	if source != "" {
		if _, ok := s.registry.Get(source); !ok {
			return fmt.Errorf("unknown source %q", source)
		}
	}
	return s.cursors.Reset(ctx, source)
}
