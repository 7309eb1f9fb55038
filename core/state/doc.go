// Package state owns the durable reconciliation state: the mapping table,
// the per-source sync cursors, and the append-only run history.
//
// It provides three stores backed by GORM:
//
//   - MappingStore: the external_id -> destination_id table that makes
//     repeated reconciliation runs idempotent (create vs. update decision).
//   - CursorStore: one row per source holding the resume token, last
//     attempt/success timestamps and monotonic counters.
//   - RunLogStore: append-only log of run outcomes with time-based pruning
//     and optional archival to object storage.
//
// All writes are single-row transactions keyed by external_id or
// source_name, so independent reconciliations for different sources can
// share the same database safely.
//
// # Usage
//
//	mappings := state.NewMappingStore(db)
//	id, found, err := mappings.Lookup(ctx, "gcal:abc123")
package state
