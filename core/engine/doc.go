// Package engine implements the idempotent reconciliation engine that moves
// batches of source records into a destination system without creating
// duplicates or losing updates.
//
// The engine is deliberately generic: every integration (a calendar, a
// wearable API, a banking aggregator) is a thin Integration value bundling
// four collaborator functions, and the single Reconciler runs the same
// create-or-update loop for all of them.
//
// # Architecture
//
// 1. Reconciler: fetches a batch (incrementally when a resume token exists),
// transforms each record into an external id plus a destination payload,
// consults the mapping store to decide create vs. update, and records the
// outcome on the cursor store and the run log. One bad record never aborts
// the batch.
//
// 2. RetryPolicy: wraps each destination call, retrying only transient
// failure kinds (rate limited, server unavailable, network timeout) with
// exponential backoff.
//
// 3. Limiter: throttles outbound calls to a configured calls-per-second,
// one instance per external system.
//
// 4. Payload: a typed optional-field builder; only populated fields are
// serialized, making the destination schema an explicit contract.
//
// # Invariants
//
//   - At most one mapping exists per external id, for any number of runs.
//   - A resume token is only advanced after a run whose records were all
//     durably mapped; a failed or partial run never advances it.
//   - Reconciling the same batch twice produces zero additional creates.
//
// # Usage
//
//	rec := engine.NewReconciler(mappings, cursors, runs, retry, logger)
//	stats, err := rec.Run(ctx, integration, engine.Options{})
package engine
