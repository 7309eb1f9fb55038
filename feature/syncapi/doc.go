// Package syncapi exposes the reconciliation engine over HTTP.
//
// It provides the operational surface for the sync bridge.
//
// # HTTP Endpoints
//
//   - GET /sync/sources : Lists the registered integrations.
//   - GET /sync/stats : Returns per-source cursor stats and mapping counts.
//   - GET /sync/runs : Returns recent run history (supports ?source= and ?limit=).
//   - POST /sync/:source/run : Triggers a reconciliation (supports ?dry_run=true and ?full=true).
//   - POST /sync/:source/reset : Clears the cursor and mappings for a source.
//
// Run triggers for the same source are coalesced with singleflight, so an
// operator mashing the button cannot start overlapping runs against one
// external system.
package syncapi
