package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sync-bridge/core/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMappings is an in-memory mapping store.
type fakeMappings struct {
	rows      map[string]state.ExternalMapping
	lookupErr error
	upsertErr error
	upserts   int
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{rows: make(map[string]state.ExternalMapping)}
}

func (f *fakeMappings) Lookup(ctx context.Context, externalID string) (string, bool, error) {
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	m, ok := f.rows[externalID]
	if !ok {
		return "", false, nil
	}
	return m.DestinationID, true, nil
}

func (f *fakeMappings) Upsert(ctx context.Context, m state.ExternalMapping) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.rows[m.ExternalID] = m
	return nil
}

// fakeCursors is an in-memory cursor store.
type fakeCursors struct {
	tokens   map[string]string
	attempts []state.Attempt
	cleared  int
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{tokens: make(map[string]string)}
}

func (f *fakeCursors) ResumeToken(ctx context.Context, source string) (string, error) {
	return f.tokens[source], nil
}

func (f *fakeCursors) ClearToken(ctx context.Context, source string) error {
	f.cleared++
	delete(f.tokens, source)
	return nil
}

func (f *fakeCursors) RecordAttempt(ctx context.Context, a state.Attempt) error {
	f.attempts = append(f.attempts, a)
	if a.Success && a.ResumeToken != "" {
		f.tokens[a.SourceName] = a.ResumeToken
	}
	return nil
}

// fakeRuns is an in-memory run log.
type fakeRuns struct {
	runs []state.SyncRun
}

func (f *fakeRuns) Append(ctx context.Context, run state.SyncRun) error {
	f.runs = append(f.runs, run)
	return nil
}

// fakeDestination records create/update calls and assigns sequential ids.
type fakeDestination struct {
	createCalls int
	updateCalls int
	createErr   func(call int) error
	updateErr   func(call int) error
	updated     map[string]int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{updated: make(map[string]int)}
}

func (f *fakeDestination) Create(ctx context.Context, payload *Payload) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		if err := f.createErr(f.createCalls); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("dest-%d", f.createCalls), nil
}

func (f *fakeDestination) Update(ctx context.Context, destinationID string, payload *Payload) error {
	f.updateCalls++
	if f.updateErr != nil {
		if err := f.updateErr(f.updateCalls); err != nil {
			return err
		}
	}
	f.updated[destinationID]++
	return nil
}

type testRecord struct {
	ID    string
	Title string
}

func testTransform(record RawRecord) (string, *Payload, error) {
	rec, ok := record.(testRecord)
	if !ok {
		return "", nil, fmt.Errorf("unexpected record type %T", record)
	}
	payload := NewPayload().
		SetString("title", rec.Title).
		SetString("source_id", rec.ID)
	return rec.ID, payload, nil
}

func staticFetch(records []RawRecord, token string) FetchFunc {
	return func(ctx context.Context, resumeToken string, window Window) (FetchResult, error) {
		return FetchResult{Records: records, ResumeToken: token}, nil
	}
}

func newTestReconciler(m *fakeMappings, c *fakeCursors, r *fakeRuns) *Reconciler {
	rec := NewReconciler(m, c, r, NewRetryPolicy(2, 2), nil)
	rec.retry.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return rec
}

func TestRun_CreateThenUpdate(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	batch := []RawRecord{
		testRecord{ID: "a", Title: "A"},
		testRecord{ID: "b", Title: "B"},
		testRecord{ID: "c", Title: "C"},
	}
	integ := Integration{
		Source:      "test_source",
		Kind:        "test_record",
		Fetch:       staticFetch(batch, "token-1"),
		Transform:   testTransform,
		Destination: dest,
		Incremental: true,
	}

	// First run: nothing mapped yet, everything is created.
	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, StatusSuccess, stats.Status)
	assert.Equal(t, 3, dest.createCalls)
	assert.Len(t, mappings.rows, 3)

	// Token advanced only after the batch was durably mapped.
	require.Len(t, cursors.attempts, 1)
	assert.True(t, cursors.attempts[0].Success)
	assert.Equal(t, "token-1", cursors.attempts[0].ResumeToken)

	// One run row appended.
	require.Len(t, runs.runs, 1)
	assert.Equal(t, "success", runs.runs[0].Status)
	assert.Equal(t, 3, runs.runs[0].ItemsSynced)

	// Second run over the same batch: idempotent, zero additional creates.
	stats, err = rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 3, stats.Updated)
	assert.Equal(t, 3, dest.createCalls, "re-running the same batch must not create again")
	assert.Equal(t, 3, dest.updateCalls)
	assert.Len(t, mappings.rows, 3, "at most one mapping per external id")
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	transform := func(record RawRecord) (string, *Payload, error) {
		rec := record.(testRecord)
		if rec.ID == "b" {
			return "", nil, fmt.Errorf("malformed record")
		}
		return testTransform(record)
	}

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "A"},
			testRecord{ID: "b", Title: "B"},
		}, "token-1"),
		Transform:   transform,
		Destination: dest,
		Incremental: true,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err, "per-record errors never abort the batch")
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, StatusPartial, stats.Status)

	_, found, _ := mappings.Lookup(context.Background(), "a")
	assert.True(t, found)
	_, found, _ = mappings.Lookup(context.Background(), "b")
	assert.False(t, found)

	// A run with errors never advances the token.
	require.Len(t, cursors.attempts, 1)
	assert.False(t, cursors.attempts[0].Success)
	assert.Empty(t, cursors.tokens["test_source"])
}

func TestRun_NilPayloadIsCountedAndSkipped(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	transform := func(record RawRecord) (string, *Payload, error) {
		rec := record.(testRecord)
		if rec.ID == "b" {
			// Degenerate result: an id but no payload to send.
			return rec.ID, nil, nil
		}
		return testTransform(record)
	}

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "A"},
			testRecord{ID: "b", Title: "B"},
			testRecord{ID: "c", Title: "C"},
		}, "token-1"),
		Transform:   transform,
		Destination: dest,
		Incremental: true,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err, "one bad record never aborts the batch")
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, StatusPartial, stats.Status)
	assert.Contains(t, stats.LastError, string(KindRecordInvalid))
	assert.Equal(t, 2, dest.createCalls, "the payloadless record never reaches the destination")

	_, found, _ := mappings.Lookup(context.Background(), "b")
	assert.False(t, found)
	assert.Empty(t, cursors.tokens["test_source"])
}

func TestRun_DuplicateExternalIDInBatch(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "first"},
			testRecord{ID: "a", Title: "second"},
		}, ""),
		Transform:   testTransform,
		Destination: dest,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, dest.createCalls, "a duplicate upstream record must never create twice")
	assert.Equal(t, 1, dest.updateCalls)
	assert.Len(t, mappings.rows, 1)
}

func TestRun_TokenInvalidFallsBackOnce(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	cursors.tokens["test_source"] = "stale-token"
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	fetches := 0
	fetch := func(ctx context.Context, resumeToken string, window Window) (FetchResult, error) {
		fetches++
		if resumeToken != "" {
			return FetchResult{}, Faultf(KindTokenInvalid, "token expired")
		}
		return FetchResult{
			Records:     []RawRecord{testRecord{ID: "a", Title: "A"}},
			ResumeToken: "fresh-token",
		}, nil
	}

	integ := Integration{
		Source:      "test_source",
		Kind:        "test_record",
		Fetch:       fetch,
		Transform:   testTransform,
		Destination: dest,
		Incremental: true,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, fetches, "exactly one unscoped fallback fetch")
	assert.Equal(t, 1, cursors.cleared)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, "fresh-token", cursors.tokens["test_source"])
}

func TestRun_TokenNotAdvancedWhenFallbackFails(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	cursors.tokens["test_source"] = "stale-token"
	runs := &fakeRuns{}
	rec := newTestReconciler(mappings, cursors, runs)

	fetch := func(ctx context.Context, resumeToken string, window Window) (FetchResult, error) {
		if resumeToken != "" {
			return FetchResult{}, Faultf(KindTokenInvalid, "token expired")
		}
		return FetchResult{}, Faultf(KindServerUnavailable, "still down")
	}

	integ := Integration{
		Source:      "test_source",
		Kind:        "test_record",
		Fetch:       fetch,
		Transform:   testTransform,
		Destination: newFakeDestination(),
		Incremental: true,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.Error(t, err)
	assert.Equal(t, StatusFailure, stats.Status)

	// The failed attempt is recorded, but no token is stored.
	require.Len(t, cursors.attempts, 1)
	assert.False(t, cursors.attempts[0].Success)
	assert.Empty(t, cursors.tokens["test_source"])
}

func TestRun_PermanentFailureAbortsBatch(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	dest.createErr = func(call int) error {
		return Faultf(KindUnauthorized, "api key revoked")
	}
	rec := newTestReconciler(mappings, cursors, runs)

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "A"},
			testRecord{ID: "b", Title: "B"},
			testRecord{ID: "c", Title: "C"},
		}, ""),
		Transform:   testTransform,
		Destination: dest,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, dest.createCalls, "further calls would fail identically")
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, StatusFailure, stats.Status)
	assert.Empty(t, mappings.rows)
}

func TestRun_TransientFailureIsRetriedPerRecord(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	dest.createErr = func(call int) error {
		return Faultf(KindRateLimited, "slow down")
	}
	rec := newTestReconciler(mappings, cursors, runs) // 2 retries

	integ := Integration{
		Source:      "test_source",
		Kind:        "test_record",
		Fetch:       staticFetch([]RawRecord{testRecord{ID: "a", Title: "A"}}, ""),
		Transform:   testTransform,
		Destination: dest,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err, "an exhausted record is a per-record error, not a run error")
	assert.Equal(t, 3, dest.createCalls, "max_retries+1 attempts")
	assert.Equal(t, 1, stats.Errors)
	assert.Empty(t, mappings.rows)
}

func TestRun_DryRunMutatesNothing(t *testing.T) {
	mappings := newFakeMappings()
	mappings.rows["a"] = state.ExternalMapping{ExternalID: "a", DestinationID: "dest-9"}
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "A"},
			testRecord{ID: "b", Title: "B"},
		}, "token-1"),
		Transform:   testTransform,
		Destination: dest,
		Incremental: true,
	}

	stats, err := rec.Run(context.Background(), integ, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	require.Len(t, stats.Previews, 2)
	assert.Equal(t, DecisionUpdate, stats.Previews[0].Decision)
	assert.Equal(t, DecisionCreate, stats.Previews[1].Decision)

	assert.Equal(t, 0, dest.createCalls)
	assert.Equal(t, 0, dest.updateCalls)
	assert.Equal(t, 0, mappings.upserts)
	assert.Empty(t, cursors.attempts)
	assert.Empty(t, runs.runs)
}

func TestRun_CancellationBetweenRecords(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	ctx, cancel := context.WithCancel(context.Background())

	transform := func(record RawRecord) (string, *Payload, error) {
		// Cancel while the first record is in flight; it must still finish.
		cancel()
		return testTransform(record)
	}

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "A"},
			testRecord{ID: "b", Title: "B"},
		}, "token-1"),
		Transform:   transform,
		Destination: dest,
		Incremental: true,
	}

	stats, err := rec.Run(ctx, integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created, "the in-flight record finishes")
	assert.Equal(t, StatusPartial, stats.Status)
	assert.Len(t, mappings.rows, 1)

	// A partial run never advances the token.
	require.Len(t, cursors.attempts, 1)
	assert.False(t, cursors.attempts[0].Success)
}

func TestRun_SkippedRecords(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	transform := func(record RawRecord) (string, *Payload, error) {
		rec := record.(testRecord)
		if rec.ID == "b" {
			// Out of scope for this integration; skip without error.
			return "", nil, nil
		}
		return testTransform(record)
	}

	integ := Integration{
		Source: "test_source",
		Kind:   "test_record",
		Fetch: staticFetch([]RawRecord{
			testRecord{ID: "a", Title: "A"},
			testRecord{ID: "b", Title: "B"},
		}, ""),
		Transform:   transform,
		Destination: dest,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, StatusSuccess, stats.Status)
}

func TestRun_FullIgnoresStoredToken(t *testing.T) {
	mappings := newFakeMappings()
	cursors := newFakeCursors()
	cursors.tokens["test_source"] = "stored-token"
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	var gotToken string
	fetch := func(ctx context.Context, resumeToken string, window Window) (FetchResult, error) {
		gotToken = resumeToken
		return FetchResult{
			Records:     []RawRecord{testRecord{ID: "a", Title: "A"}},
			ResumeToken: "next-token",
		}, nil
	}

	integ := Integration{
		Source:      "test_source",
		Kind:        "test_record",
		Fetch:       fetch,
		Transform:   testTransform,
		Destination: dest,
		Incremental: true,
	}

	stats, err := rec.Run(context.Background(), integ, Options{Full: true})
	require.NoError(t, err)
	assert.Empty(t, gotToken, "--full fetches the full window")
	assert.Equal(t, 1, stats.Created)
	// The token reported by the full fetch is still captured for next time.
	assert.Equal(t, "next-token", cursors.tokens["test_source"])
}

func TestRun_MappingWriteFailureIsPerRecord(t *testing.T) {
	mappings := newFakeMappings()
	mappings.upsertErr = fmt.Errorf("storage unavailable")
	cursors := newFakeCursors()
	runs := &fakeRuns{}
	dest := newFakeDestination()
	rec := newTestReconciler(mappings, cursors, runs)

	integ := Integration{
		Source:      "test_source",
		Kind:        "test_record",
		Fetch:       staticFetch([]RawRecord{testRecord{ID: "a", Title: "A"}}, "token-1"),
		Transform:   testTransform,
		Destination: dest,
	}

	stats, err := rec.Run(context.Background(), integ, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Created)
	require.Len(t, cursors.attempts, 1)
	assert.False(t, cursors.attempts[0].Success)
}
