package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sync-bridge/core/storage"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"
)

// RunLogStore provides access to the append-only run history.
type RunLogStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRunLogStore creates a run log store on top of an open connection.
func NewRunLogStore(db *gorm.DB) *RunLogStore {
	return &RunLogStore{db: db, now: time.Now}
}

// Append inserts one run row. Rows are never mutated after insert.
func (s *RunLogStore) Append(ctx context.Context, run SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = s.now()
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to append run log entry: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first, optionally scoped to one
// source.
func (s *RunLogStore) Recent(ctx context.Context, sourceName string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if sourceName != "" {
		q = q.Where("source_name = ?", sourceName)
	}

	var out []SyncRun
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}
	return out, nil
}

// PruneBefore deletes run rows older than the cutoff. When a storage client
// is supplied, the rows are first written to the bucket as a JSONL object so
// the history survives the retention window. Returns the number of rows
// removed.
func (s *RunLogStore) PruneBefore(ctx context.Context, cutoff time.Time, archive storage.Client, bucket string) (int64, error) {
	var old []SyncRun
	err := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Order("timestamp").
		Find(&old).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load prunable runs: %w", err)
	}
	if len(old) == 0 {
		return 0, nil
	}

	if archive != nil {
		if err := s.archiveRuns(ctx, old, cutoff, archive, bucket); err != nil {
			// Do not delete rows we failed to archive.
			return 0, err
		}
	}

	res := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&SyncRun{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune run history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// archiveRuns writes the given rows as one JSONL object per prune invocation.
func (s *RunLogStore) archiveRuns(ctx context.Context, runs []SyncRun, cutoff time.Time, archive storage.Client, bucket string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, run := range runs {
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
		}
	}

	objectName := fmt.Sprintf("archive/sync_runs/%s.jsonl", cutoff.UTC().Format("2006-01-02"))
	_, err := archive.PutObject(ctx, bucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("failed to archive run history to %s: %w", objectName, err)
	}
	return nil
}
