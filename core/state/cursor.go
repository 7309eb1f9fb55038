package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Attempt describes the outcome of one reconciliation run as recorded on the
// cursor row. ResumeToken is only applied when Success is true and the token
// is non-empty; an empty token preserves whatever was stored before, which
// matters when a run fetched zero records and has nothing new to resume from.
type Attempt struct {
	SourceName  string
	Success     bool
	ResumeToken string
	Error       string
	Synced      int
	Failed      int
}

// CursorStore provides access to the per-source sync cursors. A cursor row is
// created lazily on the first run for a source and mutated once per run.
type CursorStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCursorStore creates a cursor store on top of an open connection.
func NewCursorStore(db *gorm.DB) *CursorStore {
	return &CursorStore{db: db, now: time.Now}
}

// ResumeToken returns the stored resume token for a source, or "" when the
// source has never completed a run.
func (s *CursorStore) ResumeToken(ctx context.Context, sourceName string) (string, error) {
	cur, err := s.get(ctx, sourceName)
	if err != nil {
		return "", err
	}
	if cur == nil {
		return "", nil
	}
	return cur.ResumeToken, nil
}

// LastSuccess returns the timestamp of the last successful run for a source,
// or nil when none succeeded yet.
func (s *CursorStore) LastSuccess(ctx context.Context, sourceName string) (*time.Time, error) {
	cur, err := s.get(ctx, sourceName)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, nil
	}
	return cur.LastSuccessAt, nil
}

// ClearToken drops the stored resume token for a source. The reconciler calls
// this when the source rejects the token as stale before falling back to a
// full-window fetch.
func (s *CursorStore) ClearToken(ctx context.Context, sourceName string) error {
	err := s.db.WithContext(ctx).
		Model(&SyncCursor{}).
		Where("source_name = ?", sourceName).
		Update("resume_token", "").Error
	if err != nil {
		return fmt.Errorf("failed to clear resume token for %s: %w", sourceName, err)
	}
	return nil
}

// apply folds one run's outcome into the cursor row. On success it sets
// last_success_at, clears last_error, counts the synced records and
// overwrites the resume token only when a new one was supplied. On failure
// it stores the error, bumps the error counter and leaves the resume token
// and total_synced untouched, so a failed run can never advance the cursor
// past records that were not durably mapped.
func (c *SyncCursor) apply(a Attempt, now time.Time) {
	c.LastAttemptAt = &now

	if a.Success {
		c.LastSuccessAt = &now
		c.LastError = ""
		c.TotalSynced += int64(a.Synced)
		if a.ResumeToken != "" {
			c.ResumeToken = a.ResumeToken
		}
		return
	}

	c.LastError = a.Error
	failed := a.Failed
	if failed == 0 {
		failed = 1
	}
	c.TotalErrors += int64(failed)
}

// RecordAttempt applies one run's outcome to the cursor row, creating it on
// the source's first run.
func (s *CursorStore) RecordAttempt(ctx context.Context, a Attempt) error {
	if a.SourceName == "" {
		return fmt.Errorf("attempt requires a source name")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur SyncCursor
		err := tx.Where("source_name = ?", a.SourceName).First(&cur).Error
		isNew := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !isNew {
			return err
		}
		if isNew {
			cur = SyncCursor{SourceName: a.SourceName}
		}

		cur.apply(a, s.now())

		if isNew {
			return tx.Create(&cur).Error
		}
		return tx.Save(&cur).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record attempt for %s: %w", a.SourceName, err)
	}
	return nil
}

// Reset clears cursors and, transactionally, all mappings whose source
// matches. An empty source name resets everything. Used to force a clean full
// resync after detected drift.
func (s *CursorStore) Reset(ctx context.Context, sourceName string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		curs := tx.Session(&gorm.Session{})
		maps := tx.Session(&gorm.Session{})
		if sourceName != "" {
			curs = curs.Where("source_name = ?", sourceName)
			maps = maps.Where("source_name = ?", sourceName)
		} else {
			curs = curs.Where("1 = 1")
			maps = maps.Where("1 = 1")
		}

		if err := curs.Delete(&SyncCursor{}).Error; err != nil {
			return err
		}
		return maps.Delete(&ExternalMapping{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to reset sync state: %w", err)
	}
	return nil
}

// Stats returns cursor rows, optionally scoped to one source.
func (s *CursorStore) Stats(ctx context.Context, sourceName string) ([]SyncCursor, error) {
	q := s.db.WithContext(ctx).Order("source_name")
	if sourceName != "" {
		q = q.Where("source_name = ?", sourceName)
	}

	var out []SyncCursor
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load cursor stats: %w", err)
	}
	return out, nil
}

func (s *CursorStore) get(ctx context.Context, sourceName string) (*SyncCursor, error) {
	var cur SyncCursor
	err := s.db.WithContext(ctx).
		Where("source_name = ?", sourceName).
		First(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor for %s: %w", sourceName, err)
	}
	return &cur, nil
}
