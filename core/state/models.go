package state

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldList is an ordered list of destination field names stored as a JSON
// array in a text column.
type FieldList []string

// Value implements driver.Valuer.
func (f FieldList) Value() (driver.Value, error) {
	if len(f) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(f))
	if err != nil {
		return nil, fmt.Errorf("failed to encode field list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (f *FieldList) Scan(src any) error {
	if src == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported field list source type %T", src)
	}

	if len(data) == 0 {
		*f = nil
		return nil
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode field list: %w", err)
	}
	*f = out
	return nil
}

// ExternalMapping records that one external record already became one
// destination record. external_id is the idempotence key: at most one row
// exists per external record at any time.
type ExternalMapping struct {
	ExternalID    string    `gorm:"column:external_id;primaryKey;size:191" json:"external_id"`
	DestinationID string    `gorm:"column:destination_id;size:191" json:"destination_id"`
	SourceName    string    `gorm:"column:source_name;size:64;index" json:"source_name"`
	RecordKind    string    `gorm:"column:record_kind;size:64;index" json:"record_kind"`
	SyncedFields  FieldList `gorm:"column:synced_fields;type:text" json:"synced_fields,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name.
func (ExternalMapping) TableName() string {
	return "external_mappings"
}

// SyncCursor holds the incremental-sync position for one source. The resume
// token is only replaced after a successful run whose records were already
// durably mapped.
type SyncCursor struct {
	SourceName    string     `gorm:"column:source_name;primaryKey;size:64" json:"source_name"`
	ResumeToken   string     `gorm:"column:resume_token;type:text" json:"resume_token,omitempty"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	LastSuccessAt *time.Time `gorm:"column:last_success_at" json:"last_success_at,omitempty"`
	LastError     string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	TotalSynced   int64      `gorm:"column:total_synced" json:"total_synced"`
	TotalErrors   int64      `gorm:"column:total_errors" json:"total_errors"`
}

// TableName overrides the table name.
func (SyncCursor) TableName() string {
	return "sync_cursors"
}

// SyncRun is one row per reconciliation run. Rows are append-only and never
// mutated after insert; they are removed only by the retention job.
type SyncRun struct {
	ID              string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Timestamp       time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	SourceName      string    `gorm:"column:source_name;size:64;index" json:"source_name"`
	RecordKind      string    `gorm:"column:record_kind;size:64" json:"record_kind"`
	Status          string    `gorm:"column:status;size:16" json:"status"`
	ItemsSynced     int       `gorm:"column:items_synced" json:"items_synced"`
	ItemsUpdated    int       `gorm:"column:items_updated" json:"items_updated"`
	ItemsFailed     int       `gorm:"column:items_failed" json:"items_failed"`
	DurationSeconds float64   `gorm:"column:duration_seconds" json:"duration_seconds"`
	ErrorMessage    string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	Details         string    `gorm:"column:details;type:text" json:"details,omitempty"`
}

// TableName overrides the table name.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// Models returns the schema models for migration.
func Models() []any {
	return []any{&ExternalMapping{}, &SyncCursor{}, &SyncRun{}}
}
