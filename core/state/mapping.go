package state

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// MappingStore provides access to the external_id -> destination_id table.
// Lookups never touch the network; they are the fast local check that decides
// create vs. update for each record.
type MappingStore struct {
	db *gorm.DB
}

// NewMappingStore creates a mapping store on top of an open connection.
func NewMappingStore(db *gorm.DB) *MappingStore {
	return &MappingStore{db: db}
}

// Lookup returns the destination id mapped to the given external id.
// found is false when no mapping exists.
func (s *MappingStore) Lookup(ctx context.Context, externalID string) (destinationID string, found bool, err error) {
	var m ExternalMapping
	err = s.db.WithContext(ctx).
		Select("destination_id").
		Where("external_id = ?", externalID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up mapping %s: %w", externalID, err)
	}
	return m.DestinationID, true, nil
}

// Exists reports whether a mapping exists for the given external id.
func (s *MappingStore) Exists(ctx context.Context, externalID string) (bool, error) {
	_, found, err := s.Lookup(ctx, externalID)
	return found, err
}

// Upsert writes a mapping row. Calling it twice with the same arguments
// leaves a single row; a changed destination id for the same external id
// overwrites the previous one (the destination record was recreated
// upstream). Each call is a single-row transaction, so a failure here never
// corrupts other records' mappings.
func (s *MappingStore) Upsert(ctx context.Context, m ExternalMapping) error {
	if m.ExternalID == "" {
		return fmt.Errorf("mapping upsert requires an external id")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ExternalMapping
		err := tx.Where("external_id = ?", m.ExternalID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&m).Error
		}
		if err != nil {
			return err
		}

		existing.DestinationID = m.DestinationID
		existing.SourceName = m.SourceName
		existing.RecordKind = m.RecordKind
		existing.SyncedFields = m.SyncedFields
		return tx.Save(&existing).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert mapping %s: %w", m.ExternalID, err)
	}
	return nil
}

// SyncedFields returns the ordered set of destination fields this engine is
// authoritative for. Callers use it to avoid clobbering user-edited fields
// outside the synced set.
func (s *MappingStore) SyncedFields(ctx context.Context, externalID string) (FieldList, error) {
	var m ExternalMapping
	err := s.db.WithContext(ctx).
		Select("synced_fields").
		Where("external_id = ?", externalID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load synced fields for %s: %w", externalID, err)
	}
	return m.SyncedFields, nil
}

// Delete removes a mapping. Used when the source record is confirmed deleted
// or cancelled upstream.
func (s *MappingStore) Delete(ctx context.Context, externalID string) error {
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Delete(&ExternalMapping{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete mapping %s: %w", externalID, err)
	}
	return nil
}

// Count returns the number of mappings, optionally scoped to a record kind.
func (s *MappingStore) Count(ctx context.Context, recordKind string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&ExternalMapping{})
	if recordKind != "" {
		q = q.Where("record_kind = ?", recordKind)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count mappings: %w", err)
	}
	return n, nil
}
