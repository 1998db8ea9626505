package storage

import (
	"context"
	"errors"
	"time"

	"github.com/soapboxlabs/soapbox/internal/suggestions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("storage: database handle is required")

// TenantCounter holds the durable "suggestions created so far" value backing
// sequence allocation.
type TenantCounter struct {
	TenantID string `gorm:"column:tenant_id;primaryKey;size:64;not null"`
	Count    int64  `gorm:"column:count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (TenantCounter) TableName() string {
	return "tenant_counters"
}

// Store implements the suggestions.Repository capability on GORM, plus the
// administrative queries the HTTP surface needs.
type Store struct {
	db *gorm.DB
}

// NewStore constructs the store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Store{db: db}, nil
}

// Settings returns the tenant's settings row, reporting absence without error.
func (s *Store) Settings(ctx context.Context, tenant suggestions.TenantID) (suggestions.TenantSettings, bool, error) {
	var settings suggestions.TenantSettings
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenant.String()).
		Take(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return suggestions.TenantSettings{}, false, nil
	}
	if err != nil {
		return suggestions.TenantSettings{}, false, err
	}
	return settings, true, nil
}

// UpsertSettings creates or replaces the tenant's settings row.
func (s *Store) UpsertSettings(ctx context.Context, settings suggestions.TenantSettings) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(&settings).Error
}

// SequenceCount reads the durable counter; a tenant without a row has count 0.
func (s *Store) SequenceCount(ctx context.Context, tenant suggestions.TenantID) (int64, error) {
	var counter TenantCounter
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenant.String()).
		Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.Count, nil
}

// Insert persists a freshly created suggestion and advances the tenant's
// counter in one transaction. If either write fails, neither sticks, so the
// counter can never trail the suggestions table.
func (s *Store) Insert(ctx context.Context, suggestion *suggestions.Suggestion) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(suggestion).Error; err != nil {
			return err
		}
		return advanceSequence(tx, suggestion.TenantID)
	})
}

// advanceSequence increments the tenant's counter, creating the row on first
// use. Runs inside the Insert transaction.
func advanceSequence(tx *gorm.DB, tenant string) error {
	result := tx.Model(&TenantCounter{}).
		Where("tenant_id = ?", tenant).
		UpdateColumn("count", gorm.Expr("count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return tx.Create(&TenantCounter{TenantID: tenant, Count: 1}).Error
}

// Find returns the suggestion for (tenant, id), reporting absence without error.
func (s *Store) Find(ctx context.Context, tenant suggestions.TenantID, id suggestions.SuggestionID) (*suggestions.Suggestion, bool, error) {
	var suggestion suggestions.Suggestion
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenant.String(), id.Int64()).
		Take(&suggestion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &suggestion, true, nil
}

// UpdateContent replaces the submission text iff the record is still open.
// The replied/archived guards in the predicate keep frozen content immutable
// when an edit races a resolution or archive; a false result means no open
// row matched.
func (s *Store) UpdateContent(ctx context.Context, tenant suggestions.TenantID, id suggestions.SuggestionID, content string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&suggestions.Suggestion{}).
		Where("tenant_id = ? AND id = ? AND replied_at_s IS NULL AND archived_at_s IS NULL", tenant.String(), id.Int64()).
		Update("content", content)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkReplied sets the write-once replied fields. The null guards in the
// predicate make concurrent resolutions race safely (exactly one caller sees
// true) and refuse a reply on a record that was archived after the caller
// last read it: Archived is terminal.
func (s *Store) MarkReplied(ctx context.Context, tenant suggestions.TenantID, id suggestions.SuggestionID, repliedAt time.Time, action suggestions.ResolveAction, response string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&suggestions.Suggestion{}).
		Where("tenant_id = ? AND id = ? AND replied_at_s IS NULL AND archived_at_s IS NULL", tenant.String(), id.Int64()).
		Updates(map[string]interface{}{
			"replied_at_s":     repliedAt.Unix(),
			"replied_action":   action.String(),
			"replied_response": response,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkArchived sets the write-once archived timestamp under the same null
// guard, making archival idempotent.
func (s *Store) MarkArchived(ctx context.Context, tenant suggestions.TenantID, id suggestions.SuggestionID, archivedAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&suggestions.Suggestion{}).
		Where("tenant_id = ? AND id = ? AND archived_at_s IS NULL", tenant.String(), id.Int64()).
		Update("archived_at_s", archivedAt.Unix())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordEvent appends to the audit trail.
func (s *Store) RecordEvent(ctx context.Context, event *suggestions.SuggestionEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// ListSuggestions returns a tenant's suggestions, newest first.
func (s *Store) ListSuggestions(ctx context.Context, tenant suggestions.TenantID, limit int) ([]suggestions.Suggestion, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenant.String()).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []suggestions.Suggestion
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListEvents returns the audit trail for one suggestion in order of
// occurrence.
func (s *Store) ListEvents(ctx context.Context, tenant suggestions.TenantID, id suggestions.SuggestionID) ([]suggestions.SuggestionEvent, error) {
	var events []suggestions.SuggestionEvent
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND suggestion_id = ?", tenant.String(), id.Int64()).
		Order("occurred_at_s ASC, event_id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
