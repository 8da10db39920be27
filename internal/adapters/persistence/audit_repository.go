package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormAuditRecorder implements audit.Recorder on the global shard. Inserts
// retry once; the trail is at-least-once and consumers deduplicate by id.
type GormAuditRecorder struct {
	db *gorm.DB
}

// NewGormAuditRecorder creates a new GORM audit recorder
func NewGormAuditRecorder(db *gorm.DB) *GormAuditRecorder {
	return &GormAuditRecorder{db: db}
}

// Record persists one entry
func (r *GormAuditRecorder) Record(ctx context.Context, entry *audit.Entry) error {
	model, err := r.entryToModel(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err == nil {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// List pages entries newest-first, optionally filtered by category
func (r *GormAuditRecorder) List(ctx context.Context, category audit.Category, page, perPage int) ([]*audit.Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	query := r.db.WithContext(ctx).Model(&AuditEntryModel{})
	if category != "" {
		query = query.Where("category = ?", string(category))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	var models []AuditEntryModel
	result := query.
		Order("occurred_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", result.Error)
	}
	entries := make([]*audit.Entry, 0, len(models))
	for i := range models {
		entry, err := r.modelToEntry(&models[i])
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (r *GormAuditRecorder) entryToModel(entry *audit.Entry) (*AuditEntryModel, error) {
	detail := "{}"
	if len(entry.Detail) > 0 {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit detail: %w", err)
		}
		detail = string(raw)
	}
	return &AuditEntryModel{
		ID:             entry.ID,
		Category:       string(entry.Category),
		Action:         entry.Action,
		ActorAccountID: entry.ActorAccountID.String(),
		ActorIP:        entry.ActorIP,
		Subject:        entry.Subject,
		RegionName:     entry.RegionName,
		RequestID:      entry.RequestID,
		Detail:         detail,
		OccurredAt:     entry.OccurredAt,
	}, nil
}

func (r *GormAuditRecorder) modelToEntry(model *AuditEntryModel) (*audit.Entry, error) {
	var detail map[string]any
	if model.Detail != "" {
		if err := json.Unmarshal([]byte(model.Detail), &detail); err != nil {
			return nil, fmt.Errorf("corrupt detail for audit entry %s: %w", model.ID, err)
		}
	}
	return &audit.Entry{
		ID:             model.ID,
		Category:       audit.Category(model.Category),
		Action:         model.Action,
		ActorAccountID: shared.AccountID(model.ActorAccountID),
		ActorIP:        model.ActorIP,
		Subject:        model.Subject,
		RegionName:     model.RegionName,
		RequestID:      model.RequestID,
		Detail:         detail,
		OccurredAt:     model.OccurredAt,
	}, nil
}
