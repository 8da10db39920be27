package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/treaty"
)

// GormTreatyRepository implements treaty.Repository on the global shard.
type GormTreatyRepository struct {
	db *gorm.DB
}

// NewGormTreatyRepository creates a new GORM treaty repository
func NewGormTreatyRepository(db *gorm.DB) *GormTreatyRepository {
	return &GormTreatyRepository{db: db}
}

// Create persists a proposed treaty
func (r *GormTreatyRepository) Create(ctx context.Context, t *treaty.Treaty) error {
	model, err := r.treatyToModel(t)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create treaty: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a treaty by ID
func (r *GormTreatyRepository) FindByID(ctx context.Context, id shared.TreatyID) (*treaty.Treaty, error) {
	var model TreatyModel
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("treaty")
		}
		return nil, fmt.Errorf("failed to find treaty: %w", result.Error)
	}
	return r.modelToTreaty(&model)
}

// ListByRegion retrieves every treaty a region is party to, newest first
func (r *GormTreatyRepository) ListByRegion(ctx context.Context, regionID shared.RegionID) ([]*treaty.Treaty, error) {
	var models []TreatyModel
	result := r.db.WithContext(ctx).
		Where("region_a = ? OR region_b = ?", regionID.String(), regionID.String()).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list treaties: %w", result.Error)
	}
	return r.modelsToTreaties(models)
}

// ListActiveBetween retrieves the active treaties binding a pair of regions,
// in either orientation.
func (r *GormTreatyRepository) ListActiveBetween(ctx context.Context, a, b shared.RegionID) ([]*treaty.Treaty, error) {
	var models []TreatyModel
	result := r.db.WithContext(ctx).
		Where("status = ? AND ((region_a = ? AND region_b = ?) OR (region_a = ? AND region_b = ?))",
			string(treaty.StatusActive), a.String(), b.String(), b.String(), a.String()).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list treaties: %w", result.Error)
	}
	return r.modelsToTreaties(models)
}

// ListActiveExpiredBefore retrieves active treaties whose term lapsed, for
// the expiry sweep.
func (r *GormTreatyRepository) ListActiveExpiredBefore(ctx context.Context, cutoff time.Time) ([]*treaty.Treaty, error) {
	var models []TreatyModel
	result := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", string(treaty.StatusActive), cutoff).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list treaties: %w", result.Error)
	}
	return r.modelsToTreaties(models)
}

// Update saves a treaty guarded by its version
func (r *GormTreatyRepository) Update(ctx context.Context, t *treaty.Treaty) error {
	model, err := r.treatyToModel(t)
	if err != nil {
		return err
	}
	model.Version = t.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", t.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update treaty: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("treaty changed concurrently")
	}
	t.Version = model.Version
	return nil
}

func (r *GormTreatyRepository) modelsToTreaties(models []TreatyModel) ([]*treaty.Treaty, error) {
	treaties := make([]*treaty.Treaty, 0, len(models))
	for i := range models {
		t, err := r.modelToTreaty(&models[i])
		if err != nil {
			return nil, err
		}
		treaties = append(treaties, t)
	}
	return treaties, nil
}

func (r *GormTreatyRepository) treatyToModel(t *treaty.Treaty) (*TreatyModel, error) {
	terms, err := json.Marshal(t.Terms)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal terms: %w", err)
	}
	return &TreatyModel{
		ID:           t.ID.String(),
		RegionA:      t.RegionA.String(),
		RegionB:      t.RegionB.String(),
		Type:         string(t.Type),
		Terms:        string(terms),
		Status:       string(t.Status),
		SignatoryA:   t.SignatoryA.String(),
		SignatoryB:   t.SignatoryB.String(),
		SignedAtA:    t.SignedAtA,
		SignedAtB:    t.SignedAtB,
		ExpiresAt:    t.ExpiresAt,
		TerminatedBy: t.TerminatedBy.String(),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Version:      t.Version,
	}, nil
}

func (r *GormTreatyRepository) modelToTreaty(model *TreatyModel) (*treaty.Treaty, error) {
	var terms treaty.Terms
	if model.Terms != "" {
		if err := json.Unmarshal([]byte(model.Terms), &terms); err != nil {
			return nil, fmt.Errorf("corrupt terms for treaty %s: %w", model.ID, err)
		}
	}
	return &treaty.Treaty{
		ID:           shared.TreatyID(model.ID),
		RegionA:      shared.RegionID(model.RegionA),
		RegionB:      shared.RegionID(model.RegionB),
		Type:         treaty.Type(model.Type),
		Terms:        terms,
		Status:       treaty.Status(model.Status),
		SignatoryA:   shared.PlayerID(model.SignatoryA),
		SignatoryB:   shared.PlayerID(model.SignatoryB),
		SignedAtA:    model.SignedAtA,
		SignedAtB:    model.SignedAtB,
		ExpiresAt:    model.ExpiresAt,
		TerminatedBy: shared.RegionID(model.TerminatedBy),
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
		Version:      model.Version,
	}, nil
}
