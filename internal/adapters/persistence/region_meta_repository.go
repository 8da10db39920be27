package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormRegionMetaStore implements region.MetaStore over one region shard.
type GormRegionMetaStore struct {
	db *gorm.DB
}

// NewGormRegionMetaStore creates a new GORM region meta store
func NewGormRegionMetaStore(db *gorm.DB) *GormRegionMetaStore {
	return &GormRegionMetaStore{db: db}
}

// Init writes the bookkeeping row when the shard is provisioned. Idempotent:
// re-running provisioning leaves an existing row alone.
func (s *GormRegionMetaStore) Init(ctx context.Context, regionID shared.RegionID, regionName string, seed int64, now time.Time) error {
	model := RegionMetaModel{
		RegionID:   regionID.String(),
		RegionName: regionName,
		Seed:       seed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Create(&model).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to init region meta: %w", err)
	}
	return nil
}

// Get retrieves the shard's bookkeeping row
func (s *GormRegionMetaStore) Get(ctx context.Context) (*region.Meta, error) {
	var model RegionMetaModel
	result := s.db.WithContext(ctx).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("region meta")
		}
		return nil, fmt.Errorf("failed to read region meta: %w", result.Error)
	}
	return &region.Meta{
		RegionID:   shared.RegionID(model.RegionID),
		RegionName: model.RegionName,
		Seed:       model.Seed,
		Tick:       model.Tick,
		LastTickAt: model.LastTickAt,
	}, nil
}

// AdvanceTick increments the simulation clock and returns the new tick index
func (s *GormRegionMetaStore) AdvanceTick(ctx context.Context, now time.Time) (int64, error) {
	var tick int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model RegionMetaModel
		if err := tx.First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.NewNotFoundError("region meta")
			}
			return fmt.Errorf("failed to read region meta: %w", err)
		}
		tick = model.Tick + 1
		result := tx.Model(&RegionMetaModel{}).
			Where("region_id = ? AND tick = ?", model.RegionID, model.Tick).
			Updates(map[string]any{"tick": tick, "last_tick_at": now, "updated_at": now})
		if result.Error != nil {
			return fmt.Errorf("failed to advance tick: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewConflictError("tick advanced concurrently")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tick, nil
}
