package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormSectorRepository implements sector.Repository on a region shard.
type GormSectorRepository struct {
	db *gorm.DB
}

// NewGormSectorRepository creates a new GORM sector repository
func NewGormSectorRepository(db *gorm.DB) *GormSectorRepository {
	return &GormSectorRepository{db: db}
}

// CreateBatch persists a generated topology in chunks. Generation is the only
// writer of links, so links have no update path.
func (r *GormSectorRepository) CreateBatch(ctx context.Context, sectors []*sector.Sector, links []*sector.WarpLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sectorModels := make([]SectorModel, 0, len(sectors))
		for _, s := range sectors {
			sectorModels = append(sectorModels, *r.sectorToModel(s))
		}
		if len(sectorModels) > 0 {
			if err := tx.CreateInBatches(sectorModels, 200).Error; err != nil {
				return fmt.Errorf("failed to create sectors: %w", err)
			}
		}
		linkModels := make([]WarpLinkModel, 0, len(links))
		for _, l := range links {
			linkModels = append(linkModels, *r.linkToModel(l))
		}
		if len(linkModels) > 0 {
			if err := tx.CreateInBatches(linkModels, 200).Error; err != nil {
				return fmt.Errorf("failed to create warp links: %w", err)
			}
		}
		return nil
	})
}

// FindByIndex retrieves one sector
func (r *GormSectorRepository) FindByIndex(ctx context.Context, regionID shared.RegionID, index int) (*sector.Sector, error) {
	var model SectorModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND sector_index = ?", regionID.String(), index).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("sector")
		}
		return nil, fmt.Errorf("failed to find sector: %w", result.Error)
	}
	return r.modelToSector(&model), nil
}

// List retrieves a region's full topology ordered by index
func (r *GormSectorRepository) List(ctx context.Context, regionID shared.RegionID) ([]*sector.Sector, error) {
	var models []SectorModel
	result := r.db.WithContext(ctx).
		Where("region_id = ?", regionID.String()).
		Order("sector_index").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list sectors: %w", result.Error)
	}
	sectors := make([]*sector.Sector, 0, len(models))
	for i := range models {
		sectors = append(sectors, r.modelToSector(&models[i]))
	}
	return sectors, nil
}

// LinksFrom retrieves the outgoing edges of a sector
func (r *GormSectorRepository) LinksFrom(ctx context.Context, regionID shared.RegionID, index int) ([]*sector.WarpLink, error) {
	var models []WarpLinkModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND from_sector = ?", regionID.String(), index).
		Order("to_sector").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list warp links: %w", result.Error)
	}
	links := make([]*sector.WarpLink, 0, len(models))
	for i := range models {
		links = append(links, r.modelToLink(&models[i]))
	}
	return links, nil
}

// Links retrieves a region's full edge set for route planning
func (r *GormSectorRepository) Links(ctx context.Context, regionID shared.RegionID) ([]*sector.WarpLink, error) {
	var models []WarpLinkModel
	result := r.db.WithContext(ctx).
		Where("region_id = ?", regionID.String()).
		Order("from_sector, to_sector").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list warp links: %w", result.Error)
	}
	links := make([]*sector.WarpLink, 0, len(models))
	for i := range models {
		links = append(links, r.modelToLink(&models[i]))
	}
	return links, nil
}

// Update saves a sector guarded by its version
func (r *GormSectorRepository) Update(ctx context.Context, s *sector.Sector) error {
	model := r.sectorToModel(s)
	model.Version = s.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", s.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update sector: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("sector changed concurrently")
	}
	s.Version = model.Version
	return nil
}

// Count reports how many sectors the region has
func (r *GormSectorRepository) Count(ctx context.Context, regionID shared.RegionID) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&SectorModel{}).
		Where("region_id = ?", regionID.String()).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count sectors: %w", result.Error)
	}
	return int(count), nil
}

func (r *GormSectorRepository) sectorToModel(s *sector.Sector) *SectorModel {
	return &SectorModel{
		RegionID:     s.RegionID.String(),
		SectorIndex:  s.Index,
		Name:         s.Name,
		Type:         string(s.Type),
		Hazard:       s.Hazard,
		Radiation:    s.Radiation,
		Security:     s.Security,
		Development:  s.Development,
		Traffic:      s.Traffic,
		District:     s.District,
		ControlledBy: s.ControlledBy,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Version:      s.Version,
	}
}

func (r *GormSectorRepository) modelToSector(model *SectorModel) *sector.Sector {
	return &sector.Sector{
		RegionID:     shared.RegionID(model.RegionID),
		Index:        model.SectorIndex,
		Name:         model.Name,
		Type:         sector.Type(model.Type),
		Hazard:       model.Hazard,
		Radiation:    model.Radiation,
		Security:     model.Security,
		Development:  model.Development,
		Traffic:      model.Traffic,
		District:     model.District,
		ControlledBy: model.ControlledBy,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
		Version:      model.Version,
	}
}

func (r *GormSectorRepository) linkToModel(l *sector.WarpLink) *WarpLinkModel {
	return &WarpLinkModel{
		RegionID:    l.RegionID.String(),
		FromSector:  l.FromSector,
		ToSector:    l.ToSector,
		TurnCost:    l.TurnCost,
		Toll:        l.Toll,
		Restriction: string(l.Restriction),
		OneWay:      l.OneWay,
		CreatedAt:   l.CreatedAt,
	}
}

func (r *GormSectorRepository) modelToLink(model *WarpLinkModel) *sector.WarpLink {
	return &sector.WarpLink{
		RegionID:    shared.RegionID(model.RegionID),
		FromSector:  model.FromSector,
		ToSector:    model.ToSector,
		TurnCost:    model.TurnCost,
		Toll:        model.Toll,
		Restriction: sector.Restriction(model.Restriction),
		OneWay:      model.OneWay,
		CreatedAt:   model.CreatedAt,
	}
}
