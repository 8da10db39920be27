package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormPlanetRepository implements planet.Repository on a region shard.
type GormPlanetRepository struct {
	db *gorm.DB
}

// NewGormPlanetRepository creates a new GORM planet repository
func NewGormPlanetRepository(db *gorm.DB) *GormPlanetRepository {
	return &GormPlanetRepository{db: db}
}

// Create persists one planet
func (r *GormPlanetRepository) Create(ctx context.Context, p *planet.Planet) error {
	model, err := r.planetToModel(p)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create planet: %w", result.Error)
	}
	return nil
}

// CreateBatch persists generated planets in chunks
func (r *GormPlanetRepository) CreateBatch(ctx context.Context, planets []*planet.Planet) error {
	models := make([]PlanetModel, 0, len(planets))
	for _, p := range planets {
		model, err := r.planetToModel(p)
		if err != nil {
			return err
		}
		models = append(models, *model)
	}
	if len(models) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).CreateInBatches(models, 200)
	if result.Error != nil {
		return fmt.Errorf("failed to create planets: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a planet by ID
func (r *GormPlanetRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.PlanetID) (*planet.Planet, error) {
	var model PlanetModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("planet")
		}
		return nil, fmt.Errorf("failed to find planet: %w", result.Error)
	}
	return r.modelToPlanet(&model)
}

// ListBySector retrieves the planets of one sector
func (r *GormPlanetRepository) ListBySector(ctx context.Context, regionID shared.RegionID, sector int) ([]*planet.Planet, error) {
	var models []PlanetModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND sector = ?", regionID.String(), sector).
		Order("name").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list planets: %w", result.Error)
	}
	return r.modelsToPlanets(models)
}

// ListByOwner retrieves a player's colonies
func (r *GormPlanetRepository) ListByOwner(ctx context.Context, regionID shared.RegionID, ownerID shared.PlayerID) ([]*planet.Planet, error) {
	var models []PlanetModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND owner_id = ?", regionID.String(), ownerID.String()).
		Order("sector").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list planets: %w", result.Error)
	}
	return r.modelsToPlanets(models)
}

// ListColonized retrieves every claimed planet, the colony tick's work list
func (r *GormPlanetRepository) ListColonized(ctx context.Context, regionID shared.RegionID) ([]*planet.Planet, error) {
	var models []PlanetModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND owner_id <> ''", regionID.String()).
		Order("sector").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list planets: %w", result.Error)
	}
	return r.modelsToPlanets(models)
}

// Update saves a planet guarded by its version
func (r *GormPlanetRepository) Update(ctx context.Context, p *planet.Planet) error {
	model, err := r.planetToModel(p)
	if err != nil {
		return err
	}
	model.Version = p.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", p.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update planet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("planet changed concurrently")
	}
	p.Version = model.Version
	return nil
}

func (r *GormPlanetRepository) modelsToPlanets(models []PlanetModel) ([]*planet.Planet, error) {
	planets := make([]*planet.Planet, 0, len(models))
	for i := range models {
		p, err := r.modelToPlanet(&models[i])
		if err != nil {
			return nil, err
		}
		planets = append(planets, p)
	}
	return planets, nil
}

func (r *GormPlanetRepository) planetToModel(p *planet.Planet) (*PlanetModel, error) {
	allocation, err := json.Marshal(p.Allocation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allocation: %w", err)
	}
	stockpile, err := json.Marshal(p.Stockpile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stockpile: %w", err)
	}
	buildings, err := json.Marshal(p.Buildings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal buildings: %w", err)
	}
	return &PlanetModel{
		ID:             p.ID.String(),
		RegionID:       p.RegionID.String(),
		Sector:         p.Sector,
		Name:           p.Name,
		Type:           string(p.Type),
		OwnerID:        p.OwnerID.String(),
		Population:     p.Population,
		Allocation:     string(allocation),
		Stockpile:      string(stockpile),
		Buildings:      string(buildings),
		CitadelLevel:   p.CitadelLevel,
		ShieldLevel:    p.ShieldLevel,
		DronesStation:  p.DronesStation,
		UnderSiege:     p.UnderSiege,
		SiegeProgress:  p.SiegeProgress,
		GenesisCreated: p.GenesisCreated,
		LastTickIndex:  p.LastTickIndex,
		ColonizedAt:    p.ColonizedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		Version:        p.Version,
	}, nil
}

func (r *GormPlanetRepository) modelToPlanet(model *PlanetModel) (*planet.Planet, error) {
	var allocation map[planet.Role]float64
	if model.Allocation != "" {
		if err := json.Unmarshal([]byte(model.Allocation), &allocation); err != nil {
			return nil, fmt.Errorf("corrupt allocation for planet %s: %w", model.ID, err)
		}
	}
	var stockpile map[planet.Role]int64
	if model.Stockpile != "" {
		if err := json.Unmarshal([]byte(model.Stockpile), &stockpile); err != nil {
			return nil, fmt.Errorf("corrupt stockpile for planet %s: %w", model.ID, err)
		}
	}
	var buildings map[planet.Building]int
	if model.Buildings != "" {
		if err := json.Unmarshal([]byte(model.Buildings), &buildings); err != nil {
			return nil, fmt.Errorf("corrupt buildings for planet %s: %w", model.ID, err)
		}
	}
	if allocation == nil {
		allocation = map[planet.Role]float64{}
	}
	if stockpile == nil {
		stockpile = map[planet.Role]int64{}
	}
	if buildings == nil {
		buildings = map[planet.Building]int{}
	}
	return &planet.Planet{
		ID:             shared.PlanetID(model.ID),
		RegionID:       shared.RegionID(model.RegionID),
		Sector:         model.Sector,
		Name:           model.Name,
		Type:           planet.Type(model.Type),
		OwnerID:        shared.PlayerID(model.OwnerID),
		Population:     model.Population,
		Allocation:     allocation,
		Stockpile:      stockpile,
		Buildings:      buildings,
		CitadelLevel:   model.CitadelLevel,
		ShieldLevel:    model.ShieldLevel,
		DronesStation:  model.DronesStation,
		UnderSiege:     model.UnderSiege,
		SiegeProgress:  model.SiegeProgress,
		GenesisCreated: model.GenesisCreated,
		LastTickIndex:  model.LastTickIndex,
		ColonizedAt:    model.ColonizedAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
		Version:        model.Version,
	}, nil
}
