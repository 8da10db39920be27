package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

// GormShipRepository implements ship.Repository on a region shard.
type GormShipRepository struct {
	db *gorm.DB
}

// NewGormShipRepository creates a new GORM ship repository
func NewGormShipRepository(db *gorm.DB) *GormShipRepository {
	return &GormShipRepository{db: db}
}

// manifestDoc is the stored shape of a cargo hold.
type manifestDoc struct {
	Capacity int            `json:"capacity"`
	Items    map[string]int `json:"items"`
}

// Create persists a new ship
func (r *GormShipRepository) Create(ctx context.Context, s *ship.Ship) error {
	model, err := r.shipToModel(s)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create ship: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a ship by ID
func (r *GormShipRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.ShipID) (*ship.Ship, error) {
	var model ShipModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("ship")
		}
		return nil, fmt.Errorf("failed to find ship: %w", result.Error)
	}
	return r.modelToShip(&model)
}

// ListByOwner retrieves a player's ships, wrecks included
func (r *GormShipRepository) ListByOwner(ctx context.Context, regionID shared.RegionID, owner shared.PlayerID) ([]*ship.Ship, error) {
	var models []ShipModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND owner_id = ?", regionID.String(), owner.String()).
		Order("acquired_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list ships: %w", result.Error)
	}
	return r.modelsToShips(models)
}

// ListBySector retrieves the intact ships present in a sector
func (r *GormShipRepository) ListBySector(ctx context.Context, regionID shared.RegionID, sector int) ([]*ship.Ship, error) {
	var models []ShipModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND sector = ? AND destroyed = ?", regionID.String(), sector, false).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list ships: %w", result.Error)
	}
	return r.modelsToShips(models)
}

// Census tallies the region fleet per hull class.
func (r *GormShipRepository) Census(ctx context.Context, regionID shared.RegionID) (map[ship.HullClass]ship.FleetCount, error) {
	var rows []struct {
		Class     string
		Destroyed bool
		Count     int64
	}
	result := r.db.WithContext(ctx).
		Model(&ShipModel{}).
		Select("class, destroyed, count(*) as count").
		Where("region_id = ?", regionID.String()).
		Group("class, destroyed").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to tally ships: %w", result.Error)
	}
	census := make(map[ship.HullClass]ship.FleetCount, len(rows))
	for _, row := range rows {
		c := census[ship.HullClass(row.Class)]
		if row.Destroyed {
			c.Destroyed += row.Count
		} else {
			c.Active += row.Count
		}
		census[ship.HullClass(row.Class)] = c
	}
	return census, nil
}

// Update saves a ship guarded by its version
func (r *GormShipRepository) Update(ctx context.Context, s *ship.Ship) error {
	model, err := r.shipToModel(s)
	if err != nil {
		return err
	}
	model.Version = s.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", s.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update ship: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("ship changed concurrently")
	}
	s.Version = model.Version
	return nil
}

// Delete removes a ship row. Used by travel reservation, which recreates the
// ship in the destination shard; destruction in combat keeps the row.
func (r *GormShipRepository) Delete(ctx context.Context, regionID shared.RegionID, id shared.ShipID) error {
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		Delete(&ShipModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete ship: %w", result.Error)
	}
	return nil
}

func (r *GormShipRepository) modelsToShips(models []ShipModel) ([]*ship.Ship, error) {
	ships := make([]*ship.Ship, 0, len(models))
	for i := range models {
		s, err := r.modelToShip(&models[i])
		if err != nil {
			return nil, err
		}
		ships = append(ships, s)
	}
	return ships, nil
}

func (r *GormShipRepository) shipToModel(s *ship.Ship) (*ShipModel, error) {
	cargo := ""
	if s.Cargo != nil {
		items := make(map[string]int, len(s.Cargo.Items))
		for commodity, units := range s.Cargo.Items {
			items[string(commodity)] = units
		}
		raw, err := json.Marshal(manifestDoc{Capacity: s.Cargo.Capacity, Items: items})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cargo: %w", err)
		}
		cargo = string(raw)
	}
	mods := "[]"
	if len(s.Mods) > 0 {
		raw, err := json.Marshal(s.Mods)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal mods: %w", err)
		}
		mods = string(raw)
	}
	return &ShipModel{
		ID:              s.ID.String(),
		OwnerID:         s.OwnerID.String(),
		TeamID:          s.TeamID.String(),
		RegionID:        s.RegionID.String(),
		Sector:          s.Sector,
		Class:           string(s.Class),
		Name:            s.Name,
		Condition:       s.Condition,
		Shield:          s.Shield,
		Fuel:            s.Fuel,
		Cargo:           cargo,
		DronesAboard:    s.DronesAboard,
		Mods:            mods,
		Insurance:       string(s.Insurance),
		MaintenanceDebt: s.MaintenanceDebt,
		LastServiceAt:   s.LastServiceAt,
		AcquiredAt:      s.AcquiredAt,
		Destroyed:       s.Destroyed,
		DestroyedAt:     s.DestroyedAt,
		ReservedBy:      s.ReservedBy.String(),
		UpdatedAt:       s.UpdatedAt,
		Version:         s.Version,
	}, nil
}

func (r *GormShipRepository) modelToShip(model *ShipModel) (*ship.Ship, error) {
	var cargo *shared.Manifest
	if model.Cargo != "" {
		var doc manifestDoc
		if err := json.Unmarshal([]byte(model.Cargo), &doc); err != nil {
			return nil, fmt.Errorf("corrupt cargo for ship %s: %w", model.ID, err)
		}
		items := make(map[shared.Commodity]int, len(doc.Items))
		for key, units := range doc.Items {
			items[shared.Commodity(key)] = units
		}
		cargo = &shared.Manifest{Capacity: doc.Capacity, Items: items}
	}
	var mods []ship.Modification
	if model.Mods != "" {
		if err := json.Unmarshal([]byte(model.Mods), &mods); err != nil {
			return nil, fmt.Errorf("corrupt mods for ship %s: %w", model.ID, err)
		}
	}
	return &ship.Ship{
		ID:              shared.ShipID(model.ID),
		OwnerID:         shared.PlayerID(model.OwnerID),
		TeamID:          shared.TeamID(model.TeamID),
		RegionID:        shared.RegionID(model.RegionID),
		Sector:          model.Sector,
		Class:           ship.HullClass(model.Class),
		Name:            model.Name,
		Condition:       model.Condition,
		Shield:          model.Shield,
		Fuel:            model.Fuel,
		Cargo:           cargo,
		DronesAboard:    model.DronesAboard,
		Mods:            mods,
		Insurance:       ship.InsuranceTier(model.Insurance),
		MaintenanceDebt: model.MaintenanceDebt,
		LastServiceAt:   model.LastServiceAt,
		AcquiredAt:      model.AcquiredAt,
		Destroyed:       model.Destroyed,
		DestroyedAt:     model.DestroyedAt,
		ReservedBy:      shared.TravelID(model.ReservedBy),
		UpdatedAt:       model.UpdatedAt,
		Version:         model.Version,
	}, nil
}
