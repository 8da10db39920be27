package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// GormStationRepository implements station.Repository on a region shard. The
// market inventory rides on the station row as one JSON document, so a trade
// commits price and stock movement in a single compare-and-swap.
type GormStationRepository struct {
	db *gorm.DB
}

// NewGormStationRepository creates a new GORM station repository
func NewGormStationRepository(db *gorm.DB) *GormStationRepository {
	return &GormStationRepository{db: db}
}

// marketSlotDoc is the stored shape of one inventory slot. The commodity
// rides as the map key.
type marketSlotDoc struct {
	Quantity  int   `json:"quantity"`
	Capacity  int   `json:"capacity"`
	BasePrice int64 `json:"base_price"`
	Buys      bool  `json:"buys"`
	Sells     bool  `json:"sells"`
}

// Create persists a new station
func (r *GormStationRepository) Create(ctx context.Context, s *station.Station) error {
	model, err := r.stationToModel(s)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create station: %w", result.Error)
	}
	return nil
}

// CreateBatch persists generated stations in chunks
func (r *GormStationRepository) CreateBatch(ctx context.Context, stations []*station.Station) error {
	models := make([]StationModel, 0, len(stations))
	for _, s := range stations {
		model, err := r.stationToModel(s)
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
		return fmt.Errorf("failed to create stations: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a station by ID
func (r *GormStationRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.StationID) (*station.Station, error) {
	var model StationModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("station")
		}
		return nil, fmt.Errorf("failed to find station: %w", result.Error)
	}
	return r.modelToStation(&model)
}

// FindBySector retrieves the station of a sector, if any. Sectors hold at
// most one station.
func (r *GormStationRepository) FindBySector(ctx context.Context, regionID shared.RegionID, sector int) (*station.Station, error) {
	var model StationModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND sector = ?", regionID.String(), sector).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("station")
		}
		return nil, fmt.Errorf("failed to find station: %w", result.Error)
	}
	return r.modelToStation(&model)
}

// List retrieves every station in the region ordered by sector
func (r *GormStationRepository) List(ctx context.Context, regionID shared.RegionID) ([]*station.Station, error) {
	var models []StationModel
	result := r.db.WithContext(ctx).
		Where("region_id = ?", regionID.String()).
		Order("sector").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list stations: %w", result.Error)
	}
	stations := make([]*station.Station, 0, len(models))
	for i := range models {
		s, err := r.modelToStation(&models[i])
		if err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// Update saves a station guarded by its version
func (r *GormStationRepository) Update(ctx context.Context, s *station.Station) error {
	model, err := r.stationToModel(s)
	if err != nil {
		return err
	}
	model.Version = s.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", s.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update station: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("station changed concurrently")
	}
	s.Version = model.Version
	return nil
}

func (r *GormStationRepository) stationToModel(s *station.Station) (*StationModel, error) {
	inventory := make(map[string]marketSlotDoc, len(s.Inventory))
	for commodity, slot := range s.Inventory {
		inventory[string(commodity)] = marketSlotDoc{
			Quantity:  slot.Quantity,
			Capacity:  slot.Capacity,
			BasePrice: slot.BasePrice,
			Buys:      slot.Buys,
			Sells:     slot.Sells,
		}
	}
	raw, err := json.Marshal(inventory)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inventory: %w", err)
	}
	return &StationModel{
		ID:           s.ID.String(),
		RegionID:     s.RegionID.String(),
		Sector:       s.Sector,
		Name:         s.Name,
		Class:        int(s.Class),
		Services:     int(s.Services),
		FactionID:    s.FactionID,
		OwnerID:      s.OwnerID.String(),
		Status:       string(s.Status),
		PairedPlanet: s.PairedPlanet,
		Inventory:    string(raw),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Version:      s.Version,
	}, nil
}

func (r *GormStationRepository) modelToStation(model *StationModel) (*station.Station, error) {
	var docs map[string]marketSlotDoc
	if model.Inventory != "" {
		if err := json.Unmarshal([]byte(model.Inventory), &docs); err != nil {
			return nil, fmt.Errorf("corrupt inventory for station %s: %w", model.ID, err)
		}
	}
	inventory := make(map[shared.Commodity]*station.MarketSlot, len(docs))
	for key, doc := range docs {
		inventory[shared.Commodity(key)] = &station.MarketSlot{
			Commodity: shared.Commodity(key),
			Quantity:  doc.Quantity,
			Capacity:  doc.Capacity,
			BasePrice: doc.BasePrice,
			Buys:      doc.Buys,
			Sells:     doc.Sells,
		}
	}
	return &station.Station{
		ID:           shared.StationID(model.ID),
		RegionID:     shared.RegionID(model.RegionID),
		Sector:       model.Sector,
		Name:         model.Name,
		Class:        station.Class(model.Class),
		Services:     station.Service(model.Services),
		FactionID:    model.FactionID,
		OwnerID:      shared.PlayerID(model.OwnerID),
		Status:       station.OperationalStatus(model.Status),
		PairedPlanet: model.PairedPlanet,
		Inventory:    inventory,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
		Version:      model.Version,
	}, nil
}
