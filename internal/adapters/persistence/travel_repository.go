package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/travel"
)

// GormTravelRepository implements travel.Repository on the global shard.
type GormTravelRepository struct {
	db *gorm.DB
}

// NewGormTravelRepository creates a new GORM travel repository
func NewGormTravelRepository(db *gorm.DB) *GormTravelRepository {
	return &GormTravelRepository{db: db}
}

// Create persists a new transit record
func (r *GormTravelRepository) Create(ctx context.Context, t *travel.Travel) error {
	model, err := r.travelToModel(t)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create travel: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a transit record by ID
func (r *GormTravelRepository) FindByID(ctx context.Context, id shared.TravelID) (*travel.Travel, error) {
	var model TravelModel
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("travel")
		}
		return nil, fmt.Errorf("failed to find travel: %w", result.Error)
	}
	return r.modelToTravel(&model)
}

// FindActiveByPlayer retrieves a player's in-transit record, if any. A player
// has at most one.
func (r *GormTravelRepository) FindActiveByPlayer(ctx context.Context, playerID shared.PlayerID) (*travel.Travel, error) {
	var model TravelModel
	result := r.db.WithContext(ctx).
		Where("player_id = ? AND status = ?", playerID.String(), string(travel.StatusInTransit)).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("travel")
		}
		return nil, fmt.Errorf("failed to find travel: %w", result.Error)
	}
	return r.modelToTravel(&model)
}

// ListInTransitBefore retrieves transits that started before the cutoff and
// never completed, for the recovery sweep.
func (r *GormTravelRepository) ListInTransitBefore(ctx context.Context, cutoff time.Time) ([]*travel.Travel, error) {
	var models []TravelModel
	result := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(travel.StatusInTransit), cutoff).
		Order("created_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list travels: %w", result.Error)
	}
	return r.modelsToTravels(models)
}

// ListByPlayer retrieves a player's transit history, newest first
func (r *GormTravelRepository) ListByPlayer(ctx context.Context, playerID shared.PlayerID, limit int) ([]*travel.Travel, error) {
	var models []TravelModel
	result := r.db.WithContext(ctx).
		Where("player_id = ?", playerID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list travels: %w", result.Error)
	}
	return r.modelsToTravels(models)
}

// Update saves a transit record guarded by its version
func (r *GormTravelRepository) Update(ctx context.Context, t *travel.Travel) error {
	model, err := r.travelToModel(t)
	if err != nil {
		return err
	}
	model.Version = t.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", t.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update travel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("travel changed concurrently")
	}
	t.Version = model.Version
	return nil
}

func (r *GormTravelRepository) modelsToTravels(models []TravelModel) ([]*travel.Travel, error) {
	travels := make([]*travel.Travel, 0, len(models))
	for i := range models {
		t, err := r.modelToTravel(&models[i])
		if err != nil {
			return nil, err
		}
		travels = append(travels, t)
	}
	return travels, nil
}

func (r *GormTravelRepository) travelToModel(t *travel.Travel) (*TravelModel, error) {
	manifest, err := json.Marshal(t.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return &TravelModel{
		ID:                t.ID.String(),
		PlayerID:          t.PlayerID.String(),
		SourceRegion:      t.SourceRegion.String(),
		DestinationRegion: t.DestinationRegion.String(),
		Method:            string(t.Method),
		Cost:              t.Cost,
		Manifest:          string(manifest),
		Status:            string(t.Status),
		FailureReason:     t.FailureReason,
		CompletedAt:       t.CompletedAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		Version:           t.Version,
	}, nil
}

func (r *GormTravelRepository) modelToTravel(model *TravelModel) (*travel.Travel, error) {
	var manifest travel.Manifest
	if model.Manifest != "" {
		if err := json.Unmarshal([]byte(model.Manifest), &manifest); err != nil {
			return nil, fmt.Errorf("corrupt manifest for travel %s: %w", model.ID, err)
		}
	}
	return &travel.Travel{
		ID:                shared.TravelID(model.ID),
		PlayerID:          shared.PlayerID(model.PlayerID),
		SourceRegion:      shared.RegionID(model.SourceRegion),
		DestinationRegion: shared.RegionID(model.DestinationRegion),
		Method:            travel.Method(model.Method),
		Cost:              model.Cost,
		Manifest:          manifest,
		Status:            travel.Status(model.Status),
		FailureReason:     model.FailureReason,
		CompletedAt:       model.CompletedAt,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
		Version:           model.Version,
	}, nil
}
