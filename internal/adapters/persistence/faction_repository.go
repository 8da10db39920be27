package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormReputationRepository implements faction.ReputationRepository on the
// global shard. Standing follows the player across regions.
type GormReputationRepository struct {
	db *gorm.DB
}

// NewGormReputationRepository creates a new GORM reputation repository
func NewGormReputationRepository(db *gorm.DB) *GormReputationRepository {
	return &GormReputationRepository{db: db}
}

// Upsert saves standing, creating the row on first contact with a faction.
// Existing rows are guarded by their version.
func (r *GormReputationRepository) Upsert(ctx context.Context, rep *faction.Reputation) error {
	model := r.reputationToModel(rep)
	model.Version = rep.Version + 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("version = ?", rep.Version).Save(model)
		if result.Error != nil {
			return fmt.Errorf("failed to update reputation: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		model.Version = rep.Version
		if err := tx.Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.NewConflictError("reputation changed concurrently")
			}
			return fmt.Errorf("failed to create reputation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rep.Version = model.Version
	return nil
}

// Find retrieves a player's standing with one faction
func (r *GormReputationRepository) Find(ctx context.Context, playerID shared.PlayerID, factionID faction.ID) (*faction.Reputation, error) {
	var model ReputationModel
	result := r.db.WithContext(ctx).
		Where("player_id = ? AND faction_id = ?", playerID.String(), string(factionID)).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("reputation")
		}
		return nil, fmt.Errorf("failed to find reputation: %w", result.Error)
	}
	return r.modelToReputation(&model), nil
}

// ListByPlayer retrieves a player's standing with every faction met so far
func (r *GormReputationRepository) ListByPlayer(ctx context.Context, playerID shared.PlayerID) ([]*faction.Reputation, error) {
	var models []ReputationModel
	result := r.db.WithContext(ctx).Where("player_id = ?", playerID.String()).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list reputations: %w", result.Error)
	}
	reputations := make([]*faction.Reputation, 0, len(models))
	for i := range models {
		reputations = append(reputations, r.modelToReputation(&models[i]))
	}
	return reputations, nil
}

func (r *GormReputationRepository) reputationToModel(rep *faction.Reputation) *ReputationModel {
	return &ReputationModel{
		PlayerID:  rep.PlayerID.String(),
		FactionID: string(rep.FactionID),
		Score:     rep.Score,
		UpdatedAt: rep.UpdatedAt,
		Version:   rep.Version,
	}
}

func (r *GormReputationRepository) modelToReputation(model *ReputationModel) *faction.Reputation {
	return &faction.Reputation{
		PlayerID:  shared.PlayerID(model.PlayerID),
		FactionID: faction.ID(model.FactionID),
		Score:     model.Score,
		UpdatedAt: model.UpdatedAt,
		Version:   model.Version,
	}
}

// GormMissionRepository implements faction.MissionRepository on a region
// shard.
type GormMissionRepository struct {
	db *gorm.DB
}

// NewGormMissionRepository creates a new GORM mission repository
func NewGormMissionRepository(db *gorm.DB) *GormMissionRepository {
	return &GormMissionRepository{db: db}
}

// Create persists a mission offer
func (r *GormMissionRepository) Create(ctx context.Context, m *faction.Mission) error {
	result := r.db.WithContext(ctx).Create(r.missionToModel(m))
	if result.Error != nil {
		return fmt.Errorf("failed to create mission: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a mission by ID
func (r *GormMissionRepository) FindByID(ctx context.Context, regionID shared.RegionID, id string) (*faction.Mission, error) {
	var model MissionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("mission")
		}
		return nil, fmt.Errorf("failed to find mission: %w", result.Error)
	}
	return r.modelToMission(&model), nil
}

// ListOffered retrieves a faction's open mission board
func (r *GormMissionRepository) ListOffered(ctx context.Context, regionID shared.RegionID, factionID faction.ID) ([]*faction.Mission, error) {
	var models []MissionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND faction_id = ? AND status = ?",
			regionID.String(), string(factionID), string(faction.MissionOffered)).
		Order("offered_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list missions: %w", result.Error)
	}
	return r.modelsToMissions(models), nil
}

// ListByPlayer retrieves the missions a player has accepted, newest first
func (r *GormMissionRepository) ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID) ([]*faction.Mission, error) {
	var models []MissionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND accepted_by = ?", regionID.String(), playerID.String()).
		Order("offered_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list missions: %w", result.Error)
	}
	return r.modelsToMissions(models), nil
}

// ListLiveExpiredBefore retrieves offers and acceptances whose window lapsed
func (r *GormMissionRepository) ListLiveExpiredBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*faction.Mission, error) {
	var models []MissionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status IN ? AND expires_at < ?",
			regionID.String(), []string{string(faction.MissionOffered), string(faction.MissionAccepted)}, cutoff).
		Order("expires_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list missions: %w", result.Error)
	}
	return r.modelsToMissions(models), nil
}

// Update saves a mission guarded by its version
func (r *GormMissionRepository) Update(ctx context.Context, m *faction.Mission) error {
	model := r.missionToModel(m)
	model.Version = m.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", m.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update mission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("mission changed concurrently")
	}
	m.Version = model.Version
	return nil
}

func (r *GormMissionRepository) modelsToMissions(models []MissionModel) []*faction.Mission {
	missions := make([]*faction.Mission, 0, len(models))
	for i := range models {
		missions = append(missions, r.modelToMission(&models[i]))
	}
	return missions
}

func (r *GormMissionRepository) missionToModel(m *faction.Mission) *MissionModel {
	return &MissionModel{
		ID:               m.ID,
		RegionID:         m.RegionID.String(),
		FactionID:        string(m.FactionID),
		Type:             string(m.Type),
		TargetSector:     m.TargetSector,
		Commodity:        string(m.Commodity),
		Quantity:         m.Quantity,
		TargetShipID:     m.TargetShipID.String(),
		RewardCredits:    m.RewardCredits,
		RewardReputation: m.RewardReputation,
		MinTier:          string(m.MinTier),
		AcceptedBy:       m.AcceptedBy.String(),
		TeamID:           m.TeamID.String(),
		Status:           string(m.Status),
		OfferedAt:        m.OfferedAt,
		ExpiresAt:        m.ExpiresAt,
		CompletedAt:      m.CompletedAt,
		UpdatedAt:        m.UpdatedAt,
		Version:          m.Version,
	}
}

func (r *GormMissionRepository) modelToMission(model *MissionModel) *faction.Mission {
	return &faction.Mission{
		ID:               model.ID,
		RegionID:         shared.RegionID(model.RegionID),
		FactionID:        faction.ID(model.FactionID),
		Type:             faction.MissionType(model.Type),
		TargetSector:     model.TargetSector,
		Commodity:        shared.Commodity(model.Commodity),
		Quantity:         model.Quantity,
		TargetShipID:     shared.ShipID(model.TargetShipID),
		RewardCredits:    model.RewardCredits,
		RewardReputation: model.RewardReputation,
		MinTier:          faction.Tier(model.MinTier),
		AcceptedBy:       shared.PlayerID(model.AcceptedBy),
		TeamID:           shared.TeamID(model.TeamID),
		Status:           faction.MissionStatus(model.Status),
		OfferedAt:        model.OfferedAt,
		ExpiresAt:        model.ExpiresAt,
		CompletedAt:      model.CompletedAt,
		UpdatedAt:        model.UpdatedAt,
		Version:          model.Version,
	}
}
