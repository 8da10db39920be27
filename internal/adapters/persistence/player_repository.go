package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormPlayerRepository implements player.Repository on the global shard.
type GormPlayerRepository struct {
	db *gorm.DB
}

// NewGormPlayerRepository creates a new GORM player repository
func NewGormPlayerRepository(db *gorm.DB) *GormPlayerRepository {
	return &GormPlayerRepository{db: db}
}

// Create persists a new persona
func (r *GormPlayerRepository) Create(ctx context.Context, p *player.Player) error {
	result := r.db.WithContext(ctx).Create(r.playerToModel(p))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("player name already taken")
		}
		return fmt.Errorf("failed to create player: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a player by ID
func (r *GormPlayerRepository) FindByID(ctx context.Context, id shared.PlayerID) (*player.Player, error) {
	var model PlayerModel
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("player")
		}
		return nil, fmt.Errorf("failed to find player: %w", result.Error)
	}
	return r.modelToPlayer(&model), nil
}

// FindByAccount retrieves the persona owned by an account
func (r *GormPlayerRepository) FindByAccount(ctx context.Context, accountID shared.AccountID) (*player.Player, error) {
	var model PlayerModel
	result := r.db.WithContext(ctx).Where("account_id = ?", accountID.String()).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("player")
		}
		return nil, fmt.Errorf("failed to find player: %w", result.Error)
	}
	return r.modelToPlayer(&model), nil
}

// FindByName retrieves a player by display name
func (r *GormPlayerRepository) FindByName(ctx context.Context, name string) (*player.Player, error) {
	var model PlayerModel
	result := r.db.WithContext(ctx).Where("name = ?", name).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("player")
		}
		return nil, fmt.Errorf("failed to find player: %w", result.Error)
	}
	return r.modelToPlayer(&model), nil
}

// Update saves a player guarded by its version
func (r *GormPlayerRepository) Update(ctx context.Context, p *player.Player) error {
	model := r.playerToModel(p)
	model.Version = p.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", p.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update player: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("player changed concurrently")
	}
	p.Version = model.Version
	return nil
}

// ListByRegion retrieves every player currently homed in a region
func (r *GormPlayerRepository) ListByRegion(ctx context.Context, region string) ([]*player.Player, error) {
	var models []PlayerModel
	result := r.db.WithContext(ctx).Where("current_region = ?", region).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list players: %w", result.Error)
	}
	players := make([]*player.Player, 0, len(models))
	for i := range models {
		players = append(players, r.modelToPlayer(&models[i]))
	}
	return players, nil
}

func (r *GormPlayerRepository) playerToModel(p *player.Player) *PlayerModel {
	return &PlayerModel{
		ID:            p.ID.String(),
		AccountID:     p.AccountID.String(),
		Name:          p.Name,
		CurrentRegion: p.CurrentRegion,
		CurrentSector: p.CurrentSector,
		CurrentShipID: p.CurrentShipID.String(),
		Credits:       int64(p.Credits),
		TeamID:        p.TeamID.String(),
		Onboarded:     p.Onboarded,
		MutedUntil:    p.MutedUntil,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Version:       p.Version,
	}
}

func (r *GormPlayerRepository) modelToPlayer(model *PlayerModel) *player.Player {
	return &player.Player{
		ID:            shared.PlayerID(model.ID),
		AccountID:     shared.AccountID(model.AccountID),
		Name:          model.Name,
		CurrentRegion: model.CurrentRegion,
		CurrentSector: model.CurrentSector,
		CurrentShipID: shared.ShipID(model.CurrentShipID),
		Credits:       shared.Credits(model.Credits),
		TeamID:        shared.TeamID(model.TeamID),
		Onboarded:     model.Onboarded,
		MutedUntil:    model.MutedUntil,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
		Version:       model.Version,
	}
}
