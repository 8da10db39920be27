package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/firstlogin"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormFirstLoginRepository implements firstlogin.Repository on a region shard
type GormFirstLoginRepository struct {
	db *gorm.DB
}

// NewGormFirstLoginRepository creates a new GORM onboarding session repository
func NewGormFirstLoginRepository(db *gorm.DB) *GormFirstLoginRepository {
	return &GormFirstLoginRepository{db: db}
}

// Create persists a newly opened dialogue
func (r *GormFirstLoginRepository) Create(ctx context.Context, s *firstlogin.Session) error {
	model, err := r.sessionToModel(s)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create onboarding session: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a session by ID
func (r *GormFirstLoginRepository) FindByID(ctx context.Context, id string) (*firstlogin.Session, error) {
	var model FirstLoginSessionModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("onboarding session")
		}
		return nil, fmt.Errorf("failed to find onboarding session: %w", result.Error)
	}
	return r.modelToSession(&model)
}

// FindOpenByPlayer retrieves a player's unresolved dialogue, if any
func (r *GormFirstLoginRepository) FindOpenByPlayer(ctx context.Context, playerID shared.PlayerID) (*firstlogin.Session, error) {
	var model FirstLoginSessionModel
	result := r.db.WithContext(ctx).
		Where("player_id = ? AND state IN ?", playerID.String(),
			[]string{string(firstlogin.StatePresenting), string(firstlogin.StateQuestioning)}).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("onboarding session")
		}
		return nil, fmt.Errorf("failed to find onboarding session: %w", result.Error)
	}
	return r.modelToSession(&model)
}

// Update saves dialogue progress guarded by the version check
func (r *GormFirstLoginRepository) Update(ctx context.Context, s *firstlogin.Session) error {
	model, err := r.sessionToModel(s)
	if err != nil {
		return err
	}
	model.Version = s.Version + 1
	result := r.db.WithContext(ctx).
		Where("version = ?", s.Version).
		Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update onboarding session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("onboarding session changed concurrently")
	}
	s.Version = model.Version
	return nil
}

func (r *GormFirstLoginRepository) sessionToModel(s *firstlogin.Session) (*FirstLoginSessionModel, error) {
	offered, err := json.Marshal(s.OfferedHulls)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offered hulls: %w", err)
	}
	exchanges := "[]"
	if len(s.Exchanges) > 0 {
		raw, err := json.Marshal(s.Exchanges)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal exchanges: %w", err)
		}
		exchanges = string(raw)
	}
	return &FirstLoginSessionModel{
		ID:           s.ID,
		PlayerID:     s.PlayerID.String(),
		State:        string(s.State),
		Seed:         s.Seed,
		OfferedHulls: string(offered),
		ClaimedHull:  string(s.ClaimedHull),
		Exchanges:    exchanges,
		Flagged:      s.Flagged,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		ResolvedAt:   s.ResolvedAt,
		UpdatedAt:    s.UpdatedAt,
		Version:      s.Version,
	}, nil
}

func (r *GormFirstLoginRepository) modelToSession(model *FirstLoginSessionModel) (*firstlogin.Session, error) {
	var offered []ship.HullClass
	if model.OfferedHulls != "" {
		if err := json.Unmarshal([]byte(model.OfferedHulls), &offered); err != nil {
			return nil, fmt.Errorf("corrupt offered hulls for session %s: %w", model.ID, err)
		}
	}
	var exchanges []firstlogin.Exchange
	if model.Exchanges != "" {
		if err := json.Unmarshal([]byte(model.Exchanges), &exchanges); err != nil {
			return nil, fmt.Errorf("corrupt exchanges for session %s: %w", model.ID, err)
		}
	}
	return &firstlogin.Session{
		ID:           model.ID,
		PlayerID:     shared.PlayerID(model.PlayerID),
		State:        firstlogin.State(model.State),
		Seed:         model.Seed,
		OfferedHulls: offered,
		ClaimedHull:  ship.HullClass(model.ClaimedHull),
		Exchanges:    exchanges,
		Flagged:      model.Flagged,
		CreatedAt:    model.CreatedAt,
		ExpiresAt:    model.ExpiresAt,
		ResolvedAt:   model.ResolvedAt,
		UpdatedAt:    model.UpdatedAt,
		Version:      model.Version,
	}, nil
}
