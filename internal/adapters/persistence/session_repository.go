package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormSessionRepository implements account.SessionRepository on the global
// shard. Rows are refresh-token chain links; plaintext tokens never touch it.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM session repository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create persists a new chain link
func (r *GormSessionRepository) Create(ctx context.Context, s *account.Session) error {
	result := r.db.WithContext(ctx).Create(r.sessionToModel(s))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("refresh token already registered")
		}
		return fmt.Errorf("failed to create session: %w", result.Error)
	}
	return nil
}

// FindByRefreshHash retrieves the chain link a presented token belongs to
func (r *GormSessionRepository) FindByRefreshHash(ctx context.Context, hash string) (*account.Session, error) {
	var model RefreshTokenModel
	result := r.db.WithContext(ctx).Where("refresh_hash = ?", hash).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("session")
		}
		return nil, fmt.Errorf("failed to find session: %w", result.Error)
	}
	return r.modelToSession(&model), nil
}

// Update saves a session row
func (r *GormSessionRepository) Update(ctx context.Context, s *account.Session) error {
	result := r.db.WithContext(ctx).Save(r.sessionToModel(s))
	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	return nil
}

// Consume marks a link used. The used_at guard makes the transition atomic:
// losing the race means the token was already presented.
func (r *GormSessionRepository) Consume(ctx context.Context, sessionID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("id = ? AND used_at IS NULL AND revoked_at IS NULL", sessionID).
		Update("used_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to consume session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("session already consumed")
	}
	return nil
}

// RevokeChain revokes every live link in a rotation chain
func (r *GormSessionRepository) RevokeChain(ctx context.Context, chainID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("chain_id = ? AND revoked_at IS NULL", chainID).
		Update("revoked_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke chain: %w", result.Error)
	}
	return nil
}

// RevokeAccount revokes every live link across all of an account's chains
func (r *GormSessionRepository) RevokeAccount(ctx context.Context, accountID shared.AccountID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID.String()).
		Update("revoked_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke sessions: %w", result.Error)
	}
	return nil
}

// ListActive retrieves the presentable links for an account
func (r *GormSessionRepository) ListActive(ctx context.Context, accountID shared.AccountID, now time.Time) ([]*account.Session, error) {
	var models []RefreshTokenModel
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND revoked_at IS NULL AND used_at IS NULL AND expires_at > ?", accountID.String(), now).
		Order("issued_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", result.Error)
	}
	sessions := make([]*account.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, r.modelToSession(&models[i]))
	}
	return sessions, nil
}

func (r *GormSessionRepository) sessionToModel(s *account.Session) *RefreshTokenModel {
	return &RefreshTokenModel{
		ID:                s.ID,
		AccountID:         s.AccountID.String(),
		ChainID:           s.ChainID,
		RefreshHash:       s.RefreshHash,
		DeviceFingerprint: s.DeviceFingerprint,
		IssuedAt:          s.IssuedAt,
		ExpiresAt:         s.ExpiresAt,
		UsedAt:            s.UsedAt,
		RevokedAt:         s.RevokedAt,
	}
}

func (r *GormSessionRepository) modelToSession(model *RefreshTokenModel) *account.Session {
	return &account.Session{
		ID:                model.ID,
		AccountID:         shared.AccountID(model.AccountID),
		ChainID:           model.ChainID,
		RefreshHash:       model.RefreshHash,
		DeviceFingerprint: model.DeviceFingerprint,
		IssuedAt:          model.IssuedAt,
		ExpiresAt:         model.ExpiresAt,
		UsedAt:            model.UsedAt,
		RevokedAt:         model.RevokedAt,
	}
}
