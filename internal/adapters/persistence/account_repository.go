package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormAccountRepository implements account.Repository on the global shard.
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GORM account repository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Create persists a new account together with its provider bindings.
func (r *GormAccountRepository) Create(ctx context.Context, a *account.Account) error {
	model, err := r.accountToModel(a)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.NewConflictError("handle already taken")
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		for _, b := range a.Bindings {
			if err := tx.Create(r.bindingToModel(a.ID, b)).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return shared.NewConflictError("provider identity already bound")
				}
				return fmt.Errorf("failed to create provider binding: %w", err)
			}
		}
		return nil
	})
}

// FindByID retrieves an account by ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id shared.AccountID) (*account.Account, error) {
	var model AccountModel
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("account")
		}
		return nil, fmt.Errorf("failed to find account: %w", result.Error)
	}
	return r.loadAggregate(ctx, &model)
}

// FindByHandle retrieves an account by its unique handle
func (r *GormAccountRepository) FindByHandle(ctx context.Context, handle string) (*account.Account, error) {
	var model AccountModel
	result := r.db.WithContext(ctx).Where("handle = ?", handle).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("account")
		}
		return nil, fmt.Errorf("failed to find account: %w", result.Error)
	}
	return r.loadAggregate(ctx, &model)
}

// FindByProvider resolves an external identity to its bound account.
func (r *GormAccountRepository) FindByProvider(ctx context.Context, provider, providerAccountID string) (*account.Account, error) {
	var identity OAuthIdentityModel
	result := r.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		First(&identity)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("account")
		}
		return nil, fmt.Errorf("failed to find provider binding: %w", result.Error)
	}
	return r.FindByID(ctx, shared.AccountID(identity.AccountID))
}

// List pages accounts by registration date.
func (r *GormAccountRepository) List(ctx context.Context, page, perPage int) ([]*account.Account, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	base := r.db.WithContext(ctx).Model(&AccountModel{})
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	var models []AccountModel
	result := base.
		Order("created_at").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", result.Error)
	}
	accounts := make([]*account.Account, 0, len(models))
	for i := range models {
		a, err := r.loadAggregate(ctx, &models[i])
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	return accounts, total, nil
}

// Update saves an account guarded by its version and replaces its provider
// bindings with the aggregate's current set.
func (r *GormAccountRepository) Update(ctx context.Context, a *account.Account) error {
	model, err := r.accountToModel(a)
	if err != nil {
		return err
	}
	model.Version = a.Version + 1
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("version = ?", a.Version).Save(model)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return shared.NewConflictError("handle already taken")
			}
			return fmt.Errorf("failed to update account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewConflictError("account changed concurrently")
		}
		if err := tx.Where("account_id = ?", model.ID).Delete(&OAuthIdentityModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear provider bindings: %w", err)
		}
		for _, b := range a.Bindings {
			if err := tx.Create(r.bindingToModel(a.ID, b)).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return shared.NewConflictError("provider identity already bound")
				}
				return fmt.Errorf("failed to create provider binding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.Version = model.Version
	return nil
}

func (r *GormAccountRepository) loadAggregate(ctx context.Context, model *AccountModel) (*account.Account, error) {
	var identities []OAuthIdentityModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", model.ID).
		Order("bound_at").
		Find(&identities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load provider bindings: %w", err)
	}
	return r.modelToAccount(model, identities)
}

func (r *GormAccountRepository) accountToModel(a *account.Account) (*AccountModel, error) {
	codes := "[]"
	if len(a.BackupCodes) > 0 {
		raw, err := json.Marshal(a.BackupCodes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal backup codes: %w", err)
		}
		codes = string(raw)
	}
	return &AccountModel{
		ID:             a.ID.String(),
		Handle:         a.Handle,
		Email:          a.Email,
		CredentialHash: a.CredentialHash,
		Role:           string(a.Role),
		MFAEnabled:     a.MFAEnabled,
		TOTPSecret:     a.TOTPSecret,
		BackupCodes:    codes,
		Disabled:       a.Disabled,
		DeletedAt:      a.DeletedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		Version:        a.Version,
	}, nil
}

func (r *GormAccountRepository) modelToAccount(model *AccountModel, identities []OAuthIdentityModel) (*account.Account, error) {
	var codes []string
	if model.BackupCodes != "" {
		if err := json.Unmarshal([]byte(model.BackupCodes), &codes); err != nil {
			return nil, fmt.Errorf("corrupt backup codes for account %s: %w", model.ID, err)
		}
	}
	bindings := make([]account.ProviderBinding, 0, len(identities))
	for _, identity := range identities {
		bindings = append(bindings, account.ProviderBinding{
			Provider:          identity.Provider,
			ProviderAccountID: identity.ProviderAccountID,
			DisplayName:       identity.DisplayName,
			BoundAt:           identity.BoundAt,
		})
	}
	return &account.Account{
		ID:             shared.AccountID(model.ID),
		Handle:         model.Handle,
		Email:          model.Email,
		CredentialHash: model.CredentialHash,
		Role:           account.Role(model.Role),
		MFAEnabled:     model.MFAEnabled,
		TOTPSecret:     model.TOTPSecret,
		BackupCodes:    codes,
		Bindings:       bindings,
		Disabled:       model.Disabled,
		DeletedAt:      model.DeletedAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
		Version:        model.Version,
	}, nil
}

func (r *GormAccountRepository) bindingToModel(accountID shared.AccountID, b account.ProviderBinding) *OAuthIdentityModel {
	return &OAuthIdentityModel{
		Provider:          b.Provider,
		ProviderAccountID: b.ProviderAccountID,
		AccountID:         accountID.String(),
		DisplayName:       b.DisplayName,
		BoundAt:           b.BoundAt,
	}
}
