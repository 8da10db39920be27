package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/subscription"
)

// GormSubscriptionRepository implements subscription.Repository on the global
// shard.
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GORM subscription repository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Create persists a new entitlement
func (r *GormSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	result := r.db.WithContext(ctx).Create(r.subscriptionToModel(s))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("subscription already registered")
		}
		return fmt.Errorf("failed to create subscription: %w", result.Error)
	}
	return nil
}

// FindByExternalID retrieves the entitlement the gateway's id maps to
func (r *GormSubscriptionRepository) FindByExternalID(ctx context.Context, provider, externalID string) (*subscription.Subscription, error) {
	var model SubscriptionModel
	result := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("subscription")
		}
		return nil, fmt.Errorf("failed to find subscription: %w", result.Error)
	}
	return r.modelToSubscription(&model), nil
}

// FindByRegion retrieves the entitlement funding a region
func (r *GormSubscriptionRepository) FindByRegion(ctx context.Context, regionName string) (*subscription.Subscription, error) {
	var model SubscriptionModel
	result := r.db.WithContext(ctx).Where("region_name = ?", regionName).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("subscription")
		}
		return nil, fmt.Errorf("failed to find subscription: %w", result.Error)
	}
	return r.modelToSubscription(&model), nil
}

// ListByAccount retrieves an account's entitlements
func (r *GormSubscriptionRepository) ListByAccount(ctx context.Context, accountID shared.AccountID) ([]*subscription.Subscription, error) {
	var models []SubscriptionModel
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		Order("created_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", result.Error)
	}
	subs := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		subs = append(subs, r.modelToSubscription(&models[i]))
	}
	return subs, nil
}

// Update saves an entitlement guarded by its version
func (r *GormSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	model := r.subscriptionToModel(s)
	model.Version = s.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", s.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("subscription changed concurrently")
	}
	s.Version = model.Version
	return nil
}

func (r *GormSubscriptionRepository) subscriptionToModel(s *subscription.Subscription) *SubscriptionModel {
	return &SubscriptionModel{
		ID:               s.ID,
		AccountID:        s.AccountID.String(),
		Provider:         s.Provider,
		ExternalID:       s.ExternalID,
		Plan:             s.Plan,
		Status:           string(s.Status),
		RegionName:       s.RegionName,
		CurrentPeriodEnd: s.CurrentPeriodEnd,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		Version:          s.Version,
	}
}

func (r *GormSubscriptionRepository) modelToSubscription(model *SubscriptionModel) *subscription.Subscription {
	return &subscription.Subscription{
		ID:               model.ID,
		AccountID:        shared.AccountID(model.AccountID),
		Provider:         model.Provider,
		ExternalID:       model.ExternalID,
		Plan:             model.Plan,
		Status:           subscription.Status(model.Status),
		RegionName:       model.RegionName,
		CurrentPeriodEnd: model.CurrentPeriodEnd,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
		Version:          model.Version,
	}
}

// GormDeliveryRepository implements subscription.DeliveryRepository. The
// delivery-id primary key is what makes webhook processing idempotent.
type GormDeliveryRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRepository creates a new GORM webhook delivery repository
func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db}
}

// Record stores a processed delivery, conflicting on replays
func (r *GormDeliveryRepository) Record(ctx context.Context, d *subscription.Delivery) error {
	model := WebhookDeliveryModel{
		DeliveryID:  d.DeliveryID,
		Provider:    d.Provider,
		EventType:   d.EventType,
		Outcome:     d.Outcome,
		Note:        d.Note,
		ProcessedAt: d.ProcessedAt,
	}
	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("delivery already processed")
		}
		return fmt.Errorf("failed to record delivery: %w", result.Error)
	}
	return nil
}

// Find retrieves a processed delivery by id
func (r *GormDeliveryRepository) Find(ctx context.Context, deliveryID string) (*subscription.Delivery, error) {
	var model WebhookDeliveryModel
	result := r.db.WithContext(ctx).Where("delivery_id = ?", deliveryID).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("delivery")
		}
		return nil, fmt.Errorf("failed to find delivery: %w", result.Error)
	}
	return &subscription.Delivery{
		DeliveryID:  model.DeliveryID,
		Provider:    model.Provider,
		EventType:   model.EventType,
		Outcome:     model.Outcome,
		Note:        model.Note,
		ProcessedAt: model.ProcessedAt,
	}, nil
}

// PruneBefore drops deliveries outside the dedupe retention window
func (r *GormDeliveryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&WebhookDeliveryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
