package subscription

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists the entitlement index in the global shard.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	FindByExternalID(ctx context.Context, provider, externalID string) (*Subscription, error)
	FindByRegion(ctx context.Context, regionName string) (*Subscription, error)
	ListByAccount(ctx context.Context, accountID shared.AccountID) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}

// DeliveryRepository persists processed webhook deliveries in the global
// shard for replay deduplication.
type DeliveryRepository interface {
	// Record stores a processed delivery. A duplicate delivery id returns a
	// conflict so the caller can serve the recorded outcome instead.
	Record(ctx context.Context, d *Delivery) error
	Find(ctx context.Context, deliveryID string) (*Delivery, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
