package bounty

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists bounties in a region shard.
type Repository interface {
	Create(ctx context.Context, b *Bounty) error
	FindByID(ctx context.Context, regionID shared.RegionID, id string) (*Bounty, error)
	ListOpen(ctx context.Context, regionID shared.RegionID, limit int) ([]*Bounty, error)
	ListOpenByTarget(ctx context.Context, regionID shared.RegionID, target shared.PlayerID) ([]*Bounty, error)
	ListOpenExpiredBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*Bounty, error)
	Update(ctx context.Context, b *Bounty) error
}
