package treaty

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists treaties in the global shard.
type Repository interface {
	Create(ctx context.Context, t *Treaty) error
	FindByID(ctx context.Context, id shared.TreatyID) (*Treaty, error)
	ListByRegion(ctx context.Context, regionID shared.RegionID) ([]*Treaty, error)
	ListActiveBetween(ctx context.Context, a, b shared.RegionID) ([]*Treaty, error)
	ListActiveExpiredBefore(ctx context.Context, cutoff time.Time) ([]*Treaty, error)
	Update(ctx context.Context, t *Treaty) error
}
