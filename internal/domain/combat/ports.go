package combat

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists engagements in a region shard.
type Repository interface {
	Create(ctx context.Context, c *Combat) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.CombatID) (*Combat, error)
	FindActiveByShip(ctx context.Context, regionID shared.RegionID, shipID shared.ShipID) (*Combat, error)
	ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID, limit int) ([]*Combat, error)
	ListActive(ctx context.Context, regionID shared.RegionID, limit int) ([]*Combat, error)
	ListDueBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time, limit int) ([]*Combat, error)
	Update(ctx context.Context, c *Combat) error
}
