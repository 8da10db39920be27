package faction

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// ReputationRepository persists player standing in the global shard.
type ReputationRepository interface {
	Upsert(ctx context.Context, r *Reputation) error
	Find(ctx context.Context, playerID shared.PlayerID, factionID ID) (*Reputation, error)
	ListByPlayer(ctx context.Context, playerID shared.PlayerID) ([]*Reputation, error)
}

// MissionRepository persists missions in a region shard.
type MissionRepository interface {
	Create(ctx context.Context, m *Mission) error
	FindByID(ctx context.Context, regionID shared.RegionID, id string) (*Mission, error)
	ListOffered(ctx context.Context, regionID shared.RegionID, factionID ID) ([]*Mission, error)
	ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID) ([]*Mission, error)
	ListLiveExpiredBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*Mission, error)
	Update(ctx context.Context, m *Mission) error
}
