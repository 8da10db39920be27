package region

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Meta is the single bookkeeping row of a region shard: which region owns
// the shard and where its simulation clock stands.
type Meta struct {
	RegionID   shared.RegionID
	RegionName string
	Seed       int64
	Tick       int64
	LastTickAt *time.Time
}

// MetaStore manages a shard's bookkeeping row. Each instance is bound to one
// shard connection.
type MetaStore interface {
	// Init writes the row at provisioning time. Idempotent.
	Init(ctx context.Context, regionID shared.RegionID, regionName string, seed int64, now time.Time) error
	Get(ctx context.Context) (*Meta, error)
	// AdvanceTick increments the simulation clock and returns the new tick
	// index. Concurrent advances conflict rather than double-count.
	AdvanceTick(ctx context.Context, now time.Time) (int64, error)
}

// Repository persists regions in the global shard.
type Repository interface {
	Create(ctx context.Context, r *Region) error
	FindByID(ctx context.Context, id shared.RegionID) (*Region, error)
	FindByName(ctx context.Context, name string) (*Region, error)
	List(ctx context.Context) ([]*Region, error)
	ListByStatus(ctx context.Context, status Status) ([]*Region, error)
	Update(ctx context.Context, r *Region) error
}

// MembershipRepository persists per-player regional standing.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Find(ctx context.Context, playerID shared.PlayerID, regionID shared.RegionID) (*Membership, error)
	ListByPlayer(ctx context.Context, playerID shared.PlayerID) ([]*Membership, error)
	ListByRegion(ctx context.Context, regionID shared.RegionID) ([]*Membership, error)
	ListCitizens(ctx context.Context, regionID shared.RegionID) ([]*Membership, error)
	Update(ctx context.Context, m *Membership) error
}
