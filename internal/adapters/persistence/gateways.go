package persistence

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/infrastructure/database"
)

// NewRegionGateways binds every region-scoped repository to one shard handle.
func NewRegionGateways(db *gorm.DB) *common.RegionGateways {
	return &common.RegionGateways{
		Meta:       NewGormRegionMetaStore(db),
		Sectors:    NewGormSectorRepository(db),
		Planets:    NewGormPlanetRepository(db),
		Stations:   NewGormStationRepository(db),
		Ships:      NewGormShipRepository(db),
		Drones:     NewGormDroneRepository(db),
		Combats:    NewGormCombatRepository(db),
		Messages:   NewGormMessageRepository(db),
		Teams:      NewGormTeamRepository(db),
		Policies:   NewGormPolicyRepository(db),
		Elections:  NewGormElectionRepository(db),
		Votes:      NewGormVoteRepository(db),
		Alerts:     NewGormAlertRepository(db),
		Contracts:  NewGormContractRepository(db),
		Ledger:     NewGormLedgerRepository(db),
		Prices:     NewGormPriceHistoryRepository(db),
		Missions:   NewGormMissionRepository(db),
		FirstLogin: NewGormFirstLoginRepository(db),
		Bounties:   NewGormBountyRepository(db),
	}
}

// ShardGatewayResolver implements common.ShardResolver over the shard
// manager. Bundles are cached per region alongside the connections they wrap.
type ShardGatewayResolver struct {
	shards *database.ShardManager

	mu    sync.Mutex
	cache map[string]*common.RegionGateways
}

// NewShardGatewayResolver creates a resolver over the shard manager.
func NewShardGatewayResolver(shards *database.ShardManager) *ShardGatewayResolver {
	return &ShardGatewayResolver{
		shards: shards,
		cache:  make(map[string]*common.RegionGateways),
	}
}

// Region returns the repository bundle for a region's shard, opening and
// migrating the shard on first use.
func (r *ShardGatewayResolver) Region(ctx context.Context, name string) (*common.RegionGateways, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gw, ok := r.cache[name]; ok {
		return gw, nil
	}
	db, err := r.shards.Region(name)
	if err != nil {
		return nil, err
	}
	gw := NewRegionGateways(db)
	r.cache[name] = gw
	return gw, nil
}

// Evict drops a decommissioned region's cached bundle and closes its
// connection.
func (r *ShardGatewayResolver) Evict(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, name)
	return r.shards.DropRegion(name)
}
