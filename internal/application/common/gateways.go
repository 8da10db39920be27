package common

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/bounty"
	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/firstlogin"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/message"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/station"
	"github.com/sectorwars/gameserver/internal/domain/team"
	"github.com/sectorwars/gameserver/internal/domain/trading"
)

// RegionGateways bundles every repository bound to one region's shard.
// Services resolve the bundle by region name and never see the connection
// behind it.
type RegionGateways struct {
	Meta       region.MetaStore
	Sectors    sector.Repository
	Planets    planet.Repository
	Stations   station.Repository
	Ships      ship.Repository
	Drones     drone.Repository
	Combats    combat.Repository
	Messages   message.Repository
	Teams      team.Repository
	Policies   governance.PolicyRepository
	Elections  governance.ElectionRepository
	Votes      governance.VoteRepository
	Alerts     trading.AlertRepository
	Contracts  trading.ContractRepository
	Ledger     trading.LedgerRepository
	Prices     trading.PriceHistoryRepository
	Missions   faction.MissionRepository
	FirstLogin firstlogin.Repository
	Bounties   bounty.Repository
}

// ShardResolver opens the gateway bundle for a named region, creating and
// migrating the shard on first use. Evict de-references a decommissioned
// region's shard; the data is archived out of band.
type ShardResolver interface {
	Region(ctx context.Context, name string) (*RegionGateways, error)
	Evict(name string) error
}
