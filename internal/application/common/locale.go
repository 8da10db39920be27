package common

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

// Locale is the resolved game context of one request: the actor's persona,
// its current region with that region's shard gateways, and optionally the
// boarded ship.
type Locale struct {
	Persona *player.Player
	Region  *region.Region
	GW      *RegionGateways
	Vessel  *ship.Ship
}

// LocaleResolver loads request locales for services that operate inside the
// actor's current region.
type LocaleResolver struct {
	Regions region.Repository
	Players player.Repository
	Shards  ShardResolver
	Clock   shared.Clock
}

// Resolve loads the actor's persona, region and shard gateways. With
// needShip the boarded ship is loaded too; the ship's recorded sector is
// authoritative, so a persona left behind by a crashed move is pulled
// forward before the request proceeds.
func (lr LocaleResolver) Resolve(ctx context.Context, actor Actor, needShip bool) (*Locale, error) {
	persona, err := lr.Players.FindByID(ctx, actor.PlayerID)
	if err != nil {
		return nil, err
	}
	r, err := lr.Regions.FindByName(ctx, persona.CurrentRegion)
	if err != nil {
		return nil, err
	}
	gw, err := lr.Shards.Region(ctx, r.Name)
	if err != nil {
		return nil, shared.NewUnavailableError("region shard", err)
	}
	loc := &Locale{Persona: persona, Region: r, GW: gw}
	if !needShip {
		return loc, nil
	}
	if persona.CurrentShipID.IsZero() {
		return nil, shared.NewConflictError("no ship is currently boarded")
	}
	vessel, err := gw.Ships.FindByID(ctx, r.ID, persona.CurrentShipID)
	if err != nil {
		return nil, err
	}
	if vessel.Sector != persona.CurrentSector {
		persona.MoveTo(vessel.Sector, lr.Clock.Now())
	}
	loc.Vessel = vessel
	return loc, nil
}
