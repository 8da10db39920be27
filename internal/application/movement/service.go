// Package movement drives intra-region navigation: warp-link traversal,
// route planning over the region's graph, and sector scans. Inter-region
// moves belong to the federation service.
package movement

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// Service executes navigation use-cases against the actor's current region.
type Service struct {
	regions     region.Repository
	memberships region.MembershipRepository
	players     player.Repository
	shards      common.ShardResolver
	publisher   shared.Publisher
	locales     common.LocaleResolver
	clock       shared.Clock
}

// NewService wires the navigation use-cases.
func NewService(
	regions region.Repository,
	memberships region.MembershipRepository,
	players player.Repository,
	shards common.ShardResolver,
	publisher shared.Publisher,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		regions:     regions,
		memberships: memberships,
		players:     players,
		shards:      shards,
		publisher:   publisher,
		locales:     common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:       clock,
	}
}

// ListSectors returns the full topology of the actor's current region.
func (s *Service) ListSectors(ctx context.Context, actor common.Actor) ([]*sector.Sector, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Sectors.List(ctx, loc.Region.ID)
}

// Tunnels lists the outgoing warp links of a sector.
func (s *Service) Tunnels(ctx context.Context, actor common.Actor, index int) ([]*sector.WarpLink, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Sectors.LinksFrom(ctx, loc.Region.ID, index)
}

// MoveResult reports a completed warp-link traversal.
type MoveResult struct {
	Sector        *sector.Sector `json:"sector"`
	FuelRemaining int            `json:"fuel_remaining"`
	TurnCost      int            `json:"turn_cost"`
	TollPaid      int64          `json:"toll_paid"`
}

// Move traverses the warp link from the ship's sector to the target sector:
// restriction check, toll, fuel burn, then the position writes. The ship row
// carries the version guard, so two racing moves settle to exactly one.
func (s *Service) Move(ctx context.Context, actor common.Actor, toSector int) (*MoveResult, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	if _, err := loc.GW.Combats.FindActiveByShip(ctx, loc.Region.ID, loc.Vessel.ID); err == nil {
		return nil, shared.NewConflictError("ship is locked in combat")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	from := loc.Vessel.Sector
	links, err := loc.GW.Sectors.LinksFrom(ctx, loc.Region.ID, from)
	if err != nil {
		return nil, err
	}
	var link *sector.WarpLink
	for _, l := range links {
		if l.ToSector == toSector {
			link = l
			break
		}
	}
	if link == nil {
		return nil, shared.NewValidationError("to_sector", "no warp link from the current sector")
	}
	if !actor.IsAdmin() && !link.Passable(s.membershipRank(ctx, loc)) {
		return nil, shared.NewForbiddenError("warp link", "membership tier does not clear this passage")
	}

	if link.Toll > 0 {
		if err := loc.Persona.Spend(shared.Credits(link.Toll), now); err != nil {
			return nil, err
		}
	}
	if err := loc.Vessel.BurnFuel(link.TurnCost, now); err != nil {
		return nil, err
	}
	if err := loc.Vessel.MoveTo(toSector, now); err != nil {
		return nil, err
	}
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		return nil, err
	}
	loc.Persona.MoveTo(toSector, now)
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		// The ship row already moved; resolve reconciles the persona on the
		// next request, so surface the error without unwinding.
		return nil, err
	}

	dest, err := s.recordArrival(ctx, loc.Region.ID, toSector, loc.GW)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"player_id": loc.Persona.ID,
		"ship_id":   loc.Vessel.ID,
		"region":    loc.Region.Name,
		"sector":    toSector,
	}
	s.publish(ctx,
		shared.NewEvent(shared.EventShipLeftSector, now,
			map[string]any{"player_id": loc.Persona.ID, "ship_id": loc.Vessel.ID, "region": loc.Region.Name, "sector": from},
			shared.SectorScope(loc.Region.Name, from)),
		shared.NewEvent(shared.EventShipEnteredSector, now, payload,
			shared.SectorScope(loc.Region.Name, toSector),
			shared.PlayerScope(loc.Persona.ID)),
	)

	return &MoveResult{
		Sector:        dest,
		FuelRemaining: loc.Vessel.Fuel,
		TurnCost:      link.TurnCost,
		TollPaid:      link.Toll,
	}, nil
}

// recordArrival bumps destination traffic. Traffic is advisory, so a version
// race on the sector row is ignored rather than retried.
func (s *Service) recordArrival(ctx context.Context, regionID shared.RegionID, index int, gw *common.RegionGateways) (*sector.Sector, error) {
	dest, err := gw.Sectors.FindByIndex(ctx, regionID, index)
	if err != nil {
		return nil, err
	}
	dest.RecordTraffic(s.clock.Now())
	if err := gw.Sectors.Update(ctx, dest); err != nil && !errors.Is(err, shared.ErrConflict) {
		return nil, err
	}
	return dest, nil
}

// membershipRank resolves the actor's tier in the current region. Players
// without a membership row (the Nexus default) rank as visitors.
func (s *Service) membershipRank(ctx context.Context, loc *common.Locale) int {
	m, err := s.memberships.Find(ctx, loc.Persona.ID, loc.Region.ID)
	if err != nil {
		return 0
	}
	return m.Rank()
}

// Hop is one edge of a planned route.
type Hop struct {
	From     int   `json:"from"`
	To       int   `json:"to"`
	TurnCost int   `json:"turn_cost"`
	Toll     int64 `json:"toll"`
}

// RoutePlan is a minimal-turn-cost path through the warp graph.
type RoutePlan struct {
	Hops       []Hop `json:"hops"`
	TotalTurns int   `json:"total_turns"`
	TotalTolls int64 `json:"total_tolls"`
}

// PlanRoute computes the cheapest path by accumulated turn cost from the
// ship's sector to the destination, using only links the actor's membership
// tier can pass. Ties break on the lower sector index so plans are stable.
func (s *Service) PlanRoute(ctx context.Context, actor common.Actor, toSector int) (*RoutePlan, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	from := loc.Vessel.Sector
	if from == toSector {
		return &RoutePlan{Hops: []Hop{}}, nil
	}
	links, err := loc.GW.Sectors.Links(ctx, loc.Region.ID)
	if err != nil {
		return nil, err
	}
	rank := s.membershipRank(ctx, loc)
	admin := actor.IsAdmin()

	edges := make(map[int][]*sector.WarpLink)
	for _, l := range links {
		if !admin && !l.Passable(rank) {
			continue
		}
		edges[l.FromSector] = append(edges[l.FromSector], l)
	}

	plan := dijkstra(edges, from, toSector)
	if plan == nil {
		return nil, shared.NewNotFoundError("route")
	}
	return plan, nil
}

// dijkstra runs a plain priority-scan shortest path. Region graphs stay in
// the low thousands of nodes, so a linear frontier scan beats heap overhead.
func dijkstra(edges map[int][]*sector.WarpLink, from, to int) *RoutePlan {
	const unreached = int(^uint(0) >> 1)
	dist := map[int]int{from: 0}
	prev := map[int]*sector.WarpLink{}
	done := map[int]bool{}

	for {
		current, best := -1, unreached
		for idx, d := range dist {
			if done[idx] {
				continue
			}
			if d < best || (d == best && (current == -1 || idx < current)) {
				current, best = idx, d
			}
		}
		if current == -1 {
			return nil
		}
		if current == to {
			break
		}
		done[current] = true
		for _, l := range edges[current] {
			next := best + l.TurnCost
			if d, ok := dist[l.ToSector]; !ok || next < d {
				dist[l.ToSector] = next
				prev[l.ToSector] = l
			}
		}
	}

	var hops []Hop
	var tolls int64
	for at := to; at != from; {
		l := prev[at]
		hops = append(hops, Hop{From: l.FromSector, To: l.ToSector, TurnCost: l.TurnCost, Toll: l.Toll})
		tolls += l.Toll
		at = l.FromSector
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	return &RoutePlan{Hops: hops, TotalTurns: dist[to], TotalTolls: tolls}
}

// ShipSighting is what a scan reveals about a ship in the sector: identity
// and hull, never cargo or fuel.
type ShipSighting struct {
	ID      shared.ShipID   `json:"id"`
	OwnerID shared.PlayerID `json:"owner_id"`
	Name    string          `json:"name"`
	Class   ship.HullClass  `json:"class"`
}

// ScanReport is the composite picture of one sector.
type ScanReport struct {
	Sector   *sector.Sector     `json:"sector"`
	Links    []*sector.WarpLink `json:"links"`
	Station  *station.Station   `json:"station,omitempty"`
	Planets  []*planet.Planet   `json:"planets"`
	Ships    []ShipSighting     `json:"ships"`
	Presence int                `json:"presence"`
}

// ScanSector surveys the actor's current sector or one warp hop away.
// Scanning announces itself: a radar ping lands in the scanned sector's
// scope so resident pilots see the sweep.
func (s *Service) ScanSector(ctx context.Context, actor common.Actor, index int) (*ScanReport, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && index != loc.Vessel.Sector {
		links, err := loc.GW.Sectors.LinksFrom(ctx, loc.Region.ID, loc.Vessel.Sector)
		if err != nil {
			return nil, err
		}
		adjacent := false
		for _, l := range links {
			if l.ToSector == index {
				adjacent = true
				break
			}
		}
		if !adjacent {
			return nil, shared.NewValidationError("sector", "scanners reach only the current and adjacent sectors")
		}
	}

	sec, err := loc.GW.Sectors.FindByIndex(ctx, loc.Region.ID, index)
	if err != nil {
		return nil, err
	}
	links, err := loc.GW.Sectors.LinksFrom(ctx, loc.Region.ID, index)
	if err != nil {
		return nil, err
	}
	planets, err := loc.GW.Planets.ListBySector(ctx, loc.Region.ID, index)
	if err != nil {
		return nil, err
	}
	ships, err := loc.GW.Ships.ListBySector(ctx, loc.Region.ID, index)
	if err != nil {
		return nil, err
	}
	report := &ScanReport{Sector: sec, Links: links, Planets: planets, Presence: len(ships)}
	for _, sh := range ships {
		if sh.Destroyed {
			continue
		}
		report.Ships = append(report.Ships, ShipSighting{ID: sh.ID, OwnerID: sh.OwnerID, Name: sh.Name, Class: sh.Class})
	}
	if st, err := loc.GW.Stations.FindBySector(ctx, loc.Region.ID, index); err == nil {
		report.Station = st
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventRadarPing, s.clock.Now(),
		map[string]any{"player_id": loc.Persona.ID, "region": loc.Region.Name, "sector": index},
		shared.SectorScope(loc.Region.Name, index)))
	return report, nil
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("movement event publish failed")
	}
}
