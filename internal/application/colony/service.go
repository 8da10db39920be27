// Package colony manages claimed planets: landing colonists, assigning them
// to production, raising buildings and defenses, draining stockpiles into
// cargo holds, genesis deployment, and the siege lifecycle driven by the
// colony tick.
package colony

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// ColonistsPerUnit is the population carried by one cargo hold of colonists.
const ColonistsPerUnit int64 = 1000

// GenesisCap limits how many genesis-created planets one player may hold in
// a region.
const GenesisCap = 3

// Siege arithmetic. Drone stacks weigh in at the same per-drone value as the
// planet's stationed drones; a besieger outgunning the defenses by 100 points
// takes the planet in five ticks.
const (
	siegeStrengthPerDrone = 5.0
	siegeRate             = 1.0 / 500.0
)

// roleCommodities maps production roles to the commodity they stockpile.
var roleCommodities = map[planet.Role]shared.Commodity{
	planet.RoleFuel:      shared.CommodityFuel,
	planet.RoleOrganics:  shared.CommodityOrganics,
	planet.RoleEquipment: shared.CommodityEquipment,
}

// genesisTypes is the roll table for materialized planets. Devices seed
// rocky worlds; gas giants only occur at generation time.
var genesisTypes = []planet.Type{
	planet.TypeTerran, planet.TypeOceanic, planet.TypeDesert,
	planet.TypeJungle, planet.TypeVolcanic, planet.TypeIce, planet.TypeBarren,
}

// Service executes colony use-cases in the actor's current region.
type Service struct {
	regions   region.Repository
	players   player.Repository
	shards    common.ShardResolver
	publisher shared.Publisher
	locales   common.LocaleResolver
	clock     shared.Clock
}

// NewService wires the colony use-cases.
func NewService(
	regions region.Repository,
	players player.Repository,
	shards common.ShardResolver,
	publisher shared.Publisher,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		regions:   regions,
		players:   players,
		shards:    shards,
		publisher: publisher,
		locales:   common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:     clock,
	}
}

// Holdings returns the actor's planets in the current region.
func (s *Service) Holdings(ctx context.Context, actor common.Actor) ([]*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Planets.ListByOwner(ctx, loc.Region.ID, loc.Persona.ID)
}

// Detail returns one planet. Sector scans already disclose planets, so the
// detail view is not gated on ownership.
func (s *Service) Detail(ctx context.Context, actor common.Actor, planetID shared.PlanetID) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Planets.FindByID(ctx, loc.Region.ID, planetID)
}

// Colonize claims an unowned planet with colonists from the ship's hold. The
// cargo comes off first; a lost claim race restows it.
func (s *Service) Colonize(ctx context.Context, actor common.Actor, planetID shared.PlanetID, units int) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.planetHere(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if p.Colonized() {
		return nil, shared.NewConflictError("planet is already colonized")
	}
	if units < 1 {
		return nil, shared.NewValidationError("units", "must land at least one unit of colonists")
	}

	if err := loc.Vessel.Cargo.Unload(shared.CommodityColonists, units); err != nil {
		return nil, err
	}
	loc.Vessel.UpdatedAt = now
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		return nil, err
	}
	err = p.Colonize(loc.Persona.ID, int64(units)*ColonistsPerUnit, now)
	if err == nil {
		err = loc.GW.Planets.Update(ctx, p)
	}
	if err != nil {
		s.restow(ctx, loc, shared.CommodityColonists, units)
		return nil, err
	}
	return p, nil
}

// LandColonists reinforces an owned colony from the ship's hold.
func (s *Service) LandColonists(ctx context.Context, actor common.Actor, planetID shared.PlanetID, units int) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.ownedPlanetHere(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if units < 1 {
		return nil, shared.NewValidationError("units", "must land at least one unit of colonists")
	}

	if err := loc.Vessel.Cargo.Unload(shared.CommodityColonists, units); err != nil {
		return nil, err
	}
	loc.Vessel.UpdatedAt = now
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		return nil, err
	}
	err = p.LandColonists(int64(units)*ColonistsPerUnit, now)
	if err == nil {
		err = loc.GW.Planets.Update(ctx, p)
	}
	if err != nil {
		s.restow(ctx, loc, shared.CommodityColonists, units)
		return nil, err
	}
	return p, nil
}

// Allocate distributes the colony's population among production roles. The
// owner can retune allocation remotely.
func (s *Service) Allocate(ctx context.Context, actor common.Actor, planetID shared.PlanetID, allocation map[planet.Role]float64) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.ownedPlanet(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if err := p.Allocate(allocation, now); err != nil {
		return nil, err
	}
	if err := loc.GW.Planets.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Construct raises a building one level, debiting the owner. The credit row
// is the gate: it comes off first and is refunded when the planet write
// fails.
func (s *Service) Construct(ctx context.Context, actor common.Actor, planetID shared.PlanetID, b planet.Building) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.ownedPlanet(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if !planet.ValidBuilding(b) {
		return nil, shared.NewValidationError("building", "unknown building")
	}

	cost := shared.Credits(planet.BuildingCost(b, p.Buildings[b]+1))
	if err := loc.Persona.Spend(cost, now); err != nil {
		return nil, err
	}
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		return nil, err
	}
	_, err = p.Construct(b, now)
	if err == nil {
		err = loc.GW.Planets.Update(ctx, p)
	}
	if err != nil {
		s.refund(ctx, loc.Persona.ID, cost)
		return nil, err
	}
	return p, nil
}

// UpgradeCitadel raises the ground defenses one level for credits.
func (s *Service) UpgradeCitadel(ctx context.Context, actor common.Actor, planetID shared.PlanetID) (*planet.Planet, error) {
	return s.upgradeDefense(ctx, actor, planetID,
		func(p *planet.Planet) shared.Credits { return shared.Credits(planet.CitadelCost(p.CitadelLevel + 1)) },
		(*planet.Planet).UpgradeCitadel)
}

// UpgradeShield raises the planetary shield one level for credits.
func (s *Service) UpgradeShield(ctx context.Context, actor common.Actor, planetID shared.PlanetID) (*planet.Planet, error) {
	return s.upgradeDefense(ctx, actor, planetID,
		func(p *planet.Planet) shared.Credits { return shared.Credits(planet.ShieldCost(p.ShieldLevel + 1)) },
		(*planet.Planet).UpgradeShield)
}

func (s *Service) upgradeDefense(ctx context.Context, actor common.Actor, planetID shared.PlanetID,
	price func(*planet.Planet) shared.Credits, raise func(*planet.Planet, time.Time) error) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.ownedPlanet(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}

	cost := price(p)
	if err := loc.Persona.Spend(cost, now); err != nil {
		return nil, err
	}
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		return nil, err
	}
	err = raise(p, now)
	if err == nil {
		err = loc.GW.Planets.Update(ctx, p)
	}
	if err != nil {
		s.refund(ctx, loc.Persona.ID, cost)
		return nil, err
	}
	return p, nil
}

// StationDrones moves drones from the ship's bay into the planet's garrison.
func (s *Service) StationDrones(ctx context.Context, actor common.Actor, planetID shared.PlanetID, count int) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.ownedPlanetHere(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, shared.NewValidationError("count", "must station at least one drone")
	}

	if err := loc.Vessel.UnloadDrones(count, now); err != nil {
		return nil, err
	}
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		return nil, err
	}
	err = p.StationDrones(count, now)
	if err == nil {
		err = loc.GW.Planets.Update(ctx, p)
	}
	if err != nil {
		s.restowDrones(ctx, loc, count)
		return nil, err
	}
	return p, nil
}

// CollectStockpile drains as much of a role's accrued production as the
// ship's hold takes. The planet row drains first; its version guard settles
// racing collections, and a failed stow puts the units back.
func (s *Service) CollectStockpile(ctx context.Context, actor common.Actor, planetID shared.PlanetID, role planet.Role) (int, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	p, err := s.ownedPlanetHere(ctx, loc, planetID)
	if err != nil {
		return 0, err
	}
	commodity, ok := roleCommodities[role]
	if !ok {
		return 0, shared.NewValidationError("role", "unknown production role")
	}

	units := p.Stockpile[role]
	if free := int64(loc.Vessel.Cargo.Free()); units > free {
		units = free
	}
	if units < 1 {
		return 0, shared.NewConflictError("nothing to collect")
	}

	p.Stockpile[role] -= units
	p.UpdatedAt = now
	if err := loc.GW.Planets.Update(ctx, p); err != nil {
		return 0, err
	}
	err = loc.Vessel.Cargo.Load(commodity, int(units))
	if err == nil {
		loc.Vessel.UpdatedAt = now
		err = loc.GW.Ships.Update(ctx, loc.Vessel)
	}
	if err != nil {
		s.returnStockpile(ctx, loc, p.ID, role, units)
		return 0, err
	}
	return int(units), nil
}

// GenesisInput names the planet a genesis device will materialize.
type GenesisInput struct {
	Name string `json:"name" validate:"required,min=3,max=64"`
}

// Genesis consumes a genesis device to materialize a planet in the ship's
// sector. The sector must be empty of planets, the hull genesis-capable, and
// the deployer under the per-region cap. The rolled type is the gamble.
func (s *Service) Genesis(ctx context.Context, actor common.Actor, in GenesisInput) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	if !loc.Vessel.Spec().GenesisCapable {
		return nil, shared.NewConflictError("hull cannot deploy genesis devices")
	}
	existing, err := loc.GW.Planets.ListBySector(ctx, loc.Region.ID, loc.Vessel.Sector)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, shared.NewConflictError("sector already holds a planet")
	}
	owned, err := loc.GW.Planets.ListByOwner(ctx, loc.Region.ID, loc.Persona.ID)
	if err != nil {
		return nil, err
	}
	created := 0
	for _, p := range owned {
		if p.GenesisCreated {
			created++
		}
	}
	if created >= GenesisCap {
		return nil, shared.NewConflictError("genesis planet cap reached")
	}

	if err := loc.Vessel.Cargo.Unload(shared.CommodityGenesisUnit, 1); err != nil {
		return nil, err
	}
	loc.Vessel.UpdatedAt = now
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(now.UnixNano()))
	typ := genesisTypes[rng.Intn(len(genesisTypes))]
	p, err := planet.NewFromGenesis(loc.Region.ID, loc.Vessel.Sector, in.Name, typ, loc.Persona.ID, now)
	if err == nil {
		err = loc.GW.Planets.Create(ctx, p)
	}
	if err != nil {
		s.restow(ctx, loc, shared.CommodityGenesisUnit, 1)
		return nil, err
	}
	return p, nil
}

// Besiege opens a siege on another player's colony. The attacker must be
// present with an aggressive drone stack already pinned to the planet; the
// stack sustains the siege through subsequent ticks.
func (s *Service) Besiege(ctx context.Context, actor common.Actor, planetID shared.PlanetID) (*planet.Planet, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	p, err := s.planetHere(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == loc.Persona.ID {
		return nil, shared.NewConflictError("cannot besiege your own colony")
	}
	ownerTeam := s.teamOf(ctx, map[shared.PlayerID]shared.TeamID{}, p.OwnerID)
	if !ownerTeam.IsZero() && ownerTeam == loc.Persona.TeamID {
		return nil, shared.NewConflictError("cannot besiege a teammate's colony")
	}

	stacks, err := loc.GW.Drones.ListBySector(ctx, loc.Region.ID, p.Sector)
	if err != nil {
		return nil, err
	}
	armed := false
	for _, d := range stacks {
		if d.Kind == drone.PinPlanet && d.PinnedToID == p.ID.String() &&
			d.OwnerID == loc.Persona.ID && d.Behavior.Aggression == drone.AggressionAggressive {
			armed = true
			break
		}
	}
	if !armed {
		return nil, shared.NewConflictError("besieging needs an aggressive drone stack pinned to the planet")
	}

	if err := p.BeginSiege(now); err != nil {
		return nil, err
	}
	if err := loc.GW.Planets.Update(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, shared.NewEvent(shared.EventPlanetSieged, now, map[string]any{
		"planet_id": p.ID,
		"name":      p.Name,
		"sector":    p.Sector,
		"status":    "besieged",
	},
		shared.PlayerScope(p.OwnerID),
		shared.SectorScope(loc.Region.Name, p.Sector),
		shared.RegionScope(loc.Region.Name),
	))
	return p, nil
}

// Tick advances every colony in the region by one simulated hour: growth and
// production through the planet's own tick, then siege progression from the
// drone stacks pinned to contested planets. Replays are no-ops through the
// per-planet tick index, and a planet whose row moved mid-sweep is retried
// by the next tick.
func (s *Service) Tick(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	tick, err := gw.Meta.AdvanceTick(ctx, now)
	if err != nil {
		return 0, err
	}
	colonized, err := gw.Planets.ListColonized(ctx, r.ID)
	if err != nil {
		return 0, err
	}

	teams := map[shared.PlayerID]shared.TeamID{}
	advanced := 0
	for _, p := range colonized {
		if !p.ApplyTick(tick, now) {
			continue
		}
		var outcome siegeOutcome
		if p.UnderSiege {
			outcome, err = s.progressSiege(ctx, r, gw, p, teams, now)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("planet_id", p.ID.String()).
					Msg("siege progression failed")
			}
		}
		if err := gw.Planets.Update(ctx, p); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return advanced, err
		}
		advanced++
		s.announceSiege(ctx, r, p, outcome, now)
	}

	s.publish(ctx, shared.NewEvent(shared.EventColonyTick, now, map[string]any{
		"region":  r.Name,
		"tick":    tick,
		"planets": advanced,
	}, shared.RegionScope(r.Name)))
	return advanced, nil
}

// siegeOutcome records what one tick did to a contested planet.
type siegeOutcome struct {
	lifted   bool
	fell     bool
	oldOwner shared.PlayerID
	newOwner shared.PlayerID
}

// progressSiege weighs the planet-pinned drone stacks against the defenses.
// Hostile stacks push progress, friendly and neutral stacks reinforce; a
// siege with no hostile stacks left collapses.
func (s *Service) progressSiege(ctx context.Context, r *region.Region, gw *common.RegionGateways,
	p *planet.Planet, teams map[shared.PlayerID]shared.TeamID, now time.Time) (siegeOutcome, error) {
	var outcome siegeOutcome
	stacks, err := gw.Drones.ListBySector(ctx, r.ID, p.Sector)
	if err != nil {
		return outcome, err
	}
	ownerTeam := s.teamOf(ctx, teams, p.OwnerID)

	hostile := 0.0
	support := 0.0
	besiegers := map[shared.PlayerID]int{}
	for _, d := range stacks {
		if d.Kind != drone.PinPlanet || d.PinnedToID != p.ID.String() {
			continue
		}
		if d.Hostile(p.OwnerID, ownerTeam, false) {
			hostile += float64(d.Count) * siegeStrengthPerDrone
			besiegers[d.OwnerID] += d.Count
		} else {
			support += float64(d.Count) * siegeStrengthPerDrone
		}
	}

	if hostile == 0 {
		p.BreakSiege(now)
		outcome.lifted = true
		return outcome, nil
	}
	surplus := hostile - (p.DefenseRating() + support)
	if surplus <= 0 {
		return outcome, nil
	}
	if p.AdvanceSiege(surplus*siegeRate, now) {
		outcome.fell = true
		outcome.oldOwner = p.OwnerID
		outcome.newOwner = largestBesieger(besiegers)
		if err := p.Capture(outcome.newOwner, now); err != nil {
			return siegeOutcome{}, err
		}
	}
	return outcome, nil
}

// largestBesieger picks the owner with the most drones committed, breaking
// ties on the smaller id so the outcome is stable.
func largestBesieger(besiegers map[shared.PlayerID]int) shared.PlayerID {
	var winner shared.PlayerID
	best := -1
	for owner, count := range besiegers {
		if count > best || (count == best && owner.String() < winner.String()) {
			winner = owner
			best = count
		}
	}
	return winner
}

// announceSiege publishes the state transitions recorded by a committed tick.
func (s *Service) announceSiege(ctx context.Context, r *region.Region, p *planet.Planet, outcome siegeOutcome, now time.Time) {
	switch {
	case outcome.fell:
		s.publish(ctx, shared.NewEvent(shared.EventPlanetCaptured, now, map[string]any{
			"planet_id": p.ID,
			"name":      p.Name,
			"sector":    p.Sector,
			"old_owner": outcome.oldOwner,
			"new_owner": outcome.newOwner,
		},
			shared.PlayerScope(outcome.oldOwner),
			shared.PlayerScope(outcome.newOwner),
			shared.SectorScope(r.Name, p.Sector),
			shared.RegionScope(r.Name),
		))
	case outcome.lifted:
		s.publish(ctx, shared.NewEvent(shared.EventPlanetSieged, now, map[string]any{
			"planet_id": p.ID,
			"name":      p.Name,
			"sector":    p.Sector,
			"status":    "lifted",
		},
			shared.PlayerScope(p.OwnerID),
			shared.SectorScope(r.Name, p.Sector),
		))
	}
}

// planetHere returns the planet when the ship is in its sector.
func (s *Service) planetHere(ctx context.Context, loc *common.Locale, planetID shared.PlanetID) (*planet.Planet, error) {
	p, err := loc.GW.Planets.FindByID(ctx, loc.Region.ID, planetID)
	if err != nil {
		return nil, err
	}
	if p.Sector != loc.Vessel.Sector {
		return nil, shared.NewConflictError("ship is not at the planet")
	}
	return p, nil
}

// ownedPlanet returns the planet when the actor owns it.
func (s *Service) ownedPlanet(ctx context.Context, loc *common.Locale, planetID shared.PlanetID) (*planet.Planet, error) {
	p, err := loc.GW.Planets.FindByID(ctx, loc.Region.ID, planetID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != loc.Persona.ID {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "planet belongs to another player")
	}
	return p, nil
}

// ownedPlanetHere combines ownership and presence.
func (s *Service) ownedPlanetHere(ctx context.Context, loc *common.Locale, planetID shared.PlanetID) (*planet.Planet, error) {
	p, err := s.planetHere(ctx, loc, planetID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != loc.Persona.ID {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "planet belongs to another player")
	}
	return p, nil
}

// teamOf resolves a player's team through a per-sweep cache. Lookup failures
// degrade to teamless, which only costs the owner team-stack immunity.
func (s *Service) teamOf(ctx context.Context, cache map[shared.PlayerID]shared.TeamID, id shared.PlayerID) shared.TeamID {
	if team, ok := cache[id]; ok {
		return team
	}
	persona, err := s.players.FindByID(ctx, id)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("player_id", id.String()).Msg("siege owner lookup failed")
		cache[id] = shared.TeamID("")
		return shared.TeamID("")
	}
	cache[id] = persona.TeamID
	return persona.TeamID
}

// restow is the compensating write of a consumed cargo whose planet write
// failed: the goods go back aboard.
func (s *Service) restow(ctx context.Context, loc *common.Locale, c shared.Commodity, units int) {
	now := s.clock.Now()
	sh, err := loc.GW.Ships.FindByID(ctx, loc.Region.ID, loc.Vessel.ID)
	if err == nil {
		if err = sh.Cargo.Load(c, units); err == nil {
			sh.UpdatedAt = now
			err = loc.GW.Ships.Update(ctx, sh)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("ship_id", loc.Vessel.ID.String()).
			Str("commodity", string(c)).
			Int("units", units).
			Msg("colony cargo restow failed")
	}
}

// restowDrones returns drones to the bay after a failed garrison write.
func (s *Service) restowDrones(ctx context.Context, loc *common.Locale, count int) {
	now := s.clock.Now()
	sh, err := loc.GW.Ships.FindByID(ctx, loc.Region.ID, loc.Vessel.ID)
	if err == nil {
		if err = sh.LoadDrones(count, now); err == nil {
			err = loc.GW.Ships.Update(ctx, sh)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("ship_id", loc.Vessel.ID.String()).
			Int("count", count).
			Msg("colony drone restow failed")
	}
}

// returnStockpile puts collected units back after a failed cargo stow.
func (s *Service) returnStockpile(ctx context.Context, loc *common.Locale, id shared.PlanetID, role planet.Role, units int64) {
	now := s.clock.Now()
	p, err := loc.GW.Planets.FindByID(ctx, loc.Region.ID, id)
	if err == nil {
		p.Stockpile[role] += units
		p.UpdatedAt = now
		err = loc.GW.Planets.Update(ctx, p)
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("planet_id", id.String()).
			Str("role", string(role)).
			Int64("units", units).
			Msg("stockpile return failed")
	}
}

// refund reverses a construction debit whose planet write failed.
func (s *Service) refund(ctx context.Context, id shared.PlayerID, amount shared.Credits) {
	now := s.clock.Now()
	persona, err := s.players.FindByID(ctx, id)
	if err == nil {
		if err = persona.Earn(amount, now); err == nil {
			err = s.players.Update(ctx, persona)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("player_id", id.String()).
			Int64("amount", int64(amount)).
			Msg("construction refund failed")
	}
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("colony event publish failed")
	}
}
