// Package drones manages deployed drone stacks: dropping them onto ships,
// planets, sectors and ports, recalling them aboard, retuning their behavior
// and restocking the bay at equipment stations.
package drones

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// Service executes drone use-cases in the actor's current region.
type Service struct {
	regions   region.Repository
	players   player.Repository
	shards    common.ShardResolver
	publisher shared.Publisher
	locales   common.LocaleResolver
	clock     shared.Clock
}

// NewService wires the drone use-cases.
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

// DeployInput describes a new deployment in the ship's current sector.
type DeployInput struct {
	Kind       drone.PinKind  `json:"kind" validate:"required"`
	PinnedToID string         `json:"pinned_to_id,omitempty"`
	Count      int            `json:"count" validate:"required,min=1"`
	Behavior   drone.Behavior `json:"behavior"`
}

// Deploy drops drones from the ship's bay onto a pin in the current sector.
// The ship row's version guard serializes the owner's concurrent deploys, so
// the bay never over-commits.
func (s *Service) Deploy(ctx context.Context, actor common.Actor, in DeployInput) (*drone.Deployment, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	if err := s.checkPin(ctx, loc, in.Kind, in.PinnedToID); err != nil {
		return nil, err
	}

	d, err := drone.NewDeployment(loc.Region.ID, loc.Persona.ID, loc.Persona.TeamID,
		in.Kind, loc.Vessel.Sector, in.PinnedToID, in.Count, in.Behavior, now)
	if err != nil {
		return nil, err
	}
	if err := loc.Vessel.UnloadDrones(in.Count, now); err != nil {
		return nil, err
	}
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		return nil, err
	}
	if err := loc.GW.Drones.Create(ctx, d); err != nil {
		s.restow(ctx, loc, in.Count)
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventDroneDeployed, now, map[string]any{
		"deployment_id": d.ID,
		"owner_id":      d.OwnerID,
		"kind":          string(d.Kind),
		"sector":        d.Sector,
		"count":         d.Count,
	},
		shared.SectorScope(loc.Region.Name, d.Sector),
		shared.PlayerScope(d.OwnerID),
	))
	return d, nil
}

// checkPin verifies the pin target exists in the ship's sector.
func (s *Service) checkPin(ctx context.Context, loc *common.Locale, kind drone.PinKind, pinnedToID string) error {
	switch kind {
	case drone.PinSector:
		return nil
	case drone.PinShip:
		sh, err := loc.GW.Ships.FindByID(ctx, loc.Region.ID, shared.ShipID(pinnedToID))
		if err != nil {
			return err
		}
		if sh.Sector != loc.Vessel.Sector {
			return shared.NewConflictError("pinned ship is not in the current sector")
		}
		if sh.OwnerID != loc.Persona.ID && (loc.Persona.TeamID.IsZero() || sh.TeamID != loc.Persona.TeamID) {
			return shared.NewForbiddenError(shared.CodePermissions, "drones guard only your own or your team's ships")
		}
	case drone.PinPlanet:
		pl, err := loc.GW.Planets.FindByID(ctx, loc.Region.ID, shared.PlanetID(pinnedToID))
		if err != nil {
			return err
		}
		if pl.Sector != loc.Vessel.Sector {
			return shared.NewConflictError("pinned planet is not in the current sector")
		}
	case drone.PinPort:
		st, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, shared.StationID(pinnedToID))
		if err != nil {
			return err
		}
		if st.Sector != loc.Vessel.Sector {
			return shared.NewConflictError("pinned port is not in the current sector")
		}
	}
	return nil
}

// restow is the compensating write of a deploy whose stack row could not be
// created: the drones go back into the bay.
func (s *Service) restow(ctx context.Context, loc *common.Locale, count int) {
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
			Msg("drone restow failed")
	}
}

// Recall pulls drones from a deployment back into the ship's bay. An emptied
// stack is removed.
func (s *Service) Recall(ctx context.Context, actor common.Actor, id shared.DroneDeploymentID, count int) (*drone.Deployment, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	d, err := loc.GW.Drones.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != loc.Persona.ID && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only the owner can recall a deployment")
	}
	if d.Sector != loc.Vessel.Sector {
		return nil, shared.NewConflictError("ship is not at the deployment")
	}
	now := s.clock.Now()
	if loc.Vessel.DronesAboard+count > loc.Vessel.DroneCapacity() {
		return nil, shared.NewConflictError("drone capacity exceeded")
	}

	empty, err := d.Recall(count, now)
	if err != nil {
		return nil, err
	}
	// The stack row goes first: its version guard serializes racing recalls
	// of the same deployment.
	if empty {
		err = loc.GW.Drones.Delete(ctx, loc.Region.ID, d.ID)
	} else {
		err = loc.GW.Drones.Update(ctx, d)
	}
	if err != nil {
		return nil, err
	}
	if err := loc.Vessel.LoadDrones(count, now); err == nil {
		err = loc.GW.Ships.Update(ctx, loc.Vessel)
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("deployment_id", d.ID.String()).
			Int("count", count).
			Msg("drone recall stow failed")
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventDroneRecalled, now, map[string]any{
		"deployment_id": d.ID,
		"owner_id":      d.OwnerID,
		"sector":        d.Sector,
		"count":         count,
		"remaining":     d.Count,
	},
		shared.SectorScope(loc.Region.Name, d.Sector),
		shared.PlayerScope(d.OwnerID),
	))
	return d, nil
}

// Reconfigure swaps a deployment's behavior directives.
func (s *Service) Reconfigure(ctx context.Context, actor common.Actor, id shared.DroneDeploymentID, behavior drone.Behavior) (*drone.Deployment, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	d, err := loc.GW.Drones.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != loc.Persona.ID && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only the owner can reconfigure a deployment")
	}
	if err := d.Reconfigure(behavior, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := loc.GW.Drones.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns the actor's deployments in the current region.
func (s *Service) List(ctx context.Context, actor common.Actor) ([]*drone.Deployment, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Drones.ListByOwner(ctx, loc.Region.ID, loc.Persona.ID)
}

// SectorStacks returns the deployments visible in the ship's sector.
func (s *Service) SectorStacks(ctx context.Context, actor common.Actor) ([]*drone.Deployment, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	return loc.GW.Drones.ListBySector(ctx, loc.Region.ID, loc.Vessel.Sector)
}

// Buy restocks the ship's bay at an equipment station in the same sector.
func (s *Service) Buy(ctx context.Context, actor common.Actor, count int) (*player.Player, error) {
	if count < 1 {
		return nil, shared.NewValidationError("count", "must be positive")
	}
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	st, err := loc.GW.Stations.FindBySector(ctx, loc.Region.ID, loc.Vessel.Sector)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewConflictError("no station in the current sector")
		}
		return nil, err
	}
	if !st.Offers(station.ServiceEquipment) {
		return nil, shared.NewConflictError("station does not sell equipment")
	}
	if loc.Vessel.DronesAboard+count > loc.Vessel.DroneCapacity() {
		return nil, shared.NewConflictError("drone capacity exceeded")
	}

	cost := shared.Credits(int64(count) * drone.UnitPrice)
	if err := loc.Persona.Spend(cost, now); err != nil {
		return nil, err
	}
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		return nil, err
	}
	if err := loc.Vessel.LoadDrones(count, now); err == nil {
		err = loc.GW.Ships.Update(ctx, loc.Vessel)
	}
	if err != nil {
		s.refund(ctx, loc.Persona.ID, cost)
		return nil, err
	}
	return loc.Persona, nil
}

// refund reverses a drone purchase whose bay write failed.
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
			Msg("drone purchase refund failed")
	}
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("drone event publish failed")
	}
}
