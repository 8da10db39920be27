// Package missions runs the faction job boards: browsing offers, accepting
// work solo or for a team, completing it for credits and standing, and the
// board refresh that keeps every faction hiring.
package missions

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Board refresh tuning.
const (
	// BoardTarget is how many open offers each faction keeps posted.
	BoardTarget = 3
	// DefaultOfferTTL is how long an offer stays on the board, and the
	// deadline once accepted.
	DefaultOfferTTL = 48 * time.Hour
)

// freight are the commodities delivery missions move. Colonists and genesis
// devices travel by colony operations, not faction contract.
var freight = []shared.Commodity{
	shared.CommodityFuel,
	shared.CommodityOrganics,
	shared.CommodityEquipment,
	shared.CommodityOre,
	shared.CommodityLuxuries,
	shared.CommodityMedical,
	shared.CommodityTechnology,
}

// Service executes mission use-cases in the actor's current region.
// Reputation lives in the global shard and follows the player everywhere.
type Service struct {
	regions     region.Repository
	players     player.Repository
	reputations faction.ReputationRepository
	shards      common.ShardResolver
	publisher   shared.Publisher
	locales     common.LocaleResolver
	clock       shared.Clock
}

// NewService wires the mission use-cases.
func NewService(
	regions region.Repository,
	players player.Repository,
	reputations faction.ReputationRepository,
	shards common.ShardResolver,
	publisher shared.Publisher,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		regions:     regions,
		players:     players,
		reputations: reputations,
		shards:      shards,
		publisher:   publisher,
		locales:     common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:       clock,
	}
}

// Board lists a faction's open offers, or every faction's when factionID is
// empty.
func (s *Service) Board(ctx context.Context, actor common.Actor, factionID faction.ID) ([]*faction.Mission, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if factionID != "" {
		return loc.GW.Missions.ListOffered(ctx, loc.Region.ID, factionID)
	}
	var out []*faction.Mission
	for _, fac := range faction.Catalog() {
		offers, err := loc.GW.Missions.ListOffered(ctx, loc.Region.ID, fac.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, offers...)
	}
	return out, nil
}

// Mine lists the actor's missions in this region, newest first.
func (s *Service) Mine(ctx context.Context, actor common.Actor) ([]*faction.Mission, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Missions.ListByPlayer(ctx, loc.Region.ID, loc.Persona.ID)
}

// Standing lists the actor's reputation with every faction they have met.
func (s *Service) Standing(ctx context.Context, actor common.Actor) ([]*faction.Reputation, error) {
	return s.reputations.ListByPlayer(ctx, actor.PlayerID)
}

// Accept claims an offer. The mission row's version guard settles racing
// claims: the first write wins, the rest see the offer gone. With forTeam
// the reward routes to the team treasury; only officers commit their team.
func (s *Service) Accept(ctx context.Context, actor common.Actor, missionID string, forTeam bool) (*faction.Mission, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	m, err := loc.GW.Missions.FindByID(ctx, loc.Region.ID, missionID)
	if err != nil {
		return nil, err
	}

	var teamID shared.TeamID
	if forTeam {
		if loc.Persona.TeamID.IsZero() {
			return nil, shared.NewConflictError("you are not on a team")
		}
		member, err := loc.GW.Teams.FindMember(ctx, loc.Region.ID, loc.Persona.TeamID, loc.Persona.ID)
		if err != nil {
			return nil, err
		}
		if !member.CanInvite() {
			return nil, shared.NewForbiddenError(shared.CodeTeamPermission, "only officers accept missions for the team")
		}
		teamID = loc.Persona.TeamID
	}

	standing, err := s.standing(ctx, loc.Persona.ID, m.FactionID)
	if err != nil {
		return nil, err
	}
	if err := m.Accept(loc.Persona.ID, teamID, standing.Tier(), now); err != nil {
		return nil, err
	}
	if err := loc.GW.Missions.Update(ctx, m); err != nil {
		return nil, err
	}

	scopes := []shared.Scope{shared.PlayerScope(loc.Persona.ID)}
	if !teamID.IsZero() {
		scopes = append(scopes, shared.TeamScope(teamID))
	}
	s.publish(ctx, shared.NewEvent(shared.EventMissionAccepted, now, map[string]any{
		"mission_id": m.ID,
		"faction_id": string(m.FactionID),
		"type":       string(m.Type),
		"player_id":  loc.Persona.ID.String(),
		"team_id":    teamID.String(),
	}, scopes...))
	return m, nil
}

// Complete turns in held work. Delivery checks and unloads the freight at
// the target sector before the mission row flips; the row's version guard
// is what makes the payout happen exactly once, so a lost race restows the
// cargo.
func (s *Service) Complete(ctx context.Context, actor common.Actor, missionID string) (*faction.Mission, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	m, err := loc.GW.Missions.FindByID(ctx, loc.Region.ID, missionID)
	if err != nil {
		return nil, err
	}

	unloaded := false
	switch m.Type {
	case faction.MissionDelivery:
		if loc.Vessel.Sector != m.TargetSector {
			return nil, shared.NewValidationErrorf("delivery completes in sector %d", m.TargetSector)
		}
		if loc.Vessel.Cargo.Quantity(m.Commodity) < m.Quantity {
			return nil, shared.NewValidationErrorf("delivery needs %d %s aboard", m.Quantity, m.Commodity)
		}
		if err := loc.Vessel.Cargo.Unload(m.Commodity, m.Quantity); err != nil {
			return nil, err
		}
		loc.Vessel.UpdatedAt = now
		if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
			return nil, err
		}
		unloaded = true
	case faction.MissionPatrol:
		if loc.Vessel.Sector != m.TargetSector {
			return nil, shared.NewValidationErrorf("patrol completes in sector %d", m.TargetSector)
		}
	case faction.MissionBountyHunt:
		target, err := loc.GW.Ships.FindByID(ctx, loc.Region.ID, m.TargetShipID)
		if err != nil {
			return nil, err
		}
		if !target.Destroyed {
			return nil, shared.NewConflictError("the target ship still flies")
		}
	}

	credits, rep, err := m.Complete(loc.Persona.ID, now)
	if err == nil {
		err = loc.GW.Missions.Update(ctx, m)
	}
	if err != nil {
		if unloaded {
			s.restow(ctx, loc, m)
		}
		return nil, err
	}

	s.payReward(ctx, loc, m, credits)
	tier := s.adjustStanding(ctx, loc.Persona.ID, m.FactionID, rep)

	scopes := []shared.Scope{shared.PlayerScope(loc.Persona.ID)}
	if !m.TeamID.IsZero() {
		scopes = append(scopes, shared.TeamScope(m.TeamID))
	}
	s.publish(ctx, shared.NewEvent(shared.EventMissionCompleted, now, map[string]any{
		"mission_id": m.ID,
		"faction_id": string(m.FactionID),
		"credits":    credits,
		"reputation": rep,
		"tier":       string(tier),
	}, scopes...))
	return m, nil
}

// Abandon hands back held work at the cost of standing.
func (s *Service) Abandon(ctx context.Context, actor common.Actor, missionID string) (*faction.Mission, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	m, err := loc.GW.Missions.FindByID(ctx, loc.Region.ID, missionID)
	if err != nil {
		return nil, err
	}
	delta, err := m.Abandon(loc.Persona.ID, now)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Missions.Update(ctx, m); err != nil {
		return nil, err
	}
	s.adjustStanding(ctx, loc.Persona.ID, m.FactionID, delta)
	return m, nil
}

// RefreshBoard lapses stale missions and tops up each faction's open offers.
// Scheduler-driven and idempotent: lapsed rows are skipped by their version
// guard, and the top-up counts what already stands.
func (s *Service) RefreshBoard(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()

	stale, err := gw.Missions.ListLiveExpiredBefore(ctx, r.ID, now)
	if err != nil {
		return 0, err
	}
	for _, m := range stale {
		if err := m.Expire(now); err != nil {
			continue
		}
		if err := gw.Missions.Update(ctx, m); err != nil && !errors.Is(err, shared.ErrConflict) {
			return 0, err
		}
	}

	sectors, err := gw.Sectors.List(ctx, r.ID)
	if err != nil {
		return 0, err
	}
	if len(sectors) == 0 {
		return 0, nil
	}
	rng := rand.New(rand.NewSource(now.UnixNano()))
	posted := 0
	for _, fac := range faction.Catalog() {
		offers, err := gw.Missions.ListOffered(ctx, r.ID, fac.ID)
		if err != nil {
			return posted, err
		}
		for i := len(offers); i < BoardTarget; i++ {
			m, err := generateOffer(r.ID, fac, sectors, rng, now)
			if err != nil {
				return posted, err
			}
			if err := gw.Missions.Create(ctx, m); err != nil {
				return posted, err
			}
			posted++
		}
	}
	return posted, nil
}

// generateOffer posts patrol or delivery work. Bounty hunts need a live
// target and are posted by moderation tooling, not the refresh.
func generateOffer(regionID shared.RegionID, fac faction.Faction, sectors []*sector.Sector, rng *rand.Rand, now time.Time) (*faction.Mission, error) {
	target := sectors[rng.Intn(len(sectors))].Index
	if rng.Float64() < 0.5 {
		credits := int64(1_000 + rng.Intn(2_000))
		return faction.NewMission(regionID, fac.ID, faction.MissionPatrol, target,
			credits, 10+rng.Intn(10), faction.TierNeutral, DefaultOfferTTL, now)
	}
	c := freight[rng.Intn(len(freight))]
	qty := 10 + rng.Intn(30)
	credits := int64(qty)*shared.BasePrice(c)/2 + 500
	m, err := faction.NewMission(regionID, fac.ID, faction.MissionDelivery, target,
		credits, 15+rng.Intn(10), faction.TierNeutral, DefaultOfferTTL, now)
	if err != nil {
		return nil, err
	}
	m.Commodity = c
	m.Quantity = qty
	return m, nil
}

// payReward routes credits to the team treasury for shared acceptances,
// otherwise to the player. The mission row is already terminal, so payout
// failures log instead of unwinding the completion.
func (s *Service) payReward(ctx context.Context, loc *common.Locale, m *faction.Mission, credits int64) {
	if credits <= 0 {
		return
	}
	now := s.clock.Now()
	if !m.TeamID.IsZero() {
		t, err := loc.GW.Teams.FindByID(ctx, loc.Region.ID, m.TeamID)
		if err == nil {
			if err = t.Deposit(shared.Credits(credits), now); err == nil {
				err = loc.GW.Teams.Update(ctx, t)
			}
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("mission_id", m.ID).
				Str("team_id", m.TeamID.String()).Int64("credits", credits).
				Msg("mission reward deposit failed")
		}
		return
	}
	if err := loc.Persona.Earn(shared.Credits(credits), now); err == nil {
		if err = s.players.Update(ctx, loc.Persona); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("mission_id", m.ID).
				Int64("credits", credits).Msg("mission reward payout failed")
		}
	}
}

// adjustStanding applies a reputation delta, starting the relationship at
// neutral on first contact. Returns the tier after the change.
func (s *Service) adjustStanding(ctx context.Context, playerID shared.PlayerID, factionID faction.ID, delta int) faction.Tier {
	now := s.clock.Now()
	rep, err := s.standing(ctx, playerID, factionID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", playerID.String()).
			Str("faction_id", string(factionID)).Msg("standing load failed")
		return faction.TierNeutral
	}
	tier := rep.Adjust(delta, now)
	if err := s.reputations.Upsert(ctx, rep); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", playerID.String()).
			Str("faction_id", string(factionID)).Msg("standing write failed")
	}
	return tier
}

func (s *Service) standing(ctx context.Context, playerID shared.PlayerID, factionID faction.ID) (*faction.Reputation, error) {
	rep, err := s.reputations.Find(ctx, playerID, factionID)
	if errors.Is(err, shared.ErrNotFound) {
		return faction.NewReputation(playerID, factionID, s.clock.Now())
	}
	return rep, err
}

// restow puts delivered freight back aboard after a lost completion race.
func (s *Service) restow(ctx context.Context, loc *common.Locale, m *faction.Mission) {
	vessel, err := loc.GW.Ships.FindByID(ctx, loc.Region.ID, loc.Vessel.ID)
	if err == nil {
		if err = vessel.Cargo.Load(m.Commodity, m.Quantity); err == nil {
			vessel.UpdatedAt = s.clock.Now()
			err = loc.GW.Ships.Update(ctx, vessel)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("mission_id", m.ID).
			Str("ship_id", loc.Vessel.ID.String()).Msg("delivery restow failed")
	}
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("mission event publish failed")
	}
}
