// Package engagement runs ship-versus-ship combat: opening an engagement,
// collecting round commands, resolving rounds on the deadline sweep, and
// settling the outcome (hull writeback, insurance, bounty claims).
package engagement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

// resolveBatch bounds one deadline sweep so a region with a combat pile-up
// cannot starve the scheduler tick.
const resolveBatch = 50

// EffectsSource folds active treaty terms between two regions. The
// federation service implements it.
type EffectsSource interface {
	TreatyEffects(ctx context.Context, a, b shared.RegionID) (federation.Effects, error)
}

// Service executes combat use-cases in the actor's current region.
type Service struct {
	regions     region.Repository
	memberships region.MembershipRepository
	players     player.Repository
	effects     EffectsSource
	shards      common.ShardResolver
	publisher   shared.Publisher
	locales     common.LocaleResolver
	clock       shared.Clock
}

// NewService wires the combat use-cases.
func NewService(
	regions region.Repository,
	memberships region.MembershipRepository,
	players player.Repository,
	effects EffectsSource,
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
		effects:     effects,
		shards:      shards,
		publisher:   publisher,
		locales:     common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:       clock,
	}
}

// Engage opens an engagement against a ship in the actor's sector. The
// defender is locked in; the first round resolves when both sides order or
// the round deadline passes.
func (s *Service) Engage(ctx context.Context, actor common.Actor, targetShipID shared.ShipID) (*combat.Combat, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	if !loc.Vessel.Operational() {
		return nil, shared.NewConflictError("ship is not operational")
	}
	if !loc.Vessel.ReservedBy.IsZero() {
		return nil, shared.NewConflictError("ship is held by an inter-region transfer")
	}

	target, err := loc.GW.Ships.FindByID(ctx, loc.Region.ID, targetShipID)
	if err != nil {
		return nil, err
	}
	if target.Sector != loc.Vessel.Sector {
		return nil, shared.NewConflictError("target is not in the current sector")
	}
	if !target.Operational() {
		return nil, shared.NewConflictError("target ship is not operational")
	}
	if !target.ReservedBy.IsZero() {
		return nil, shared.NewConflictError("target ship is held by an inter-region transfer")
	}
	if err := s.requireDisengaged(ctx, loc, loc.Vessel.ID, "ship is already engaged"); err != nil {
		return nil, err
	}
	if err := s.requireDisengaged(ctx, loc, target.ID, "target ship is already engaged"); err != nil {
		return nil, err
	}
	if err := s.checkLegality(ctx, loc.Persona.ID, target.OwnerID); err != nil {
		return nil, err
	}

	c, err := combat.New(loc.Region.ID, loc.Vessel.Sector, snapshot(loc.Vessel), snapshot(target), now)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Combats.Create(ctx, c); err != nil {
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventCombatStarted, now, map[string]any{
		"combat_id":          c.ID,
		"region":             loc.Region.Name,
		"sector":             c.Sector,
		"attacker_player_id": c.Attacker.PlayerID,
		"attacker_ship_id":   c.Attacker.ShipID,
		"defender_player_id": c.Defender.PlayerID,
		"defender_ship_id":   c.Defender.ShipID,
	},
		shared.SectorScope(loc.Region.Name, c.Sector),
		shared.PlayerScope(c.Attacker.PlayerID),
		shared.PlayerScope(c.Defender.PlayerID),
	))
	return c, nil
}

// requireDisengaged fails when the ship is locked in a live engagement.
func (s *Service) requireDisengaged(ctx context.Context, loc *common.Locale, shipID shared.ShipID, msg string) error {
	_, err := loc.GW.Combats.FindActiveByShip(ctx, loc.Region.ID, shipID)
	if err == nil {
		return shared.NewConflictError(msg)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return err
}

// checkLegality rejects the engagement when any treaty in effect between the
// two players' home regions prohibits combat. Citizenship defines a home;
// visitors and residents fight under no flag.
func (s *Service) checkLegality(ctx context.Context, attacker, defender shared.PlayerID) error {
	if s.effects == nil {
		return nil
	}
	atkHomes, err := s.citizenRegions(ctx, attacker)
	if err != nil {
		return err
	}
	defHomes, err := s.citizenRegions(ctx, defender)
	if err != nil {
		return err
	}
	for _, a := range atkHomes {
		for _, d := range defHomes {
			if a == d {
				continue
			}
			eff, err := s.effects.TreatyEffects(ctx, a, d)
			if err != nil {
				return err
			}
			if eff.CombatProhibited {
				return shared.NewForbiddenError(shared.CodeFactionRestrict, "a standing treaty prohibits combat between these regions' citizens")
			}
		}
	}
	return nil
}

func (s *Service) citizenRegions(ctx context.Context, id shared.PlayerID) ([]shared.RegionID, error) {
	mships, err := s.memberships.ListByPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	var homes []shared.RegionID
	for _, m := range mships {
		if m.Type == region.MembershipCitizen {
			homes = append(homes, m.RegionID)
		}
	}
	return homes, nil
}

// snapshot freezes a ship's fighting stats into a combatant.
func snapshot(sh *ship.Ship) combat.Combatant {
	return combat.Combatant{
		ShipID:         sh.ID,
		PlayerID:       sh.OwnerID,
		HullClass:      string(sh.Class),
		InitiativeBase: sh.InitiativeBase(),
		CombatRating:   sh.Spec().CombatRating,
		ShieldRating:   sh.ShieldRating(),
		Condition:      sh.Condition,
		Shield:         sh.Shield,
		Drones:         sh.DronesAboard,
	}
}

// Status returns an engagement to one of its combatants or an admin.
func (s *Service) Status(ctx context.Context, actor common.Actor, id shared.CombatID) (*combat.Combat, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	c, err := loc.GW.Combats.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	if _, ok := c.SideOf(loc.Persona.ID); !ok && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only combatants can view an engagement")
	}
	return c, nil
}

// History lists the actor's engagements in the current region, newest first.
func (s *Service) History(ctx context.Context, actor common.Actor, limit int) ([]*combat.Combat, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return loc.GW.Combats.ListByPlayer(ctx, loc.Region.ID, loc.Persona.ID, limit)
}

// SubmitCommand records the actor's order for the open round. The round
// resolves immediately once both sides have ordered; otherwise it resolves
// on the deadline sweep with the silent side's fallback.
func (s *Service) SubmitCommand(ctx context.Context, actor common.Actor, id shared.CombatID, cmd combat.Command) (*combat.Combat, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	c, err := loc.GW.Combats.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	side, ok := c.SideOf(loc.Persona.ID)
	if !ok {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only combatants can issue orders")
	}
	now := s.clock.Now()
	if err := c.SubmitCommand(side, cmd, now); err != nil {
		return nil, err
	}
	if c.CommandsReady() {
		if err := s.resolveOpenRound(ctx, loc.Region, loc.GW, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := loc.GW.Combats.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Retreat orders the actor's side to disengage, keeping the prior round's
// target and weapon mix while the escape is attempted.
func (s *Service) Retreat(ctx context.Context, actor common.Actor, id shared.CombatID) (*combat.Combat, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	c, err := loc.GW.Combats.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	side, ok := c.SideOf(loc.Persona.ID)
	if !ok {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only combatants can issue orders")
	}
	var prior combat.Command
	if side == combat.SideAttacker {
		prior = c.Attacker.LastCommand
	} else {
		prior = c.Defender.LastCommand
	}
	cmd := combat.FallbackCommand(prior)
	cmd.Retreat = true
	now := s.clock.Now()
	if err := c.SubmitCommand(side, cmd, now); err != nil {
		return nil, err
	}
	if c.CommandsReady() {
		if err := s.resolveOpenRound(ctx, loc.Region, loc.GW, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := loc.GW.Combats.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveDue resolves one round for every engagement in the region whose
// deadline has passed. Run by the scheduler; returns the number of rounds
// resolved. Engagements another node resolved first are skipped.
func (s *Service) ResolveDue(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	due, err := gw.Combats.ListDueBefore(ctx, r.ID, s.clock.Now(), resolveBatch)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, c := range due {
		if err := s.resolveOpenRound(ctx, r, gw, c); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// resolveOpenRound computes the next round, persists the engagement, writes
// the damage back to the ship rows and settles the outcome when terminal.
// The combat row's version guard makes the round exactly-once: whichever
// caller persists first owns the consequences.
func (s *Service) resolveOpenRound(ctx context.Context, r *region.Region, gw *common.RegionGateways, c *combat.Combat) error {
	now := s.clock.Now()
	round, err := combat.ResolveRound(c, c.PendingAttacker, c.PendingDefender, now)
	if err != nil {
		return err
	}
	if err := c.ApplyRound(round, now); err != nil {
		return err
	}
	if err := gw.Combats.Update(ctx, c); err != nil {
		return err
	}

	s.writeBackShip(ctx, r, gw, c.Attacker)
	s.writeBackShip(ctx, r, gw, c.Defender)

	s.publish(ctx, shared.NewEvent(shared.EventCombatRoundResolved, now, map[string]any{
		"combat_id":             c.ID,
		"round":                 round.Index,
		"attacker_struck_first": round.AttackerStruckFirst,
		"attacker_condition":    round.AttackerCondition,
		"defender_condition":    round.DefenderCondition,
		"attacker_shield":       round.AttackerShield,
		"defender_shield":       round.DefenderShield,
		"retreat_by":            string(round.RetreatBy),
		"retreat_succeeded":     round.RetreatSucceeded,
	},
		shared.PlayerScope(c.Attacker.PlayerID),
		shared.PlayerScope(c.Defender.PlayerID),
	))

	if !c.Active() {
		s.settleOutcome(ctx, r, gw, c, now)
	}
	return nil
}

// writeBackShip lands a combatant's post-round state on its ship row. A
// version race means the row moved under us; reload once and reapply, since
// the combat snapshot stays authoritative for damage while the lock holds.
func (s *Service) writeBackShip(ctx context.Context, r *region.Region, gw *common.RegionGateways, cb combat.Combatant) {
	now := s.clock.Now()
	sh, err := gw.Ships.FindByID(ctx, r.ID, cb.ShipID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("ship_id", cb.ShipID.String()).Msg("combat ship writeback load failed")
		return
	}
	applyCombatState(sh, cb, now)
	if err := gw.Ships.Update(ctx, sh); err == nil {
		return
	} else if !errors.Is(err, shared.ErrConflict) {
		log.Ctx(ctx).Error().Err(err).Str("ship_id", cb.ShipID.String()).Msg("combat ship writeback failed")
		return
	}
	sh, err = gw.Ships.FindByID(ctx, r.ID, cb.ShipID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("ship_id", cb.ShipID.String()).Msg("combat ship writeback reload failed")
		return
	}
	applyCombatState(sh, cb, now)
	if err := gw.Ships.Update(ctx, sh); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("ship_id", cb.ShipID.String()).Msg("combat ship writeback retry failed")
	}
}

// applyCombatState converts the snapshot's absolute values into the ship's
// damage mutations so destruction flags flow through TakeDamage.
func applyCombatState(sh *ship.Ship, cb combat.Combatant, now time.Time) {
	shieldDmg := sh.Shield - cb.Shield
	hullDmg := sh.Condition - cb.Condition
	if shieldDmg > 0 || hullDmg > 0 {
		if shieldDmg < 0 {
			shieldDmg = 0
		}
		sh.TakeDamage(shieldDmg, hullDmg, now)
	}
	if lost := sh.DronesAboard - cb.Drones; lost > 0 {
		_ = sh.UnloadDrones(lost, now)
	}
}

// settleOutcome handles a terminal engagement: destroyed pilots disembark
// and collect insurance, the destroyer claims every open bounty on the
// destroyed pilot's head.
func (s *Service) settleOutcome(ctx context.Context, r *region.Region, gw *common.RegionGateways, c *combat.Combat, now time.Time) {
	if !c.Defender.Alive() {
		s.settleDestruction(ctx, r, gw, c.Defender)
	}
	if !c.Attacker.Alive() {
		s.settleDestruction(ctx, r, gw, c.Attacker)
	}
	switch c.Status {
	case combat.StatusVictory:
		s.claimBounties(ctx, r, gw, c.Attacker.PlayerID, c.Defender.PlayerID)
	case combat.StatusDefeat:
		s.claimBounties(ctx, r, gw, c.Defender.PlayerID, c.Attacker.PlayerID)
	}

	s.publish(ctx, shared.NewEvent(shared.EventCombatEnded, now, map[string]any{
		"combat_id":  c.ID,
		"status":     string(c.Status),
		"escaped_by": string(c.EscapedBy),
		"rounds":     len(c.Rounds),
		"region":     r.Name,
		"sector":     c.Sector,
	},
		shared.SectorScope(r.Name, c.Sector),
		shared.PlayerScope(c.Attacker.PlayerID),
		shared.PlayerScope(c.Defender.PlayerID),
	))
}

// settleDestruction pays out the destroyed ship's insurance and pulls the
// pilot out of the wreck.
func (s *Service) settleDestruction(ctx context.Context, r *region.Region, gw *common.RegionGateways, cb combat.Combatant) {
	now := s.clock.Now()
	persona, err := s.players.FindByID(ctx, cb.PlayerID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", cb.PlayerID.String()).Msg("combat loss settlement load failed")
		return
	}
	if persona.CurrentShipID == cb.ShipID {
		persona.Disembark(now)
	}
	if sh, err := gw.Ships.FindByID(ctx, r.ID, cb.ShipID); err == nil {
		if payout := sh.InsurancePayout(); payout > 0 {
			if err := persona.Earn(shared.Credits(payout), now); err == nil {
				log.Ctx(ctx).Info().
					Str("player_id", cb.PlayerID.String()).
					Int64("payout", payout).
					Msg("insurance claim paid")
			}
		}
	}
	if err := s.players.Update(ctx, persona); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", cb.PlayerID.String()).Msg("combat loss settlement persist failed")
	}
}

// claimBounties pays every open bounty on the target to the hunter. Claims
// race with cancellation and expiry on the bounty row's version; losses are
// skipped.
func (s *Service) claimBounties(ctx context.Context, r *region.Region, gw *common.RegionGateways, hunterID, targetID shared.PlayerID) {
	now := s.clock.Now()
	open, err := gw.Bounties.ListOpenByTarget(ctx, r.ID, targetID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("bounty claim list failed")
		return
	}
	if len(open) == 0 {
		return
	}
	var total shared.Credits
	for _, b := range open {
		amount, err := b.Claim(hunterID, now)
		if err != nil {
			continue
		}
		if err := gw.Bounties.Update(ctx, b); err != nil {
			if !errors.Is(err, shared.ErrConflict) {
				log.Ctx(ctx).Error().Err(err).Str("bounty_id", b.ID).Msg("bounty claim persist failed")
			}
			continue
		}
		total += amount
		s.publish(ctx, shared.NewEvent(shared.EventBountyClaimed, now, map[string]any{
			"bounty_id":        b.ID,
			"amount":           int64(amount),
			"target_player_id": targetID,
		}, shared.PlayerScope(hunterID)))
	}
	if total == 0 {
		return
	}
	hunter, err := s.players.FindByID(ctx, hunterID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", hunterID.String()).Msg("bounty payout load failed")
		return
	}
	if err := hunter.Earn(total, now); err != nil {
		return
	}
	if err := s.players.Update(ctx, hunter); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", hunterID.String()).Msg("bounty payout persist failed")
	}
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("combat event publish failed")
	}
}
