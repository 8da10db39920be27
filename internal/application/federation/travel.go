package federation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/team"
	"github.com/sectorwars/gameserver/internal/domain/travel"
)

// TravelInput is the travel command. A zero TravelID mints a fresh transit;
// passing the id of an earlier attempt replays it and observes its state.
type TravelInput struct {
	TravelID      shared.TravelID
	Destination   string
	Method        travel.Method
	ShipIDs       []shared.ShipID
	EscrowCredits shared.Credits
}

// InitiateTravel runs the inter-region transfer protocol: open the global
// transit record, reserve the manifest in the source shard, materialize in
// the destination shard. Failures before materialization compensate the
// reservation and fail the record; the caller may re-initiate under a new id.
func (s *Service) InitiateTravel(ctx context.Context, actor common.Actor, in TravelInput) (*travel.Travel, error) {
	now := s.clock.Now()

	if !in.TravelID.IsZero() {
		existing, err := s.travels.FindByID(ctx, in.TravelID)
		switch {
		case err == nil:
			if existing.PlayerID != actor.PlayerID {
				return nil, shared.NewForbiddenError("", "travel belongs to another player")
			}
			if existing.Terminal() {
				return existing, nil
			}
			return s.resumeTravel(ctx, existing)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, err
		}
	}

	persona, err := s.players.FindByID(ctx, actor.PlayerID)
	if err != nil {
		return nil, err
	}
	if active, err := s.travels.FindActiveByPlayer(ctx, actor.PlayerID); err == nil {
		conflict := shared.NewConflictError("a transfer is already in transit")
		conflict.Details = map[string]string{"travel_id": string(active.ID)}
		return nil, conflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	source, err := s.regions.FindByName(ctx, persona.CurrentRegion)
	if err != nil {
		return nil, err
	}
	dest, err := s.regions.FindByName(ctx, in.Destination)
	if err != nil {
		return nil, err
	}
	if source.ID == dest.ID {
		return nil, shared.NewValidationError("destination", "must differ from the current region")
	}
	if !source.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("the current region does not allow departures")
	}
	if !dest.AcceptsTravel() {
		return nil, shared.NewConflictError("the destination region does not accept travel")
	}
	if source.Name != region.NexusName {
		if _, err := s.memberships.Find(ctx, persona.ID, source.ID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewForbiddenError("", "membership in the current region required")
			}
			return nil, err
		}
	}

	spec, ok := travel.SpecForMethod(in.Method)
	if !ok {
		return nil, shared.NewValidationError("method", "unknown travel method")
	}
	if in.Method == travel.MethodPlatformGate {
		if source.Name != region.NexusName && !source.ConnectedToNexus() {
			return nil, shared.NewConflictError("the current region has no platform gate")
		}
		if dest.Name != region.NexusName && !dest.ConnectedToNexus() {
			return nil, shared.NewConflictError("the destination region has no platform gate")
		}
	}
	if in.EscrowCredits < 0 {
		return nil, shared.NewValidationError("escrow_credits", "must be non-negative")
	}

	cost, err := s.fareBetween(ctx, spec, source.ID, dest.ID)
	if err != nil {
		return nil, err
	}

	srcGW, err := s.shards.Region(ctx, source.Name)
	if err != nil {
		return nil, shared.NewUnavailableError("source region shard unavailable", err)
	}

	manifest := travel.Manifest{ShipIDs: in.ShipIDs, Credits: int64(in.EscrowCredits)}
	t, err := travel.Begin(in.TravelID, persona.ID, source.ID, dest.ID, in.Method, manifest, cost, now)
	if err != nil {
		return nil, err
	}

	// Step 1: the global record exists before any shard state moves, so a
	// crash mid-reservation leaves a transit the resolver can settle instead
	// of ships stranded under an unknown travel id.
	if err := s.travels.Create(ctx, t); err != nil {
		return nil, err
	}

	// Step 2: reserve the manifest in the source shard.
	ships := make([]*ship.Ship, 0, len(in.ShipIDs))
	for _, id := range in.ShipIDs {
		sh, err := srcGW.Ships.FindByID(ctx, source.ID, id)
		if err != nil {
			s.abortReservation(ctx, t, srcGW, ships, "manifest ship not found")
			return nil, err
		}
		if sh.OwnerID != persona.ID {
			s.abortReservation(ctx, t, srcGW, ships, "manifest ship not owned")
			return nil, shared.NewForbiddenError("", "ship belongs to another player")
		}
		if spec.RequiresWarpHull && !sh.Spec().WarpCapable {
			s.abortReservation(ctx, t, srcGW, ships, "manifest ship cannot warp")
			return nil, shared.NewValidationError("ship_ids", fmt.Sprintf("%s cannot warp between regions", sh.Name))
		}
		if _, err := srcGW.Combats.FindActiveByShip(ctx, source.ID, id); err == nil {
			s.abortReservation(ctx, t, srcGW, ships, "manifest ship in combat")
			return nil, shared.NewConflictError("ship is locked in combat")
		} else if !errors.Is(err, shared.ErrNotFound) {
			s.abortReservation(ctx, t, srcGW, ships, "manifest ship unavailable")
			return nil, err
		}
		if err := sh.ReserveForTravel(t.ID, now); err != nil {
			s.abortReservation(ctx, t, srcGW, ships, "manifest ship already reserved")
			return nil, err
		}
		if err := srcGW.Ships.Update(ctx, sh); err != nil {
			s.abortReservation(ctx, t, srcGW, ships, "reservation write failed")
			return nil, err
		}
		ships = append(ships, sh)
	}

	// Fare and escrow leave the balance while the transfer is in flight.
	if err := s.collectFare(ctx, srcGW, source.ID, persona, spec, cost, in.EscrowCredits); err != nil {
		s.abortReservation(ctx, t, srcGW, ships, "fare could not be collected")
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventTravelReserved, now, map[string]any{
		"travel_id": string(t.ID),
		"player_id": string(persona.ID),
		"ships":     len(ships),
	}, shared.PlayerScope(persona.ID), shared.RegionScope(source.Name)))

	s.recordAudit(ctx, audit.CategoryLifecycle, "travel.initiated", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        string(t.ID),
		RegionName:     source.Name,
		Detail: map[string]any{
			"destination": dest.Name, "method": string(in.Method),
			"cost": cost, "ships": len(in.ShipIDs), "escrow": int64(in.EscrowCredits),
		},
	})

	// Step 3: materialize. On failure the transfer is compensated and the
	// caller sees UNAVAILABLE carrying the travel id.
	if err := s.materialize(ctx, t); err != nil {
		s.compensate(ctx, t, err.Error())
		return nil, travelUnavailable(t.ID, err)
	}
	return t, nil
}

// GetTravel returns one transit record, owner or admin only.
func (s *Service) GetTravel(ctx context.Context, actor common.Actor, id shared.TravelID) (*travel.Travel, error) {
	t, err := s.travels.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.PlayerID != actor.PlayerID && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "travel belongs to another player")
	}
	return t, nil
}

// TravelHistory lists the player's most recent transfers.
func (s *Service) TravelHistory(ctx context.Context, playerID shared.PlayerID, limit int) ([]*travel.Travel, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.travels.ListByPlayer(ctx, playerID, limit)
}

// CancelTravel withdraws an in-transit transfer before materialization and
// compensates the reservation.
func (s *Service) CancelTravel(ctx context.Context, actor common.Actor, id shared.TravelID) (*travel.Travel, error) {
	t, err := s.travels.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.PlayerID != actor.PlayerID && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "travel belongs to another player")
	}
	if t.Terminal() {
		return nil, shared.NewConflictError("travel already finished")
	}
	if err := s.unwind(ctx, t, travel.StatusCancelled, "cancelled by the player"); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryLifecycle, "travel.cancelled", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        string(t.ID),
	})
	return t, nil
}

// ResolveStalled finishes transfers stuck in transit past the cutoff: it
// retries materialization once and compensates when that fails again. Run by
// the scheduler under the global lease.
func (s *Service) ResolveStalled(ctx context.Context, cutoff time.Time) (int, error) {
	stalled, err := s.travels.ListInTransitBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, t := range stalled {
		if err := s.materialize(ctx, t); err != nil {
			s.compensate(ctx, t, "timed out in transit")
		}
	}
	return len(stalled), nil
}

// resumeTravel re-drives an in-transit record observed through a replayed
// command.
func (s *Service) resumeTravel(ctx context.Context, t *travel.Travel) (*travel.Travel, error) {
	if err := s.materialize(ctx, t); err != nil {
		s.compensate(ctx, t, err.Error())
		return nil, travelUnavailable(t.ID, err)
	}
	return t, nil
}

// fareBetween prices the transfer: the method's base cost scaled by the most
// favorable travel term among treaties in effect between the pair.
func (s *Service) fareBetween(ctx context.Context, spec travel.MethodSpec, source, dest shared.RegionID) (int64, error) {
	pacts, err := s.treaties.ListActiveBetween(ctx, source, dest)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	factor := 1.0
	for _, pact := range pacts {
		if pact.InEffect(now) && pact.Terms.TravelCostFactor < factor {
			factor = pact.Terms.TravelCostFactor
		}
	}
	return int64(math.Round(float64(spec.BaseCost) * factor)), nil
}

// collectFare debits the fare and escrow. Team-funded methods charge the
// treasury of the player's team when one exists in the source region; the
// treasury must cover the full fare. Players without a team pay themselves.
func (s *Service) collectFare(ctx context.Context, srcGW *common.RegionGateways, sourceID shared.RegionID, persona *player.Player, spec travel.MethodSpec, cost int64, escrow shared.Credits) error {
	now := s.clock.Now()
	fare := shared.Credits(cost)
	debit := escrow + fare
	if team, ok, err := s.fundingTeam(ctx, srcGW, sourceID, persona, spec); err != nil {
		return err
	} else if ok {
		if err := team.Withdraw(fare, now); err != nil {
			return err
		}
		if err := srcGW.Teams.Update(ctx, team); err != nil {
			return err
		}
		debit = escrow
	}
	if debit > 0 {
		if err := persona.Spend(debit, now); err != nil {
			return err
		}
	}
	return s.players.Update(ctx, persona)
}

// fundingTeam resolves the treasury charged for a team-funded fare, ok=false
// when the player travels on their own purse.
func (s *Service) fundingTeam(ctx context.Context, srcGW *common.RegionGateways, sourceID shared.RegionID, persona *player.Player, spec travel.MethodSpec) (*team.Team, bool, error) {
	if !spec.TeamFunded || persona.TeamID.IsZero() {
		return nil, false, nil
	}
	t, err := srcGW.Teams.FindByID(ctx, sourceID, persona.TeamID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// materialize is step 3 of the protocol: recreate the manifest in the
// destination shard, relocate the persona, close the record. Every write is
// idempotent under the travel id so the step can be re-driven after a crash.
func (s *Service) materialize(ctx context.Context, t *travel.Travel) error {
	now := s.clock.Now()
	source, err := s.regions.FindByID(ctx, t.SourceRegion)
	if err != nil {
		return err
	}
	dest, err := s.regions.FindByID(ctx, t.DestinationRegion)
	if err != nil {
		return err
	}
	if !dest.AcceptsTravel() {
		return shared.NewConflictError("the destination region no longer accepts travel")
	}
	srcGW, err := s.shards.Region(ctx, source.Name)
	if err != nil {
		return shared.NewUnavailableError("source region shard unavailable", err)
	}
	destGW, err := s.shards.Region(ctx, dest.Name)
	if err != nil {
		return shared.NewUnavailableError("destination region shard unavailable", err)
	}

	arrival := dest.NexusGateSector
	if arrival < 1 {
		arrival = 1
	}
	spec, _ := travel.SpecForMethod(t.Method)

	for _, shipID := range t.Manifest.ShipIDs {
		sh, err := srcGW.Ships.FindByID(ctx, source.ID, shipID)
		if errors.Is(err, shared.ErrNotFound) {
			// Already moved by an earlier attempt.
			continue
		}
		if err != nil {
			return err
		}
		// The arrival roll is seeded per travel and ship so a re-driven
		// materialization cannot re-roll an outcome.
		roll := rand.New(rand.NewSource(arrivalSeed(t.ID, shipID)))
		if roll.Float64() < spec.ArrivalRisk {
			sh.TakeDamage(sh.Shield/2, 0.05+roll.Float64()*0.15, now)
		}
		sh.Relocate(dest.ID, arrival, now)
		if err := destGW.Ships.Create(ctx, sh); err != nil && !errors.Is(err, shared.ErrConflict) {
			return err
		}
		if err := srcGW.Ships.Delete(ctx, source.ID, shipID); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
	}

	persona, err := s.players.FindByID(ctx, t.PlayerID)
	if err != nil {
		return err
	}
	// The region switch keys the persona write: a replay that finds the
	// player already relocated must not credit the escrow twice.
	if persona.CurrentRegion != dest.Name {
		persona.Relocate(dest.Name, arrival, now)
		if t.Manifest.Credits > 0 {
			if err := persona.Earn(shared.Credits(t.Manifest.Credits), now); err != nil {
				return err
			}
		}
		if err := s.players.Update(ctx, persona); err != nil {
			return err
		}
	}

	if err := s.upsertMembership(ctx, persona.ID, dest.ID); err != nil {
		return err
	}

	if err := t.Complete(now); err != nil {
		return nil // another replay settled the record first
	}
	if err := s.travels.Update(ctx, t); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return nil
		}
		return err
	}

	s.publish(ctx, shared.NewEvent(shared.EventTravelCompleted, now, map[string]any{
		"travel_id":   string(t.ID),
		"player_id":   string(t.PlayerID),
		"source":      source.Name,
		"destination": dest.Name,
		"sector":      arrival,
	}, shared.PlayerScope(t.PlayerID), shared.RegionScope(source.Name), shared.RegionScope(dest.Name)))
	s.recordAudit(ctx, audit.CategoryLifecycle, "travel.completed", audit.Fields{
		Subject:    string(t.ID),
		RegionName: dest.Name,
	})
	return nil
}

// compensate releases the source reservation and refunds the fare and
// escrow, then fails the record.
func (s *Service) compensate(ctx context.Context, t *travel.Travel, reason string) {
	if err := s.unwind(ctx, t, travel.StatusFailed, reason); err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).
			Str("travel_id", string(t.ID)).Msg("travel compensation failed")
	}
}

// unwind is the compensating write of the protocol, shared by failure and
// cancellation. The record moves to its terminal state first, guarded by its
// version; releases and the refund run only after winning that write, so a
// materialization racing this call cannot complete on top of a refund.
func (s *Service) unwind(ctx context.Context, t *travel.Travel, terminal travel.Status, reason string) error {
	now := s.clock.Now()
	fresh, err := s.travels.FindByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if fresh.Terminal() {
		*t = *fresh
		return nil
	}
	*t = *fresh

	switch terminal {
	case travel.StatusCancelled:
		err = t.Cancel(now)
	default:
		err = t.Fail(reason, now)
	}
	if err != nil {
		return nil
	}
	if err := s.travels.Update(ctx, t); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			// Lost the race. Adopt the winner's record; when it completed the
			// transfer there is nothing left to release or refund.
			if latest, ferr := s.travels.FindByID(ctx, t.ID); ferr == nil {
				*t = *latest
			}
			return nil
		}
		return err
	}

	// This call owns the terminal transition now.
	source, err := s.regions.FindByID(ctx, t.SourceRegion)
	if err != nil {
		return err
	}
	srcGW, err := s.shards.Region(ctx, source.Name)
	if err != nil {
		return shared.NewUnavailableError("source region shard unavailable", err)
	}
	for _, shipID := range t.Manifest.ShipIDs {
		sh, err := srcGW.Ships.FindByID(ctx, source.ID, shipID)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		sh.ReleaseReservation(t.ID, now)
		if err := srcGW.Ships.Update(ctx, sh); err != nil {
			return err
		}
	}

	persona, err := s.players.FindByID(ctx, t.PlayerID)
	if err != nil {
		return err
	}
	spec, _ := travel.SpecForMethod(t.Method)
	refund := shared.Credits(t.Manifest.Credits)
	fare := shared.Credits(t.Cost)
	if funder, ok, ferr := s.fundingTeam(ctx, srcGW, source.ID, persona, spec); ferr == nil && ok {
		// The treasury paid the fare, so the treasury takes it back.
		if funder.Deposit(fare, now) == nil {
			if derr := srcGW.Teams.Update(ctx, funder); derr != nil {
				return derr
			}
		}
	} else {
		refund += fare
	}
	if refund > 0 {
		if err := persona.Earn(refund, now); err != nil {
			return err
		}
		if err := s.players.Update(ctx, persona); err != nil {
			return err
		}
	}

	s.publish(ctx, shared.NewEvent(shared.EventTravelFailed, now, map[string]any{
		"travel_id": string(t.ID),
		"player_id": string(t.PlayerID),
		"reason":    reason,
	}, shared.PlayerScope(t.PlayerID)))
	return nil
}

// abortReservation rolls back a reservation whose fare was never debited and
// fails the record directly. No refund runs here; unwind would credit money
// the player still holds.
func (s *Service) abortReservation(ctx context.Context, t *travel.Travel, gw *common.RegionGateways, ships []*ship.Ship, reason string) {
	s.releaseReserved(ctx, gw, ships, t.ID)
	if t.Fail(reason, s.clock.Now()) != nil {
		return
	}
	if err := s.travels.Update(ctx, t); err != nil && !errors.Is(err, shared.ErrConflict) {
		common.LoggerFromContext(ctx).Error().Err(err).
			Str("travel_id", string(t.ID)).Msg("travel abort not persisted")
	}
}

// upsertMembership records the arrival in the player's standing with the
// destination region.
func (s *Service) upsertMembership(ctx context.Context, playerID shared.PlayerID, regionID shared.RegionID) error {
	now := s.clock.Now()
	m, err := s.memberships.Find(ctx, playerID, regionID)
	switch {
	case err == nil:
		m.RecordVisit(now)
		return s.memberships.Update(ctx, m)
	case errors.Is(err, shared.ErrNotFound):
		m = region.NewMembership(playerID, regionID, now)
		if cerr := s.memberships.Create(ctx, m); cerr != nil && !errors.Is(cerr, shared.ErrConflict) {
			return cerr
		}
		return nil
	default:
		return err
	}
}

// releaseReserved rolls back partial reservations made while validating the
// manifest.
func (s *Service) releaseReserved(ctx context.Context, gw *common.RegionGateways, ships []*ship.Ship, travelID shared.TravelID) {
	now := s.clock.Now()
	for _, sh := range ships {
		sh.ReleaseReservation(travelID, now)
		if err := gw.Ships.Update(ctx, sh); err != nil {
			common.LoggerFromContext(ctx).Error().Err(err).
				Str("ship_id", string(sh.ID)).Msg("reservation rollback failed")
		}
	}
}

func travelUnavailable(id shared.TravelID, cause error) *shared.Error {
	e := shared.NewUnavailableError("destination region unavailable", cause)
	e.Details = map[string]string{"travel_id": string(id)}
	return e
}

// arrivalSeed derives the deterministic damage roll for one ship of one
// travel.
func arrivalSeed(travelID shared.TravelID, shipID shared.ShipID) int64 {
	h := fnv.New64a()
	h.Write([]byte(travelID))
	h.Write([]byte{0})
	h.Write([]byte(shipID))
	return int64(h.Sum64())
}
