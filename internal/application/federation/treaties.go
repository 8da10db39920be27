package federation

import (
	"context"
	"errors"
	"time"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/treaty"
)

// TreatyProposal is the diplomatic opening move. PolicyID carries the passed
// policy that authorizes the signature under democratic rule; autocratic
// regions sign through their governor directly.
type TreatyProposal struct {
	PartnerRegion string
	Type          treaty.Type
	Terms         treaty.Terms
	ExpiresAt     *time.Time
	PolicyID      shared.PolicyID
}

// ProposeTreaty opens a treaty between the actor's current region and a
// partner, signed by the proposing region's authority.
func (s *Service) ProposeTreaty(ctx context.Context, actor common.Actor, proposal TreatyProposal) (*treaty.Treaty, error) {
	now := s.clock.Now()
	persona, err := s.players.FindByID(ctx, actor.PlayerID)
	if err != nil {
		return nil, err
	}
	proposer, err := s.regions.FindByName(ctx, persona.CurrentRegion)
	if err != nil {
		return nil, err
	}
	partner, err := s.regions.FindByName(ctx, proposal.PartnerRegion)
	if err != nil {
		return nil, err
	}
	if err := s.verifySignature(ctx, proposer, actor, proposal.PolicyID); err != nil {
		return nil, err
	}

	t, err := treaty.Propose(proposer.ID, partner.ID, proposal.Type, proposal.Terms, actor.PlayerID, proposal.ExpiresAt, now)
	if err != nil {
		return nil, err
	}
	if err := s.treaties.Create(ctx, t); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryDiplomacy, "treaty.proposed", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        string(t.ID),
		RegionName:     proposer.Name,
		Detail: map[string]any{
			"partner": partner.Name, "type": string(proposal.Type),
			"travel_cost_factor": proposal.Terms.TravelCostFactor,
			"trade_bonus_factor": proposal.Terms.TradeBonusFactor,
			"combat_prohibited":  proposal.Terms.CombatProhibited,
		},
	})
	return t, nil
}

// CountersignTreaty activates a proposed treaty with the partner region's
// signature. The actor must hold signing authority in the partner region.
func (s *Service) CountersignTreaty(ctx context.Context, actor common.Actor, id shared.TreatyID, policyID shared.PolicyID) (*treaty.Treaty, error) {
	now := s.clock.Now()
	t, err := s.treaties.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	partner, err := s.regions.FindByID(ctx, t.RegionB)
	if err != nil {
		return nil, err
	}
	if err := s.verifySignature(ctx, partner, actor, policyID); err != nil {
		return nil, err
	}
	if err := t.Countersign(actor.PlayerID, now); err != nil {
		// An expired proposal flips state on the failed countersignature.
		if t.Status == treaty.StatusExpired {
			_ = s.treaties.Update(ctx, t)
		}
		return nil, err
	}
	if err := s.treaties.Update(ctx, t); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryDiplomacy, "treaty.activated", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        string(t.ID),
		RegionName:     partner.Name,
	})
	return t, nil
}

// SuspendTreaty pauses an active treaty's effects. Either party may suspend.
func (s *Service) SuspendTreaty(ctx context.Context, actor common.Actor, id shared.TreatyID, policyID shared.PolicyID) (*treaty.Treaty, error) {
	return s.mutateTreaty(ctx, actor, id, policyID, "treaty.suspended", func(t *treaty.Treaty, by shared.RegionID) error {
		return t.Suspend(s.clock.Now())
	})
}

// ResumeTreaty reactivates a suspended treaty.
func (s *Service) ResumeTreaty(ctx context.Context, actor common.Actor, id shared.TreatyID, policyID shared.PolicyID) (*treaty.Treaty, error) {
	return s.mutateTreaty(ctx, actor, id, policyID, "treaty.resumed", func(t *treaty.Treaty, by shared.RegionID) error {
		return t.Resume(s.clock.Now())
	})
}

// TerminateTreaty ends a treaty permanently on behalf of one of its parties.
func (s *Service) TerminateTreaty(ctx context.Context, actor common.Actor, id shared.TreatyID, policyID shared.PolicyID) (*treaty.Treaty, error) {
	return s.mutateTreaty(ctx, actor, id, policyID, "treaty.terminated", func(t *treaty.Treaty, by shared.RegionID) error {
		return t.Terminate(by, s.clock.Now())
	})
}

// mutateTreaty applies a lifecycle change after verifying the actor signs for
// one of the treaty's parties.
func (s *Service) mutateTreaty(ctx context.Context, actor common.Actor, id shared.TreatyID, policyID shared.PolicyID, action string, mutate func(*treaty.Treaty, shared.RegionID) error) (*treaty.Treaty, error) {
	t, err := s.treaties.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	party, err := s.signingParty(ctx, t, actor, policyID)
	if err != nil {
		return nil, err
	}
	if err := mutate(t, party.ID); err != nil {
		return nil, err
	}
	if err := s.treaties.Update(ctx, t); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryDiplomacy, action, audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        string(t.ID),
		RegionName:     party.Name,
	})
	return t, nil
}

// signingParty resolves which side of the treaty the actor signs for.
func (s *Service) signingParty(ctx context.Context, t *treaty.Treaty, actor common.Actor, policyID shared.PolicyID) (*region.Region, error) {
	for _, id := range []shared.RegionID{t.RegionA, t.RegionB} {
		r, err := s.regions.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.verifySignature(ctx, r, actor, policyID); err == nil {
			return r, nil
		}
	}
	return nil, shared.NewForbiddenError("", "signing authority in a treaty region required")
}

// verifySignature checks the actor wields the region's signing authority:
// administrators always may, a governor signs directly, and democratic
// regions sign through a passed policy referenced by the caller.
func (s *Service) verifySignature(ctx context.Context, r *region.Region, actor common.Actor, policyID shared.PolicyID) error {
	if actor.IsAdmin() {
		return nil
	}
	if r.Governance == region.GovernanceDemocracy {
		if policyID.IsZero() {
			return shared.NewForbiddenError("", "a passed policy must authorize the signature")
		}
		gw, err := s.shards.Region(ctx, r.Name)
		if err != nil {
			return shared.NewUnavailableError("region shard unavailable", err)
		}
		p, err := gw.Policies.FindByID(ctx, r.ID, policyID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NewForbiddenError("", "a passed policy must authorize the signature")
			}
			return err
		}
		if p.Status != governance.PolicyPassed {
			return shared.NewForbiddenError("", "the referenced policy has not passed")
		}
		return nil
	}
	if !r.GovernorPlayerID.IsZero() && r.GovernorPlayerID == actor.PlayerID {
		return nil
	}
	return shared.NewForbiddenError("", "regional signing authority required")
}

// ListTreaties returns every treaty touching the named region.
func (s *Service) ListTreaties(ctx context.Context, name string) ([]*treaty.Treaty, error) {
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.treaties.ListByRegion(ctx, r.ID)
}

// Effects is the combined diplomatic modifier set between two regions,
// folded from every treaty in effect: the cheapest travel factor, the
// richest trade bonus, and combat prohibition if any treaty imposes it.
type Effects struct {
	TravelCostFactor float64
	TradeBonusFactor float64
	CombatProhibited bool
}

// NeutralEffects is what applies between regions with no standing treaties.
func NeutralEffects() Effects {
	return Effects{TravelCostFactor: 1.0, TradeBonusFactor: 1.0}
}

// TreatyEffects folds the treaties in effect between two regions into one
// modifier set.
func (s *Service) TreatyEffects(ctx context.Context, a, b shared.RegionID) (Effects, error) {
	eff := NeutralEffects()
	if a == b {
		return eff, nil
	}
	pacts, err := s.treaties.ListActiveBetween(ctx, a, b)
	if err != nil {
		return eff, err
	}
	now := s.clock.Now()
	for _, t := range pacts {
		if !t.InEffect(now) {
			continue
		}
		if t.Terms.TravelCostFactor < eff.TravelCostFactor {
			eff.TravelCostFactor = t.Terms.TravelCostFactor
		}
		if t.Terms.TradeBonusFactor > eff.TradeBonusFactor {
			eff.TradeBonusFactor = t.Terms.TradeBonusFactor
		}
		if t.Terms.CombatProhibited {
			eff.CombatProhibited = true
		}
	}
	return eff, nil
}

// ExpireTreaties flips treaties past their end date to expired. Run by the
// scheduler.
func (s *Service) ExpireTreaties(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.treaties.ListActiveExpiredBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, t := range due {
		t.Expire(now)
		if t.Status != treaty.StatusExpired {
			continue
		}
		if err := s.treaties.Update(ctx, t); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
		s.recordAudit(ctx, audit.CategoryDiplomacy, "treaty.expired", audit.Fields{Subject: string(t.ID)})
	}
	return expired, nil
}
