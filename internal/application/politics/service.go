// Package politics runs regional self-rule: policy proposals put to a
// weighted vote, and elections for regional offices. Voting power comes
// from the voter's membership in the region where the question stands.
package politics

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Defaults applied when a proposal or election omits its window.
const (
	DefaultPolicyWindow = 72 * time.Hour
	DefaultBallotWindow = 72 * time.Hour
)

// casRetries bounds tally reload attempts when voters race.
const casRetries = 3

// Service executes governance use-cases in the actor's current region.
type Service struct {
	regions     region.Repository
	memberships region.MembershipRepository
	players     player.Repository
	shards      common.ShardResolver
	publisher   shared.Publisher
	locales     common.LocaleResolver
	clock       shared.Clock
}

// NewService wires the governance use-cases.
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

// ProposeInput describes a policy proposal.
type ProposeInput struct {
	Title        string        `json:"title" validate:"required,min=3,max=120"`
	Proposal     string        `json:"proposal" validate:"required"`
	VotingWindow time.Duration `json:"voting_window"`
}

// ProposePolicy opens a proposal for voting. Citizens propose under
// democratic rule; under autocracy only the governor does.
func (s *Service) ProposePolicy(ctx context.Context, actor common.Actor, in ProposeInput) (*governance.Policy, error) {
	loc, _, err := s.resolveVoter(ctx, actor)
	if err != nil {
		return nil, err
	}
	if loc.Region.Governance == region.GovernanceAutocracy && loc.Region.GovernorPlayerID != loc.Persona.ID {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only the governor proposes policy under autocracy")
	}
	now := s.clock.Now()
	window := in.VotingWindow
	if window == 0 {
		window = DefaultPolicyWindow
	}
	p, err := governance.NewPolicy(loc.Region.ID, loc.Persona.ID, in.Title, in.Proposal, window, now)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Policies.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, shared.NewEvent(shared.EventPolicyProposed, now, map[string]any{
		"policy_id":   p.ID.String(),
		"title":       p.Title,
		"proposed_by": p.ProposedBy.String(),
		"closes_at":   p.VotingClosesAt,
	}, shared.RegionScope(loc.Region.Name)))
	return p, nil
}

// Policies lists the region's policies by status.
func (s *Service) Policies(ctx context.Context, actor common.Actor, status governance.PolicyStatus) ([]*governance.Policy, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Policies.ListByStatus(ctx, loc.Region.ID, status)
}

// PolicyDetail resolves one policy.
func (s *Service) PolicyDetail(ctx context.Context, actor common.Actor, id shared.PolicyID) (*governance.Policy, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Policies.FindByID(ctx, loc.Region.ID, id)
}

// CastPolicyVote records a weighted yes/no vote. The vote row's uniqueness
// is the gate against double voting; the tally follows under the policy
// row's version guard and the row comes back out if the window closed.
func (s *Service) CastPolicyVote(ctx context.Context, actor common.Actor, policyID shared.PolicyID, approve bool) (*governance.Policy, error) {
	loc, voter, err := s.resolveVoter(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p, err := loc.GW.Policies.FindByID(ctx, loc.Region.ID, policyID)
	if err != nil {
		return nil, err
	}
	if !p.Open(now) {
		return nil, shared.NewConflictError("policy voting is closed")
	}
	v, err := governance.NewPolicyVote(loc.Region.ID, policyID, loc.Persona.ID, approve, voter.VotingWeight, now)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Votes.RecordPolicyVote(ctx, v); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if err := p.RecordVote(approve, v.Weight, now); err != nil {
			s.dropPolicyVote(ctx, loc, policyID)
			return nil, err
		}
		err = loc.GW.Policies.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, shared.ErrConflict) || attempt >= casRetries {
			s.dropPolicyVote(ctx, loc, policyID)
			return nil, err
		}
		if p, err = loc.GW.Policies.FindByID(ctx, loc.Region.ID, policyID); err != nil {
			s.dropPolicyVote(ctx, loc, policyID)
			return nil, err
		}
	}
}

// RetractPolicyVote removes the actor's vote so they may recast. Deleting
// the row releases the claim; the counted weight comes off the tally, and
// a closed window puts the row back.
func (s *Service) RetractPolicyVote(ctx context.Context, actor common.Actor, policyID shared.PolicyID) (*governance.Policy, error) {
	loc, _, err := s.resolveVoter(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	v, err := loc.GW.Votes.FindPolicyVote(ctx, loc.Region.ID, policyID, loc.Persona.ID)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Votes.DeletePolicyVote(ctx, loc.Region.ID, policyID, loc.Persona.ID); err != nil {
		return nil, err
	}
	p, err := loc.GW.Policies.FindByID(ctx, loc.Region.ID, policyID)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if err := p.RetractVote(v.Approve, v.Weight, now); err != nil {
			s.restorePolicyVote(ctx, loc, v)
			return nil, err
		}
		err = loc.GW.Policies.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, shared.ErrConflict) || attempt >= casRetries {
			s.restorePolicyVote(ctx, loc, v)
			return nil, err
		}
		if p, err = loc.GW.Policies.FindByID(ctx, loc.Region.ID, policyID); err != nil {
			s.restorePolicyVote(ctx, loc, v)
			return nil, err
		}
	}
}

// WithdrawPolicy cancels a proposal before its window closes.
func (s *Service) WithdrawPolicy(ctx context.Context, actor common.Actor, policyID shared.PolicyID) (*governance.Policy, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	p, err := loc.GW.Policies.FindByID(ctx, loc.Region.ID, policyID)
	if err != nil {
		return nil, err
	}
	if p.ProposedBy != loc.Persona.ID && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "only the proposer withdraws a policy")
	}
	if err := p.Withdraw(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := loc.GW.Policies.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// TallyPolicy decides one policy whose window has elapsed. Anyone may poke
// a due policy; the sweep catches the rest.
func (s *Service) TallyPolicy(ctx context.Context, actor common.Actor, policyID shared.PolicyID) (*governance.Policy, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	p, err := loc.GW.Policies.FindByID(ctx, loc.Region.ID, policyID)
	if err != nil {
		return nil, err
	}
	if err := s.settlePolicy(ctx, loc.Region, loc.GW, p); err != nil {
		return nil, err
	}
	return p, nil
}

// TallyDue decides every policy in the region whose window has elapsed.
// Idempotent: rows another sweeper already decided are skipped by their
// version guard.
func (s *Service) TallyDue(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	due, err := gw.Policies.ListVotingClosedBefore(ctx, r.ID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	decided := 0
	for _, p := range due {
		if err := s.settlePolicy(ctx, r, gw, p); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return decided, err
		}
		decided++
	}
	return decided, nil
}

// settlePolicy tallies and persists one due policy. The passed event goes
// out before the row flips: if the write loses a race the other writer
// published too, and if it fails outright the next sweep re-sends. Durable
// delivery is at-least-once either way.
func (s *Service) settlePolicy(ctx context.Context, r *region.Region, gw *common.RegionGateways, p *governance.Policy) error {
	now := s.clock.Now()
	passed, err := p.Tally(r.VotingThreshold, now)
	if err != nil {
		return err
	}
	if passed {
		ev := shared.NewEvent(shared.EventPolicyPassed, now, map[string]any{
			"policy_id":  p.ID.String(),
			"title":      p.Title,
			"yes_weight": p.YesWeight,
			"no_weight":  p.NoWeight,
		}, shared.RegionScope(r.Name))
		if err := s.publisher.Publish(ctx, ev); err != nil {
			return shared.NewUnavailableError("event fabric", err)
		}
	}
	return gw.Policies.Update(ctx, p)
}

// ScheduleInput describes an election.
type ScheduleInput struct {
	Position   governance.Position `json:"position" validate:"required"`
	Candidates []shared.PlayerID   `json:"candidates" validate:"required,min=2"`
	OpensAt    time.Time           `json:"opens_at"`
	ClosesAt   time.Time           `json:"closes_at"`
}

// ScheduleElection opens a race for a regional office. The governor, the
// region's owner, or an administrator schedules; every candidate must hold
// citizenship here.
func (s *Service) ScheduleElection(ctx context.Context, actor common.Actor, in ScheduleInput) (*governance.Election, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireElectoralAuthority(actor, loc); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, c := range in.Candidates {
		m, err := s.memberships.Find(ctx, c, loc.Region.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewValidationError("candidates", "candidate is not a member of this region")
			}
			return nil, err
		}
		if m.Type != region.MembershipCitizen {
			return nil, shared.NewValidationError("candidates", "candidates must hold citizenship")
		}
	}
	opensAt := in.OpensAt
	if opensAt.IsZero() {
		opensAt = now
	}
	closesAt := in.ClosesAt
	if closesAt.IsZero() {
		closesAt = opensAt.Add(DefaultBallotWindow)
	}
	e, err := governance.NewElection(loc.Region.ID, in.Position, in.Candidates, opensAt, closesAt, now)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Elections.Create(ctx, e); err != nil {
		return nil, err
	}
	candidates := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		candidates[i] = c.String()
	}
	s.publish(ctx, shared.NewEvent(shared.EventElectionStarted, now, map[string]any{
		"election_id": e.ID.String(),
		"position":    string(e.Position),
		"candidates":  candidates,
		"closes_at":   e.VotingClosesAt,
	}, shared.RegionScope(loc.Region.Name)))
	return e, nil
}

// Elections lists the region's elections by status.
func (s *Service) Elections(ctx context.Context, actor common.Actor, status governance.ElectionStatus) ([]*governance.Election, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Elections.ListByStatus(ctx, loc.Region.ID, status)
}

// ElectionDetail resolves one election.
func (s *Service) ElectionDetail(ctx context.Context, actor common.Actor, id shared.ElectionID) (*governance.Election, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Elections.FindByID(ctx, loc.Region.ID, id)
}

// CancelElection voids a race before it closes.
func (s *Service) CancelElection(ctx context.Context, actor common.Actor, id shared.ElectionID) error {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return err
	}
	if err := s.requireElectoralAuthority(actor, loc); err != nil {
		return err
	}
	e, err := loc.GW.Elections.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return err
	}
	if err := e.Cancel(s.clock.Now()); err != nil {
		return err
	}
	return loc.GW.Elections.Update(ctx, e)
}

// CastBallot records a weighted ballot for a candidate. Same discipline as
// policy votes: the ballot row gates, the tally follows.
func (s *Service) CastBallot(ctx context.Context, actor common.Actor, electionID shared.ElectionID, candidate shared.PlayerID) (*governance.Election, error) {
	loc, voter, err := s.resolveVoter(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	e, err := loc.GW.Elections.FindByID(ctx, loc.Region.ID, electionID)
	if err != nil {
		return nil, err
	}
	if !e.Open(now) {
		return nil, shared.NewConflictError("election is not accepting ballots")
	}
	v, err := governance.NewElectionBallot(loc.Region.ID, electionID, loc.Persona.ID, candidate, voter.VotingWeight, now)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Votes.RecordBallot(ctx, v); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if err := e.RecordBallot(candidate, v.Weight, now); err != nil {
			s.dropBallot(ctx, loc, electionID)
			return nil, err
		}
		err = loc.GW.Elections.Update(ctx, e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, shared.ErrConflict) || attempt >= casRetries {
			s.dropBallot(ctx, loc, electionID)
			return nil, err
		}
		if e, err = loc.GW.Elections.FindByID(ctx, loc.Region.ID, electionID); err != nil {
			s.dropBallot(ctx, loc, electionID)
			return nil, err
		}
	}
}

// RetractBallot removes the actor's ballot so they may recast.
func (s *Service) RetractBallot(ctx context.Context, actor common.Actor, electionID shared.ElectionID) (*governance.Election, error) {
	loc, _, err := s.resolveVoter(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	v, err := loc.GW.Votes.FindBallot(ctx, loc.Region.ID, electionID, loc.Persona.ID)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Votes.DeleteBallot(ctx, loc.Region.ID, electionID, loc.Persona.ID); err != nil {
		return nil, err
	}
	e, err := loc.GW.Elections.FindByID(ctx, loc.Region.ID, electionID)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if err := e.RetractBallot(v.Candidate, v.Weight, now); err != nil {
			s.restoreBallot(ctx, loc, v)
			return nil, err
		}
		err = loc.GW.Elections.Update(ctx, e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, shared.ErrConflict) || attempt >= casRetries {
			s.restoreBallot(ctx, loc, v)
			return nil, err
		}
		if e, err = loc.GW.Elections.FindByID(ctx, loc.Region.ID, electionID); err != nil {
			s.restoreBallot(ctx, loc, v)
			return nil, err
		}
	}
}

// CloseElection settles one election whose window has elapsed.
func (s *Service) CloseElection(ctx context.Context, actor common.Actor, id shared.ElectionID) (*governance.Election, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	e, err := loc.GW.Elections.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.settleElection(ctx, loc.Region, loc.GW, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CloseDue settles every election in the region whose window has elapsed.
func (s *Service) CloseDue(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	due, err := gw.Elections.ListVotingClosedBefore(ctx, r.ID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, e := range due {
		if err := s.settleElection(ctx, r, gw, e); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// settleElection closes one due election, publishing before the row flips
// so delivery stays at-least-once, and seats a winning governor.
func (s *Service) settleElection(ctx context.Context, r *region.Region, gw *common.RegionGateways, e *governance.Election) error {
	now := s.clock.Now()
	winner, err := e.Close(now)
	if err != nil {
		return err
	}
	ev := shared.NewEvent(shared.EventElectionClosed, now, map[string]any{
		"election_id": e.ID.String(),
		"position":    string(e.Position),
		"winner_id":   winner.String(),
	}, shared.RegionScope(r.Name))
	if err := s.publisher.Publish(ctx, ev); err != nil {
		return shared.NewUnavailableError("event fabric", err)
	}
	if err := gw.Elections.Update(ctx, e); err != nil {
		return err
	}
	if e.Position == governance.PositionGovernor && !winner.IsZero() {
		s.seatGovernor(ctx, r, winner)
	}
	return nil
}

// seatGovernor installs an election winner, retrying once past a racing
// region write. Failure logs loudly: the election row already names the
// winner, so support can re-seat by hand.
func (s *Service) seatGovernor(ctx context.Context, r *region.Region, winner shared.PlayerID) {
	now := s.clock.Now()
	r.AppointGovernor(winner, now)
	err := s.regions.Update(ctx, r)
	if errors.Is(err, shared.ErrConflict) {
		fresh, ferr := s.regions.FindByName(ctx, r.Name)
		if ferr == nil {
			fresh.AppointGovernor(winner, now)
			err = s.regions.Update(ctx, fresh)
		} else {
			err = ferr
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("region", r.Name).
			Str("player_id", winner.String()).Msg("failed to seat elected governor")
	}
}

func (s *Service) resolveVoter(ctx context.Context, actor common.Actor) (*common.Locale, *region.Membership, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.memberships.Find(ctx, loc.Persona.ID, loc.Region.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.NewForbiddenError(shared.CodePermissions, "voting requires citizenship")
		}
		return nil, nil, err
	}
	if !m.CanVote() {
		return nil, nil, shared.NewForbiddenError(shared.CodePermissions, "voting requires citizenship")
	}
	return loc, m, nil
}

func (s *Service) requireElectoralAuthority(actor common.Actor, loc *common.Locale) error {
	if actor.IsAdmin() {
		return nil
	}
	if loc.Region.GovernorPlayerID == loc.Persona.ID {
		return nil
	}
	if loc.Region.OwnerAccountID == actor.AccountID {
		return nil
	}
	return shared.NewForbiddenError(shared.CodePermissions, "scheduling elections requires the governor")
}

// dropPolicyVote backs a vote row out after the tally refused it.
func (s *Service) dropPolicyVote(ctx context.Context, loc *common.Locale, policyID shared.PolicyID) {
	if err := loc.GW.Votes.DeletePolicyVote(ctx, loc.Region.ID, policyID, loc.Persona.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("policy_id", policyID.String()).
			Str("player_id", loc.Persona.ID.String()).Msg("uncounted policy vote row left behind")
	}
}

func (s *Service) restorePolicyVote(ctx context.Context, loc *common.Locale, v *governance.Vote) {
	if err := loc.GW.Votes.RecordPolicyVote(ctx, v); err != nil && !errors.Is(err, shared.ErrConflict) {
		log.Ctx(ctx).Error().Err(err).Str("policy_id", v.PolicyID.String()).
			Str("player_id", v.VoterID.String()).Msg("failed to restore policy vote row")
	}
}

func (s *Service) dropBallot(ctx context.Context, loc *common.Locale, electionID shared.ElectionID) {
	if err := loc.GW.Votes.DeleteBallot(ctx, loc.Region.ID, electionID, loc.Persona.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("election_id", electionID.String()).
			Str("player_id", loc.Persona.ID.String()).Msg("uncounted ballot row left behind")
	}
}

func (s *Service) restoreBallot(ctx context.Context, loc *common.Locale, v *governance.Vote) {
	if err := loc.GW.Votes.RecordBallot(ctx, v); err != nil && !errors.Is(err, shared.ErrConflict) {
		log.Ctx(ctx).Error().Err(err).Str("election_id", v.ElectionID.String()).
			Str("player_id", v.VoterID.String()).Msg("failed to restore ballot row")
	}
}

// publish sends best-effort events, logging failures. Durable governance
// events go through the settle paths instead, which fail the mutation.
func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("governance event publish failed")
	}
}
