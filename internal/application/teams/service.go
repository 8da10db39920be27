// Package teams manages player organizations: founding, the
// invitation/application flow, roster roles, and the shared treasury.
package teams

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/team"
)

// Service executes team use-cases in the actor's current region.
type Service struct {
	regions   region.Repository
	players   player.Repository
	shards    common.ShardResolver
	publisher shared.Publisher
	locales   common.LocaleResolver
	clock     shared.Clock
}

// NewService wires the team use-cases.
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

// CreateInput describes a new team.
type CreateInput struct {
	Name       string          `json:"name" validate:"required,min=3,max=48"`
	Tag        string          `json:"tag" validate:"required"`
	Type       team.Type       `json:"type" validate:"required"`
	JoinPolicy team.JoinPolicy `json:"join_policy" validate:"required"`
}

// Create founds a team with the actor as leader. The team row goes first;
// a failed persona update tears the empty team back down.
func (s *Service) Create(ctx context.Context, actor common.Actor, in CreateInput) (*team.Team, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Persona.TeamID.IsZero() {
		return nil, shared.NewConflictError("you are already on a team")
	}

	t, err := team.New(loc.Region.ID, in.Name, in.Tag, in.Type, in.JoinPolicy, loc.Persona.ID, now)
	if err != nil {
		return nil, err
	}
	leader := team.NewMember(t.ID, loc.Persona.ID, team.RoleLeader, now)
	if err := loc.GW.Teams.Create(ctx, t, leader); err != nil {
		return nil, err
	}
	if err := loc.Persona.JoinTeam(t.ID, now); err == nil {
		err = s.players.Update(ctx, loc.Persona)
	}
	if err != nil {
		if delErr := loc.GW.Teams.Delete(ctx, loc.Region.ID, t.ID); delErr != nil {
			log.Ctx(ctx).Error().Err(delErr).Str("team_id", t.ID.String()).
				Msg("orphaned team after failed founder update")
		}
		return nil, err
	}
	return t, nil
}

// Detail resolves a team by id.
func (s *Service) Detail(ctx context.Context, actor common.Actor, id shared.TeamID) (*team.Team, []*team.Member, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, nil, err
	}
	t, err := loc.GW.Teams.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, nil, err
	}
	members, err := loc.GW.Teams.ListMembers(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, nil, err
	}
	return t, members, nil
}

// List pages the region's teams.
func (s *Service) List(ctx context.Context, actor common.Actor, page, perPage int) ([]*team.Team, int64, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, 0, err
	}
	return loc.GW.Teams.List(ctx, loc.Region.ID, page, perPage)
}

// Invite extends a membership offer. Officers and the leader may invite.
func (s *Service) Invite(ctx context.Context, actor common.Actor, target shared.PlayerID) (*team.Invitation, error) {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !member.CanInvite() {
		return nil, shared.NewForbiddenError(shared.CodeTeamPermission, "only officers may invite")
	}
	now := s.clock.Now()
	candidate, err := s.players.FindByID(ctx, target)
	if err != nil {
		return nil, err
	}
	if !candidate.TeamID.IsZero() {
		return nil, shared.NewConflictError("player is already on a team")
	}
	if err := s.checkCapacity(ctx, loc, t); err != nil {
		return nil, err
	}
	inv := team.NewInvitation(t.ID, target, loc.Persona.ID, now)
	if err := loc.GW.Teams.CreateInvitation(ctx, loc.Region.ID, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Accept joins a team the actor was invited to.
func (s *Service) Accept(ctx context.Context, actor common.Actor, teamID shared.TeamID) (*team.Team, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	inv, err := loc.GW.Teams.FindInvitation(ctx, loc.Region.ID, teamID, loc.Persona.ID)
	if err != nil {
		return nil, err
	}
	// Self-applications await officer approval, not the applicant's.
	if inv.InvitedBy == loc.Persona.ID {
		return nil, shared.NewConflictError("application is awaiting team approval")
	}
	if !inv.Live(now) {
		return nil, shared.NewConflictError("invitation has expired")
	}
	t, err := s.seat(ctx, loc, teamID, loc.Persona)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Teams.DeleteInvitation(ctx, loc.Region.ID, teamID, loc.Persona.ID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		log.Ctx(ctx).Warn().Err(err).Msg("stale invitation left after acceptance")
	}
	return t, nil
}

// Apply requests membership. Open teams admit immediately; invite-only teams
// record an application for an officer to approve; closed teams refuse.
func (s *Service) Apply(ctx context.Context, actor common.Actor, teamID shared.TeamID) (*team.Team, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if !loc.Persona.TeamID.IsZero() {
		return nil, shared.NewConflictError("you are already on a team")
	}
	t, err := loc.GW.Teams.FindByID(ctx, loc.Region.ID, teamID)
	if err != nil {
		return nil, err
	}
	switch t.JoinPolicy {
	case team.JoinOpen:
		return s.seat(ctx, loc, teamID, loc.Persona)
	case team.JoinInvite:
		inv := team.NewInvitation(teamID, loc.Persona.ID, loc.Persona.ID, s.clock.Now())
		if err := loc.GW.Teams.CreateInvitation(ctx, loc.Region.ID, inv); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, shared.NewConflictError("team is not admitting members")
	}
}

// Approve admits an applicant. Officers and the leader approve.
func (s *Service) Approve(ctx context.Context, actor common.Actor, applicant shared.PlayerID) (*team.Team, error) {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !member.CanInvite() {
		return nil, shared.NewForbiddenError(shared.CodeTeamPermission, "only officers may approve applications")
	}
	if _, err := loc.GW.Teams.FindInvitation(ctx, loc.Region.ID, t.ID, applicant); err != nil {
		return nil, err
	}
	persona, err := s.players.FindByID(ctx, applicant)
	if err != nil {
		return nil, err
	}
	joined, err := s.seat(ctx, loc, t.ID, persona)
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Teams.DeleteInvitation(ctx, loc.Region.ID, t.ID, applicant); err != nil && !errors.Is(err, shared.ErrNotFound) {
		log.Ctx(ctx).Warn().Err(err).Msg("stale application left after approval")
	}
	return joined, nil
}

// Reject dismisses an application or withdraws a pending invitation.
func (s *Service) Reject(ctx context.Context, actor common.Actor, applicant shared.PlayerID) error {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return err
	}
	if !member.CanInvite() {
		return shared.NewForbiddenError(shared.CodeTeamPermission, "only officers may reject applications")
	}
	return loc.GW.Teams.DeleteInvitation(ctx, loc.Region.ID, t.ID, applicant)
}

// ExpireInvitations sweeps offers past their expiry from the region shard.
// Run by the scheduler.
func (s *Service) ExpireInvitations(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	n, err := gw.Teams.DeleteInvitationsBefore(ctx, r.ID, s.clock.Now())
	return int(n), err
}

// seat adds a persona to the roster. The member row's uniqueness is the gate
// against double joins; the persona row follows, compensated on failure.
func (s *Service) seat(ctx context.Context, loc *common.Locale, teamID shared.TeamID, persona *player.Player) (*team.Team, error) {
	now := s.clock.Now()
	t, err := loc.GW.Teams.FindByID(ctx, loc.Region.ID, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapacity(ctx, loc, t); err != nil {
		return nil, err
	}
	if err := loc.GW.Teams.AddMember(ctx, loc.Region.ID, team.NewMember(teamID, persona.ID, team.RoleMember, now)); err != nil {
		return nil, err
	}
	if err := persona.JoinTeam(teamID, now); err == nil {
		err = s.players.Update(ctx, persona)
	}
	if err != nil {
		if remErr := loc.GW.Teams.RemoveMember(ctx, loc.Region.ID, teamID, persona.ID); remErr != nil {
			log.Ctx(ctx).Error().Err(remErr).Str("team_id", teamID.String()).
				Str("player_id", persona.ID.String()).Msg("orphaned roster seat after failed persona update")
		}
		return nil, err
	}
	return t, nil
}

func (s *Service) checkCapacity(ctx context.Context, loc *common.Locale, t *team.Team) error {
	count, err := loc.GW.Teams.CountMembers(ctx, loc.Region.ID, t.ID)
	if err != nil {
		return err
	}
	if count >= t.MemberCap {
		return shared.NewConflictError("team is at its member cap")
	}
	return nil
}

// AssignRole changes a member's rank. Only the leader assigns; assigning
// leader transfers leadership and drops the old leader to officer.
func (s *Service) AssignRole(ctx context.Context, actor common.Actor, target shared.PlayerID, role team.Role) error {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return err
	}
	if member.Role != team.RoleLeader {
		return shared.NewForbiddenError(shared.CodeTeamPermission, "only the leader assigns roles")
	}
	if target == loc.Persona.ID {
		return shared.NewValidationError("player_id", "cannot reassign your own role")
	}
	now := s.clock.Now()
	subject, err := loc.GW.Teams.FindMember(ctx, loc.Region.ID, t.ID, target)
	if err != nil {
		return err
	}

	switch role {
	case team.RoleLeader:
		subject.Role = team.RoleLeader
		subject.UpdatedAt = now
		if err := loc.GW.Teams.UpdateMember(ctx, loc.Region.ID, subject); err != nil {
			return err
		}
		member.Role = team.RoleOfficer
		member.UpdatedAt = now
		if err := loc.GW.Teams.UpdateMember(ctx, loc.Region.ID, member); err != nil {
			return err
		}
		t.TransferLeadership(target, now)
		return loc.GW.Teams.Update(ctx, t)
	case team.RoleOfficer:
		if err := subject.Promote(now); err != nil {
			return err
		}
		return loc.GW.Teams.UpdateMember(ctx, loc.Region.ID, subject)
	case team.RoleMember:
		if err := subject.Demote(now); err != nil {
			return err
		}
		return loc.GW.Teams.UpdateMember(ctx, loc.Region.ID, subject)
	default:
		return shared.NewValidationError("role", "unknown role")
	}
}

// Kick removes a lower-ranked member from the roster.
func (s *Service) Kick(ctx context.Context, actor common.Actor, target shared.PlayerID) error {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return err
	}
	subject, err := loc.GW.Teams.FindMember(ctx, loc.Region.ID, t.ID, target)
	if err != nil {
		return err
	}
	if !member.Outranks(subject) {
		return shared.NewForbiddenError(shared.CodeTeamPermission, "you do not outrank that member")
	}
	if err := loc.GW.Teams.RemoveMember(ctx, loc.Region.ID, t.ID, target); err != nil {
		return err
	}
	s.clearSeat(ctx, target)
	return nil
}

// Leave exits the team. The leader must transfer leadership first unless
// they are the last member, which disbands the team.
func (s *Service) Leave(ctx context.Context, actor common.Actor) error {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return err
	}
	count, err := loc.GW.Teams.CountMembers(ctx, loc.Region.ID, t.ID)
	if err != nil {
		return err
	}
	if member.Role == team.RoleLeader && count > 1 {
		return shared.NewConflictError("transfer leadership before leaving")
	}
	if count == 1 {
		return s.disband(ctx, loc, t)
	}
	if err := loc.GW.Teams.RemoveMember(ctx, loc.Region.ID, t.ID, loc.Persona.ID); err != nil {
		return err
	}
	loc.Persona.LeaveTeam(s.clock.Now())
	return s.players.Update(ctx, loc.Persona)
}

// Disband dissolves the team, refunding the treasury to the leader.
func (s *Service) Disband(ctx context.Context, actor common.Actor) error {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return err
	}
	if member.Role != team.RoleLeader {
		return shared.NewForbiddenError(shared.CodeTeamPermission, "only the leader disbands the team")
	}
	return s.disband(ctx, loc, t)
}

func (s *Service) disband(ctx context.Context, loc *common.Locale, t *team.Team) error {
	now := s.clock.Now()
	members, err := loc.GW.Teams.ListMembers(ctx, loc.Region.ID, t.ID)
	if err != nil {
		return err
	}
	if t.Treasury > 0 {
		refund := t.Treasury
		if err := t.Withdraw(refund, now); err != nil {
			return err
		}
		// The treasury row empties first; a crash before the payout loses
		// nothing the leader cannot reclaim through support tooling.
		if err := loc.GW.Teams.Update(ctx, t); err != nil {
			return err
		}
		if err := loc.Persona.Earn(refund, now); err == nil {
			err = s.players.Update(ctx, loc.Persona)
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("team_id", t.ID.String()).
				Int64("amount", int64(refund)).Msg("treasury refund failed during disband")
		}
	}
	if err := loc.GW.Teams.Delete(ctx, loc.Region.ID, t.ID); err != nil {
		return err
	}
	for _, m := range members {
		s.clearSeat(ctx, m.PlayerID)
	}
	return nil
}

// clearSeat best-effort clears a persona's team pointer. A stale pointer
// resolves to an empty roster, so failures degrade rather than corrupt.
func (s *Service) clearSeat(ctx context.Context, playerID shared.PlayerID) {
	persona, err := s.players.FindByID(ctx, playerID)
	if err == nil {
		persona.LeaveTeam(s.clock.Now())
		err = s.players.Update(ctx, persona)
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", playerID.String()).
			Msg("failed to clear team seat")
	}
}

// Deposit moves credits from the actor into the shared treasury. The
// persona's version guard moves the money exactly once; a failed treasury
// write refunds it.
func (s *Service) Deposit(ctx context.Context, actor common.Actor, amount shared.Credits) (*team.Team, error) {
	loc, _, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := loc.Persona.Spend(amount, now); err != nil {
		return nil, err
	}
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		return nil, err
	}
	if err := t.Deposit(amount, now); err == nil {
		err = loc.GW.Teams.Update(ctx, t)
	}
	if err != nil {
		s.refundPersona(ctx, loc.Persona.ID, amount)
		return nil, err
	}
	s.publishTreasury(ctx, t, "deposit", amount, loc.Persona.ID)
	return t, nil
}

// Withdraw draws on the treasury. Officers and the leader withdraw; the team
// row's version guard debits the treasury exactly once.
func (s *Service) Withdraw(ctx context.Context, actor common.Actor, amount shared.Credits) (*team.Team, error) {
	loc, member, t, err := s.resolveMember(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !member.CanWithdraw() {
		return nil, shared.NewForbiddenError(shared.CodeTeamPermission, "only officers may draw on the treasury")
	}
	now := s.clock.Now()
	if err := t.Withdraw(amount, now); err != nil {
		return nil, err
	}
	if err := loc.GW.Teams.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := loc.Persona.Earn(amount, now); err == nil {
		err = s.players.Update(ctx, loc.Persona)
	}
	if err != nil {
		// Put the money back; the version guard already moved once, so a
		// racing withdrawal cannot double-spend it.
		if t.Deposit(amount, now) == nil {
			if updErr := loc.GW.Teams.Update(ctx, t); updErr != nil {
				log.Ctx(ctx).Error().Err(updErr).Str("team_id", t.ID.String()).
					Int64("amount", int64(amount)).Msg("treasury redeposit failed")
			}
		}
		return nil, err
	}
	s.publishTreasury(ctx, t, "withdraw", amount, loc.Persona.ID)
	return t, nil
}

func (s *Service) publishTreasury(ctx context.Context, t *team.Team, direction string, amount shared.Credits, by shared.PlayerID) {
	ev := shared.NewEvent(shared.EventTeamTreasury, s.clock.Now(), map[string]any{
		"team_id":   t.ID.String(),
		"direction": direction,
		"amount":    int64(amount),
		"balance":   int64(t.Treasury),
		"player_id": by.String(),
	}, shared.TeamScope(t.ID))
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("treasury event publish failed")
	}
}

func (s *Service) refundPersona(ctx context.Context, id shared.PlayerID, amount shared.Credits) {
	persona, err := s.players.FindByID(ctx, id)
	if err == nil {
		if err = persona.Earn(amount, s.clock.Now()); err == nil {
			err = s.players.Update(ctx, persona)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player_id", id.String()).
			Int64("amount", int64(amount)).Msg("deposit refund failed")
	}
}

// resolveMember loads the actor's locale, their seat and their team.
func (s *Service) resolveMember(ctx context.Context, actor common.Actor) (*common.Locale, *team.Member, *team.Team, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, nil, nil, err
	}
	if loc.Persona.TeamID.IsZero() {
		return nil, nil, nil, shared.NewConflictError("you are not on a team")
	}
	t, err := loc.GW.Teams.FindByID(ctx, loc.Region.ID, loc.Persona.TeamID)
	if err != nil {
		return nil, nil, nil, err
	}
	member, err := loc.GW.Teams.FindMember(ctx, loc.Region.ID, t.ID, loc.Persona.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return loc, member, t, nil
}
