package team

import (
	"regexp"
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Type classifies what kind of organization a team is. The type is fixed at
// founding and shapes defaults: corporations trade, alliances fight, guilds
// share expertise.
type Type string

const (
	TypeCorporation Type = "corporation"
	TypeAlliance    Type = "alliance"
	TypeGuild       Type = "guild"
)

// JoinPolicy controls how players enter a team.
type JoinPolicy string

const (
	JoinOpen   JoinPolicy = "open"   // anyone may join
	JoinInvite JoinPolicy = "invite" // an officer must invite
	JoinClosed JoinPolicy = "closed" // no new members
)

// Role orders authority within a team.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleOfficer Role = "officer"
	RoleMember  Role = "member"
)

// DefaultMemberCap bounds team size unless raised by regional policy.
const DefaultMemberCap = 12

var tagPattern = regexp.MustCompile(`^[A-Z0-9]{2,5}$`)

// Team is a player organization within one region: shared treasury, ranked
// members, tagged ships.
type Team struct {
	ID         shared.TeamID
	RegionID   shared.RegionID
	Name       string
	Tag        string
	Type       Type
	JoinPolicy JoinPolicy
	LeaderID   shared.PlayerID
	Treasury   shared.Credits
	MemberCap  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// New validates and founds a team with the creator as leader.
func New(regionID shared.RegionID, name, tag string, typ Type, policy JoinPolicy, leader shared.PlayerID, now time.Time) (*Team, error) {
	name = strings.TrimSpace(name)
	if len(name) < 3 || len(name) > 48 {
		return nil, shared.NewValidationError("name", "must be 3-48 characters")
	}
	if !tagPattern.MatchString(tag) {
		return nil, shared.NewValidationError("tag", "must be 2-5 uppercase letters or digits")
	}
	switch typ {
	case TypeCorporation, TypeAlliance, TypeGuild:
	default:
		return nil, shared.NewValidationError("type", "unknown team type")
	}
	switch policy {
	case JoinOpen, JoinInvite, JoinClosed:
	default:
		return nil, shared.NewValidationError("join_policy", "unknown join policy")
	}
	return &Team{
		ID:         shared.NewTeamID(),
		RegionID:   regionID,
		Name:       name,
		Tag:        tag,
		Type:       typ,
		JoinPolicy: policy,
		LeaderID:   leader,
		MemberCap:  DefaultMemberCap,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SetJoinPolicy switches how the team admits members.
func (t *Team) SetJoinPolicy(policy JoinPolicy, now time.Time) error {
	switch policy {
	case JoinOpen, JoinInvite, JoinClosed:
	default:
		return shared.NewValidationError("join_policy", "unknown join policy")
	}
	t.JoinPolicy = policy
	t.UpdatedAt = now
	return nil
}

// Deposit adds credits to the shared treasury.
func (t *Team) Deposit(amount shared.Credits, now time.Time) error {
	if amount < 1 {
		return shared.NewValidationError("amount", "must be positive")
	}
	balance, err := t.Treasury.Credit(amount)
	if err != nil {
		return err
	}
	t.Treasury = balance
	t.UpdatedAt = now
	return nil
}

// Withdraw removes credits from the treasury.
func (t *Team) Withdraw(amount shared.Credits, now time.Time) error {
	if amount < 1 {
		return shared.NewValidationError("amount", "must be positive")
	}
	remaining, err := t.Treasury.Debit(amount)
	if err != nil {
		return err
	}
	t.Treasury = remaining
	t.UpdatedAt = now
	return nil
}

// TransferLeadership hands the team to another member.
func (t *Team) TransferLeadership(to shared.PlayerID, now time.Time) {
	t.LeaderID = to
	t.UpdatedAt = now
}

// Member is one player's seat on a team.
type Member struct {
	TeamID   shared.TeamID
	PlayerID shared.PlayerID
	Role     Role
	JoinedAt time.Time
	UpdatedAt time.Time
}

// NewMember seats a player on a team.
func NewMember(teamID shared.TeamID, playerID shared.PlayerID, role Role, now time.Time) *Member {
	return &Member{TeamID: teamID, PlayerID: playerID, Role: role, JoinedAt: now, UpdatedAt: now}
}

// roleRank orders roles for permission checks.
func roleRank(r Role) int {
	switch r {
	case RoleLeader:
		return 2
	case RoleOfficer:
		return 1
	case RoleMember:
		return 0
	default:
		return -1
	}
}

// Outranks reports whether this member's role is strictly above another's.
func (m *Member) Outranks(other *Member) bool {
	return roleRank(m.Role) > roleRank(other.Role)
}

// CanInvite reports whether the member may extend invitations.
func (m *Member) CanInvite() bool { return roleRank(m.Role) >= roleRank(RoleOfficer) }

// CanWithdraw reports whether the member may draw on the treasury.
func (m *Member) CanWithdraw() bool { return roleRank(m.Role) >= roleRank(RoleOfficer) }

// Promote raises a member one role. Leadership transfers go through the
// team, not here.
func (m *Member) Promote(now time.Time) error {
	switch m.Role {
	case RoleMember:
		m.Role = RoleOfficer
	case RoleOfficer:
		return shared.NewConflictError("officers are promoted by leadership transfer")
	default:
		return shared.NewConflictError("member cannot be promoted")
	}
	m.UpdatedAt = now
	return nil
}

// Demote lowers an officer back to member.
func (m *Member) Demote(now time.Time) error {
	if m.Role != RoleOfficer {
		return shared.NewConflictError("only officers can be demoted")
	}
	m.Role = RoleMember
	m.UpdatedAt = now
	return nil
}

// Invitation is a pending offer to join an invite-only team.
type Invitation struct {
	TeamID    shared.TeamID
	PlayerID  shared.PlayerID
	InvitedBy shared.PlayerID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// InvitationTTL is how long an invitation stays open.
const InvitationTTL = 7 * 24 * time.Hour

// NewInvitation extends an offer to a player.
func NewInvitation(teamID shared.TeamID, playerID, invitedBy shared.PlayerID, now time.Time) *Invitation {
	return &Invitation{
		TeamID:    teamID,
		PlayerID:  playerID,
		InvitedBy: invitedBy,
		CreatedAt: now,
		ExpiresAt: now.Add(InvitationTTL),
	}
}

// Live reports whether the invitation can still be accepted.
func (i *Invitation) Live(now time.Time) bool { return now.Before(i.ExpiresAt) }
