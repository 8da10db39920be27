package region

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// MembershipType orders a player's standing within a region.
type MembershipType string

const (
	MembershipVisitor  MembershipType = "visitor"
	MembershipResident MembershipType = "resident"
	MembershipCitizen  MembershipType = "citizen"
)

// Reputation bounds. Adjustments saturate at the bounds instead of failing.
const (
	MinReputation = -1000
	MaxReputation = 1000
)

// Voting weight bounds.
const (
	MinVotingWeight = 0.0
	MaxVotingWeight = 5.0
)

// Membership records one player's relationship to one region. At most one
// membership exists per (player, region) pair.
type Membership struct {
	PlayerID     shared.PlayerID
	RegionID     shared.RegionID
	Type         MembershipType
	Reputation   int
	VotingWeight float64
	VisitCount   int
	FirstVisitAt time.Time
	LastVisitAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int
}

// NewMembership starts a player as a visitor on first entry.
func NewMembership(playerID shared.PlayerID, regionID shared.RegionID, now time.Time) *Membership {
	return &Membership{
		PlayerID:     playerID,
		RegionID:     regionID,
		Type:         MembershipVisitor,
		VotingWeight: 0.0,
		VisitCount:   1,
		FirstVisitAt: now,
		LastVisitAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordVisit bumps the visit counters on re-entry.
func (m *Membership) RecordVisit(now time.Time) {
	m.VisitCount++
	m.LastVisitAt = now
	m.UpdatedAt = now
}

// Promote raises the membership tier. Demotion goes through Demote so the
// two directions stay auditable apart.
func (m *Membership) Promote(to MembershipType, now time.Time) error {
	if rank(to) <= rank(m.Type) {
		return shared.NewConflictError("membership can only be promoted upward")
	}
	m.Type = to
	if to == MembershipCitizen && m.VotingWeight == 0 {
		m.VotingWeight = 1.0
	}
	m.UpdatedAt = now
	return nil
}

// Demote lowers the membership tier, stripping voting weight below citizen.
func (m *Membership) Demote(to MembershipType, now time.Time) error {
	if rank(to) >= rank(m.Type) {
		return shared.NewConflictError("membership can only be demoted downward")
	}
	m.Type = to
	if to != MembershipCitizen {
		m.VotingWeight = 0.0
	}
	m.UpdatedAt = now
	return nil
}

// AdjustReputation applies a delta and clamps into [-1000, 1000].
func (m *Membership) AdjustReputation(delta int, now time.Time) {
	m.Reputation += delta
	if m.Reputation > MaxReputation {
		m.Reputation = MaxReputation
	}
	if m.Reputation < MinReputation {
		m.Reputation = MinReputation
	}
	m.UpdatedAt = now
}

// SetVotingWeight assigns a citizen's election weight within bounds.
func (m *Membership) SetVotingWeight(weight float64, now time.Time) error {
	if m.Type != MembershipCitizen {
		return shared.NewConflictError("only citizens carry voting weight")
	}
	if weight < MinVotingWeight || weight > MaxVotingWeight {
		return shared.NewValidationErrorf("voting_weight must be in [%.1f, %.1f]", MinVotingWeight, MaxVotingWeight)
	}
	m.VotingWeight = weight
	m.UpdatedAt = now
	return nil
}

// CanVote reports whether this membership participates in elections.
func (m *Membership) CanVote() bool {
	return m.Type == MembershipCitizen && m.VotingWeight > 0
}

// Rank orders the membership tier: visitor 0, resident 1, citizen 2. Warp
// restrictions and broadcast scopes compare ranks rather than tier names.
func (m *Membership) Rank() int { return rank(m.Type) }

func rank(t MembershipType) int {
	switch t {
	case MembershipVisitor:
		return 0
	case MembershipResident:
		return 1
	case MembershipCitizen:
		return 2
	default:
		return -1
	}
}
