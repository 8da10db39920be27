package faction

import (
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// MissionType selects the completion condition.
type MissionType string

const (
	// MissionDelivery: haul a commodity quantity to a target sector's
	// station.
	MissionDelivery MissionType = "delivery"
	// MissionPatrol: visit the target sector while the mission is active.
	MissionPatrol MissionType = "patrol"
	// MissionBountyHunt: destroy the named target ship.
	MissionBountyHunt MissionType = "bounty-hunt"
)

// MissionStatus is the mission lifecycle.
type MissionStatus string

const (
	MissionOffered   MissionStatus = "offered"
	MissionAccepted  MissionStatus = "accepted"
	MissionCompleted MissionStatus = "completed"
	MissionExpired   MissionStatus = "expired"
	MissionAbandoned MissionStatus = "abandoned"
)

// Mission is faction work offered to players above a reputation tier.
type Mission struct {
	ID               string
	RegionID         shared.RegionID
	FactionID        ID
	Type             MissionType
	TargetSector     int
	Commodity        shared.Commodity // delivery only
	Quantity         int              // delivery only
	TargetShipID     shared.ShipID    // bounty-hunt only
	RewardCredits    int64
	RewardReputation int
	MinTier          Tier
	AcceptedBy       shared.PlayerID
	// TeamID marks a shared acceptance: the credit reward routes to the
	// team treasury instead of the accepting player.
	TeamID      shared.TeamID
	Status      MissionStatus
	OfferedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
	Version     int
}

// NewMission validates and posts a mission offer.
func NewMission(regionID shared.RegionID, factionID ID, typ MissionType, targetSector int, rewardCredits int64, rewardRep int, minTier Tier, ttl time.Duration, now time.Time) (*Mission, error) {
	if !Valid(factionID) {
		return nil, shared.NewValidationError("faction_id", "unknown faction")
	}
	switch typ {
	case MissionDelivery, MissionPatrol, MissionBountyHunt:
	default:
		return nil, shared.NewValidationError("type", "unknown mission type")
	}
	if rewardCredits < 0 {
		return nil, shared.NewValidationError("reward_credits", "must be non-negative")
	}
	if ttl <= 0 {
		return nil, shared.NewValidationError("ttl", "must be positive")
	}
	return &Mission{
		ID:               uuid.NewString(),
		RegionID:         regionID,
		FactionID:        factionID,
		Type:             typ,
		TargetSector:     targetSector,
		RewardCredits:    rewardCredits,
		RewardReputation: rewardRep,
		MinTier:          minTier,
		Status:           MissionOffered,
		OfferedAt:        now,
		ExpiresAt:        now.Add(ttl),
		UpdatedAt:        now,
	}, nil
}

// tierRank orders tiers for eligibility checks.
func tierRank(t Tier) int {
	for i, b := range bands {
		if b.tier == t {
			return i
		}
	}
	return -1
}

// Eligible reports whether a player at the given tier may accept.
func (m *Mission) Eligible(tier Tier) bool {
	return tierRank(tier) >= tierRank(m.MinTier)
}

// Accept binds the mission to a player. A non-zero teamID accepts on the
// team's behalf: completion pays the treasury.
func (m *Mission) Accept(playerID shared.PlayerID, teamID shared.TeamID, tier Tier, now time.Time) error {
	if m.Status != MissionOffered {
		return shared.NewConflictError("mission is no longer offered")
	}
	if now.After(m.ExpiresAt) {
		return shared.NewConflictError("mission offer has expired")
	}
	if !m.Eligible(tier) {
		return shared.NewForbiddenError(shared.CodeFactionRestrict, "reputation tier too low for this mission")
	}
	m.AcceptedBy = playerID
	m.TeamID = teamID
	m.Status = MissionAccepted
	m.UpdatedAt = now
	return nil
}

// Complete closes the mission and reports the rewards to grant.
func (m *Mission) Complete(playerID shared.PlayerID, now time.Time) (int64, int, error) {
	if m.Status != MissionAccepted || m.AcceptedBy != playerID {
		return 0, 0, shared.NewConflictError("mission is not held by this player")
	}
	if now.After(m.ExpiresAt) {
		m.Status = MissionExpired
		m.UpdatedAt = now
		return 0, 0, shared.NewConflictError("mission deadline has passed")
	}
	m.Status = MissionCompleted
	t := now
	m.CompletedAt = &t
	m.UpdatedAt = now
	return m.RewardCredits, m.RewardReputation, nil
}

// Abandon releases an accepted mission, costing a little standing.
func (m *Mission) Abandon(playerID shared.PlayerID, now time.Time) (int, error) {
	if m.Status != MissionAccepted || m.AcceptedBy != playerID {
		return 0, shared.NewConflictError("mission is not held by this player")
	}
	m.Status = MissionAbandoned
	m.UpdatedAt = now
	return -25, nil
}

// Expire lapses an open offer or an overdue acceptance.
func (m *Mission) Expire(now time.Time) error {
	if m.Status != MissionOffered && m.Status != MissionAccepted {
		return shared.NewConflictError("mission is already settled")
	}
	if now.Before(m.ExpiresAt) {
		return shared.NewConflictError("mission is still live")
	}
	m.Status = MissionExpired
	m.UpdatedAt = now
	return nil
}
