package governance

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Vote is one voter's ballot. At most one row exists per (election, voter)
// and per (policy, voter); the persistence layer enforces that with a unique
// index, so a double cast surfaces as Conflict. The row records the weight
// counted at cast time so a retraction removes exactly what was added.
type Vote struct {
	RegionID   shared.RegionID
	ElectionID shared.ElectionID // zero for policy votes
	PolicyID   shared.PolicyID   // zero for election ballots
	VoterID    shared.PlayerID
	Candidate  shared.PlayerID // election ballots only
	Approve    bool            // policy votes only
	Weight     float64
	CastAt     time.Time
}

// NewElectionBallot records a ballot for a candidate.
func NewElectionBallot(regionID shared.RegionID, electionID shared.ElectionID, voter, candidate shared.PlayerID, weight float64, now time.Time) (*Vote, error) {
	if weight <= 0 {
		return nil, shared.NewValidationError("weight", "must be positive")
	}
	return &Vote{
		RegionID:   regionID,
		ElectionID: electionID,
		VoterID:    voter,
		Candidate:  candidate,
		Weight:     weight,
		CastAt:     now,
	}, nil
}

// NewPolicyVote records an approve/reject vote on a policy.
func NewPolicyVote(regionID shared.RegionID, policyID shared.PolicyID, voter shared.PlayerID, approve bool, weight float64, now time.Time) (*Vote, error) {
	if weight <= 0 {
		return nil, shared.NewValidationError("weight", "must be positive")
	}
	return &Vote{
		RegionID: regionID,
		PolicyID: policyID,
		VoterID:  voter,
		Approve:  approve,
		Weight:   weight,
		CastAt:   now,
	}, nil
}
