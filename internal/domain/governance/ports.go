package governance

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// PolicyRepository persists policy proposals in a region shard.
type PolicyRepository interface {
	Create(ctx context.Context, p *Policy) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.PolicyID) (*Policy, error)
	ListByStatus(ctx context.Context, regionID shared.RegionID, status PolicyStatus) ([]*Policy, error)
	ListVotingClosedBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*Policy, error)
	Update(ctx context.Context, p *Policy) error
}

// ElectionRepository persists elections in a region shard.
type ElectionRepository interface {
	Create(ctx context.Context, e *Election) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.ElectionID) (*Election, error)
	ListByStatus(ctx context.Context, regionID shared.RegionID, status ElectionStatus) ([]*Election, error)
	ListVotingClosedBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*Election, error)
	Update(ctx context.Context, e *Election) error
}

// VoteRepository records individual ballots and policy votes. Uniqueness per
// (election, voter) and (policy, voter) is enforced by the shard schema.
type VoteRepository interface {
	RecordBallot(ctx context.Context, v *Vote) error
	RecordPolicyVote(ctx context.Context, v *Vote) error
	DeleteBallot(ctx context.Context, regionID shared.RegionID, electionID shared.ElectionID, voter shared.PlayerID) error
	DeletePolicyVote(ctx context.Context, regionID shared.RegionID, policyID shared.PolicyID, voter shared.PlayerID) error
	FindBallot(ctx context.Context, regionID shared.RegionID, electionID shared.ElectionID, voter shared.PlayerID) (*Vote, error)
	FindPolicyVote(ctx context.Context, regionID shared.RegionID, policyID shared.PolicyID, voter shared.PlayerID) (*Vote, error)
}
