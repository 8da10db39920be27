// Package governance carries regional self-rule: policies voted on by
// members and elections for regional positions. Vote weights come from the
// voter's membership voting power at cast time.
package governance

import (
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// PolicyStatus is the policy lifecycle. Voting is the only open state.
type PolicyStatus string

const (
	PolicyVoting    PolicyStatus = "voting"
	PolicyPassed    PolicyStatus = "passed"
	PolicyRejected  PolicyStatus = "rejected"
	PolicyWithdrawn PolicyStatus = "withdrawn"
)

// Voting window bounds.
const (
	MinVotingWindow = 24 * time.Hour
	MaxVotingWindow = 14 * 24 * time.Hour
)

// Policy is a proposed regional rule change put to a weighted vote. The
// tally passes when the yes share of cast weight meets the region's voting
// threshold.
type Policy struct {
	ID            shared.PolicyID
	RegionID      shared.RegionID
	ProposedBy    shared.PlayerID
	Title         string
	Proposal      string
	Status        PolicyStatus
	YesWeight     float64
	NoWeight      float64
	VotingClosesAt time.Time
	DecidedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int
}

// NewPolicy validates and opens a proposal for voting.
func NewPolicy(regionID shared.RegionID, proposer shared.PlayerID, title, proposal string, window time.Duration, now time.Time) (*Policy, error) {
	title = strings.TrimSpace(title)
	if len(title) < 3 || len(title) > 120 {
		return nil, shared.NewValidationError("title", "must be 3-120 characters")
	}
	if proposal = strings.TrimSpace(proposal); proposal == "" {
		return nil, shared.NewValidationError("proposal", "must not be empty")
	}
	if window < MinVotingWindow || window > MaxVotingWindow {
		return nil, shared.NewValidationError("voting_window", "must be between 1 and 14 days")
	}
	return &Policy{
		ID:             shared.NewPolicyID(),
		RegionID:       regionID,
		ProposedBy:     proposer,
		Title:          title,
		Proposal:       proposal,
		Status:         PolicyVoting,
		VotingClosesAt: now.Add(window),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Open reports whether the policy still accepts votes.
func (p *Policy) Open(now time.Time) bool {
	return p.Status == PolicyVoting && now.Before(p.VotingClosesAt)
}

// RecordVote adds a weighted ballot to the running tally. Uniqueness per
// (policy, voter) is enforced by the vote row, not here.
func (p *Policy) RecordVote(approve bool, weight float64, now time.Time) error {
	if !p.Open(now) {
		return shared.NewConflictError("policy voting is closed")
	}
	if weight <= 0 {
		return shared.NewValidationError("weight", "must be positive")
	}
	if approve {
		p.YesWeight += weight
	} else {
		p.NoWeight += weight
	}
	p.UpdatedAt = now
	return nil
}

// RetractVote removes a previously counted ballot.
func (p *Policy) RetractVote(approve bool, weight float64, now time.Time) error {
	if !p.Open(now) {
		return shared.NewConflictError("policy voting is closed")
	}
	if approve {
		p.YesWeight -= weight
		if p.YesWeight < 0 {
			p.YesWeight = 0
		}
	} else {
		p.NoWeight -= weight
		if p.NoWeight < 0 {
			p.NoWeight = 0
		}
	}
	p.UpdatedAt = now
	return nil
}

// Tally closes voting once the window has elapsed and decides the outcome
// against the region's threshold. Returns true when the policy passed.
func (p *Policy) Tally(threshold float64, now time.Time) (bool, error) {
	if p.Status != PolicyVoting {
		return false, shared.NewConflictError("policy is already decided")
	}
	if now.Before(p.VotingClosesAt) {
		return false, shared.NewConflictError("voting window is still open")
	}
	total := p.YesWeight + p.NoWeight
	passed := total > 0 && p.YesWeight/total >= threshold
	if passed {
		p.Status = PolicyPassed
	} else {
		p.Status = PolicyRejected
	}
	t := now
	p.DecidedAt = &t
	p.UpdatedAt = now
	return passed, nil
}

// Withdraw cancels a proposal before the window closes. Only the proposer
// may withdraw; the caller checks that.
func (p *Policy) Withdraw(now time.Time) error {
	if p.Status != PolicyVoting {
		return shared.NewConflictError("policy is already decided")
	}
	p.Status = PolicyWithdrawn
	t := now
	p.DecidedAt = &t
	p.UpdatedAt = now
	return nil
}
