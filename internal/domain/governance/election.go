package governance

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Position names a regional office filled by election.
type Position string

const (
	PositionGovernor          Position = "governor"
	PositionCouncilMember     Position = "council-member"
	PositionAmbassador        Position = "ambassador"
	PositionTradeCommissioner Position = "trade-commissioner"
)

// ValidPosition reports whether the office exists.
func ValidPosition(p Position) bool {
	switch p {
	case PositionGovernor, PositionCouncilMember, PositionAmbassador, PositionTradeCommissioner:
		return true
	}
	return false
}

// ElectionStatus is the election lifecycle.
type ElectionStatus string

const (
	ElectionScheduled ElectionStatus = "scheduled"
	ElectionVoting    ElectionStatus = "voting"
	ElectionClosed    ElectionStatus = "closed"
	ElectionCancelled ElectionStatus = "cancelled"
)

// Election binds a regional position to a candidate slate and a voting
// window. Ballots are weighted by the voter's voting power; the candidate
// with the greatest weight wins. Weight ties keep the election closed with
// no winner, requiring a re-run.
type Election struct {
	ID           shared.ElectionID
	RegionID     shared.RegionID
	Position     Position
	Candidates   []shared.PlayerID
	Tallies      map[shared.PlayerID]float64
	Status       ElectionStatus
	WinnerID     shared.PlayerID
	VotingOpensAt  time.Time
	VotingClosesAt time.Time
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int
}

// NewElection validates and schedules an election.
func NewElection(regionID shared.RegionID, position Position, candidates []shared.PlayerID, opensAt, closesAt time.Time, now time.Time) (*Election, error) {
	if !ValidPosition(position) {
		return nil, shared.NewValidationError("position", "unknown position")
	}
	if len(candidates) < 2 {
		return nil, shared.NewValidationError("candidates", "an election needs at least two candidates")
	}
	seen := map[shared.PlayerID]bool{}
	for _, c := range candidates {
		if c.IsZero() {
			return nil, shared.NewValidationError("candidates", "candidate id must not be empty")
		}
		if seen[c] {
			return nil, shared.NewValidationError("candidates", "duplicate candidate")
		}
		seen[c] = true
	}
	if !closesAt.After(opensAt) {
		return nil, shared.NewValidationError("voting_closes_at", "must be after the opening time")
	}
	tallies := make(map[shared.PlayerID]float64, len(candidates))
	for _, c := range candidates {
		tallies[c] = 0
	}
	status := ElectionScheduled
	if !now.Before(opensAt) {
		status = ElectionVoting
	}
	return &Election{
		ID:             shared.NewElectionID(),
		RegionID:       regionID,
		Position:       position,
		Candidates:     candidates,
		Tallies:        tallies,
		Status:         status,
		VotingOpensAt:  opensAt,
		VotingClosesAt: closesAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Open reports whether ballots are currently accepted.
func (e *Election) Open(now time.Time) bool {
	if e.Status == ElectionScheduled && !now.Before(e.VotingOpensAt) {
		return now.Before(e.VotingClosesAt)
	}
	return e.Status == ElectionVoting && !now.Before(e.VotingOpensAt) && now.Before(e.VotingClosesAt)
}

// hasCandidate reports slate membership.
func (e *Election) hasCandidate(id shared.PlayerID) bool {
	for _, c := range e.Candidates {
		if c == id {
			return true
		}
	}
	return false
}

// RecordBallot counts a weighted ballot for a candidate. One ballot per
// voter is enforced by the vote row's uniqueness, not here.
func (e *Election) RecordBallot(candidate shared.PlayerID, weight float64, now time.Time) error {
	if !e.Open(now) {
		return shared.NewConflictError("election is not accepting ballots")
	}
	if !e.hasCandidate(candidate) {
		return shared.NewValidationError("candidate", "not on the slate")
	}
	if weight <= 0 {
		return shared.NewValidationError("weight", "must be positive")
	}
	if e.Status == ElectionScheduled {
		e.Status = ElectionVoting
	}
	e.Tallies[candidate] += weight
	e.UpdatedAt = now
	return nil
}

// RetractBallot removes a counted ballot so the voter may recast.
func (e *Election) RetractBallot(candidate shared.PlayerID, weight float64, now time.Time) error {
	if !e.Open(now) {
		return shared.NewConflictError("election is not accepting ballots")
	}
	e.Tallies[candidate] -= weight
	if e.Tallies[candidate] < 0 {
		e.Tallies[candidate] = 0
	}
	e.UpdatedAt = now
	return nil
}

// Close tallies after the window and seats the winner. A dead tie leaves
// WinnerID zero.
func (e *Election) Close(now time.Time) (shared.PlayerID, error) {
	if e.Status == ElectionClosed || e.Status == ElectionCancelled {
		return "", shared.NewConflictError("election is already decided")
	}
	if now.Before(e.VotingClosesAt) {
		return "", shared.NewConflictError("voting window is still open")
	}
	var winner shared.PlayerID
	best := -1.0
	tied := false
	for _, c := range e.Candidates {
		w := e.Tallies[c]
		switch {
		case w > best:
			winner, best, tied = c, w, false
		case w == best:
			tied = true
		}
	}
	if tied || best <= 0 {
		winner = ""
	}
	e.Status = ElectionClosed
	e.WinnerID = winner
	t := now
	e.ClosedAt = &t
	e.UpdatedAt = now
	return winner, nil
}

// Cancel voids a scheduled or running election.
func (e *Election) Cancel(now time.Time) error {
	if e.Status == ElectionClosed || e.Status == ElectionCancelled {
		return shared.NewConflictError("election is already decided")
	}
	e.Status = ElectionCancelled
	t := now
	e.ClosedAt = &t
	e.UpdatedAt = now
	return nil
}
