package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormPolicyRepository implements governance.PolicyRepository on a region shard
type GormPolicyRepository struct {
	db *gorm.DB
}

// NewGormPolicyRepository creates a new GORM policy repository
func NewGormPolicyRepository(db *gorm.DB) *GormPolicyRepository {
	return &GormPolicyRepository{db: db}
}

// Create persists a new policy proposal
func (r *GormPolicyRepository) Create(ctx context.Context, p *governance.Policy) error {
	result := r.db.WithContext(ctx).Create(r.policyToModel(p))
	if result.Error != nil {
		return fmt.Errorf("failed to create policy: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a policy by ID
func (r *GormPolicyRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.PolicyID) (*governance.Policy, error) {
	var model PolicyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("policy")
		}
		return nil, fmt.Errorf("failed to find policy: %w", result.Error)
	}
	return r.modelToPolicy(&model), nil
}

// ListByStatus retrieves policies in a lifecycle state, oldest first
func (r *GormPolicyRepository) ListByStatus(ctx context.Context, regionID shared.RegionID, status governance.PolicyStatus) ([]*governance.Policy, error) {
	var models []PolicyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ?", regionID.String(), string(status)).
		Order("created_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list policies: %w", result.Error)
	}
	policies := make([]*governance.Policy, 0, len(models))
	for i := range models {
		policies = append(policies, r.modelToPolicy(&models[i]))
	}
	return policies, nil
}

// ListVotingClosedBefore finds open policies whose voting window has lapsed,
// the tally sweep's work list
func (r *GormPolicyRepository) ListVotingClosedBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*governance.Policy, error) {
	var models []PolicyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ? AND voting_closes_at < ?",
			regionID.String(), string(governance.PolicyVoting), cutoff).
		Order("voting_closes_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list lapsed policies: %w", result.Error)
	}
	policies := make([]*governance.Policy, 0, len(models))
	for i := range models {
		policies = append(policies, r.modelToPolicy(&models[i]))
	}
	return policies, nil
}

// Update saves policy changes guarded by the version check
func (r *GormPolicyRepository) Update(ctx context.Context, p *governance.Policy) error {
	model := r.policyToModel(p)
	model.Version = p.Version + 1
	result := r.db.WithContext(ctx).
		Where("version = ?", p.Version).
		Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update policy: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("policy changed concurrently")
	}
	p.Version = model.Version
	return nil
}

func (r *GormPolicyRepository) policyToModel(p *governance.Policy) *PolicyModel {
	return &PolicyModel{
		ID:             p.ID.String(),
		RegionID:       p.RegionID.String(),
		ProposedBy:     p.ProposedBy.String(),
		Title:          p.Title,
		Proposal:       p.Proposal,
		Status:         string(p.Status),
		YesWeight:      p.YesWeight,
		NoWeight:       p.NoWeight,
		VotingClosesAt: p.VotingClosesAt,
		DecidedAt:      p.DecidedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		Version:        p.Version,
	}
}

func (r *GormPolicyRepository) modelToPolicy(model *PolicyModel) *governance.Policy {
	return &governance.Policy{
		ID:             shared.PolicyID(model.ID),
		RegionID:       shared.RegionID(model.RegionID),
		ProposedBy:     shared.PlayerID(model.ProposedBy),
		Title:          model.Title,
		Proposal:       model.Proposal,
		Status:         governance.PolicyStatus(model.Status),
		YesWeight:      model.YesWeight,
		NoWeight:       model.NoWeight,
		VotingClosesAt: model.VotingClosesAt,
		DecidedAt:      model.DecidedAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
		Version:        model.Version,
	}
}

// GormElectionRepository implements governance.ElectionRepository on a region shard
type GormElectionRepository struct {
	db *gorm.DB
}

// NewGormElectionRepository creates a new GORM election repository
func NewGormElectionRepository(db *gorm.DB) *GormElectionRepository {
	return &GormElectionRepository{db: db}
}

// Create persists a scheduled election
func (r *GormElectionRepository) Create(ctx context.Context, e *governance.Election) error {
	model, err := r.electionToModel(e)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create election: %w", result.Error)
	}
	return nil
}

// FindByID retrieves an election by ID
func (r *GormElectionRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.ElectionID) (*governance.Election, error) {
	var model ElectionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("election")
		}
		return nil, fmt.Errorf("failed to find election: %w", result.Error)
	}
	return r.modelToElection(&model)
}

// ListByStatus retrieves elections in a lifecycle state
func (r *GormElectionRepository) ListByStatus(ctx context.Context, regionID shared.RegionID, status governance.ElectionStatus) ([]*governance.Election, error) {
	var models []ElectionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ?", regionID.String(), string(status)).
		Order("voting_closes_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list elections: %w", result.Error)
	}
	return r.modelsToElections(models)
}

// ListVotingClosedBefore finds running elections whose window has lapsed
func (r *GormElectionRepository) ListVotingClosedBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*governance.Election, error) {
	var models []ElectionModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ? AND voting_closes_at < ?",
			regionID.String(), string(governance.ElectionVoting), cutoff).
		Order("voting_closes_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list lapsed elections: %w", result.Error)
	}
	return r.modelsToElections(models)
}

// Update saves election changes guarded by the version check
func (r *GormElectionRepository) Update(ctx context.Context, e *governance.Election) error {
	model, err := r.electionToModel(e)
	if err != nil {
		return err
	}
	model.Version = e.Version + 1
	result := r.db.WithContext(ctx).
		Where("version = ?", e.Version).
		Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update election: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("election changed concurrently")
	}
	e.Version = model.Version
	return nil
}

func (r *GormElectionRepository) modelsToElections(models []ElectionModel) ([]*governance.Election, error) {
	elections := make([]*governance.Election, 0, len(models))
	for i := range models {
		e, err := r.modelToElection(&models[i])
		if err != nil {
			return nil, err
		}
		elections = append(elections, e)
	}
	return elections, nil
}

func (r *GormElectionRepository) electionToModel(e *governance.Election) (*ElectionModel, error) {
	candidates, err := json.Marshal(e.Candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidates: %w", err)
	}
	tallies := "{}"
	if len(e.Tallies) > 0 {
		raw, err := json.Marshal(e.Tallies)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tallies: %w", err)
		}
		tallies = string(raw)
	}
	return &ElectionModel{
		ID:             e.ID.String(),
		RegionID:       e.RegionID.String(),
		Position:       string(e.Position),
		Candidates:     string(candidates),
		Tallies:        tallies,
		Status:         string(e.Status),
		WinnerID:       e.WinnerID.String(),
		VotingOpensAt:  e.VotingOpensAt,
		VotingClosesAt: e.VotingClosesAt,
		ClosedAt:       e.ClosedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
		Version:        e.Version,
	}, nil
}

func (r *GormElectionRepository) modelToElection(model *ElectionModel) (*governance.Election, error) {
	var candidates []shared.PlayerID
	if model.Candidates != "" {
		if err := json.Unmarshal([]byte(model.Candidates), &candidates); err != nil {
			return nil, fmt.Errorf("corrupt candidates for election %s: %w", model.ID, err)
		}
	}
	tallies := make(map[shared.PlayerID]float64)
	if model.Tallies != "" {
		if err := json.Unmarshal([]byte(model.Tallies), &tallies); err != nil {
			return nil, fmt.Errorf("corrupt tallies for election %s: %w", model.ID, err)
		}
	}
	return &governance.Election{
		ID:             shared.ElectionID(model.ID),
		RegionID:       shared.RegionID(model.RegionID),
		Position:       governance.Position(model.Position),
		Candidates:     candidates,
		Tallies:        tallies,
		Status:         governance.ElectionStatus(model.Status),
		WinnerID:       shared.PlayerID(model.WinnerID),
		VotingOpensAt:  model.VotingOpensAt,
		VotingClosesAt: model.VotingClosesAt,
		ClosedAt:       model.ClosedAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
		Version:        model.Version,
	}, nil
}

// GormVoteRepository implements governance.VoteRepository. One row per
// (election, voter) or (policy, voter); the composite keys turn a double
// cast into a duplicate-key conflict.
type GormVoteRepository struct {
	db *gorm.DB
}

// NewGormVoteRepository creates a new GORM vote repository
func NewGormVoteRepository(db *gorm.DB) *GormVoteRepository {
	return &GormVoteRepository{db: db}
}

// RecordBallot records an election ballot
func (r *GormVoteRepository) RecordBallot(ctx context.Context, v *governance.Vote) error {
	model := &ElectionBallotModel{
		ElectionID: v.ElectionID.String(),
		VoterID:    v.VoterID.String(),
		Candidate:  v.Candidate.String(),
		Weight:     v.Weight,
		CastAt:     v.CastAt,
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("ballot already cast")
		}
		return fmt.Errorf("failed to record ballot: %w", result.Error)
	}
	return nil
}

// RecordPolicyVote records a policy vote
func (r *GormVoteRepository) RecordPolicyVote(ctx context.Context, v *governance.Vote) error {
	model := &PolicyVoteModel{
		PolicyID: v.PolicyID.String(),
		VoterID:  v.VoterID.String(),
		Approve:  v.Approve,
		Weight:   v.Weight,
		CastAt:   v.CastAt,
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("vote already cast")
		}
		return fmt.Errorf("failed to record vote: %w", result.Error)
	}
	return nil
}

// DeleteBallot retracts an election ballot
func (r *GormVoteRepository) DeleteBallot(ctx context.Context, regionID shared.RegionID, electionID shared.ElectionID, voter shared.PlayerID) error {
	result := r.db.WithContext(ctx).
		Where("election_id = ? AND voter_id = ?", electionID.String(), voter.String()).
		Delete(&ElectionBallotModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete ballot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("ballot")
	}
	return nil
}

// DeletePolicyVote retracts a policy vote
func (r *GormVoteRepository) DeletePolicyVote(ctx context.Context, regionID shared.RegionID, policyID shared.PolicyID, voter shared.PlayerID) error {
	result := r.db.WithContext(ctx).
		Where("policy_id = ? AND voter_id = ?", policyID.String(), voter.String()).
		Delete(&PolicyVoteModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete vote: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("vote")
	}
	return nil
}

// FindBallot retrieves a voter's ballot in an election
func (r *GormVoteRepository) FindBallot(ctx context.Context, regionID shared.RegionID, electionID shared.ElectionID, voter shared.PlayerID) (*governance.Vote, error) {
	var model ElectionBallotModel
	result := r.db.WithContext(ctx).
		Where("election_id = ? AND voter_id = ?", electionID.String(), voter.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("ballot")
		}
		return nil, fmt.Errorf("failed to find ballot: %w", result.Error)
	}
	return &governance.Vote{
		RegionID:   regionID,
		ElectionID: shared.ElectionID(model.ElectionID),
		VoterID:    shared.PlayerID(model.VoterID),
		Candidate:  shared.PlayerID(model.Candidate),
		Weight:     model.Weight,
		CastAt:     model.CastAt,
	}, nil
}

// FindPolicyVote retrieves a voter's vote on a policy
func (r *GormVoteRepository) FindPolicyVote(ctx context.Context, regionID shared.RegionID, policyID shared.PolicyID, voter shared.PlayerID) (*governance.Vote, error) {
	var model PolicyVoteModel
	result := r.db.WithContext(ctx).
		Where("policy_id = ? AND voter_id = ?", policyID.String(), voter.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("vote")
		}
		return nil, fmt.Errorf("failed to find vote: %w", result.Error)
	}
	return &governance.Vote{
		RegionID: regionID,
		PolicyID: shared.PolicyID(model.PolicyID),
		VoterID:  shared.PlayerID(model.VoterID),
		Approve:  model.Approve,
		Weight:   model.Weight,
		CastAt:   model.CastAt,
	}, nil
}
