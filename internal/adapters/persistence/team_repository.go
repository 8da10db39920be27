package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/team"
)

// GormTeamRepository implements team.Repository on a region shard
type GormTeamRepository struct {
	db *gorm.DB
}

// NewGormTeamRepository creates a new GORM team repository
func NewGormTeamRepository(db *gorm.DB) *GormTeamRepository {
	return &GormTeamRepository{db: db}
}

// Create persists a team and seats its founding leader in one transaction
func (r *GormTeamRepository) Create(ctx context.Context, t *team.Team, leader *team.Member) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r.teamToModel(t)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.NewConflictError("team name or tag already taken")
			}
			return fmt.Errorf("failed to create team: %w", err)
		}
		if err := tx.Create(r.memberToModel(leader)).Error; err != nil {
			return fmt.Errorf("failed to seat leader: %w", err)
		}
		return nil
	})
}

// FindByID retrieves a team by ID
func (r *GormTeamRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.TeamID) (*team.Team, error) {
	var model TeamModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("team")
		}
		return nil, fmt.Errorf("failed to find team: %w", result.Error)
	}
	return r.modelToTeam(&model), nil
}

// FindByName retrieves a team by its unique name
func (r *GormTeamRepository) FindByName(ctx context.Context, regionID shared.RegionID, name string) (*team.Team, error) {
	var model TeamModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND name = ?", regionID.String(), name).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("team")
		}
		return nil, fmt.Errorf("failed to find team: %w", result.Error)
	}
	return r.modelToTeam(&model), nil
}

// List pages region teams by founding date
func (r *GormTeamRepository) List(ctx context.Context, regionID shared.RegionID, page, perPage int) ([]*team.Team, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	base := r.db.WithContext(ctx).
		Model(&TeamModel{}).
		Where("region_id = ?", regionID.String())
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count teams: %w", err)
	}
	var models []TeamModel
	result := base.
		Order("created_at").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list teams: %w", result.Error)
	}
	teams := make([]*team.Team, 0, len(models))
	for i := range models {
		teams = append(teams, r.modelToTeam(&models[i]))
	}
	return teams, total, nil
}

// Update saves team changes guarded by the version check
func (r *GormTeamRepository) Update(ctx context.Context, t *team.Team) error {
	model := r.teamToModel(t)
	model.Version = t.Version + 1
	result := r.db.WithContext(ctx).
		Where("version = ?", t.Version).
		Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update team: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("team changed concurrently")
	}
	t.Version = model.Version
	return nil
}

// Delete disbands a team, clearing roster and invitations with it
func (r *GormTeamRepository) Delete(ctx context.Context, regionID shared.RegionID, id shared.TeamID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("team_id = ?", id.String()).Delete(&TeamInvitationModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete invitations: %w", err)
		}
		if err := tx.Where("team_id = ?", id.String()).Delete(&TeamMemberModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete members: %w", err)
		}
		result := tx.Where("region_id = ? AND id = ?", regionID.String(), id.String()).Delete(&TeamModel{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete team: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("team")
		}
		return nil
	})
}

// AddMember seats a player on a team
func (r *GormTeamRepository) AddMember(ctx context.Context, regionID shared.RegionID, m *team.Member) error {
	result := r.db.WithContext(ctx).Create(r.memberToModel(m))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("player already on the team")
		}
		return fmt.Errorf("failed to add member: %w", result.Error)
	}
	return nil
}

// FindMember retrieves one player's seat on a team
func (r *GormTeamRepository) FindMember(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) (*team.Member, error) {
	var model TeamMemberModel
	result := r.db.WithContext(ctx).
		Where("team_id = ? AND player_id = ?", teamID.String(), playerID.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("team member")
		}
		return nil, fmt.Errorf("failed to find member: %w", result.Error)
	}
	return r.modelToMember(&model), nil
}

// ListMembers retrieves the team roster in join order
func (r *GormTeamRepository) ListMembers(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID) ([]*team.Member, error) {
	var models []TeamMemberModel
	result := r.db.WithContext(ctx).
		Where("team_id = ?", teamID.String()).
		Order("joined_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list members: %w", result.Error)
	}
	members := make([]*team.Member, 0, len(models))
	for i := range models {
		members = append(members, r.modelToMember(&models[i]))
	}
	return members, nil
}

// UpdateMember saves role changes for a seat
func (r *GormTeamRepository) UpdateMember(ctx context.Context, regionID shared.RegionID, m *team.Member) error {
	result := r.db.WithContext(ctx).Save(r.memberToModel(m))
	if result.Error != nil {
		return fmt.Errorf("failed to update member: %w", result.Error)
	}
	return nil
}

// RemoveMember clears a player's seat
func (r *GormTeamRepository) RemoveMember(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) error {
	result := r.db.WithContext(ctx).
		Where("team_id = ? AND player_id = ?", teamID.String(), playerID.String()).
		Delete(&TeamMemberModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("team member")
	}
	return nil
}

// CountMembers counts seated players, the member-cap check
func (r *GormTeamRepository) CountMembers(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&TeamMemberModel{}).
		Where("team_id = ?", teamID.String()).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count members: %w", result.Error)
	}
	return int(count), nil
}

// CreateInvitation records a pending offer to join
func (r *GormTeamRepository) CreateInvitation(ctx context.Context, regionID shared.RegionID, inv *team.Invitation) error {
	model := &TeamInvitationModel{
		TeamID:    inv.TeamID.String(),
		PlayerID:  inv.PlayerID.String(),
		InvitedBy: inv.InvitedBy.String(),
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("invitation already pending")
		}
		return fmt.Errorf("failed to create invitation: %w", result.Error)
	}
	return nil
}

// FindInvitation retrieves a pending offer
func (r *GormTeamRepository) FindInvitation(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) (*team.Invitation, error) {
	var model TeamInvitationModel
	result := r.db.WithContext(ctx).
		Where("team_id = ? AND player_id = ?", teamID.String(), playerID.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("invitation")
		}
		return nil, fmt.Errorf("failed to find invitation: %w", result.Error)
	}
	return &team.Invitation{
		TeamID:    shared.TeamID(model.TeamID),
		PlayerID:  shared.PlayerID(model.PlayerID),
		InvitedBy: shared.PlayerID(model.InvitedBy),
		CreatedAt: model.CreatedAt,
		ExpiresAt: model.ExpiresAt,
	}, nil
}

// DeleteInvitation clears an offer once accepted, declined or withdrawn
func (r *GormTeamRepository) DeleteInvitation(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) error {
	result := r.db.WithContext(ctx).
		Where("team_id = ? AND player_id = ?", teamID.String(), playerID.String()).
		Delete(&TeamInvitationModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete invitation: %w", result.Error)
	}
	return nil
}

// DeleteInvitationsBefore sweeps expired offers
func (r *GormTeamRepository) DeleteInvitationsBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&TeamInvitationModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep invitations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormTeamRepository) teamToModel(t *team.Team) *TeamModel {
	return &TeamModel{
		ID:         t.ID.String(),
		RegionID:   t.RegionID.String(),
		Name:       t.Name,
		Tag:        t.Tag,
		Type:       string(t.Type),
		JoinPolicy: string(t.JoinPolicy),
		LeaderID:   t.LeaderID.String(),
		Treasury:   int64(t.Treasury),
		MemberCap:  t.MemberCap,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		Version:    t.Version,
	}
}

func (r *GormTeamRepository) modelToTeam(model *TeamModel) *team.Team {
	return &team.Team{
		ID:         shared.TeamID(model.ID),
		RegionID:   shared.RegionID(model.RegionID),
		Name:       model.Name,
		Tag:        model.Tag,
		Type:       team.Type(model.Type),
		JoinPolicy: team.JoinPolicy(model.JoinPolicy),
		LeaderID:   shared.PlayerID(model.LeaderID),
		Treasury:   shared.Credits(model.Treasury),
		MemberCap:  model.MemberCap,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
		Version:    model.Version,
	}
}

func (r *GormTeamRepository) memberToModel(m *team.Member) *TeamMemberModel {
	return &TeamMemberModel{
		TeamID:    m.TeamID.String(),
		PlayerID:  m.PlayerID.String(),
		Role:      string(m.Role),
		JoinedAt:  m.JoinedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (r *GormTeamRepository) modelToMember(model *TeamMemberModel) *team.Member {
	return &team.Member{
		TeamID:    shared.TeamID(model.TeamID),
		PlayerID:  shared.PlayerID(model.PlayerID),
		Role:      team.Role(model.Role),
		JoinedAt:  model.JoinedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
