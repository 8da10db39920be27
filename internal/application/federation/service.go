package federation

import (
	"context"
	"errors"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/galaxy"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/travel"
	"github.com/sectorwars/gameserver/internal/domain/treaty"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Service owns the regional federation: shard lifecycle, inter-region travel
// and diplomacy. It is the only service that writes to more than one shard
// in a single operation.
type Service struct {
	regions     region.Repository
	memberships region.MembershipRepository
	players     player.Repository
	travels     travel.Repository
	treaties    treaty.Repository
	shards      common.ShardResolver
	publisher   shared.Publisher
	auditor     audit.Recorder
	galaxyCfg   *config.GalaxyConfig
	clock       shared.Clock
}

// NewService wires the federation use-cases.
func NewService(
	regions region.Repository,
	memberships region.MembershipRepository,
	players player.Repository,
	travels travel.Repository,
	treaties treaty.Repository,
	shards common.ShardResolver,
	publisher shared.Publisher,
	auditor audit.Recorder,
	galaxyCfg *config.GalaxyConfig,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		regions:     regions,
		memberships: memberships,
		players:     players,
		travels:     travels,
		treaties:    treaties,
		shards:      shards,
		publisher:   publisher,
		auditor:     auditor,
		galaxyCfg:   galaxyCfg,
		clock:       clock,
	}
}

// ListRegions returns the full catalog, every lifecycle state included.
func (s *Service) ListRegions(ctx context.Context) ([]*region.Region, error) {
	return s.regions.List(ctx)
}

// GetRegion resolves a region by name.
func (s *Service) GetRegion(ctx context.Context, name string) (*region.Region, error) {
	return s.regions.FindByName(ctx, name)
}

// CreateRegion registers a pending region awaiting provisioning.
func (s *Service) CreateRegion(ctx context.Context, spec region.Spec, owner shared.AccountID) (*region.Region, error) {
	now := s.clock.Now()
	r, err := region.New(spec, owner, now)
	if err != nil {
		return nil, err
	}
	if err := s.regions.Create(ctx, r); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryLifecycle, "region.created", audit.Fields{
		ActorAccountID: owner,
		RegionName:     r.Name,
		Detail:         map[string]any{"sector_count": r.SectorCount, "specialization": r.Specialization},
	})
	return r, nil
}

// Provision builds a pending region's shard: database, galaxy, gate link.
// Replaying a finished provisioning returns the active region unchanged.
func (s *Service) Provision(ctx context.Context, name string) (*region.Region, error) {
	now := s.clock.Now()
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.Status == region.StatusActive {
		return r, nil
	}
	if r.Status != region.StatusPending && r.Status != region.StatusSuspended {
		return nil, shared.NewConflictError("region cannot be provisioned in its current state")
	}

	gw, err := s.shards.Region(ctx, r.Name)
	if err != nil {
		return nil, shared.NewUnavailableError("region shard unavailable", err)
	}
	if err := gw.Meta.Init(ctx, r.ID, r.Name, r.Seed, now); err != nil {
		return nil, err
	}

	spec := region.Spec{
		Name:           r.Name,
		DisplayName:    r.DisplayName,
		SectorCount:    r.SectorCount,
		Specialization: r.Specialization,
		Seed:           r.Seed,
		StartingShip:   r.StartingShip,
	}
	bp, err := galaxy.Generate(r.ID, spec, galaxy.GatePolicy(s.galaxyCfg.NexusGatePolicy), now)
	if err != nil {
		return nil, err
	}
	if err := s.persistBlueprint(ctx, gw, r, bp); err != nil {
		return nil, err
	}

	if err := r.Activate(bp.GateSector, now); err != nil {
		return nil, err
	}
	if err := s.regions.Update(ctx, r); err != nil {
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventRegionProvisioned, now, map[string]any{
		"region":      r.Name,
		"gate_sector": r.NexusGateSector,
	}, shared.ScopeAdmin, shared.RegionScope(r.Name)))
	s.recordAudit(ctx, audit.CategoryLifecycle, "region.provisioned", audit.Fields{
		RegionName: r.Name,
		Detail:     map[string]any{"sectors": len(bp.Sectors), "gate_sector": bp.GateSector},
	})
	return r, nil
}

// persistBlueprint writes generated content into a fresh shard. A shard that
// already holds sectors is left alone so replays cannot double-populate.
func (s *Service) persistBlueprint(ctx context.Context, gw *common.RegionGateways, r *region.Region, bp *galaxy.Blueprint) error {
	count, err := gw.Sectors.Count(ctx, r.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if err := gw.Sectors.CreateBatch(ctx, bp.Sectors, bp.Links); err != nil {
		return err
	}
	if err := gw.Planets.CreateBatch(ctx, bp.Planets); err != nil {
		return err
	}
	return gw.Stations.CreateBatch(ctx, bp.Stations)
}

// EnsureNexus provisions the singleton hub region if it does not exist yet.
// Safe to call on every boot.
func (s *Service) EnsureNexus(ctx context.Context) (*region.Region, error) {
	now := s.clock.Now()
	nexus, err := s.regions.FindByName(ctx, region.NexusName)
	switch {
	case err == nil:
		if nexus.ConnectedToNexus() {
			return nexus, nil
		}
	case errors.Is(err, shared.ErrNotFound):
		nexus = region.NewNexus(galaxy.NexusSectorCount, s.galaxyCfg.NexusSeed, now)
		if err := s.regions.Create(ctx, nexus); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	gw, err := s.shards.Region(ctx, region.NexusName)
	if err != nil {
		return nil, shared.NewUnavailableError("nexus shard unavailable", err)
	}
	if err := gw.Meta.Init(ctx, nexus.ID, nexus.Name, nexus.Seed, now); err != nil {
		return nil, err
	}
	bp, err := galaxy.GenerateNexus(nexus.ID, nexus.Seed, now)
	if err != nil {
		return nil, err
	}
	if err := s.persistBlueprint(ctx, gw, nexus, bp); err != nil {
		return nil, err
	}
	if err := nexus.LinkGate(bp.GateSector, now); err != nil {
		return nil, err
	}
	if err := s.regions.Update(ctx, nexus); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryLifecycle, "nexus.provisioned", audit.Fields{
		RegionName: nexus.Name,
		Detail:     map[string]any{"sectors": len(bp.Sectors), "gate_sector": bp.GateSector},
	})
	return nexus, nil
}

// Suspend blocks entry and new travel into the region.
func (s *Service) Suspend(ctx context.Context, name string, actor common.Actor) (*region.Region, error) {
	now := s.clock.Now()
	if !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "administrator role required")
	}
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := r.Suspend(now); err != nil {
		return nil, err
	}
	if err := s.regions.Update(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, shared.NewEvent(shared.EventRegionSuspended, now, map[string]any{
		"region": r.Name,
	}, shared.ScopeAdmin, shared.RegionScope(r.Name)))
	s.recordAudit(ctx, audit.CategoryAdmin, "region.suspended", audit.Fields{
		ActorAccountID: actor.AccountID,
		RegionName:     r.Name,
	})
	return r, nil
}

// Resume reactivates a suspended region.
func (s *Service) Resume(ctx context.Context, name string, actor common.Actor) (*region.Region, error) {
	now := s.clock.Now()
	if !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "administrator role required")
	}
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.Status != region.StatusSuspended {
		return nil, shared.NewConflictError("only suspended regions can be resumed")
	}
	if err := r.Activate(0, now); err != nil {
		return nil, err
	}
	if err := s.regions.Update(ctx, r); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryAdmin, "region.resumed", audit.Fields{
		ActorAccountID: actor.AccountID,
		RegionName:     r.Name,
	})
	return r, nil
}

// BeginTermination opens the evacuation window. Residents keep outbound
// travel until the window closes; the terminating notice reaches the region
// scope immediately and the scheduler repeats it daily.
func (s *Service) BeginTermination(ctx context.Context, name string, actor common.Actor) (*region.Region, error) {
	now := s.clock.Now()
	if !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "administrator role required")
	}
	if name == region.NexusName {
		return nil, shared.NewValidationError("region", "the hub region cannot be terminated")
	}
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := r.BeginTermination(now); err != nil {
		return nil, err
	}
	if err := s.regions.Update(ctx, r); err != nil {
		return nil, err
	}
	s.publishTerminationNotice(ctx, r)
	s.recordAudit(ctx, audit.CategoryAdmin, "region.termination_started", audit.Fields{
		ActorAccountID: actor.AccountID,
		RegionName:     r.Name,
		Detail:         map[string]any{"evacuation_at": r.EvacuationAt},
	})
	return r, nil
}

// publishTerminationNotice broadcasts the evacuation reminder into the
// region scope.
func (s *Service) publishTerminationNotice(ctx context.Context, r *region.Region) {
	payload := map[string]any{"region": r.Name}
	if r.EvacuationAt != nil {
		payload["evacuation_at"] = r.EvacuationAt
	}
	s.publish(ctx, shared.NewEvent(shared.EventRegionTerminating, s.clock.Now(), payload,
		shared.RegionScope(r.Name), shared.ScopeAdmin))
}

// DecommissionExpired de-references shards whose evacuation window has
// closed. Returns the regions decommissioned in this pass.
func (s *Service) DecommissionExpired(ctx context.Context) ([]string, error) {
	now := s.clock.Now()
	terminated, err := s.regions.ListByStatus(ctx, region.StatusTerminated)
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, r := range terminated {
		if r.EvacuationAt == nil || now.Before(*r.EvacuationAt) {
			s.publishTerminationNotice(ctx, r)
			continue
		}
		if err := s.shards.Evict(r.Name); err != nil {
			common.LoggerFromContext(ctx).Error().Err(err).Str("region", r.Name).Msg("shard eviction failed")
			continue
		}
		// The status flip is what keeps the next sweep from re-reporting
		// the region; a lost race means another sweep already reported it.
		if err := r.Decommission(now); err != nil {
			continue
		}
		if err := s.regions.Update(ctx, r); err != nil {
			if !errors.Is(err, shared.ErrConflict) {
				common.LoggerFromContext(ctx).Error().Err(err).Str("region", r.Name).Msg("decommission not persisted")
			}
			continue
		}
		dropped = append(dropped, r.Name)
		s.recordAudit(ctx, audit.CategoryLifecycle, "region.decommissioned", audit.Fields{RegionName: r.Name})
	}
	return dropped, nil
}

// SetGovernance reconfigures a region's government. Only the governor or an
// administrator may change it.
func (s *Service) SetGovernance(ctx context.Context, name string, actor common.Actor, gov region.GovernanceType, taxRate, votingThreshold float64, cadenceDays int) (*region.Region, error) {
	now := s.clock.Now()
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.requireRegionAuthority(r, actor); err != nil {
		return nil, err
	}
	if err := r.SetGovernance(gov, taxRate, votingThreshold, cadenceDays, now); err != nil {
		return nil, err
	}
	if err := s.regions.Update(ctx, r); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryGovernance, "region.governance_changed", audit.Fields{
		ActorAccountID: actor.AccountID,
		RegionName:     r.Name,
		Detail: map[string]any{
			"governance": string(gov), "tax_rate": taxRate,
			"voting_threshold": votingThreshold, "election_cadence_days": cadenceDays,
		},
	})
	return r, nil
}

// AppointGovernor installs a region's governing player. Administrator only;
// elections install governors through the governance service instead.
func (s *Service) AppointGovernor(ctx context.Context, name string, actor common.Actor, playerID shared.PlayerID) (*region.Region, error) {
	now := s.clock.Now()
	if !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "administrator role required")
	}
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if _, err := s.players.FindByID(ctx, playerID); err != nil {
		return nil, err
	}
	r.AppointGovernor(playerID, now)
	if err := s.regions.Update(ctx, r); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, audit.CategoryAdmin, "region.governor_appointed", audit.Fields{
		ActorAccountID: actor.AccountID,
		RegionName:     r.Name,
		Subject:        string(playerID),
	})
	return r, nil
}

// Statistics is the regional dashboard snapshot.
type Statistics struct {
	Region           string `json:"region"`
	Status           string `json:"status"`
	Sectors          int    `json:"sectors"`
	Players          int    `json:"players"`
	Stations         int    `json:"stations"`
	ColonizedPlanets int    `json:"colonized_planets"`
	ActiveTreaties   int    `json:"active_treaties"`
}

// RegionStatistics gathers the dashboard counts for one region.
func (s *Service) RegionStatistics(ctx context.Context, name string) (*Statistics, error) {
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	gw, err := s.shards.Region(ctx, r.Name)
	if err != nil {
		return nil, shared.NewUnavailableError("region shard unavailable", err)
	}
	sectors, err := gw.Sectors.Count(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	inhabitants, err := s.players.ListByRegion(ctx, r.Name)
	if err != nil {
		return nil, err
	}
	stations, err := gw.Stations.List(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	colonized, err := gw.Planets.ListColonized(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	pacts, err := s.treaties.ListByRegion(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	active := 0
	for _, t := range pacts {
		if t.InEffect(now) {
			active++
		}
	}
	return &Statistics{
		Region:           r.Name,
		Status:           string(r.Status),
		Sectors:          sectors,
		Players:          len(inhabitants),
		Stations:         len(stations),
		ColonizedPlanets: len(colonized),
		ActiveTreaties:   active,
	}, nil
}

// requireRegionAuthority admits the region's governor and administrators.
func (s *Service) requireRegionAuthority(r *region.Region, actor common.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if !r.GovernorPlayerID.IsZero() && r.GovernorPlayerID == actor.PlayerID {
		return nil
	}
	return shared.NewForbiddenError("", "regional authority required")
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).Msg("event publish failed")
	}
}

func (s *Service) recordAudit(ctx context.Context, category audit.Category, action string, f audit.Fields) {
	if s.auditor == nil {
		return
	}
	f.RequestID = common.RequestIDFromContext(ctx)
	entry, err := audit.New(category, action, f, s.clock.Now())
	if err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).Str("action", action).Msg("audit entry rejected")
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).Str("action", action).Msg("audit write failed")
	}
}
