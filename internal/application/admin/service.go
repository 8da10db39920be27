// Package admin serves the operator dashboards: account and player
// moderation, per-region overviews of markets, fleets, combat and
// colonization, live presence from the event fabric, and the audit trail.
// Every operation requires the administrator role.
package admin

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

// activeEngagementLimit bounds the combat overview page.
const activeEngagementLimit = 100

// PresenceSource reports live socket counts from the event fabric.
type PresenceSource interface {
	Presence() PresenceReport
}

// PresenceReport is a snapshot of connected sockets by subscription scope.
type PresenceReport struct {
	Total  int                  `json:"total"`
	Admins int                  `json:"admins"`
	Scopes map[shared.Scope]int `json:"scopes"`
}

// CommoditySummary aggregates one good across a region's station markets.
type CommoditySummary struct {
	Stock     int     `json:"stock"`
	Capacity  int     `json:"capacity"`
	MeanPrice float64 `json:"mean_price"`
	Stations  int     `json:"stations"`
}

// EconomyOverview totals a region's station markets.
type EconomyOverview struct {
	Region      string                                `json:"region"`
	Stations    int                                   `json:"stations"`
	Commodities map[shared.Commodity]CommoditySummary `json:"commodities"`
}

// EngagementSummary is one live combat instance.
type EngagementSummary struct {
	ID       shared.CombatID `json:"id"`
	Sector   int             `json:"sector"`
	Round    int             `json:"round"`
	Attacker shared.PlayerID `json:"attacker"`
	Defender shared.PlayerID `json:"defender"`
	DueAt    time.Time       `json:"due_at"`
}

// CombatOverview lists a region's unresolved engagements.
type CombatOverview struct {
	Region      string              `json:"region"`
	Active      int                 `json:"active"`
	Engagements []EngagementSummary `json:"engagements"`
}

// FleetOverview tallies a region's ships.
type FleetOverview struct {
	Region    string                             `json:"region"`
	Active    int64                              `json:"active"`
	Destroyed int64                              `json:"destroyed"`
	ByClass   map[ship.HullClass]ship.FleetCount `json:"by_class"`
}

// ColonizationOverview tallies a region's claimed planets.
type ColonizationOverview struct {
	Region     string              `json:"region"`
	Colonized  int                 `json:"colonized"`
	Population int64               `json:"population"`
	UnderSiege int                 `json:"under_siege"`
	ByType     map[planet.Type]int `json:"by_type"`
}

// Service executes the administrative use-cases.
type Service struct {
	accounts account.Repository
	sessions account.SessionRepository
	players  player.Repository
	regions  region.Repository
	shards   common.ShardResolver
	presence PresenceSource
	auditor  audit.Recorder
	clock    shared.Clock
}

// NewService wires the administrative use-cases. The presence source may be
// nil until the fabric is attached.
func NewService(
	accounts account.Repository,
	sessions account.SessionRepository,
	players player.Repository,
	regions region.Repository,
	shards common.ShardResolver,
	presence PresenceSource,
	auditor audit.Recorder,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		players:  players,
		regions:  regions,
		shards:   shards,
		presence: presence,
		auditor:  auditor,
		clock:    clock,
	}
}

// Users pages all registered accounts.
func (s *Service) Users(ctx context.Context, actor common.Actor, page, perPage int) ([]*account.Account, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	return s.accounts.List(ctx, page, perPage)
}

// Economy totals the station markets of one region.
func (s *Service) Economy(ctx context.Context, actor common.Actor, regionName string) (*EconomyOverview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, gw, err := s.regionGateways(ctx, regionName)
	if err != nil {
		return nil, err
	}
	stations, err := gw.Stations.List(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	sums := make(map[shared.Commodity]CommoditySummary)
	prices := make(map[shared.Commodity]float64)
	for _, st := range stations {
		for c, slot := range st.Inventory {
			sum := sums[c]
			sum.Stock += slot.Quantity
			sum.Capacity += slot.Capacity
			sum.Stations++
			sums[c] = sum
			prices[c] += float64(slot.BasePrice) * slot.SupplyFactor()
		}
	}
	for c, sum := range sums {
		sum.MeanPrice = prices[c] / float64(sum.Stations)
		sums[c] = sum
	}
	return &EconomyOverview{Region: r.Name, Stations: len(stations), Commodities: sums}, nil
}

// Combat lists the unresolved engagements of one region.
func (s *Service) Combat(ctx context.Context, actor common.Actor, regionName string) (*CombatOverview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, gw, err := s.regionGateways(ctx, regionName)
	if err != nil {
		return nil, err
	}
	active, err := gw.Combats.ListActive(ctx, r.ID, activeEngagementLimit)
	if err != nil {
		return nil, err
	}

	engagements := make([]EngagementSummary, 0, len(active))
	for _, c := range active {
		engagements = append(engagements, EngagementSummary{
			ID:       c.ID,
			Sector:   c.Sector,
			Round:    len(c.Rounds),
			Attacker: c.Attacker.PlayerID,
			Defender: c.Defender.PlayerID,
			DueAt:    c.RoundDueAt,
		})
	}
	return &CombatOverview{Region: r.Name, Active: len(engagements), Engagements: engagements}, nil
}

// Fleet tallies the ships of one region per hull class.
func (s *Service) Fleet(ctx context.Context, actor common.Actor, regionName string) (*FleetOverview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, gw, err := s.regionGateways(ctx, regionName)
	if err != nil {
		return nil, err
	}
	census, err := gw.Ships.Census(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	overview := &FleetOverview{Region: r.Name, ByClass: census}
	for _, count := range census {
		overview.Active += count.Active
		overview.Destroyed += count.Destroyed
	}
	return overview, nil
}

// Colonization tallies the claimed planets of one region.
func (s *Service) Colonization(ctx context.Context, actor common.Actor, regionName string) (*ColonizationOverview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, gw, err := s.regionGateways(ctx, regionName)
	if err != nil {
		return nil, err
	}
	colonized, err := gw.Planets.ListColonized(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	overview := &ColonizationOverview{Region: r.Name, ByType: make(map[planet.Type]int)}
	for _, p := range colonized {
		overview.Colonized++
		overview.Population += p.Population
		overview.ByType[p.Type]++
		if p.UnderSiege {
			overview.UnderSiege++
		}
	}
	return overview, nil
}

// Presence snapshots the fabric's connected sockets per scope.
func (s *Service) Presence(ctx context.Context, actor common.Actor) (PresenceReport, error) {
	if err := requireAdmin(actor); err != nil {
		return PresenceReport{}, err
	}
	if s.presence == nil {
		return PresenceReport{Scopes: map[shared.Scope]int{}}, nil
	}
	return s.presence.Presence(), nil
}

// AuditTrail pages the audit log, optionally filtered by category.
func (s *Service) AuditTrail(ctx context.Context, actor common.Actor, category audit.Category, page, perPage int) ([]*audit.Entry, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	return s.auditor.List(ctx, category, page, perPage)
}

// SuspendAccount disables an account and cuts its refresh chains. Access
// tokens age out within their TTL.
func (s *Service) SuspendAccount(ctx context.Context, actor common.Actor, id shared.AccountID, reason string) (*account.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if id == actor.AccountID {
		return nil, shared.NewValidationError("account_id", "cannot suspend the acting account")
	}
	acct, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Role == account.RoleAdministrator {
		return nil, shared.NewConflictError("administrator accounts cannot be suspended")
	}
	now := s.clock.Now()

	if err := acct.Suspend(now); err != nil {
		return nil, err
	}
	// The account row is the gate: login and refresh check it. A failed
	// chain revocation only leaves tokens that expire on their own.
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.sessions.RevokeAccount(ctx, id, now); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("account_id", id.String()).
			Msg("session revocation after suspension failed")
	}
	s.recordAudit(ctx, "account.suspended", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        id.String(),
		Detail:         map[string]any{"reason": reason},
	})
	return acct, nil
}

// ReinstateAccount lifts a suspension.
func (s *Service) ReinstateAccount(ctx context.Context, actor common.Actor, id shared.AccountID) (*account.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	acct, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := acct.Reinstate(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "account.reinstated", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        id.String(),
	})
	return acct, nil
}

// MutePlayer blocks a player's outbound messages for the given duration.
func (s *Service) MutePlayer(ctx context.Context, actor common.Actor, id shared.PlayerID, d time.Duration, reason string) (*player.Player, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, shared.NewValidationError("duration", "must be positive")
	}
	persona, err := s.players.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if err := persona.Mute(now.Add(d), now); err != nil {
		return nil, err
	}
	if err := s.players.Update(ctx, persona); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "player.muted", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        id.String(),
		Detail: map[string]any{
			"reason": reason,
			"until":  persona.MutedUntil.Format(time.RFC3339),
		},
	})
	return persona, nil
}

// UnmutePlayer lifts an active mute.
func (s *Service) UnmutePlayer(ctx context.Context, actor common.Actor, id shared.PlayerID) (*player.Player, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	persona, err := s.players.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !persona.Muted(now) {
		return nil, shared.NewConflictError("player is not muted")
	}
	persona.Unmute(now)
	if err := s.players.Update(ctx, persona); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "player.unmuted", audit.Fields{
		ActorAccountID: actor.AccountID,
		Subject:        id.String(),
	})
	return persona, nil
}

func requireAdmin(actor common.Actor) error {
	if !actor.IsAdmin() {
		return shared.NewForbiddenError("", "administrator role required")
	}
	return nil
}

func (s *Service) regionGateways(ctx context.Context, name string) (*region.Region, *common.RegionGateways, error) {
	r, err := s.regions.FindByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	gw, err := s.shards.Region(ctx, r.Name)
	if err != nil {
		return nil, nil, shared.NewUnavailableError("region shard", err)
	}
	return r, gw, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, f audit.Fields) {
	if s.auditor == nil {
		return
	}
	f.RequestID = common.RequestIDFromContext(ctx)
	entry, err := audit.New(audit.CategoryAdmin, action, f, s.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", action).Msg("audit entry rejected")
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", action).Msg("audit write failed")
	}
}
