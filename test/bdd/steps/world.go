// Package steps implements the step definitions behind the feature files.
// Every scenario runs over a full in-process stack: in-memory SQLite shards,
// the real event fabric hub as publisher and the services wired exactly as
// the serve command wires them.
package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
	"github.com/rs/zerolog"

	"github.com/sectorwars/gameserver/internal/adapters/fabric"
	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/engagement"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/application/politics"
	"github.com/sectorwars/gameserver/internal/application/provisioner"
	"github.com/sectorwars/gameserver/internal/application/trade"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/internal/infrastructure/database"
)

// world is one scenario's isolated universe. Construction mirrors the serve
// command's wiring; every regional shard is its own in-memory SQLite
// database, so scenarios never see each other's state.
type world struct {
	ctx   context.Context
	clock *shared.MockClock

	shards   *database.ShardManager
	resolver *persistence.ShardGatewayResolver

	accounts    account.Repository
	players     player.Repository
	regions     region.Repository
	memberships region.MembershipRepository
	eventLog    shared.EventLog

	hub *fabric.Hub

	auth        *auth.Service
	trade       *trade.Service
	engagement  *engagement.Service
	federation  *federation.Service
	politics    *politics.Service
	provisioner *provisioner.Service
}

// newWorld stands the stack up and provisions the Central Nexus. Failures
// panic: a scenario cannot run without its universe.
func newWorld() *world {
	cfg := &config.Config{}
	cfg.Database = config.DatabaseConfig{
		Type:               "sqlite",
		Path:               ":memory:",
		RegionNameTemplate: "sectorwars_region_%s",
	}
	config.SetDefaults(cfg)

	clock := shared.NewMockClock(time.Date(2102, time.March, 1, 12, 0, 0, 0, time.UTC))

	shards, err := database.NewShardManager(&cfg.Database, zerolog.Nop(), persistence.GlobalMigrations(), persistence.RegionMigrations())
	if err != nil {
		panic(fmt.Errorf("failed to open test shards: %w", err))
	}
	global := shards.Global()

	accounts := persistence.NewGormAccountRepository(global)
	sessions := persistence.NewGormSessionRepository(global)
	players := persistence.NewGormPlayerRepository(global)
	regions := persistence.NewGormRegionRepository(global)
	memberships := persistence.NewGormMembershipRepository(global)
	reputations := persistence.NewGormReputationRepository(global)
	travels := persistence.NewGormTravelRepository(global)
	treaties := persistence.NewGormTreatyRepository(global)
	subs := persistence.NewGormSubscriptionRepository(global)
	deliveries := persistence.NewGormDeliveryRepository(global)
	auditor := persistence.NewGormAuditRecorder(global)
	eventLog := persistence.NewGormEventLog(global)
	resolver := persistence.NewShardGatewayResolver(shards)

	authorizer := fabric.NewScopeAuthorizer(players, regions, memberships)
	hub := fabric.NewHub(cfg.Fabric, eventLog, authorizer, clock, nil)

	tokens, err := auth.NewTokenIssuer("bdd-test-secret", time.Hour, clock)
	if err != nil {
		panic(fmt.Errorf("failed to build token issuer: %w", err))
	}
	authSvc := auth.NewService(accounts, sessions, players, auditor, tokens, nil, &cfg.Auth, clock)

	federationSvc := federation.NewService(regions, memberships, players, travels, treaties, resolver, hub, auditor, &cfg.Galaxy, clock)
	tradeSvc := trade.NewService(regions, memberships, players, reputations, federationSvc, resolver, hub, clock)
	engagementSvc := engagement.NewService(regions, memberships, players, federationSvc, resolver, hub, clock)
	politicsSvc := politics.NewService(regions, memberships, players, resolver, hub, clock)
	provisionerSvc := provisioner.NewService(subs, deliveries, federationSvc, provisioner.NoopOrchestrator{}, auditor, clock)

	ctx := context.Background()
	if _, err := federationSvc.EnsureNexus(ctx); err != nil {
		panic(fmt.Errorf("failed to provision the nexus: %w", err))
	}

	return &world{
		ctx:         ctx,
		clock:       clock,
		shards:      shards,
		resolver:    resolver,
		accounts:    accounts,
		players:     players,
		regions:     regions,
		memberships: memberships,
		eventLog:    eventLog,
		hub:         hub,
		auth:        authSvc,
		trade:       tradeSvc,
		engagement:  engagementSvc,
		federation:  federationSvc,
		politics:    politicsSvc,
		provisioner: provisionerSvc,
	}
}

func (w *world) close() {
	if w.shards != nil {
		w.shards.Close()
	}
}

// current is the scenario's universe. Scenarios run sequentially, so a
// package-level handle lets every step file share one "a clean universe"
// step without colliding registrations.
var current *world

func resetUniverse() error {
	if current != nil {
		current.close()
	}
	current = newWorld()
	return nil
}

// InitializeUniverseSteps registers the shared universe bootstrap step.
func InitializeUniverseSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a clean universe$`, resetUniverse)
}

func registerInput(handle, email, credential string) auth.RegisterInput {
	return auth.RegisterInput{Handle: handle, Email: email, Credential: credential}
}

// actorFor builds the authenticated actor a request middleware would have
// resolved for the persona.
func (w *world) actorFor(p *player.Player) common.Actor {
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}
}

func (w *world) adminActor() common.Actor {
	return common.Actor{AccountID: shared.NewAccountID(), Role: account.RoleAdministrator}
}

// register creates an account with its persona, as the HTTP register
// endpoint would.
func (w *world) register(handle string) (*auth.LoginResult, error) {
	return w.auth.Register(w.ctx, auth.RegisterInput{
		Handle:     handle,
		Email:      handle + "@example.com",
		Credential: "S3cret!pass",
	})
}

func (w *world) gateway(regionName string) (*common.RegionGateways, error) {
	return w.resolver.Region(w.ctx, regionName)
}

// seedShip creates a ship in the named region's shard and boards the
// persona on it.
func (w *world) seedShip(p *player.Player, regionName string, sector int, class ship.HullClass) (*ship.Ship, error) {
	r, err := w.regions.FindByName(w.ctx, regionName)
	if err != nil {
		return nil, err
	}
	gw, err := w.gateway(regionName)
	if err != nil {
		return nil, err
	}
	now := w.clock.Now()
	sh, err := ship.New(p.ID, r.ID, sector, class, "", now)
	if err != nil {
		return nil, err
	}
	if err := gw.Ships.Create(w.ctx, sh); err != nil {
		return nil, err
	}
	p.BoardShip(sh.ID, now)
	if err := w.players.Update(w.ctx, p); err != nil {
		return nil, err
	}
	return sh, nil
}

// provisionRegion creates and activates a region owned by the given
// account, the way a subscription start would.
func (w *world) provisionRegion(name string, owner shared.AccountID) (*region.Region, error) {
	if _, err := w.federation.CreateRegion(w.ctx, region.Spec{
		Name:        name,
		SectorCount: 100,
		Seed:        42,
	}, owner); err != nil {
		return nil, err
	}
	return w.federation.Provision(w.ctx, name)
}

// settleIn moves a persona into a region as a citizen with the given
// voting weight.
func (w *world) settleIn(p *player.Player, r *region.Region, weight float64) error {
	now := w.clock.Now()
	gate := r.NexusGateSector
	if gate < 1 {
		gate = 1
	}
	p.Relocate(r.Name, gate, now)
	if err := w.players.Update(w.ctx, p); err != nil {
		return err
	}
	m := region.NewMembership(p.ID, r.ID, now)
	if err := m.Promote(region.MembershipCitizen, now); err != nil {
		return err
	}
	if err := m.SetVotingWeight(weight, now); err != nil {
		return err
	}
	return w.memberships.Create(w.ctx, m)
}

// setCredits pins a persona's balance for scenarios that name an exact
// starting amount.
func (w *world) setCredits(p *player.Player, amount shared.Credits) error {
	now := w.clock.Now()
	switch {
	case p.Credits > amount:
		if err := p.Spend(p.Credits-amount, now); err != nil {
			return err
		}
	case p.Credits < amount:
		if err := p.Earn(amount-p.Credits, now); err != nil {
			return err
		}
	}
	return w.players.Update(w.ctx, p)
}

// replay reads a scope's durable log from the start.
func (w *world) replay(scope shared.Scope) ([]shared.SequencedEvent, error) {
	return w.eventLog.Replay(w.ctx, scope, 0, 100)
}
