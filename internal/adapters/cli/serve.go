package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sectorwars/gameserver/internal/adapters/advisory"
	"github.com/sectorwars/gameserver/internal/adapters/fabric"
	"github.com/sectorwars/gameserver/internal/adapters/httpapi"
	"github.com/sectorwars/gameserver/internal/adapters/identity"
	"github.com/sectorwars/gameserver/internal/adapters/metrics"
	"github.com/sectorwars/gameserver/internal/adapters/orchestrator"
	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/admin"
	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/application/colony"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/comms"
	"github.com/sectorwars/gameserver/internal/application/drones"
	"github.com/sectorwars/gameserver/internal/application/engagement"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/application/missions"
	"github.com/sectorwars/gameserver/internal/application/movement"
	"github.com/sectorwars/gameserver/internal/application/onboarding"
	"github.com/sectorwars/gameserver/internal/application/politics"
	"github.com/sectorwars/gameserver/internal/application/provisioner"
	"github.com/sectorwars/gameserver/internal/application/scheduler"
	"github.com/sectorwars/gameserver/internal/application/security"
	"github.com/sectorwars/gameserver/internal/application/teams"
	"github.com/sectorwars/gameserver/internal/application/trade"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/internal/infrastructure/database"
	"github.com/sectorwars/gameserver/internal/infrastructure/logging"
	"github.com/sectorwars/gameserver/internal/infrastructure/pidfile"
)

// NewServeCommand creates the serve subcommand.
func NewServeCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the game server: HTTP API, WebSocket event fabric and the
periodic simulation scheduler, all in one process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false,
		"Kill any existing server instance and take over its PID file")
	return cmd
}

func runServe(force bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	if cfg.Server.PIDFile != "" {
		pf := pidfile.New(cfg.Server.PIDFile)
		if err := pf.Acquire(); err != nil {
			if !force {
				return fmt.Errorf("failed to acquire PID file lock: %w (use --force to kill the existing instance)", err)
			}
			if err := pf.KillExisting(); err != nil {
				return fmt.Errorf("failed to kill existing instance: %w", err)
			}
			if err := pf.Acquire(); err != nil {
				return fmt.Errorf("failed to acquire PID file lock after takeover: %w", err)
			}
		}
		defer func() {
			if err := pf.Release(); err != nil {
				logger.Warn().Err(err).Msg("PID file not released")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	clock := shared.NewRealClock()

	shards, err := database.NewShardManager(&cfg.Database, logger, persistence.GlobalMigrations(), persistence.RegionMigrations())
	if err != nil {
		return err
	}
	defer shards.Close()
	global := shards.Global()

	// Global-shard repositories: identity, federation state, durable events.
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
	leases := persistence.NewGormLeaseStore(global)
	resolver := persistence.NewShardGatewayResolver(shards)

	collector := metrics.NewCollector(cfg.Metrics)

	authorizer := fabric.NewScopeAuthorizer(players, regions, memberships)
	hub := fabric.NewHub(cfg.Fabric, eventLog, authorizer, clock, collector)

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, clock)
	if err != nil {
		return err
	}
	exchanger := identity.NewExchanger(&cfg.Auth)
	authSvc := auth.NewService(accounts, sessions, players, auditor, tokens, exchanger, &cfg.Auth, clock)

	advisoryClient := advisory.NewClient(cfg.Advisory, auditor, clock)
	advisor := advisory.NewAdvisor(advisoryClient)

	var orch provisioner.Orchestrator = provisioner.NoopOrchestrator{}
	if cfg.Provisioner.Endpoint != "" {
		orch = orchestrator.NewClient(cfg.Provisioner)
	}

	federationSvc := federation.NewService(regions, memberships, players, travels, treaties, resolver, hub, auditor, &cfg.Galaxy, clock)
	tradeSvc := trade.NewService(regions, memberships, players, reputations, federationSvc, resolver, hub, clock)
	movementSvc := movement.NewService(regions, memberships, players, resolver, hub, clock)
	engagementSvc := engagement.NewService(regions, memberships, players, federationSvc, resolver, hub, clock)
	teamsSvc := teams.NewService(regions, players, resolver, hub, clock)
	commsSvc := comms.NewService(regions, memberships, players, resolver, hub, clock)
	securitySvc := security.NewService(regions, players, resolver, hub, clock)
	dronesSvc := drones.NewService(regions, players, resolver, hub, clock)
	politicsSvc := politics.NewService(regions, memberships, players, resolver, hub, clock)
	missionsSvc := missions.NewService(regions, players, reputations, resolver, hub, clock)
	colonySvc := colony.NewService(regions, players, resolver, hub, clock)
	onboardingSvc := onboarding.NewService(regions, players, resolver, advisor, auditor, clock)
	adminSvc := admin.NewService(accounts, sessions, players, regions, resolver, hub, auditor, clock)
	provisionerSvc := provisioner.NewService(subs, deliveries, federationSvc, orch, auditor, clock)

	// The Central Nexus must exist before the first traveller arrives.
	if _, err := federationSvc.EnsureNexus(ctx); err != nil {
		return fmt.Errorf("failed to ensure nexus region: %w", err)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = collector.Handler()
	}

	server := httpapi.NewServer(httpapi.Deps{
		Config:  cfg,
		Logger:  logger,
		Tokens:  tokens,
		Players: players,
		Locales: common.LocaleResolver{Regions: regions, Players: players, Shards: resolver, Clock: clock},

		Auth:        authSvc,
		Trade:       tradeSvc,
		Movement:    movementSvc,
		Engagement:  engagementSvc,
		Federation:  federationSvc,
		Teams:       teamsSvc,
		Comms:       commsSvc,
		Security:    securitySvc,
		Drones:      dronesSvc,
		Politics:    politicsSvc,
		Missions:    missionsSvc,
		Colony:      colonySvc,
		Onboarding:  onboardingSvc,
		Admin:       adminSvc,
		Provisioner: provisionerSvc,
		Advisor:     advisor,

		Limiter:  httpapi.NewRateLimiter(&cfg.RateLimit, clock),
		Observer: collector,

		Fabric:  fabric.NewHandler(hub, tokens, players),
		Metrics: metricsHandler,
	})

	sched := scheduler.New(&cfg.Scheduler, leases, regions, clock)
	sched.AddRegionJob("colony-tick", colonySvc.Tick)
	sched.AddRegionJob("combat-rounds", engagementSvc.ResolveDue)
	sched.AddRegionJob("policy-tally", politicsSvc.TallyDue)
	sched.AddRegionJob("election-close", politicsSvc.CloseDue)
	sched.AddRegionJob("mission-board", missionsSvc.RefreshBoard)
	sched.AddRegionJob("invitation-expiry", teamsSvc.ExpireInvitations)
	sched.AddRegionJob("bounty-expiry", securitySvc.Expire)
	sched.AddRegionJob("contract-expiry", func(ctx context.Context, regionName string) (int, error) {
		return tradeSvc.ExpireContracts(ctx, regionName, clock.Now())
	})
	sched.AddGlobalJob("stalled-travel", func(ctx context.Context) (int, error) {
		return federationSvc.ResolveStalled(ctx, clock.Now().Add(-cfg.Scheduler.TravelTimeout))
	})
	sched.AddGlobalJob("treaty-expiry", federationSvc.ExpireTreaties)
	sched.AddGlobalJob("region-decommission", func(ctx context.Context) (int, error) {
		names, err := federationSvc.DecommissionExpired(ctx)
		for _, name := range names {
			if evictErr := resolver.Evict(name); evictErr != nil {
				logger.Warn().Err(evictErr).Str("region", name).Msg("shard not evicted")
			}
		}
		return len(names), err
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		hub.RunPresence(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		hub.CloseAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
