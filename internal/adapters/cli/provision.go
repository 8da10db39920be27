package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/internal/infrastructure/database"
	"github.com/sectorwars/gameserver/internal/infrastructure/logging"
)

// NewProvisionNexusCommand creates the provision-nexus subcommand.
func NewProvisionNexusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision-nexus",
		Short: "Generate the Central Nexus region",
		Long: `Generate the Central Nexus region and its shard if they do not
exist yet. Safe to run repeatedly; an intact nexus is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvisionNexus(cmd.Context())
		},
	}
}

func runProvisionNexus(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx)

	shards, err := database.NewShardManager(&cfg.Database, logger, persistence.GlobalMigrations(), persistence.RegionMigrations())
	if err != nil {
		return err
	}
	defer shards.Close()
	global := shards.Global()

	svc := federation.NewService(
		persistence.NewGormRegionRepository(global),
		persistence.NewGormMembershipRepository(global),
		persistence.NewGormPlayerRepository(global),
		persistence.NewGormTravelRepository(global),
		persistence.NewGormTreatyRepository(global),
		persistence.NewShardGatewayResolver(shards),
		nil,
		persistence.NewGormAuditRecorder(global),
		&cfg.Galaxy,
		shared.NewRealClock(),
	)

	nexus, err := svc.EnsureNexus(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Str("region", nexus.Name).
		Str("status", string(nexus.Status)).
		Msg("nexus ready")
	return nil
}
