package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/internal/infrastructure/database"
	"github.com/sectorwars/gameserver/internal/infrastructure/logging"
)

// NewMigrateCommand creates the migrate subcommand.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to every shard",
		Long: `Apply pending schema migrations to the global shard and to the
shard of every known region. Regions whose shard cannot be reached are
reported and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	// Opening the manager migrates the global shard.
	shards, err := database.NewShardManager(&cfg.Database, logger, persistence.GlobalMigrations(), persistence.RegionMigrations())
	if err != nil {
		return err
	}
	defer shards.Close()
	logger.Info().Msg("global shard migrated")

	regions := persistence.NewGormRegionRepository(shards.Global())
	all, err := regions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list regions: %w", err)
	}

	var failed int
	for _, r := range all {
		// Opening a shard runs its pending migrations.
		if _, err := shards.Region(r.Name); err != nil {
			logger.Error().Err(err).Str("region", r.Name).Msg("shard migration failed")
			failed++
			continue
		}
		logger.Info().Str("region", r.Name).Msg("regional shard migrated")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d regional shards failed to migrate", failed, len(all))
	}
	return nil
}
