// Package cli defines the gameserver command tree. The server binary is a
// single cobra root with subcommands for serving, migrating shards and
// bootstrapping the Central Nexus.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// NewRootCommand creates the root command for the gameserver binary.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gameserver",
		Short: "Sectorwars game server",
		Long: `Sectorwars game server: the authoritative simulation, HTTP API and
WebSocket event fabric for one galaxy of regional shards.

Examples:
  gameserver serve
  gameserver serve --config /etc/sectorwars/config.yaml
  gameserver migrate
  gameserver provision-nexus`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: search ./config.yaml, ./configs, /etc/sectorwars)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewProvisionNexusCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
