package config

import "time"

// SchedulerConfig holds background simulation cadence configuration
type SchedulerConfig struct {
	// Wall-clock period of one simulated hour (colony growth, station
	// restock, drone upkeep)
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"required"`

	// Per-shard lease so only one scheduler instance ticks a region
	LeaseTTL time.Duration `mapstructure:"lease_ttl" validate:"required"`

	// Expiry sweep cadence (bounties, market contracts, invitations,
	// elections, policy tallies)
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`

	// In-transit travel older than this is failed and compensated
	TravelTimeout time.Duration `mapstructure:"travel_timeout" validate:"required"`

	// Concurrent region workers per sweep
	Workers int `mapstructure:"workers" validate:"min=1"`
}
