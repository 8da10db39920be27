package config

// GalaxyConfig holds region generation configuration
type GalaxyConfig struct {
	// How a freshly provisioned region's Nexus gate sector is picked:
	// "first" (sector 1), "central" (middle index) or "high-security"
	// (most secure sector, lowest index on ties)
	NexusGatePolicy string `mapstructure:"nexus_gate_policy" validate:"required,oneof=first central high-security"`

	// Seed for the Central Nexus districts; fixed so every deployment
	// generates the same hub
	NexusSeed int64 `mapstructure:"nexus_seed"`

	// Sector count for regions that omit one
	DefaultSectorCount int `mapstructure:"default_sector_count" validate:"min=100,max=1000"`
}
