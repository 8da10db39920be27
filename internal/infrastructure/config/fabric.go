package config

import "time"

// FabricConfig holds WebSocket event fabric configuration
type FabricConfig struct {
	// Per-socket outbound queue cap. Best-effort events beyond this are
	// dropped; durable events survive via cursor replay.
	OutboundHighWater int `mapstructure:"outbound_high_water" validate:"min=1"`

	// Write deadline for a single outbound frame
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required"`

	// Ping cadence and the pong deadline it implies
	PingInterval time.Duration `mapstructure:"ping_interval" validate:"required"`
	PongWait     time.Duration `mapstructure:"pong_wait" validate:"required"`

	// Inbound frame size cap in bytes
	ReadLimit int64 `mapstructure:"read_limit" validate:"min=1"`

	// How often sector presence counts are pushed to subscribers
	PresenceInterval time.Duration `mapstructure:"presence_interval" validate:"required"`
}
