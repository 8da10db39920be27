package config

import "time"

// ServerConfig holds HTTP/WebSocket server configuration
type ServerConfig struct {
	// Bind address (host:port is Host + Port)
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`

	// HTTP server timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Request body cap in bytes for JSON endpoints
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=1"`

	// PID file location (empty disables the PID file)
	PIDFile string `mapstructure:"pid_file"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}
