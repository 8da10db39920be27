package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "sectorwars"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "sectorwars"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.RegionNameTemplate == "" {
		cfg.Database.RegionNameTemplate = "sectorwars_region_%s"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Auth defaults
	if cfg.Auth.AccessTokenTTL == 0 {
		cfg.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTokenTTL == 0 {
		cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.Auth.TOTPIssuer == "" {
		cfg.Auth.TOTPIssuer = "Sectorwars"
	}
	if cfg.Auth.LockoutThreshold == 0 {
		cfg.Auth.LockoutThreshold = 5
	}
	if cfg.Auth.LockoutWindow == 0 {
		cfg.Auth.LockoutWindow = 15 * time.Minute
	}
	if cfg.Auth.LockoutDuration == 0 {
		cfg.Auth.LockoutDuration = 15 * time.Minute
	}

	// Rate limit defaults
	if cfg.RateLimit.Default == 0 {
		cfg.RateLimit.Default = 60
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.RateLimit.PerIP == 0 {
		cfg.RateLimit.PerIP = 30
	}
	if cfg.RateLimit.AbuseWindow == 0 {
		cfg.RateLimit.AbuseWindow = 5 * time.Minute
	}
	if cfg.RateLimit.AbuseThreshold == 0 {
		cfg.RateLimit.AbuseThreshold = 50
	}
	if cfg.RateLimit.DegradePeriod == 0 {
		cfg.RateLimit.DegradePeriod = 10 * time.Minute
	}

	// Fabric defaults
	if cfg.Fabric.OutboundHighWater == 0 {
		cfg.Fabric.OutboundHighWater = 256
	}
	if cfg.Fabric.WriteTimeout == 0 {
		cfg.Fabric.WriteTimeout = 10 * time.Second
	}
	if cfg.Fabric.PingInterval == 0 {
		cfg.Fabric.PingInterval = 30 * time.Second
	}
	if cfg.Fabric.PongWait == 0 {
		cfg.Fabric.PongWait = 60 * time.Second
	}
	if cfg.Fabric.ReadLimit == 0 {
		cfg.Fabric.ReadLimit = 32 << 10 // 32 KiB
	}
	if cfg.Fabric.PresenceInterval == 0 {
		cfg.Fabric.PresenceInterval = 10 * time.Second
	}

	// Advisory defaults
	if len(cfg.Advisory.Providers) == 0 {
		cfg.Advisory.Providers = []string{"anthropic", "openai"}
	}
	if cfg.Advisory.Timeout == 0 {
		cfg.Advisory.Timeout = 2 * time.Second
	}
	if cfg.Advisory.CacheTTL == 0 {
		cfg.Advisory.CacheTTL = 5 * time.Minute
	}
	if cfg.Advisory.Retry.MaxAttempts == 0 {
		cfg.Advisory.Retry.MaxAttempts = 1
	}
	if cfg.Advisory.Retry.BackoffBase == 0 {
		cfg.Advisory.Retry.BackoffBase = 200 * time.Millisecond
	}

	// Provisioner defaults
	if cfg.Provisioner.Timeout == 0 {
		cfg.Provisioner.Timeout = 30 * time.Second
	}
	if cfg.Provisioner.Retry.MaxAttempts == 0 {
		cfg.Provisioner.Retry.MaxAttempts = 5
	}
	if cfg.Provisioner.Retry.BackoffBase == 0 {
		cfg.Provisioner.Retry.BackoffBase = 2 * time.Second
	}
	if cfg.Provisioner.QueueSize == 0 {
		cfg.Provisioner.QueueSize = 64
	}
	if cfg.Provisioner.GracePeriod == 0 {
		cfg.Provisioner.GracePeriod = 72 * time.Hour
	}

	// Galaxy defaults
	if cfg.Galaxy.NexusGatePolicy == "" {
		cfg.Galaxy.NexusGatePolicy = "first"
	}
	if cfg.Galaxy.NexusSeed == 0 {
		cfg.Galaxy.NexusSeed = 2102
	}
	if cfg.Galaxy.DefaultSectorCount == 0 {
		cfg.Galaxy.DefaultSectorCount = 500
	}

	// Scheduler defaults
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Minute
	}
	if cfg.Scheduler.LeaseTTL == 0 {
		cfg.Scheduler.LeaseTTL = 90 * time.Second
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = 30 * time.Second
	}
	if cfg.Scheduler.TravelTimeout == 0 {
		cfg.Scheduler.TravelTimeout = 10 * time.Minute
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 4
	}

	// Metrics defaults
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "127.0.0.1"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "sectorwars"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Format = "console"
		} else {
			cfg.Logging.Format = "json"
		}
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
