package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the main configuration struct combining all sub-configs
type Config struct {
	// Deployment profile: development, test or production
	Environment string `mapstructure:"environment" validate:"required,oneof=development test production"`

	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Fabric      FabricConfig      `mapstructure:"fabric"`
	Advisory    AdvisoryConfig    `mapstructure:"advisory"`
	Provisioner ProvisionerConfig `mapstructure:"provisioner"`
	Galaxy      GalaxyConfig      `mapstructure:"galaxy"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// IsTest reports whether the test profile is active.
func (c *Config) IsTest() bool { return c.Environment == "test" }

// wellKnownEnv maps the documented bare environment variables onto config
// keys. These are the operator-facing contract and work without the
// SECTORWARS_ prefix.
var wellKnownEnv = map[string]string{
	"ENVIRONMENT":                 "environment",
	"DATABASE_URL":                "database.url",
	"JWT_SECRET":                  "auth.jwt_secret",
	"SECURE_COOKIES":              "auth.secure_cookies",
	"AI_PROVIDER_KEYS":            "advisory.provider_keys",
	"RATE_LIMIT_DEFAULT":          "rate_limit.default",
	"WS_OUTBOUND_HIGH_WATER":      "fabric.outbound_high_water",
	"REGION_PROVISIONER_ENDPOINT": "provisioner.endpoint",
	"NEXUS_GATE_SECTOR_POLICY":    "galaxy.nexus_gate_policy",
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	// Set config file details
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/sectorwars")
	}

	// Enable environment variable reading
	v.SetEnvPrefix("SECTORWARS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - don't error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we'll use env vars and defaults
	}

	// Bare environment variables from the documented operator contract
	// override everything, prefix or not.
	for env, key := range wellKnownEnv {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	// External identity providers use CLIENT_ID_<PROVIDER> /
	// CLIENT_SECRET_<PROVIDER> pairs.
	for _, name := range knownOAuthProviders {
		upper := strings.ToUpper(name)
		if id := os.Getenv("CLIENT_ID_" + upper); id != "" {
			v.Set("auth.providers."+name+".client_id", id)
		}
		if secret := os.Getenv("CLIENT_SECRET_" + upper); secret != "" {
			v.Set("auth.providers."+name+".client_secret", secret)
		}
	}

	// Create config struct and unmarshal
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	SetDefaults(&cfg)

	// Validate configuration
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault loads configuration or returns a default config on error
func LoadConfigOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		// Return default configuration
		defaultCfg := &Config{}
		SetDefaults(defaultCfg)
		return defaultCfg
	}
	return cfg
}

// MustLoadConfig loads configuration and panics on error (for use in main.go)
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
