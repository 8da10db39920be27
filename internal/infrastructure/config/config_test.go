package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 60, cfg.RateLimit.Default)
	assert.Equal(t, 256, cfg.Fabric.OutboundHighWater)
	assert.Equal(t, "sectorwars_region_%s", cfg.Database.RegionNameTemplate)
	assert.Equal(t, "first", cfg.Galaxy.NexusGatePolicy)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 2*time.Second, cfg.Advisory.Timeout)
}

func TestLoadConfigEnvContract(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("DATABASE_URL", "postgresql://u:p@db:5432/sectorwars")
	t.Setenv("JWT_SECRET", "topsecret")
	t.Setenv("RATE_LIMIT_DEFAULT", "120")
	t.Setenv("WS_OUTBOUND_HIGH_WATER", "512")
	t.Setenv("NEXUS_GATE_SECTOR_POLICY", "central")
	t.Setenv("CLIENT_ID_GITHUB", "gh-id")
	t.Setenv("CLIENT_SECRET_GITHUB", "gh-secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "postgresql://u:p@db:5432/sectorwars", cfg.Database.URL)
	assert.Equal(t, "topsecret", cfg.Auth.JWTSecret)
	assert.Equal(t, 120, cfg.RateLimit.Default)
	assert.Equal(t, 512, cfg.Fabric.OutboundHighWater)
	assert.Equal(t, "central", cfg.Galaxy.NexusGatePolicy)

	provider, ok := cfg.Auth.Provider("github")
	require.True(t, ok)
	assert.Equal(t, "gh-id", provider.ClientID)
	assert.Equal(t, []string{"github"}, cfg.Auth.EnabledProviders())

	_, ok = cfg.Auth.Provider("steam")
	assert.False(t, ok)
}

func TestValidateConfigProductionProfile(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Environment: "production"}
		SetDefaults(cfg)
		cfg.Database.URL = "postgresql://u:p@db:5432/sectorwars"
		cfg.Auth.JWTSecret = "topsecret"
		cfg.Auth.SecureCookies = true
		return cfg
	}

	require.NoError(t, ValidateConfig(base()))

	missingSecret := base()
	missingSecret.Auth.JWTSecret = ""
	assert.Error(t, ValidateConfig(missingSecret))

	insecureCookies := base()
	insecureCookies.Auth.SecureCookies = false
	assert.Error(t, ValidateConfig(insecureCookies))

	sqliteInProd := base()
	sqliteInProd.Database.Type = "sqlite"
	assert.Error(t, ValidateConfig(sqliteInProd))
}

func TestAdvisoryKeysParsing(t *testing.T) {
	cfg := AdvisoryConfig{ProviderKeys: "anthropic:sk-a, openai:sk-b,broken,, :nokey"}

	keys := cfg.Keys()

	assert.Equal(t, map[string]string{"anthropic": "sk-a", "openai": "sk-b"}, keys)
	assert.True(t, cfg.Enabled())
	assert.False(t, AdvisoryConfig{}.Enabled())
}

func TestRateLimitFamilyBudget(t *testing.T) {
	cfg := RateLimitConfig{Default: 60, Families: map[string]int{"auth": 10}}

	assert.Equal(t, 10, cfg.FamilyBudget("auth"))
	assert.Equal(t, 60, cfg.FamilyBudget("trading"))
}
