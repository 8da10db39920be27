package config

import (
	"strings"
	"time"
)

// AdvisoryConfig holds outbound AI advisory provider configuration. The
// advisory path is read-only: provider outages degrade to canned guidance and
// never block gameplay.
type AdvisoryConfig struct {
	// Raw provider keys as "name:key[,name:key...]"; empty disables outbound
	// calls entirely
	ProviderKeys string `mapstructure:"provider_keys"`

	// Preference order when several providers hold keys
	Providers []string `mapstructure:"providers"`

	// Per-provider endpoint overrides, e.g. for an egress proxy. Unset
	// providers use their default public endpoint.
	Endpoints map[string]string `mapstructure:"endpoints"`

	// Hard deadline per provider call
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	// How long an answer is served from cache for the same prompt signature
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"required"`

	// Retry configuration for failed provider calls
	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig holds retry configuration for failed outbound requests
type RetryConfig struct {
	// Maximum number of retry attempts
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=0"`

	// Base duration for exponential backoff
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// Keys parses ProviderKeys into a name-to-key map. Malformed entries are
// skipped.
func (c AdvisoryConfig) Keys() map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(c.ProviderKeys, ",") {
		name, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || key == "" {
			continue
		}
		keys[name] = key
	}
	return keys
}

// Enabled reports whether at least one provider holds a key.
func (c AdvisoryConfig) Enabled() bool {
	return len(c.Keys()) > 0
}
