package config

import "time"

// RateLimitConfig holds request budget configuration. Budgets are per-minute
// token buckets keyed by (account, endpoint family), with an IP fallback for
// anonymous traffic.
type RateLimitConfig struct {
	// Default requests per minute when a family has no override
	Default int `mapstructure:"default" validate:"min=1"`

	// Burst size for token buckets
	Burst int `mapstructure:"burst" validate:"min=1"`

	// Requests per minute for unauthenticated callers, keyed by IP
	PerIP int `mapstructure:"per_ip" validate:"min=1"`

	// Per-family overrides, e.g. {"auth": 10, "trading": 120}
	Families map[string]int `mapstructure:"families"`

	// Abuse detection: more than Threshold limited requests inside Window
	// moves the account to soft-degraded service
	AbuseWindow    time.Duration `mapstructure:"abuse_window" validate:"required"`
	AbuseThreshold int           `mapstructure:"abuse_threshold" validate:"min=1"`

	// How long soft-degraded service lasts once triggered
	DegradePeriod time.Duration `mapstructure:"degrade_period" validate:"required"`
}

// FamilyBudget returns the per-minute budget for an endpoint family.
func (c *RateLimitConfig) FamilyBudget(family string) int {
	if n, ok := c.Families[family]; ok && n > 0 {
		return n
	}
	return c.Default
}
