package config

import "time"

// ProvisionerConfig holds the subscription-to-region provisioning pipeline
// configuration: the orchestrator callout and the inbound webhook secret.
type ProvisionerConfig struct {
	// Orchestrator endpoint receiving region provision/teardown calls.
	// Empty means provisioning runs in local mode (no callout).
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`

	// HMAC-SHA256 secret verifying inbound billing webhooks
	WebhookSecret string `mapstructure:"webhook_secret"`

	// Hard deadline per orchestrator call
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	// Retry configuration for failed orchestrator calls
	Retry RetryConfig `mapstructure:"retry"`

	// Pending provision queue depth before new webhooks are rejected
	QueueSize int `mapstructure:"queue_size" validate:"min=1"`

	// Grace period after a subscription lapses before teardown
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"required"`
}
