package config

import "time"

// knownOAuthProviders are the external identity providers the server can
// federate with. Credentials arrive as CLIENT_ID_<NAME> / CLIENT_SECRET_<NAME>.
var knownOAuthProviders = []string{"github", "google", "steam"}

// AuthConfig holds identity and session configuration
type AuthConfig struct {
	// HS256 signing key for access tokens. Required in production.
	JWTSecret string `mapstructure:"jwt_secret"`

	// Access tokens are short-lived; refresh tokens rotate on use
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl" validate:"required"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" validate:"required"`

	// Cookies carry the Secure attribute; forced on in production
	SecureCookies bool `mapstructure:"secure_cookies"`

	// Issuer name stamped into TOTP provisioning URIs
	TOTPIssuer string `mapstructure:"totp_issuer"`

	// Failed-login lockout: attempts within the window before the account
	// is temporarily locked
	LockoutThreshold int           `mapstructure:"lockout_threshold" validate:"min=1"`
	LockoutWindow    time.Duration `mapstructure:"lockout_window" validate:"required"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration" validate:"required"`

	// External identity providers keyed by name
	Providers map[string]OAuthProviderConfig `mapstructure:"providers"`
}

// OAuthProviderConfig holds one external provider's credentials
type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Enabled reports whether the provider has a full credential pair.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Provider returns the named provider's credentials, if configured.
func (c *AuthConfig) Provider(name string) (OAuthProviderConfig, bool) {
	p, ok := c.Providers[name]
	if !ok || !p.Enabled() {
		return OAuthProviderConfig{}, false
	}
	return p, true
}

// EnabledProviders lists providers with a full credential pair, in the
// canonical order.
func (c *AuthConfig) EnabledProviders() []string {
	var names []string
	for _, name := range knownOAuthProviders {
		if p, ok := c.Providers[name]; ok && p.Enabled() {
			names = append(names, name)
		}
	}
	return names
}
