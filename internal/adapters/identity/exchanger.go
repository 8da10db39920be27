// Package identity performs authorization-code exchanges against external
// login providers and maps the result onto the asserted identity the auth
// service consumes.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// endpoints are fixed per provider; only credentials come from config.
type endpoints struct {
	authURL     string
	tokenURL    string
	userInfoURL string
	scopes      []string
}

var providerEndpoints = map[string]endpoints{
	"google": {
		authURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:    "https://oauth2.googleapis.com/token",
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		scopes:      []string{"openid", "email", "profile"},
	},
	"github": {
		authURL:     "https://github.com/login/oauth/authorize",
		tokenURL:    "https://github.com/login/oauth/access_token",
		userInfoURL: "https://api.github.com/user",
		scopes:      []string{"read:user", "user:email"},
	},
	"steam": {
		authURL:     "https://steamcommunity.com/oauth/login",
		tokenURL:    "https://steamcommunity.com/oauth/token",
		userInfoURL: "https://api.steampowered.com/ISteamUser/GetPlayerSummaries/v2/",
		scopes:      []string{"identity"},
	},
}

// Exchanger implements auth.ProviderExchanger over plain HTTP.
type Exchanger struct {
	cfg    *config.AuthConfig
	client *http.Client
}

// NewExchanger builds an exchanger over the configured providers.
func NewExchanger(cfg *config.AuthConfig) *Exchanger {
	return &Exchanger{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *Exchanger) provider(name string) (config.OAuthProviderConfig, endpoints, error) {
	ep, ok := providerEndpoints[name]
	if !ok {
		return config.OAuthProviderConfig{}, endpoints{}, shared.NewValidationErrorf("unknown identity provider %q", name)
	}
	pc, ok := e.cfg.Providers[name]
	if !ok || pc.ClientID == "" {
		return config.OAuthProviderConfig{}, endpoints{}, shared.NewUnavailableError(fmt.Sprintf("identity provider %s is not configured", name), nil)
	}
	return pc, ep, nil
}

// AuthURL builds the consent-screen URL carrying the opaque state value.
func (e *Exchanger) AuthURL(provider, state string) (string, error) {
	pc, ep, err := e.provider(provider)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ep.authURL)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", pc.ClientID)
	q.Set("redirect_uri", pc.RedirectURL)
	q.Set("scope", strings.Join(ep.scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange trades the callback code for the provider's identity claim.
func (e *Exchanger) Exchange(ctx context.Context, provider, code string) (*auth.ProviderIdentity, error) {
	pc, ep, err := e.provider(provider)
	if err != nil {
		return nil, err
	}

	token, err := e.exchangeCode(ctx, pc, ep, code)
	if err != nil {
		return nil, err
	}
	return e.fetchIdentity(ctx, provider, ep, token)
}

func (e *Exchanger) exchangeCode(ctx context.Context, pc config.OAuthProviderConfig, ep endpoints, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", pc.ClientID)
	form.Set("client_secret", pc.ClientSecret)
	form.Set("redirect_uri", pc.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", shared.NewUnavailableError("identity provider token exchange failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", shared.NewUnavailableError("identity provider token exchange failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", shared.NewInvalidCredentialError()
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", shared.NewUnavailableError("identity provider returned a malformed token response", err)
	}
	if payload.Error != "" || payload.AccessToken == "" {
		return "", shared.NewInvalidCredentialError()
	}
	return payload.AccessToken, nil
}

func (e *Exchanger) fetchIdentity(ctx context.Context, provider string, ep endpoints, token string) (*auth.ProviderIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, shared.NewUnavailableError("identity provider profile lookup failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, shared.NewUnavailableError("identity provider profile lookup failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, shared.NewUnavailableError("identity provider profile lookup failed", nil)
	}

	// Providers disagree on field names; decode the superset and take the
	// first populated value.
	var profile struct {
		Sub     string          `json:"sub"`
		ID      json.RawMessage `json:"id"`
		SteamID string          `json:"steamid"`
		Name    string          `json:"name"`
		Login   string          `json:"login"`
		Persona string          `json:"personaname"`
		Email   string          `json:"email"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, shared.NewUnavailableError("identity provider returned a malformed profile", err)
	}

	id := firstNonEmpty(profile.Sub, rawString(profile.ID), profile.SteamID)
	if id == "" {
		return nil, shared.NewUnavailableError("identity provider profile carries no stable account id", nil)
	}

	return &auth.ProviderIdentity{
		Provider:          provider,
		ProviderAccountID: id,
		DisplayName:       firstNonEmpty(profile.Name, profile.Login, profile.Persona),
		Email:             profile.Email,
	}, nil
}

// rawString renders a JSON id that may arrive as a number or a string.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
