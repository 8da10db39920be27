// Package advisory is the outbound bridge to the optional AI model
// providers. Everything here is read-only guidance: market forecasts, route
// hints and the onboarding guard dialogue. Provider failures degrade to
// deterministic heuristics and are recorded in the audit trail; no model
// output ever reaches a repository write.
package advisory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// provider endpoints keyed by the configured provider name. Both speak the
// same minimal prompt-in completion-out JSON shape.
var providerEndpoints = map[string]string{
	"anthropic": "https://api.anthropic.com/v1/complete",
	"openai":    "https://api.openai.com/v1/completions",
}

// Client tries configured providers in order with a per-call deadline and a
// short-TTL response cache keyed by a fingerprint of the prompt.
type Client struct {
	cfg     config.AdvisoryConfig
	keys    map[string]string
	http    *http.Client
	auditor audit.Recorder
	clock   shared.Clock
	cache   *promptCache
}

// NewClient builds the provider chain. With no configured keys every call
// short-circuits to the heuristic fallback.
func NewClient(cfg config.AdvisoryConfig, auditor audit.Recorder, clock shared.Clock) *Client {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Client{
		cfg:     cfg,
		keys:    cfg.Keys(),
		http:    &http.Client{Timeout: cfg.Timeout},
		auditor: auditor,
		clock:   clock,
		cache:   newPromptCache(cfg.CacheTTL, clock),
	}
}

// Complete sends the prompt down the provider chain. The error is returned
// only after every configured provider failed; callers then fall back to a
// deterministic heuristic and the degradation is already audited.
func (c *Client) Complete(ctx context.Context, kind, prompt string) (string, error) {
	if len(c.keys) == 0 {
		return "", shared.NewUnavailableError("no advisory providers configured", nil)
	}
	fingerprint := promptFingerprint(kind, prompt)
	if answer, ok := c.cache.get(fingerprint); ok {
		return answer, nil
	}

	var lastErr error
	for _, name := range c.providerOrder() {
		key, ok := c.keys[name]
		if !ok {
			continue
		}
		answer, err := c.call(ctx, name, key, prompt)
		if err != nil {
			lastErr = err
			log.Ctx(ctx).Warn().Err(err).Str("provider", name).Str("kind", kind).
				Msg("advisory provider failed")
			continue
		}
		c.cache.put(fingerprint, answer)
		return answer, nil
	}

	c.recordDegradation(ctx, kind, lastErr)
	return "", shared.NewUnavailableError("all advisory providers failed", lastErr)
}

func (c *Client) providerOrder() []string {
	if len(c.cfg.Providers) > 0 {
		return c.cfg.Providers
	}
	order := make([]string, 0, len(providerEndpoints))
	for name := range providerEndpoints {
		order = append(order, name)
	}
	return order
}

type completionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type completionResponse struct {
	Completion string `json:"completion"`
}

func (c *Client) call(ctx context.Context, name, key, prompt string) (string, error) {
	endpoint, ok := c.cfg.Endpoints[name]
	if !ok {
		endpoint = providerEndpoints[name]
	}
	if endpoint == "" {
		return "", fmt.Errorf("unknown advisory provider %q", name)
	}
	body, err := json.Marshal(completionRequest{Prompt: prompt, MaxTokens: 400})
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
		return "", fmt.Errorf("provider %s returned %d", name, resp.StatusCode)
	}
	var parsed completionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Completion == "" {
		return "", fmt.Errorf("provider %s returned an empty completion", name)
	}
	return parsed.Completion, nil
}

func (c *Client) recordDegradation(ctx context.Context, kind string, cause error) {
	if c.auditor == nil {
		return
	}
	detail := map[string]any{"kind": kind}
	if cause != nil {
		detail["cause"] = cause.Error()
	}
	entry, err := audit.New(audit.CategoryAdvisory, "advisory.degraded", audit.Fields{
		RequestID: common.RequestIDFromContext(ctx),
		Detail:    detail,
	}, c.clock.Now())
	if err != nil {
		return
	}
	if err := c.auditor.Record(ctx, entry); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("advisory degradation audit failed")
	}
}

func promptFingerprint(kind, prompt string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// cacheEntry pairs an answer with its expiry instant.
type cacheEntry struct {
	answer  string
	expires time.Time
}

type promptCache struct {
	ttl   time.Duration
	clock shared.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newPromptCache(ttl time.Duration, clock shared.Clock) *promptCache {
	return &promptCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *promptCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.clock.Now().After(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.answer, true
}

func (c *promptCache) put(key, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	// Opportunistic sweep keeps the map from growing unbounded.
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{answer: answer, expires: now.Add(c.ttl)}
}
