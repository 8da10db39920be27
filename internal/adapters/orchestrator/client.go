// Package orchestrator calls the container-orchestration endpoint that
// builds and tears down the per-region service stacks (database, worker,
// cache, storage). Every call is idempotent by region name so a retried
// webhook cannot double-provision.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Client talks to REGION_PROVISIONER_ENDPOINT. Transient failures retry with
// capped exponential backoff; a permanent failure surfaces Unavailable and
// leaves the region pending for an operator.
type Client struct {
	cfg  config.ProvisionerConfig
	http *http.Client
}

// NewClient builds the orchestrator client.
func NewClient(cfg config.ProvisionerConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type regionRequest struct {
	Region string `json:"region"`
	Plan   string `json:"plan,omitempty"`
	// Containers names the stack members the orchestrator materializes from
	// its template. Fixed here so both sides agree on the shape.
	Containers []string `json:"containers,omitempty"`
}

var regionContainers = []string{"database", "worker", "cache", "storage"}

// CreateRegion asks for the full container set of a new region.
func (c *Client) CreateRegion(ctx context.Context, regionName, plan string) error {
	return c.post(ctx, "/regions/create", regionRequest{
		Region:     regionName,
		Plan:       plan,
		Containers: regionContainers,
	})
}

// SuspendRegion stops the region's workers but keeps its data volumes.
func (c *Client) SuspendRegion(ctx context.Context, regionName string) error {
	return c.post(ctx, "/regions/suspend", regionRequest{Region: regionName})
}

// RemoveRegion archives and removes the region's container set.
func (c *Client) RemoveRegion(ctx context.Context, regionName string) error {
	return c.post(ctx, "/regions/remove", regionRequest{Region: regionName})
}

func (c *Client) post(ctx context.Context, path string, payload regionRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	attempts := c.cfg.Retry.MaxAttempts + 1
	backoff := c.cfg.Retry.BackoffBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return shared.NewUnavailableError("orchestrator call cancelled", ctx.Err())
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
		lastErr = c.once(ctx, path, body)
		if lastErr == nil {
			return nil
		}
		log.Ctx(ctx).Warn().Err(lastErr).
			Str("path", path).
			Str("region", payload.Region).
			Int("attempt", attempt+1).
			Msg("orchestrator call failed")
	}
	return shared.NewUnavailableError("orchestrator unreachable", lastErr)
}

func (c *Client) once(ctx context.Context, path string, body []byte) error {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
	// 409 means the orchestrator already holds this state; idempotent calls
	// treat that as success.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated ||
		resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return fmt.Errorf("orchestrator returned %d for %s", resp.StatusCode, path)
}
