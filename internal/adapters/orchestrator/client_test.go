package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/orchestrator"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

func clientCfg(endpoint string, retries int) config.ProvisionerConfig {
	return config.ProvisionerConfig{
		Endpoint: endpoint,
		Timeout:  2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: retries,
			BackoffBase: time.Millisecond,
		},
		QueueSize:   16,
		GracePeriod: time.Hour,
	}
}

func TestCreateRegionPostsTemplate(t *testing.T) {
	var got struct {
		Region     string   `json:"region"`
		Plan       string   `json:"plan"`
		Containers []string `json:"containers"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/regions/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := orchestrator.NewClient(clientCfg(server.URL, 0))
	require.NoError(t, client.CreateRegion(context.Background(), "mining-co", "standard"))
	assert.Equal(t, "mining-co", got.Region)
	assert.Equal(t, "standard", got.Plan)
	assert.Equal(t, []string{"database", "worker", "cache", "storage"}, got.Containers)
}

func TestRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := orchestrator.NewClient(clientCfg(server.URL, 3))
	require.NoError(t, client.SuspendRegion(context.Background(), "mining-co"))
	assert.EqualValues(t, 3, calls.Load())
}

func TestPermanentFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := orchestrator.NewClient(clientCfg(server.URL, 1))
	err := client.RemoveRegion(context.Background(), "mining-co")
	require.Error(t, err)
	assert.Equal(t, shared.CodeUnavailable, shared.CodeOf(err))
}

func TestConflictCountsAsIdempotentSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := orchestrator.NewClient(clientCfg(server.URL, 0))
	require.NoError(t, client.CreateRegion(context.Background(), "mining-co", "standard"))
}
