package advisory_test

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

	"github.com/sectorwars/gameserver/internal/adapters/advisory"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/trading"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

func stubProvider(t *testing.T, completion string, status int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"completion": completion})
	}))
	t.Cleanup(server.Close)
	return server
}

func clientFor(cfg config.AdvisoryConfig) *advisory.Client {
	return advisory.NewClient(cfg, nil, shared.NewRealClock())
}

func advisoryConfig(endpoint string) config.AdvisoryConfig {
	return config.AdvisoryConfig{
		ProviderKeys: "anthropic:key-a",
		Providers:    []string{"anthropic"},
		Endpoints:    map[string]string{"anthropic": endpoint},
		Timeout:      2 * time.Second,
		CacheTTL:     5 * time.Minute,
	}
}

func TestCompleteUsesProviderAndCaches(t *testing.T) {
	var calls atomic.Int64
	server := stubProvider(t, "0.8", http.StatusOK, &calls)
	client := clientFor(advisoryConfig(server.URL))

	first, err := client.Complete(context.Background(), "test", "same prompt")
	require.NoError(t, err)
	second, err := client.Complete(context.Background(), "test", "same prompt")
	require.NoError(t, err)

	assert.Equal(t, "0.8", first)
	assert.Equal(t, "0.8", second)
	assert.EqualValues(t, 1, calls.Load(), "second call must hit the cache")
}

func TestCompleteTriesProvidersInOrder(t *testing.T) {
	var failing, working atomic.Int64
	down := stubProvider(t, "", http.StatusInternalServerError, &failing)
	up := stubProvider(t, "route looks clean", http.StatusOK, &working)
	cfg := config.AdvisoryConfig{
		ProviderKeys: "anthropic:key-a,openai:key-b",
		Providers:    []string{"anthropic", "openai"},
		Endpoints:    map[string]string{"anthropic": down.URL, "openai": up.URL},
		Timeout:      2 * time.Second,
		CacheTTL:     time.Minute,
	}
	client := clientFor(cfg)

	answer, err := client.Complete(context.Background(), "test", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "route looks clean", answer)
	assert.EqualValues(t, 1, failing.Load())
	assert.EqualValues(t, 1, working.Load())
}

func TestCompleteFailsAfterAllProviders(t *testing.T) {
	var calls atomic.Int64
	down := stubProvider(t, "", http.StatusBadGateway, &calls)
	client := clientFor(advisoryConfig(down.URL))

	_, err := client.Complete(context.Background(), "test", "prompt")
	require.Error(t, err)
	assert.Equal(t, shared.CodeUnavailable, shared.CodeOf(err))
}

func TestNoKeysShortCircuits(t *testing.T) {
	client := clientFor(config.AdvisoryConfig{Timeout: time.Second, CacheTTL: time.Minute})
	_, err := client.Complete(context.Background(), "test", "prompt")
	require.Error(t, err)
}

func TestScoreAnswerFallsBackOnGarbage(t *testing.T) {
	var calls atomic.Int64
	server := stubProvider(t, "definitely not a number", http.StatusOK, &calls)
	adv := advisory.NewAdvisor(clientFor(advisoryConfig(server.URL)))

	score, err := adv.ScoreAnswer(context.Background(), "q", "I bought it from Darel for 3000 credits")
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestScoreAnswerParsesProviderNumber(t *testing.T) {
	var calls atomic.Int64
	server := stubProvider(t, "0.65", http.StatusOK, &calls)
	adv := advisory.NewAdvisor(clientFor(advisoryConfig(server.URL)))

	score, err := adv.ScoreAnswer(context.Background(), "q", "whatever")
	require.NoError(t, err)
	assert.InDelta(t, 0.65, score, 1e-9)
}

func TestHeuristicAdvisorWithoutClient(t *testing.T) {
	adv := advisory.NewAdvisor(nil)

	question, err := adv.PhraseQuestion(context.Background(), ship.HullLightFreighter, "Where did you dock last?")
	require.NoError(t, err)
	assert.Equal(t, "Where did you dock last?", question)

	forecasts := adv.MarketForecast(context.Background(), "Port Kessel", []trading.Quote{
		{Commodity: "fuel", Stock: 10, Capacity: 100},
		{Commodity: "ore", Stock: 90, Capacity: 100},
		{Commodity: "rations", Stock: 50, Capacity: 100},
	})
	require.Len(t, forecasts, 3)
	byName := map[string]string{}
	for _, f := range forecasts {
		byName[f.Commodity] = f.Outlook
	}
	assert.Equal(t, "rising", byName["fuel"])
	assert.Equal(t, "falling", byName["ore"])
	assert.Equal(t, "stable", byName["rations"])

	hint := adv.RouteHint(context.Background(), 12, 48, 0.1)
	assert.Contains(t, hint, "12 hops")
}
