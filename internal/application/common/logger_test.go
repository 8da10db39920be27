package common_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sectorwars/gameserver/internal/application/common"
)

func TestLoggerFromContextChainsOnStoredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := common.WithLogger(context.Background(), logger)

	common.LoggerFromContext(ctx).Error().Str("region", "meridian").Msg("shard eviction failed")

	assert.Contains(t, buf.String(), `"region":"meridian"`)
	assert.Contains(t, buf.String(), "shard eviction failed")
}

func TestLoggerFromContextDisabledWhenUnset(t *testing.T) {
	logger := common.LoggerFromContext(context.Background())

	assert.NotNil(t, logger)
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
	// Chaining on the disabled logger must not panic.
	logger.Error().Msg("dropped")
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := common.WithRequestID(context.Background(), "req-42")

	assert.Equal(t, "req-42", common.RequestIDFromContext(ctx))
	assert.Empty(t, common.RequestIDFromContext(context.Background()))
}
