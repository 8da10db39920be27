package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/test/helpers"
)

func TestEventLog_AppendAssignsSequence(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	log := persistence.NewGormEventLog(db)
	now := time.Now().UTC()
	scope := shared.PlayerScope("player-1")

	first := shared.NewEvent(shared.EventMessageDelivered, now, map[string]any{"message_id": "m-1"}, scope)
	second := shared.NewEvent(shared.EventMessageDelivered, now.Add(time.Second), map[string]any{"message_id": "m-2"}, scope)

	// Act
	stored, err := log.Append(context.Background(), first, second)

	// Assert
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Less(t, stored[0].Seq, stored[1].Seq)
	assert.Equal(t, scope, stored[0].Scope)
}

func TestEventLog_SkipsBestEffortEvents(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	log := persistence.NewGormEventLog(db)
	now := time.Now().UTC()
	scope := shared.SectorScope("alpha", 7)

	// Radar pings are best-effort and never journaled
	ping := shared.NewEvent(shared.EventRadarPing, now, nil, scope)
	durable := shared.NewEvent(shared.EventCombatRoundResolved, now, map[string]any{"round": 1}, scope)

	// Act
	stored, err := log.Append(context.Background(), ping, durable)

	// Assert
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, shared.EventCombatRoundResolved, stored[0].Type)
}

func TestEventLog_ReplayAfterCursor(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	log := persistence.NewGormEventLog(db)
	now := time.Now().UTC()
	scope := shared.PlayerScope("player-2")

	var lastSeq int64
	for i := 0; i < 5; i++ {
		stored, err := log.Append(context.Background(),
			shared.NewEvent(shared.EventTravelCompleted, now.Add(time.Duration(i)*time.Second), map[string]any{"leg": i}, scope))
		require.NoError(t, err)
		if i == 2 {
			lastSeq = stored[0].Seq
		}
	}

	// Act - resume from the middle of the stream
	replayed, err := log.Replay(context.Background(), scope, lastSeq, 100)

	// Assert
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Greater(t, replayed[0].Seq, lastSeq)
	assert.Greater(t, replayed[1].Seq, replayed[0].Seq)
}

func TestEventLog_AckOnlyMovesForward(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	log := persistence.NewGormEventLog(db)
	now := time.Now().UTC()
	accountID := shared.NewAccountID()
	scope := shared.PlayerScope("player-3")

	// Act
	require.NoError(t, log.Ack(context.Background(), accountID, scope, 10, now))
	require.NoError(t, log.Ack(context.Background(), accountID, scope, 5, now.Add(time.Second)))

	// Assert - the stale ack did not rewind the cursor
	last, err := log.LastAck(context.Background(), accountID, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(10), last)

	// A fresh subscriber starts from zero
	last, err = log.LastAck(context.Background(), accountID, shared.TeamScope("team-9"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestEventLog_PruneBefore(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	log := persistence.NewGormEventLog(db)
	now := time.Now().UTC()
	scope := shared.PlayerScope("player-4")

	_, err := log.Append(context.Background(),
		shared.NewEvent(shared.EventMessageDelivered, now.Add(-48*time.Hour), nil, scope),
		shared.NewEvent(shared.EventMessageDelivered, now, nil, scope))
	require.NoError(t, err)

	// Act
	pruned, err := log.PruneBefore(context.Background(), now.Add(-24*time.Hour))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := log.Replay(context.Background(), scope, 0, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestLeaseStore_AcquireAndContend(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	store := persistence.NewGormLeaseStore(db)
	now := time.Now().UTC()

	// Act - first holder wins
	ok, err := store.Acquire(context.Background(), "tick:alpha", "node-1", time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Act - contender loses while the lease is live
	ok, err = store.Acquire(context.Background(), "tick:alpha", "node-2", time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	// Act - holder renews its own lease
	ok, err = store.Acquire(context.Background(), "tick:alpha", "node-1", time.Minute, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseStore_StealExpired(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	store := persistence.NewGormLeaseStore(db)
	now := time.Now().UTC()

	ok, err := store.Acquire(context.Background(), "sweep:global", "node-1", time.Minute, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Act - a new node takes over after expiry
	ok, err = store.Acquire(context.Background(), "sweep:global", "node-2", time.Minute, now.Add(2*time.Minute))

	// Assert
	require.NoError(t, err)
	assert.True(t, ok)

	// The displaced holder cannot renew
	ok, err = store.Acquire(context.Background(), "sweep:global", "node-1", time.Minute, now.Add(2*time.Minute+time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaseStore_Release(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	store := persistence.NewGormLeaseStore(db)
	now := time.Now().UTC()

	ok, err := store.Acquire(context.Background(), "tick:beta", "node-1", time.Minute, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Act
	require.NoError(t, store.Release(context.Background(), "tick:beta", "node-1"))

	// Assert - freed immediately, no expiry wait
	ok, err = store.Acquire(context.Background(), "tick:beta", "node-2", time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}
