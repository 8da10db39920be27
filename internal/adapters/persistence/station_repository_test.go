package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
	"github.com/sectorwars/gameserver/test/helpers"
)

func TestStationRepository_CreateAndFind(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormStationRepository(db)
	regionID := shared.NewRegionID()

	st, err := station.New(regionID, 12, "Meridian Trade Hub", 4, 1000, time.Now().UTC())
	require.NoError(t, err)

	// Act
	err = repo.Create(context.Background(), st)
	require.NoError(t, err)

	found, err := repo.FindByID(context.Background(), regionID, st.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, st.ID, found.ID)
	assert.Equal(t, st.Name, found.Name)
	assert.Equal(t, st.Class, found.Class)
	require.NotEmpty(t, found.Inventory)
	for c, slot := range st.Inventory {
		got, ok := found.Inventory[c]
		require.True(t, ok, "missing slot %s", c)
		assert.Equal(t, slot.Quantity, got.Quantity)
		assert.Equal(t, slot.Capacity, got.Capacity)
		assert.Equal(t, slot.Buys, got.Buys)
		assert.Equal(t, slot.Sells, got.Sells)
	}
}

func TestStationRepository_FindBySector(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormStationRepository(db)
	regionID := shared.NewRegionID()
	now := time.Now().UTC()

	st, err := station.New(regionID, 40, "Outer Dock", 0, 400, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), st))

	// Act
	found, err := repo.FindBySector(context.Background(), regionID, 40)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, st.ID, found.ID)

	// Empty sectors report not found
	_, err = repo.FindBySector(context.Background(), regionID, 41)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStationRepository_ConcurrentTradeConflict(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormStationRepository(db)
	regionID := shared.NewRegionID()
	now := time.Now().UTC()

	st, err := station.New(regionID, 5, "Contested Market", 4, 1000, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), st))

	// Two traders load the same market state
	first, err := repo.FindByID(context.Background(), regionID, st.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(context.Background(), regionID, st.ID)
	require.NoError(t, err)

	// Act - first trade commits
	require.NoError(t, first.FulfillPurchase(shared.CommodityFuel, 10, now))
	require.NoError(t, repo.Update(context.Background(), first))

	// Act - second trade hits the stale snapshot
	require.NoError(t, second.FulfillPurchase(shared.CommodityFuel, 10, now))
	err = repo.Update(context.Background(), second)

	// Assert - the loser retries against fresh stock instead of overselling
	assert.ErrorIs(t, err, shared.ErrConflict)
}
