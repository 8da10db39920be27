package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/test/helpers"
)

func TestAccountRepository_CreateAndFind(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormAccountRepository(db)

	acc, err := account.New("nova-trader", "nova@example.com", "$2a$10$hash", time.Now().UTC())
	require.NoError(t, err)

	// Act - Create
	err = repo.Create(context.Background(), acc)

	// Assert
	require.NoError(t, err)

	// Act - FindByID
	found, err := repo.FindByID(context.Background(), acc.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, acc.ID, found.ID)
	assert.Equal(t, acc.Handle, found.Handle)
	assert.Equal(t, acc.Email, found.Email)
	assert.Equal(t, account.RolePlayer, found.Role)

	// Act - FindByHandle
	found, err = repo.FindByHandle(context.Background(), "nova-trader")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, acc.ID, found.ID)
}

func TestAccountRepository_DuplicateHandle(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormAccountRepository(db)
	now := time.Now().UTC()

	first, err := account.New("same-handle", "first@example.com", "$2a$10$hash", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), first))

	second, err := account.New("same-handle", "second@example.com", "$2a$10$hash", now)
	require.NoError(t, err)

	// Act
	err = repo.Create(context.Background(), second)

	// Assert
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestAccountRepository_ProviderBinding(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormAccountRepository(db)
	now := time.Now().UTC()

	acc, err := account.NewFromProvider("steam-pilot", account.ProviderBinding{
		Provider:          "steam",
		ProviderAccountID: "7656119",
		DisplayName:       "Pilot",
		BoundAt:           now,
	}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), acc))

	// Act
	found, err := repo.FindByProvider(context.Background(), "steam", "7656119")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, acc.ID, found.ID)
	require.Len(t, found.Bindings, 1)
	assert.Equal(t, "steam", found.Bindings[0].Provider)
}

func TestAccountRepository_UpdateVersionConflict(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormAccountRepository(db)
	now := time.Now().UTC()

	acc, err := account.New("pilot-one", "pilot@example.com", "$2a$10$hash", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), acc))

	// Two loads of the same aggregate
	first, err := repo.FindByID(context.Background(), acc.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(context.Background(), acc.ID)
	require.NoError(t, err)

	// Act - first writer wins
	first.Email = "new@example.com"
	first.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Update(context.Background(), first))

	// Act - stale writer loses
	second.Email = "stale@example.com"
	err = repo.Update(context.Background(), second)

	// Assert
	assert.ErrorIs(t, err, shared.ErrConflict)

	reloaded, err := repo.FindByID(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", reloaded.Email)
}

func TestAccountRepository_NotFound(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormAccountRepository(db)

	// Act
	_, err := repo.FindByID(context.Background(), shared.NewAccountID())

	// Assert
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSessionRepository_ConsumeOnce(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormSessionRepository(db)
	now := time.Now().UTC()

	sess, _, err := account.NewSession(shared.NewAccountID(), "fp-1", time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), sess))

	// Act - first consume wins
	err = repo.Consume(context.Background(), sess.ID, now.Add(time.Second))
	require.NoError(t, err)

	// Act - replay of the same token loses
	err = repo.Consume(context.Background(), sess.ID, now.Add(2*time.Second))

	// Assert
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestSessionRepository_RevokeChain(t *testing.T) {
	// Arrange
	db := helpers.NewGlobalTestDB(t)
	repo := persistence.NewGormSessionRepository(db)
	now := time.Now().UTC()
	accountID := shared.NewAccountID()

	sess, token, err := account.NewSession(accountID, "fp-1", time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), sess))

	next, _, err := sess.Rotate(time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Update(context.Background(), sess))
	require.NoError(t, repo.Create(context.Background(), next))

	// Act
	err = repo.RevokeChain(context.Background(), sess.ChainID, now.Add(2*time.Minute))
	require.NoError(t, err)

	// Assert - every link in the chain is dead
	found, err := repo.FindByRefreshHash(context.Background(), account.HashRefreshToken(token))
	require.NoError(t, err)
	assert.NotNil(t, found.RevokedAt)

	active, err := repo.ListActive(context.Background(), accountID, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, active)
}
