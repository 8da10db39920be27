package persistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/domain/message"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/test/helpers"
)

func sendTestMessage(t *testing.T, repo *persistence.GormMessageRepository, regionID shared.RegionID, author, recipient shared.PlayerID, subject string, at time.Time) *message.Message {
	t.Helper()
	m, err := message.Compose(regionID, author, message.Direct(recipient), subject, "body text", message.Options{}, at)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), m, []*message.Receipt{message.NewReceipt(m.ID, recipient)}))
	return m
}

func TestMessageRepository_CreateAndFind(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormMessageRepository(db)
	regionID := shared.NewRegionID()
	author := shared.NewPlayerID()
	recipient := shared.NewPlayerID()
	now := time.Now().UTC()

	coords := &message.Coordinates{RegionName: "alpha", Sector: 88}
	m, err := message.Compose(regionID, author, message.Direct(recipient), "Ore vein", "found a rich sector", message.Options{
		Priority:    message.PriorityHigh,
		Coordinates: coords,
	}, now)
	require.NoError(t, err)

	// Act
	err = repo.Create(context.Background(), m, []*message.Receipt{message.NewReceipt(m.ID, recipient)})
	require.NoError(t, err)

	found, err := repo.FindByID(context.Background(), regionID, m.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, m.Subject, found.Subject)
	assert.Equal(t, message.PriorityHigh, found.Priority)
	require.NotNil(t, found.Coordinates)
	assert.Equal(t, 88, found.Coordinates.Sector)
	require.Len(t, found.Audience.Recipients, 1)
	assert.Equal(t, recipient, found.Audience.Recipients[0])
}

func TestMessageRepository_InboxPagingAndOrder(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormMessageRepository(db)
	regionID := shared.NewRegionID()
	author := shared.NewPlayerID()
	recipient := shared.NewPlayerID()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		sendTestMessage(t, repo, regionID, author, recipient, fmt.Sprintf("message %d", i), now.Add(time.Duration(i)*time.Minute))
	}

	// Act
	page1, total, err := repo.ListInbox(context.Background(), regionID, recipient, 1, 2)
	require.NoError(t, err)
	page2, _, err := repo.ListInbox(context.Background(), regionID, recipient, 2, 2)
	require.NoError(t, err)

	// Assert - newest first, no overlap across pages
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	require.Len(t, page2, 2)
	assert.Equal(t, "message 4", page1[0].Subject)
	assert.Equal(t, "message 3", page1[1].Subject)
	assert.Equal(t, "message 2", page2[0].Subject)
}

func TestMessageRepository_DeletedReceiptLeavesInbox(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormMessageRepository(db)
	regionID := shared.NewRegionID()
	author := shared.NewPlayerID()
	recipient := shared.NewPlayerID()
	now := time.Now().UTC()

	m := sendTestMessage(t, repo, regionID, author, recipient, "fleeting", now)

	receipt, err := repo.FindReceipt(context.Background(), regionID, m.ID, recipient)
	require.NoError(t, err)
	receipt.Delete(now.Add(time.Minute))

	// Act
	require.NoError(t, repo.UpdateReceipt(context.Background(), regionID, receipt))

	// Assert - gone from the inbox but the row survives for the author
	inbox, total, err := repo.ListInbox(context.Background(), regionID, recipient, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, inbox)

	_, err = repo.FindByID(context.Background(), regionID, m.ID)
	assert.NoError(t, err)
}

func TestMessageRepository_CountUnread(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormMessageRepository(db)
	regionID := shared.NewRegionID()
	author := shared.NewPlayerID()
	recipient := shared.NewPlayerID()
	now := time.Now().UTC()

	first := sendTestMessage(t, repo, regionID, author, recipient, "one", now)
	sendTestMessage(t, repo, regionID, author, recipient, "two", now.Add(time.Minute))

	receipt, err := repo.FindReceipt(context.Background(), regionID, first.ID, recipient)
	require.NoError(t, err)
	receipt.MarkRead(now.Add(2 * time.Minute))
	require.NoError(t, repo.UpdateReceipt(context.Background(), regionID, receipt))

	// Act
	unread, err := repo.CountUnread(context.Background(), regionID, recipient)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestMessageRepository_Thread(t *testing.T) {
	// Arrange
	db := helpers.NewRegionTestDB(t)
	repo := persistence.NewGormMessageRepository(db)
	regionID := shared.NewRegionID()
	alice := shared.NewPlayerID()
	bob := shared.NewPlayerID()
	now := time.Now().UTC()

	root := sendTestMessage(t, repo, regionID, alice, bob, "trade offer", now)

	reply, err := message.Compose(regionID, bob, message.Direct(alice), "re: trade offer", "accepted", message.Options{
		ParentID: root.ID,
	}, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), reply, []*message.Receipt{message.NewReceipt(reply.ID, alice)}))

	// Act
	thread, err := repo.ListThread(context.Background(), regionID, root.ID)

	// Assert - root first, replies in send order
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, root.ID, thread[0].ID)
	assert.Equal(t, reply.ID, thread[1].ID)
}
