package message

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists messages and per-recipient receipts in a region shard.
type Repository interface {
	Create(ctx context.Context, m *Message, receipts []*Receipt) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.MessageID) (*Message, error)
	ListInbox(ctx context.Context, regionID shared.RegionID, recipient shared.PlayerID, page, perPage int) ([]*Message, int64, error)
	ListThread(ctx context.Context, regionID shared.RegionID, root shared.MessageID) ([]*Message, error)
	FindReceipt(ctx context.Context, regionID shared.RegionID, id shared.MessageID, recipient shared.PlayerID) (*Receipt, error)
	UpdateReceipt(ctx context.Context, regionID shared.RegionID, r *Receipt) error
	CountUnread(ctx context.Context, regionID shared.RegionID, recipient shared.PlayerID) (int64, error)
}
