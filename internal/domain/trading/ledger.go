package trading

import (
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// TradeDirection is the player's side of a fill.
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// TradeRecord is one immutable ledger line. Records are written in the same
// transaction as the credit and inventory movement they describe, so the
// ledger always reconciles against player balances.
type TradeRecord struct {
	ID            string
	RegionID      shared.RegionID
	PlayerID      shared.PlayerID
	StationID     shared.StationID
	Commodity     shared.Commodity
	Direction     TradeDirection
	Quantity      int
	UnitPrice     int64
	Total         int64
	BalanceBefore shared.Credits
	BalanceAfter  shared.Credits
	RecordedAt    time.Time
}

// NewTradeRecord validates and freezes a ledger line.
func NewTradeRecord(regionID shared.RegionID, playerID shared.PlayerID, stationID shared.StationID,
	c shared.Commodity, dir TradeDirection, quantity int, unitPrice int64,
	before, after shared.Credits, now time.Time) (*TradeRecord, error) {

	if playerID.IsZero() {
		return nil, shared.NewValidationError("player_id", "must not be zero")
	}
	if !shared.ValidCommodity(string(c)) {
		return nil, shared.NewValidationError("commodity", "unknown commodity")
	}
	if dir != TradeBuy && dir != TradeSell {
		return nil, shared.NewValidationError("direction", "must be buy or sell")
	}
	if quantity <= 0 {
		return nil, shared.NewValidationError("quantity", "must be positive")
	}
	if unitPrice <= 0 {
		return nil, shared.NewValidationError("unit_price", "must be positive")
	}

	total := int64(quantity) * unitPrice
	expected := int64(before)
	if dir == TradeBuy {
		expected -= total
	} else {
		expected += total
	}
	if expected != int64(after) {
		return nil, shared.NewInvariantViolation("ledger line does not reconcile with balances")
	}

	return &TradeRecord{
		ID:            uuid.NewString(),
		RegionID:      regionID,
		PlayerID:      playerID,
		StationID:     stationID,
		Commodity:     c,
		Direction:     dir,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		Total:         total,
		BalanceBefore: before,
		BalanceAfter:  after,
		RecordedAt:    now,
	}, nil
}
