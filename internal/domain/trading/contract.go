package trading

import (
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// ContractSide is which way the holder trades at settlement.
type ContractSide string

const (
	ContractBuy  ContractSide = "buy"
	ContractSell ContractSide = "sell"
)

// ContractStatus is the futures lifecycle.
type ContractStatus string

const (
	ContractOpen      ContractStatus = "open"
	ContractFilled    ContractStatus = "filled"
	ContractCancelled ContractStatus = "cancelled"
	ContractExpired   ContractStatus = "expired"
)

// Contract is a simple futures record: the holder locks a unit price for a
// quantity at a station until expiry. Settlement is a normal trade executed
// at the strike instead of the live quote.
type Contract struct {
	ID          string
	RegionID    shared.RegionID
	PlayerID    shared.PlayerID
	StationID   shared.StationID
	Commodity   shared.Commodity
	Side        ContractSide
	Quantity    int
	StrikePrice int64
	Status      ContractStatus
	ExpiresAt   time.Time
	FilledAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// NewContract validates and opens a futures position.
func NewContract(regionID shared.RegionID, playerID shared.PlayerID, stationID shared.StationID, c shared.Commodity, side ContractSide, quantity int, strike int64, ttl time.Duration, now time.Time) (*Contract, error) {
	if !shared.ValidCommodity(string(c)) {
		return nil, shared.NewValidationError("commodity", "unknown commodity")
	}
	switch side {
	case ContractBuy, ContractSell:
	default:
		return nil, shared.NewValidationError("side", "must be buy or sell")
	}
	if quantity < 1 {
		return nil, shared.NewValidationError("quantity", "must be positive")
	}
	if strike < 1 {
		return nil, shared.NewValidationError("strike_price", "must be positive")
	}
	if ttl <= 0 {
		return nil, shared.NewValidationError("ttl", "must be positive")
	}
	return &Contract{
		ID:          uuid.NewString(),
		RegionID:    regionID,
		PlayerID:    playerID,
		StationID:   stationID,
		Commodity:   c,
		Side:        side,
		Quantity:    quantity,
		StrikePrice: strike,
		Status:      ContractOpen,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Fill settles the contract. The caller performs the trade at the strike in
// the same transaction.
func (c *Contract) Fill(now time.Time) error {
	if c.Status != ContractOpen {
		return shared.NewConflictError("contract is not open")
	}
	if now.After(c.ExpiresAt) {
		c.Status = ContractExpired
		c.UpdatedAt = now
		return shared.NewConflictError("contract has expired")
	}
	c.Status = ContractFilled
	t := now
	c.FilledAt = &t
	c.UpdatedAt = now
	return nil
}

// Reopen is the compensating write of a settlement whose trade leg failed
// after the fill was persisted.
func (c *Contract) Reopen(now time.Time) error {
	if c.Status != ContractFilled {
		return shared.NewConflictError("contract is not filled")
	}
	c.Status = ContractOpen
	c.FilledAt = nil
	c.UpdatedAt = now
	return nil
}

// Cancel withdraws an open position before expiry.
func (c *Contract) Cancel(now time.Time) error {
	if c.Status != ContractOpen {
		return shared.NewConflictError("contract is not open")
	}
	c.Status = ContractCancelled
	c.UpdatedAt = now
	return nil
}

// Expire marks a position past its window. Idempotent.
func (c *Contract) Expire(now time.Time) {
	if c.Status == ContractOpen && now.After(c.ExpiresAt) {
		c.Status = ContractExpired
		c.UpdatedAt = now
	}
}
