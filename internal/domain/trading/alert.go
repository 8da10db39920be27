package trading

import (
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// AlertDirection is which way a price must cross the threshold.
type AlertDirection string

const (
	AlertBelow AlertDirection = "below"
	AlertAbove AlertDirection = "above"
)

// PriceAlert is a player-registered watch on a station's buy price. Alerts
// fire once; a fired alert stays on record until deleted.
type PriceAlert struct {
	ID          string
	RegionID    shared.RegionID
	PlayerID    shared.PlayerID
	StationID   shared.StationID
	Commodity   shared.Commodity
	Direction   AlertDirection
	Threshold   int64
	Triggered   bool
	TriggeredAt *time.Time
	CreatedAt   time.Time
}

// NewPriceAlert validates and registers a watch.
func NewPriceAlert(regionID shared.RegionID, playerID shared.PlayerID, stationID shared.StationID, c shared.Commodity, dir AlertDirection, threshold int64, now time.Time) (*PriceAlert, error) {
	if !shared.ValidCommodity(string(c)) {
		return nil, shared.NewValidationError("commodity", "unknown commodity")
	}
	switch dir {
	case AlertBelow, AlertAbove:
	default:
		return nil, shared.NewValidationError("direction", "must be below or above")
	}
	if threshold < 1 {
		return nil, shared.NewValidationError("threshold", "must be positive")
	}
	return &PriceAlert{
		ID:        uuid.NewString(),
		RegionID:  regionID,
		PlayerID:  playerID,
		StationID: stationID,
		Commodity: c,
		Direction: dir,
		Threshold: threshold,
		CreatedAt: now,
	}, nil
}

// Evaluate checks a fresh quote against the threshold. Returns true exactly
// once, on the evaluation that crosses it.
func (a *PriceAlert) Evaluate(unitPrice int64, now time.Time) bool {
	if a.Triggered || unitPrice == 0 {
		return false
	}
	crossed := (a.Direction == AlertBelow && unitPrice <= a.Threshold) ||
		(a.Direction == AlertAbove && unitPrice >= a.Threshold)
	if !crossed {
		return false
	}
	a.Triggered = true
	t := now
	a.TriggeredAt = &t
	return true
}
