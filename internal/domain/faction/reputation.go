package faction

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Reputation score bounds. Adjustments saturate at the bounds.
const (
	MinScore = -1000
	MaxScore = 1000
)

// Tier is a named reputation band. Pricing and mission access key off the
// tier, not the raw score.
type Tier string

const (
	TierNemesis    Tier = "nemesis"
	TierHostile    Tier = "hostile"
	TierUnfriendly Tier = "unfriendly"
	TierNeutral    Tier = "neutral"
	TierFriendly   Tier = "friendly"
	TierTrusted    Tier = "trusted"
	TierHonored    Tier = "honored"
	TierExalted    Tier = "exalted"
)

type tierBand struct {
	floor int
	tier  Tier
	// buyFactor scales prices when the player buys from stations in the
	// faction's territory; sellFactor when the player sells to them.
	buyFactor  float64
	sellFactor float64
}

// Bands in ascending floor order. TierFor walks them from the top.
var bands = []tierBand{
	{floor: -1000, tier: TierNemesis, buyFactor: 1.25, sellFactor: 0.75},
	{floor: -600, tier: TierHostile, buyFactor: 1.15, sellFactor: 0.85},
	{floor: -300, tier: TierUnfriendly, buyFactor: 1.05, sellFactor: 0.95},
	{floor: -100, tier: TierNeutral, buyFactor: 1.0, sellFactor: 1.0},
	{floor: 101, tier: TierFriendly, buyFactor: 0.97, sellFactor: 1.02},
	{floor: 301, tier: TierTrusted, buyFactor: 0.94, sellFactor: 1.04},
	{floor: 601, tier: TierHonored, buyFactor: 0.90, sellFactor: 1.07},
	{floor: 901, tier: TierExalted, buyFactor: 0.85, sellFactor: 1.10},
}

// TierFor maps a score to its band.
func TierFor(score int) Tier {
	tier := bands[0].tier
	for _, b := range bands {
		if score >= b.floor {
			tier = b.tier
		}
	}
	return tier
}

// PriceFactors returns the (buy, sell) multipliers for a score.
func PriceFactors(score int) (float64, float64) {
	buy, sell := bands[0].buyFactor, bands[0].sellFactor
	for _, b := range bands {
		if score >= b.floor {
			buy, sell = b.buyFactor, b.sellFactor
		}
	}
	return buy, sell
}

// Reputation is one player's standing with one faction. Standing is global
// across regions and lives in the global shard.
type Reputation struct {
	PlayerID  shared.PlayerID
	FactionID ID
	Score     int
	UpdatedAt time.Time
	Version   int
}

// NewReputation starts a player neutral with a faction.
func NewReputation(playerID shared.PlayerID, factionID ID, now time.Time) (*Reputation, error) {
	if !Valid(factionID) {
		return nil, shared.NewValidationError("faction_id", "unknown faction")
	}
	return &Reputation{PlayerID: playerID, FactionID: factionID, UpdatedAt: now}, nil
}

// Adjust applies a delta, saturating at the score bounds. Returns the tier
// after the change so callers can report tier crossings.
func (r *Reputation) Adjust(delta int, now time.Time) Tier {
	r.Score += delta
	if r.Score > MaxScore {
		r.Score = MaxScore
	}
	if r.Score < MinScore {
		r.Score = MinScore
	}
	r.UpdatedAt = now
	return TierFor(r.Score)
}

// Tier returns the current band.
func (r *Reputation) Tier() Tier { return TierFor(r.Score) }
