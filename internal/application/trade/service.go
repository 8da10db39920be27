// Package trade runs station commerce: per-query quotes, buys and sells,
// the trade ledger, price history, price alerts and futures contracts.
package trade

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
	"github.com/sectorwars/gameserver/internal/domain/trading"
)

// EffectsSource folds active treaty terms between two regions. The
// federation service implements it.
type EffectsSource interface {
	TreatyEffects(ctx context.Context, a, b shared.RegionID) (federation.Effects, error)
}

// Service executes trading use-cases in the actor's current region.
type Service struct {
	regions     region.Repository
	memberships region.MembershipRepository
	players     player.Repository
	reputations faction.ReputationRepository
	effects     EffectsSource
	shards      common.ShardResolver
	publisher   shared.Publisher
	locales     common.LocaleResolver
	clock       shared.Clock
}

// NewService wires the trading use-cases.
func NewService(
	regions region.Repository,
	memberships region.MembershipRepository,
	players player.Repository,
	reputations faction.ReputationRepository,
	effects EffectsSource,
	shards common.ShardResolver,
	publisher shared.Publisher,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		regions:     regions,
		memberships: memberships,
		players:     players,
		reputations: reputations,
		effects:     effects,
		shards:      shards,
		publisher:   publisher,
		locales:     common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:       clock,
	}
}

// MarketView is the priced snapshot of one station's market.
type MarketView struct {
	StationID shared.StationID          `json:"station_id"`
	Name      string                    `json:"name"`
	Class     station.Class             `json:"class"`
	Sector    int                       `json:"sector"`
	Status    station.OperationalStatus `json:"status"`
	Services  []string                  `json:"services"`
	Quotes    []trading.Quote           `json:"quotes"`
}

// Market prices every slot of a station for the requesting player. Analysis
// works at any range; only fills require the ship at the station.
func (s *Service) Market(ctx context.Context, actor common.Actor, stationID shared.StationID) (*MarketView, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	st, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, stationID)
	if err != nil {
		return nil, err
	}
	quotes := trading.QuoteStation(st, s.pricingFor(ctx, loc, st))
	return &MarketView{
		StationID: st.ID,
		Name:      st.Name,
		Class:     st.Class,
		Sector:    st.Sector,
		Status:    st.Status,
		Services:  st.Services.Names(),
		Quotes:    quotes,
	}, nil
}

// Receipt reports one executed fill.
type Receipt struct {
	StationID shared.StationID       `json:"station_id"`
	Commodity shared.Commodity       `json:"commodity"`
	Direction trading.TradeDirection `json:"direction"`
	Quantity  int                    `json:"quantity"`
	UnitPrice int64                  `json:"unit_price"`
	Total     int64                  `json:"total"`
	Balance   shared.Credits         `json:"balance"`
	CargoFree int                    `json:"cargo_free"`
}

// Buy purchases a commodity at the live quote.
func (s *Service) Buy(ctx context.Context, actor common.Actor, stationID shared.StationID, c shared.Commodity, qty int) (*Receipt, error) {
	loc, st, slot, err := s.prepareFill(ctx, actor, stationID, c, qty)
	if err != nil {
		return nil, err
	}
	quote := trading.QuoteSlot(slot, s.pricingFor(ctx, loc, st))
	if quote.UnitBuy == 0 {
		return nil, shared.NewValidationError("commodity", "station does not sell this commodity")
	}
	return s.execute(ctx, loc, st, slot, trading.TradeBuy, qty, quote.UnitBuy)
}

// Sell sells cargo to the station at the live quote.
func (s *Service) Sell(ctx context.Context, actor common.Actor, stationID shared.StationID, c shared.Commodity, qty int) (*Receipt, error) {
	loc, st, slot, err := s.prepareFill(ctx, actor, stationID, c, qty)
	if err != nil {
		return nil, err
	}
	quote := trading.QuoteSlot(slot, s.pricingFor(ctx, loc, st))
	if quote.UnitSell == 0 {
		return nil, shared.NewValidationError("commodity", "station does not buy this commodity")
	}
	return s.execute(ctx, loc, st, slot, trading.TradeSell, qty, quote.UnitSell)
}

// prepareFill shares the preconditions of every fill: a positive quantity, a
// region accepting activity, the ship docked at the station and free of
// travel reservations, and a market slot for the commodity.
func (s *Service) prepareFill(ctx context.Context, actor common.Actor, stationID shared.StationID, c shared.Commodity, qty int) (*common.Locale, *station.Station, *station.MarketSlot, error) {
	if qty < 1 {
		return nil, nil, nil, shared.NewValidationError("quantity", "must be positive")
	}
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, nil, nil, err
	}
	if !loc.Region.AcceptsDeparture(s.clock.Now()) {
		return nil, nil, nil, shared.NewConflictError("region is not accepting activity")
	}
	if !loc.Vessel.ReservedBy.IsZero() {
		return nil, nil, nil, shared.NewConflictError("ship is held by an inter-region transfer")
	}
	if _, err := loc.GW.Combats.FindActiveByShip(ctx, loc.Region.ID, loc.Vessel.ID); err == nil {
		return nil, nil, nil, shared.NewConflictError("ship is locked in combat")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, nil, nil, err
	}
	st, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, stationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if st.Sector != loc.Vessel.Sector {
		return nil, nil, nil, shared.NewConflictError("ship is not at the station")
	}
	slot, ok := st.Slot(c)
	if !ok {
		return nil, nil, nil, shared.NewValidationError("commodity", "station has no market for this commodity")
	}
	return loc, st, slot, nil
}

// execute moves money, stock and cargo for one fill and writes the ledger
// line. The persona row goes first: its version guard serializes a player's
// concurrent fills, so the money moves exactly once. Later write failures
// unwind the earlier rows.
func (s *Service) execute(ctx context.Context, loc *common.Locale, st *station.Station, slot *station.MarketSlot, dir trading.TradeDirection, qty int, unit int64) (*Receipt, error) {
	now := s.clock.Now()
	total := int64(qty) * unit
	before := loc.Persona.Credits

	switch dir {
	case trading.TradeBuy:
		if loc.Vessel.Cargo.Free() < qty {
			return nil, shared.NewValidationErrorf("cargo hold full: %d units free, %d requested", loc.Vessel.Cargo.Free(), qty)
		}
		if err := loc.Persona.Spend(shared.Credits(total), now); err != nil {
			return nil, err
		}
		if err := st.FulfillPurchase(slot.Commodity, qty, now); err != nil {
			return nil, err
		}
		if err := loc.Vessel.Cargo.Load(slot.Commodity, qty); err != nil {
			return nil, err
		}
	case trading.TradeSell:
		if err := loc.Vessel.Cargo.Unload(slot.Commodity, qty); err != nil {
			return nil, err
		}
		if err := st.AbsorbSale(slot.Commodity, qty, now); err != nil {
			return nil, err
		}
		if err := loc.Persona.Earn(shared.Credits(total), now); err != nil {
			return nil, err
		}
	}

	if err := s.players.Update(ctx, loc.Persona); err != nil {
		return nil, err
	}
	if err := loc.GW.Stations.Update(ctx, st); err != nil {
		s.refund(ctx, loc, dir, total)
		return nil, err
	}
	if err := loc.GW.Ships.Update(ctx, loc.Vessel); err != nil {
		s.refund(ctx, loc, dir, total)
		s.restock(ctx, loc, st.ID, slot.Commodity, dir, qty)
		return nil, err
	}

	if rec, err := trading.NewTradeRecord(loc.Region.ID, loc.Persona.ID, st.ID, slot.Commodity, dir, qty, unit, before, loc.Persona.Credits, now); err == nil {
		if err := loc.GW.Ledger.Record(ctx, rec); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("station", string(st.ID)).Msg("trade ledger write failed")
		}
	}
	posted := trading.QuoteSlot(slot, s.postedPricing(loc))
	if err := loc.GW.Prices.Record(ctx, trading.NewPricePoint(loc.Region.ID, st.ID, posted, now)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("price point write failed")
	}
	s.fireAlerts(ctx, loc, st, posted)
	s.publish(ctx, shared.NewEvent(shared.EventTradeExecuted, now, map[string]any{
		"player_id":  loc.Persona.ID,
		"station_id": st.ID,
		"commodity":  slot.Commodity,
		"direction":  dir,
		"quantity":   qty,
		"unit_price": unit,
		"total":      total,
	}, shared.PlayerScope(loc.Persona.ID), shared.SectorScope(loc.Region.Name, st.Sector)))

	return &Receipt{
		StationID: st.ID,
		Commodity: slot.Commodity,
		Direction: dir,
		Quantity:  qty,
		UnitPrice: unit,
		Total:     total,
		Balance:   loc.Persona.Credits,
		CargoFree: loc.Vessel.Cargo.Free(),
	}, nil
}

// refund is the compensating credit write of a fill whose later rows failed.
func (s *Service) refund(ctx context.Context, loc *common.Locale, dir trading.TradeDirection, total int64) {
	persona, err := s.players.FindByID(ctx, loc.Persona.ID)
	if err == nil {
		now := s.clock.Now()
		if dir == trading.TradeBuy {
			err = persona.Earn(shared.Credits(total), now)
		} else {
			err = persona.Spend(shared.Credits(total), now)
		}
		if err == nil {
			err = s.players.Update(ctx, persona)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("player", string(loc.Persona.ID)).Int64("total", total).Msg("trade refund failed")
	}
}

// restock is the compensating inventory write. It adjusts the slot count
// directly: put-backs must work even on slots that only trade one way.
func (s *Service) restock(ctx context.Context, loc *common.Locale, stationID shared.StationID, c shared.Commodity, dir trading.TradeDirection, qty int) {
	st, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, stationID)
	if err == nil {
		if slot, ok := st.Slot(c); ok {
			if dir == trading.TradeBuy {
				slot.Quantity += qty
			} else if slot.Quantity >= qty {
				slot.Quantity -= qty
			}
			st.UpdatedAt = s.clock.Now()
			err = loc.GW.Stations.Update(ctx, st)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("station", string(stationID)).Msg("trade restock failed")
	}
}

// pricingFor assembles the personal quote context: regional specialization
// and bonuses, reputation with the station's owner, and the best trade
// treaty the player's citizenships reach into this region.
func (s *Service) pricingFor(ctx context.Context, loc *common.Locale, st *station.Station) trading.Pricing {
	p := s.postedPricing(loc)
	if st.FactionID != "" {
		if rep, err := s.reputations.Find(ctx, loc.Persona.ID, faction.ID(st.FactionID)); err == nil {
			p.ReputationScore = rep.Score
		}
	}
	p.TreatyBonus = s.treatyBonus(ctx, loc)
	return p
}

// postedPricing is the depersonalized context: what the station posts to an
// anonymous visitor. Price history and alert sweeps use it so recorded
// prices never leak one player's standing.
func (s *Service) postedPricing(loc *common.Locale) trading.Pricing {
	p := trading.Pricing{Specialization: loc.Region.Specialization, TreatyBonus: 1.0}
	if len(loc.Region.TradeBonuses) > 0 {
		p.TradeBonuses = make(map[shared.Commodity]float64, len(loc.Region.TradeBonuses))
		for c, f := range loc.Region.TradeBonuses {
			p.TradeBonuses[shared.Commodity(c)] = f
		}
	}
	return p
}

func (s *Service) treatyBonus(ctx context.Context, loc *common.Locale) float64 {
	best := 1.0
	if s.effects == nil {
		return best
	}
	mships, err := s.memberships.ListByPlayer(ctx, loc.Persona.ID)
	if err != nil {
		return best
	}
	for _, m := range mships {
		if m.Type != region.MembershipCitizen || m.RegionID == loc.Region.ID {
			continue
		}
		eff, err := s.effects.TreatyEffects(ctx, loc.Region.ID, m.RegionID)
		if err != nil {
			continue
		}
		if eff.TradeBonusFactor > best {
			best = eff.TradeBonusFactor
		}
	}
	return best
}

// fireAlerts evaluates armed alerts on the station against the posted price
// of the slot that just traded. Triggered alerts flip exactly once.
func (s *Service) fireAlerts(ctx context.Context, loc *common.Locale, st *station.Station, posted trading.Quote) {
	alerts, err := loc.GW.Alerts.ListArmedByStation(ctx, loc.Region.ID, st.ID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("price alert sweep failed")
		return
	}
	price := posted.UnitBuy
	if price == 0 {
		price = posted.UnitSell
	}
	now := s.clock.Now()
	for _, a := range alerts {
		if a.Commodity != posted.Commodity || !a.Evaluate(price, now) {
			continue
		}
		if err := loc.GW.Alerts.Update(ctx, a); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("alert", a.ID).Msg("price alert persist failed")
			continue
		}
		s.publish(ctx, shared.NewEvent(shared.EventPriceAlertTriggered, now, map[string]any{
			"alert_id":   a.ID,
			"station_id": st.ID,
			"commodity":  a.Commodity,
			"unit_price": price,
			"threshold":  a.Threshold,
			"direction":  a.Direction,
		}, shared.PlayerScope(a.PlayerID)))
	}
}

// History lists the player's most recent ledger lines, newest first.
func (s *Service) History(ctx context.Context, actor common.Actor, limit int) ([]*trading.TradeRecord, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Ledger.ListByPlayer(ctx, loc.Region.ID, loc.Persona.ID, clampLimit(limit))
}

// PriceHistory lists posted price samples for one station commodity.
func (s *Service) PriceHistory(ctx context.Context, actor common.Actor, stationID shared.StationID, c shared.Commodity, since time.Time, limit int) ([]*trading.PricePoint, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Prices.List(ctx, loc.Region.ID, stationID, c, since, clampLimit(limit))
}

// CreateAlert arms a price watch on a station commodity.
func (s *Service) CreateAlert(ctx context.Context, actor common.Actor, stationID shared.StationID, c shared.Commodity, dir trading.AlertDirection, threshold int64) (*trading.PriceAlert, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if _, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, stationID); err != nil {
		return nil, err
	}
	a, err := trading.NewPriceAlert(loc.Region.ID, loc.Persona.ID, stationID, c, dir, threshold, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Alerts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlerts returns the player's alerts, armed and fired alike.
func (s *Service) ListAlerts(ctx context.Context, actor common.Actor) ([]*trading.PriceAlert, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Alerts.ListByPlayer(ctx, loc.Region.ID, loc.Persona.ID)
}

// DeleteAlert removes an alert the actor owns.
func (s *Service) DeleteAlert(ctx context.Context, actor common.Actor, id string) error {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return err
	}
	a, err := loc.GW.Alerts.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return err
	}
	if a.PlayerID != loc.Persona.ID && !actor.IsAdmin() {
		return shared.NewForbiddenError("", "alert belongs to another player")
	}
	return loc.GW.Alerts.Delete(ctx, loc.Region.ID, id)
}

// ContractInput opens a futures position at today's posted price.
type ContractInput struct {
	StationID shared.StationID
	Commodity shared.Commodity
	Side      trading.ContractSide
	Quantity  int
	TTL       time.Duration
}

// OpenContract locks the current personal quote as the strike. Settlement
// later trades at the strike regardless of where the market moved.
func (s *Service) OpenContract(ctx context.Context, actor common.Actor, in ContractInput) (*trading.Contract, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	st, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, in.StationID)
	if err != nil {
		return nil, err
	}
	slot, ok := st.Slot(in.Commodity)
	if !ok {
		return nil, shared.NewValidationError("commodity", "station has no market for this commodity")
	}
	quote := trading.QuoteSlot(slot, s.pricingFor(ctx, loc, st))
	var strike int64
	switch in.Side {
	case trading.ContractBuy:
		strike = quote.UnitBuy
	case trading.ContractSell:
		strike = quote.UnitSell
	}
	if strike == 0 {
		return nil, shared.NewValidationError("side", "station does not trade this side of the commodity")
	}
	ct, err := trading.NewContract(loc.Region.ID, loc.Persona.ID, st.ID, in.Commodity, in.Side, in.Quantity, strike, in.TTL, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Contracts.Create(ctx, ct); err != nil {
		return nil, err
	}
	return ct, nil
}

// ListContracts returns the player's positions in every state.
func (s *Service) ListContracts(ctx context.Context, actor common.Actor) ([]*trading.Contract, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Contracts.ListByPlayer(ctx, loc.Region.ID, loc.Persona.ID)
}

// CancelContract withdraws an open position.
func (s *Service) CancelContract(ctx context.Context, actor common.Actor, id string) (*trading.Contract, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	ct, err := loc.GW.Contracts.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	if ct.PlayerID != loc.Persona.ID && !actor.IsAdmin() {
		return nil, shared.NewForbiddenError("", "contract belongs to another player")
	}
	if err := ct.Cancel(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := loc.GW.Contracts.Update(ctx, ct); err != nil {
		return nil, err
	}
	return ct, nil
}

// SettleContract executes an open position at its strike. The contract row
// is flipped before the trade legs run, so a double settlement loses the
// version race instead of trading twice; a failed trade leg reopens it.
func (s *Service) SettleContract(ctx context.Context, actor common.Actor, id string) (*Receipt, error) {
	loc, err := s.locales.Resolve(ctx, actor, true)
	if err != nil {
		return nil, err
	}
	if !loc.Region.AcceptsDeparture(s.clock.Now()) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	if !loc.Vessel.ReservedBy.IsZero() {
		return nil, shared.NewConflictError("ship is held by an inter-region transfer")
	}
	ct, err := loc.GW.Contracts.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	if ct.PlayerID != loc.Persona.ID {
		return nil, shared.NewForbiddenError("", "contract belongs to another player")
	}
	st, err := loc.GW.Stations.FindByID(ctx, loc.Region.ID, ct.StationID)
	if err != nil {
		return nil, err
	}
	if st.Sector != loc.Vessel.Sector {
		return nil, shared.NewConflictError("ship is not at the station")
	}
	slot, ok := st.Slot(ct.Commodity)
	if !ok {
		return nil, shared.NewConflictError("station no longer trades this commodity")
	}

	now := s.clock.Now()
	if err := ct.Fill(now); err != nil {
		if ct.Status == trading.ContractExpired {
			_ = loc.GW.Contracts.Update(ctx, ct)
		}
		return nil, err
	}
	if err := loc.GW.Contracts.Update(ctx, ct); err != nil {
		return nil, err
	}

	dir := trading.TradeBuy
	if ct.Side == trading.ContractSell {
		dir = trading.TradeSell
	}
	receipt, err := s.execute(ctx, loc, st, slot, dir, ct.Quantity, ct.StrikePrice)
	if err != nil {
		if rerr := ct.Reopen(s.clock.Now()); rerr == nil {
			if uerr := loc.GW.Contracts.Update(ctx, ct); uerr != nil {
				log.Ctx(ctx).Error().Err(uerr).Str("contract", ct.ID).Msg("contract reopen persist failed")
			}
		}
		return nil, err
	}
	return receipt, nil
}

// ExpireContracts sweeps open positions past their window in one region.
// Returns how many flipped; the scheduler drives it.
func (s *Service) ExpireContracts(ctx context.Context, regionName string, cutoff time.Time) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, shared.NewUnavailableError("region shard", err)
	}
	open, err := gw.Contracts.ListOpenExpiredBefore(ctx, r.ID, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, ct := range open {
		ct.Expire(cutoff)
		if ct.Status != trading.ContractExpired {
			continue
		}
		if err := gw.Contracts.Update(ctx, ct); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("trade event publish failed")
	}
}
