// Package security runs the bounty board: posting escrowed rewards on player
// heads, cancelling them, and the expiry sweep. Claims happen automatically
// when an engagement destroys the target's ship.
package security

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/bounty"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Service executes bounty use-cases in the actor's current region.
type Service struct {
	regions   region.Repository
	players   player.Repository
	shards    common.ShardResolver
	publisher shared.Publisher
	locales   common.LocaleResolver
	clock     shared.Clock
}

// NewService wires the bounty use-cases.
func NewService(
	regions region.Repository,
	players player.Repository,
	shards common.ShardResolver,
	publisher shared.Publisher,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Service{
		regions:   regions,
		players:   players,
		shards:    shards,
		publisher: publisher,
		locales:   common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:     clock,
	}
}

// PostInput describes a new bounty on the region's board.
type PostInput struct {
	TargetPlayerID shared.PlayerID `json:"target_player_id" validate:"required"`
	Amount         int64           `json:"amount" validate:"required,min=1"`
	Reason         string          `json:"reason,omitempty" validate:"max=500"`
}

// Post escrows the amount from the poster and opens a bounty on the region's
// board. The poster's row goes first: its version guard moves the money
// exactly once; a failed board write refunds it.
func (s *Service) Post(ctx context.Context, actor common.Actor, in PostInput) (*bounty.Bounty, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !loc.Region.AcceptsDeparture(now) {
		return nil, shared.NewConflictError("region is not accepting activity")
	}
	if _, err := s.players.FindByID(ctx, in.TargetPlayerID); err != nil {
		return nil, err
	}

	b, err := bounty.Post(loc.Region.ID, loc.Persona.ID, in.TargetPlayerID, in.Amount, in.Reason, now)
	if err != nil {
		return nil, err
	}
	if err := loc.Persona.Spend(b.Amount, now); err != nil {
		return nil, err
	}
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		return nil, err
	}
	if err := loc.GW.Bounties.Create(ctx, b); err != nil {
		s.refund(ctx, loc.Persona.ID, b.Amount)
		return nil, err
	}

	s.publish(ctx, shared.NewEvent(shared.EventBountyPosted, now, map[string]any{
		"bounty_id":        b.ID,
		"target_player_id": b.TargetID,
		"amount":           int64(b.Amount),
	},
		shared.RegionScope(loc.Region.Name),
		shared.PlayerScope(b.TargetID),
	))
	return b, nil
}

// Board lists the open bounties in the actor's region.
func (s *Service) Board(ctx context.Context, actor common.Actor, limit int) ([]*bounty.Bounty, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return loc.GW.Bounties.ListOpen(ctx, loc.Region.ID, limit)
}

// OnPlayer lists the open bounties naming one target.
func (s *Service) OnPlayer(ctx context.Context, actor common.Actor, target shared.PlayerID) ([]*bounty.Bounty, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.Bounties.ListOpenByTarget(ctx, loc.Region.ID, target)
}

// Cancel withdraws an open bounty and refunds the poster's escrow. Admins
// cancel on the poster's behalf; the refund still lands on the poster.
func (s *Service) Cancel(ctx context.Context, actor common.Actor, id string) (*bounty.Bounty, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	b, err := loc.GW.Bounties.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return nil, err
	}
	by := loc.Persona.ID
	if actor.IsAdmin() {
		by = b.PostedBy
	}
	refund, err := b.Cancel(by, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := loc.GW.Bounties.Update(ctx, b); err != nil {
		return nil, err
	}
	s.refund(ctx, b.PostedBy, refund)
	return b, nil
}

// Expire ages out open bounties past their deadline and refunds the posters.
// Run by the scheduler; returns the number expired. Rows claimed or
// cancelled concurrently are skipped.
func (s *Service) Expire(ctx context.Context, regionName string) (int, error) {
	r, err := s.regions.FindByName(ctx, regionName)
	if err != nil {
		return 0, err
	}
	gw, err := s.shards.Region(ctx, regionName)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	due, err := gw.Bounties.ListOpenExpiredBefore(ctx, r.ID, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, b := range due {
		refund := b.Expire(now)
		if refund == 0 {
			continue
		}
		if err := gw.Bounties.Update(ctx, b); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return expired, err
		}
		s.refund(ctx, b.PostedBy, refund)
		expired++
	}
	return expired, nil
}

// refund returns escrow to a poster, logging rather than failing the caller:
// the bounty row is already terminal.
func (s *Service) refund(ctx context.Context, id shared.PlayerID, amount shared.Credits) {
	now := s.clock.Now()
	persona, err := s.players.FindByID(ctx, id)
	if err == nil {
		if err = persona.Earn(amount, now); err == nil {
			err = s.players.Update(ctx, persona)
		}
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("player_id", id.String()).
			Int64("amount", int64(amount)).
			Msg("bounty escrow refund failed")
	}
}

func (s *Service) publish(ctx context.Context, events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("bounty event publish failed")
	}
}
