// Package comms delivers player mail: direct messages, team, sector and
// region broadcasts, threaded replies, and per-recipient read state. Bodies
// are sanitized at the transport boundary before they reach this service.
package comms

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/message"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Service executes mail use-cases in the actor's current region.
type Service struct {
	regions     region.Repository
	memberships region.MembershipRepository
	players     player.Repository
	shards      common.ShardResolver
	publisher   shared.Publisher
	locales     common.LocaleResolver
	clock       shared.Clock
}

// NewService wires the mail use-cases.
func NewService(
	regions region.Repository,
	memberships region.MembershipRepository,
	players player.Repository,
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
		shards:      shards,
		publisher:   publisher,
		locales:     common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:       clock,
	}
}

// SendInput describes a composition. Exactly one audience form applies,
// selected by Kind: direct carries Recipients, the broadcast kinds derive
// their scope from the sender (own team, current sector, current region).
type SendInput struct {
	Kind                 message.AudienceKind `json:"kind" validate:"required"`
	Recipients           []shared.PlayerID    `json:"recipients,omitempty"`
	Subject              string               `json:"subject" validate:"required,max=200"`
	Body                 string               `json:"body" validate:"required"`
	Priority             message.Priority     `json:"priority,omitempty"`
	ParentID             shared.MessageID     `json:"parent_id,omitempty"`
	Attachments          []message.Attachment `json:"attachments,omitempty"`
	Coordinates          *message.Coordinates `json:"coordinates,omitempty"`
	ExpiresAt            *time.Time           `json:"expires_at,omitempty"`
	ConfirmationRequired bool                 `json:"confirmation_required,omitempty"`
}

// Send composes a message, materializes a receipt per recipient and emits the
// durable delivery event. Delivery is the event: if the fabric cannot persist
// it the send fails Unavailable, though the inbox rows survive for polling.
func (s *Service) Send(ctx context.Context, actor common.Actor, in SendInput) (*message.Message, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if loc.Persona.Muted(now) {
		return nil, shared.NewForbiddenError(shared.CodePermissions, "player is muted")
	}

	if !in.ParentID.IsZero() {
		if err := s.checkThreadAccess(ctx, loc, in.ParentID); err != nil {
			return nil, err
		}
	}

	audience, recipients, scope, err := s.resolveAudience(ctx, loc, in)
	if err != nil {
		return nil, err
	}

	m, err := message.Compose(loc.Region.ID, loc.Persona.ID, audience, in.Subject, in.Body, message.Options{
		Priority:             in.Priority,
		ParentID:             in.ParentID,
		Attachments:          in.Attachments,
		Coordinates:          in.Coordinates,
		ExpiresAt:            in.ExpiresAt,
		ConfirmationRequired: in.ConfirmationRequired,
	}, now)
	if err != nil {
		return nil, err
	}

	receipts := make([]*message.Receipt, 0, len(recipients))
	for _, r := range recipients {
		receipts = append(receipts, message.NewReceipt(m.ID, r))
	}
	if err := loc.GW.Messages.Create(ctx, m, receipts); err != nil {
		return nil, err
	}

	ev := shared.NewEvent(shared.EventMessageDelivered, now, map[string]any{
		"message_id": m.ID.String(),
		"author_id":  m.AuthorID.String(),
		"subject":    m.Subject,
		"priority":   string(m.Priority),
		"kind":       string(audience.Kind),
	}, scope...)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		return nil, shared.NewUnavailableError("event fabric", err)
	}
	return m, nil
}

// resolveAudience validates the audience form and materializes the recipient
// set at send time. The author never receives their own message.
func (s *Service) resolveAudience(ctx context.Context, loc *common.Locale, in SendInput) (message.Audience, []shared.PlayerID, []shared.Scope, error) {
	none := message.Audience{}
	switch in.Kind {
	case message.AudienceDirect:
		scopes := make([]shared.Scope, 0, len(in.Recipients))
		for _, r := range in.Recipients {
			if r == loc.Persona.ID {
				return none, nil, nil, shared.NewValidationError("recipients", "cannot message yourself")
			}
			if _, err := s.players.FindByID(ctx, r); err != nil {
				return none, nil, nil, shared.NewValidationError("recipients", "unknown recipient")
			}
			scopes = append(scopes, shared.PlayerScope(r))
		}
		return message.Direct(in.Recipients...), in.Recipients, scopes, nil

	case message.AudienceTeam:
		teamID := loc.Persona.TeamID
		if teamID.IsZero() {
			return none, nil, nil, shared.NewConflictError("you are not on a team")
		}
		members, err := loc.GW.Teams.ListMembers(ctx, loc.Region.ID, teamID)
		if err != nil {
			return none, nil, nil, err
		}
		recipients := make([]shared.PlayerID, 0, len(members))
		for _, m := range members {
			if m.PlayerID != loc.Persona.ID {
				recipients = append(recipients, m.PlayerID)
			}
		}
		return message.ToTeam(teamID), recipients, []shared.Scope{shared.TeamScope(teamID)}, nil

	case message.AudienceSector:
		index := loc.Persona.CurrentSector
		ships, err := loc.GW.Ships.ListBySector(ctx, loc.Region.ID, index)
		if err != nil {
			return none, nil, nil, err
		}
		seen := map[shared.PlayerID]bool{loc.Persona.ID: true}
		recipients := make([]shared.PlayerID, 0, len(ships))
		for _, sh := range ships {
			if !seen[sh.OwnerID] {
				seen[sh.OwnerID] = true
				recipients = append(recipients, sh.OwnerID)
			}
		}
		return message.ToSector(index), recipients,
			[]shared.Scope{shared.SectorScope(loc.Region.Name, index)}, nil

	case message.AudienceRegion:
		if err := s.requireRegionVoice(loc); err != nil {
			return none, nil, nil, err
		}
		members, err := s.memberships.ListByRegion(ctx, loc.Region.ID)
		if err != nil {
			return none, nil, nil, err
		}
		recipients := make([]shared.PlayerID, 0, len(members))
		for _, m := range members {
			if m.PlayerID != loc.Persona.ID {
				recipients = append(recipients, m.PlayerID)
			}
		}
		return message.ToRegion(), recipients, []shared.Scope{shared.RegionScope(loc.Region.Name)}, nil

	default:
		return none, nil, nil, shared.NewValidationError("kind", "unknown audience kind")
	}
}

// requireRegionVoice gates region-wide broadcasts to the governor and
// administrators.
func (s *Service) requireRegionVoice(loc *common.Locale) error {
	if loc.Region.GovernorPlayerID == loc.Persona.ID {
		return nil
	}
	return shared.NewForbiddenError(shared.CodePermissions, "region broadcasts require the governor")
}

// checkThreadAccess verifies the actor may reply in a thread: they wrote the
// parent or received it.
func (s *Service) checkThreadAccess(ctx context.Context, loc *common.Locale, parentID shared.MessageID) error {
	parent, err := loc.GW.Messages.FindByID(ctx, loc.Region.ID, parentID)
	if err != nil {
		return err
	}
	if parent.AuthorID == loc.Persona.ID {
		return nil
	}
	if _, err := loc.GW.Messages.FindReceipt(ctx, loc.Region.ID, parentID, loc.Persona.ID); err != nil {
		return shared.NewForbiddenError(shared.CodePermissions, "you are not part of this conversation")
	}
	return nil
}

// Inbox pages the actor's undeleted messages, newest first, dropping any that
// aged past their expiry.
func (s *Service) Inbox(ctx context.Context, actor common.Actor, page, perPage int) ([]*message.Message, int64, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, 0, err
	}
	messages, total, err := loc.GW.Messages.ListInbox(ctx, loc.Region.ID, loc.Persona.ID, page, perPage)
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()
	live := messages[:0]
	for _, m := range messages {
		if !m.Expired(now) {
			live = append(live, m)
		}
	}
	return live, total, nil
}

// Unread counts the actor's unread, undeleted messages.
func (s *Service) Unread(ctx context.Context, actor common.Actor) (int64, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return 0, err
	}
	return loc.GW.Messages.CountUnread(ctx, loc.Region.ID, loc.Persona.ID)
}

// Thread returns a conversation root and its replies in send order. Only
// participants see the thread.
func (s *Service) Thread(ctx context.Context, actor common.Actor, root shared.MessageID) ([]*message.Message, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if err := s.checkThreadAccess(ctx, loc, root); err != nil {
		return nil, err
	}
	return loc.GW.Messages.ListThread(ctx, loc.Region.ID, root)
}

// MarkRead stamps first read on the actor's receipt. Idempotent.
func (s *Service) MarkRead(ctx context.Context, actor common.Actor, id shared.MessageID) error {
	return s.mutateReceipt(ctx, actor, id, func(r *message.Receipt, now time.Time) error {
		r.MarkRead(now)
		return nil
	})
}

// Confirm acknowledges a confirmation-required message, implying read.
func (s *Service) Confirm(ctx context.Context, actor common.Actor, id shared.MessageID) error {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return err
	}
	m, err := loc.GW.Messages.FindByID(ctx, loc.Region.ID, id)
	if err != nil {
		return err
	}
	if !m.ConfirmationRequired {
		return shared.NewValidationError("message_id", "message does not require confirmation")
	}
	receipt, err := loc.GW.Messages.FindReceipt(ctx, loc.Region.ID, id, loc.Persona.ID)
	if err != nil {
		return err
	}
	receipt.Confirm(s.clock.Now())
	return loc.GW.Messages.UpdateReceipt(ctx, loc.Region.ID, receipt)
}

// Delete hides the message from the actor's inbox. Other recipients keep it.
func (s *Service) Delete(ctx context.Context, actor common.Actor, id shared.MessageID) error {
	return s.mutateReceipt(ctx, actor, id, func(r *message.Receipt, now time.Time) error {
		r.Delete(now)
		return nil
	})
}

func (s *Service) mutateReceipt(ctx context.Context, actor common.Actor, id shared.MessageID, mutate func(*message.Receipt, time.Time) error) error {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return err
	}
	receipt, err := loc.GW.Messages.FindReceipt(ctx, loc.Region.ID, id, loc.Persona.ID)
	if err != nil {
		return err
	}
	if err := mutate(receipt, s.clock.Now()); err != nil {
		return err
	}
	return loc.GW.Messages.UpdateReceipt(ctx, loc.Region.ID, receipt)
}
