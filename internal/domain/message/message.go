// Package message models player mail: direct messages with recipient sets,
// and broadcasts into team, sector or region scopes. Bodies arrive already
// sanitized at the transport boundary; this package enforces structure and
// size. Read state is tracked per recipient so a broadcast can be read,
// confirmed and deleted independently by each reader.
package message

import (
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Priority orders inbox presentation and delivery urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AudienceKind selects who a message reaches.
type AudienceKind string

const (
	AudienceDirect AudienceKind = "direct" // explicit recipient set
	AudienceTeam   AudienceKind = "team"
	AudienceSector AudienceKind = "sector"
	AudienceRegion AudienceKind = "region"
)

// Audience is the recipient set or broadcast scope of a message. Exactly one
// form is populated, selected by Kind.
type Audience struct {
	Kind       AudienceKind
	Recipients []shared.PlayerID // direct only
	TeamID     shared.TeamID     // team only
	Sector     int               // sector only
}

// Direct addresses an explicit recipient set.
func Direct(recipients ...shared.PlayerID) Audience {
	return Audience{Kind: AudienceDirect, Recipients: recipients}
}

// ToTeam broadcasts to a team's members.
func ToTeam(teamID shared.TeamID) Audience { return Audience{Kind: AudienceTeam, TeamID: teamID} }

// ToSector broadcasts to ships present in a sector.
func ToSector(index int) Audience { return Audience{Kind: AudienceSector, Sector: index} }

// ToRegion broadcasts region-wide.
func ToRegion() Audience { return Audience{Kind: AudienceRegion} }

func (a Audience) validate() error {
	switch a.Kind {
	case AudienceDirect:
		if len(a.Recipients) == 0 {
			return shared.NewValidationError("recipients", "direct messages need at least one recipient")
		}
		if len(a.Recipients) > MaxRecipients {
			return shared.NewValidationErrorf("recipients cannot exceed %d", MaxRecipients)
		}
		for _, r := range a.Recipients {
			if r.IsZero() {
				return shared.NewValidationError("recipients", "recipient id must not be empty")
			}
		}
	case AudienceTeam:
		if a.TeamID.IsZero() {
			return shared.NewValidationError("team_id", "must not be empty")
		}
	case AudienceSector:
		if a.Sector < 1 {
			return shared.NewValidationError("sector", "must be positive")
		}
	case AudienceRegion:
	default:
		return shared.NewValidationError("audience", "unknown audience kind")
	}
	return nil
}

// Structural limits. The body limit is the default; deployments may lower or
// raise it through configuration, passed via Options.
const (
	DefaultMaxBodyBytes = 4096
	MaxSubjectLength    = 200
	MaxRecipients       = 50
	MaxAttachments      = 5
)

// Attachment references stored content by opaque ref; the core never holds
// blob bytes.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	Ref       string `json:"ref"`
}

// Coordinates is an optional location payload pinned to a message.
type Coordinates struct {
	RegionName string `json:"region_name"`
	Sector     int    `json:"sector"`
}

// Options carries the optional fields of a composition.
type Options struct {
	Priority             Priority
	ParentID             shared.MessageID // threading
	Attachments          []Attachment
	Coordinates          *Coordinates
	ExpiresAt            *time.Time
	ConfirmationRequired bool
	BodyLimit            int // 0 = DefaultMaxBodyBytes
}

// Message is one sent item. Recipient read state lives in Receipt rows.
type Message struct {
	ID                   shared.MessageID
	RegionID             shared.RegionID
	AuthorID             shared.PlayerID
	Audience             Audience
	Subject              string
	Body                 string
	Priority             Priority
	ParentID             shared.MessageID
	Attachments          []Attachment
	Coordinates          *Coordinates
	ExpiresAt            *time.Time
	ConfirmationRequired bool
	SentAt               time.Time
}

// Compose validates and builds a message. The body must already be
// sanitized; a body at exactly the limit is accepted.
func Compose(regionID shared.RegionID, author shared.PlayerID, audience Audience, subject, body string, opts Options, now time.Time) (*Message, error) {
	if err := audience.validate(); err != nil {
		return nil, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, shared.NewValidationError("subject", "must not be empty")
	}
	if len(subject) > MaxSubjectLength {
		return nil, shared.NewValidationErrorf("subject cannot exceed %d characters", MaxSubjectLength)
	}
	limit := opts.BodyLimit
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	if body == "" {
		return nil, shared.NewValidationError("body", "must not be empty")
	}
	if len(body) > limit {
		return nil, shared.NewValidationErrorf("body cannot exceed %d bytes", limit)
	}
	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return nil, shared.NewValidationError("priority", "unknown priority")
	}
	if len(opts.Attachments) > MaxAttachments {
		return nil, shared.NewValidationErrorf("attachments cannot exceed %d", MaxAttachments)
	}
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return nil, shared.NewValidationError("expires_at", "must be in the future")
	}
	return &Message{
		ID:                   shared.NewMessageID(),
		RegionID:             regionID,
		AuthorID:             author,
		Audience:             audience,
		Subject:              subject,
		Body:                 body,
		Priority:             priority,
		ParentID:             opts.ParentID,
		Attachments:          opts.Attachments,
		Coordinates:          opts.Coordinates,
		ExpiresAt:            opts.ExpiresAt,
		ConfirmationRequired: opts.ConfirmationRequired,
		SentAt:               now,
	}, nil
}

// Expired reports whether the message has aged out of inboxes.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// Receipt is one recipient's state for one message.
type Receipt struct {
	MessageID   shared.MessageID
	RecipientID shared.PlayerID
	ReadAt      *time.Time
	ConfirmedAt *time.Time
	DeletedAt   *time.Time
}

// NewReceipt seeds unread state at delivery time.
func NewReceipt(messageID shared.MessageID, recipient shared.PlayerID) *Receipt {
	return &Receipt{MessageID: messageID, RecipientID: recipient}
}

// Read reports whether the recipient has opened the message.
func (r *Receipt) Read() bool { return r.ReadAt != nil }

// MarkRead stamps first read. Idempotent.
func (r *Receipt) MarkRead(now time.Time) {
	if r.ReadAt == nil {
		t := now
		r.ReadAt = &t
	}
}

// Confirm acknowledges a confirmation-required message. Confirming implies
// reading.
func (r *Receipt) Confirm(now time.Time) {
	r.MarkRead(now)
	if r.ConfirmedAt == nil {
		t := now
		r.ConfirmedAt = &t
	}
}

// Delete hides the message from this recipient's inbox. The message row
// survives for other recipients.
func (r *Receipt) Delete(now time.Time) {
	if r.DeletedAt == nil {
		t := now
		r.DeletedAt = &t
	}
}

// Visible reports whether the message still shows in this inbox.
func (r *Receipt) Visible() bool { return r.DeletedAt == nil }
