// Package audit defines the immutable security trail. Entries are written
// at-least-once: ingestion retries once on failure and a second failure is
// logged rather than failing the originating request, so duplicate entries
// are possible and consumers deduplicate by id.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Category groups entries for retention and review.
type Category string

const (
	CategoryAuth       Category = "authentication"
	CategoryAdmin      Category = "administration"
	CategorySecurity   Category = "security"
	CategoryEconomy    Category = "economy"
	CategoryDiplomacy  Category = "diplomacy"
	CategoryLifecycle  Category = "lifecycle"
	CategoryAdvisory   Category = "advisory"
	CategoryGovernance Category = "governance"
)

// Entry is one immutable audit record. Entries are never updated or
// deleted inside the retention window.
type Entry struct {
	ID             string
	Category       Category
	Action         string
	ActorAccountID shared.AccountID // zero for system actions
	ActorIP        string
	Subject        string // id of the affected entity, free-form
	RegionName     string
	RequestID      string
	Detail         map[string]any
	OccurredAt     time.Time
}

// Fields carries the optional context of an entry.
type Fields struct {
	ActorAccountID shared.AccountID
	ActorIP        string
	Subject        string
	RegionName     string
	RequestID      string
	Detail         map[string]any
}

// New builds an audit entry.
func New(category Category, action string, f Fields, now time.Time) (*Entry, error) {
	switch category {
	case CategoryAuth, CategoryAdmin, CategorySecurity, CategoryEconomy,
		CategoryDiplomacy, CategoryLifecycle, CategoryAdvisory, CategoryGovernance:
	default:
		return nil, shared.NewValidationError("category", "unknown audit category")
	}
	if action == "" {
		return nil, shared.NewValidationError("action", "must not be empty")
	}
	detail := f.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	return &Entry{
		ID:             uuid.NewString(),
		Category:       category,
		Action:         action,
		ActorAccountID: f.ActorAccountID,
		ActorIP:        f.ActorIP,
		Subject:        f.Subject,
		RegionName:     f.RegionName,
		RequestID:      f.RequestID,
		Detail:         detail,
		OccurredAt:     now,
	}, nil
}

// Recorder persists entries to the global shard. Implementations retry once
// before reporting failure; callers log a failed second attempt and move on.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	// List pages entries newest-first, optionally filtered by category.
	List(ctx context.Context, category Category, page, perPage int) ([]*Entry, int64, error)
}
