package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormEventLog implements shared.EventLog on the global shard. Each durable
// event becomes one row per scope; the autoincrement sequence doubles as the
// per-scope cursor because inserts happen in emit order.
type GormEventLog struct {
	db *gorm.DB
}

// NewGormEventLog creates a new GORM event log
func NewGormEventLog(db *gorm.DB) *GormEventLog {
	return &GormEventLog{db: db}
}

// Append persists the durable events in the batch and returns their stored
// rows. Best-effort events pass through without a row.
func (l *GormEventLog) Append(ctx context.Context, events ...shared.Event) ([]shared.SequencedEvent, error) {
	var stored []shared.SequencedEvent
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range events {
			if !event.Durable() {
				continue
			}
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal event payload: %w", err)
			}
			for _, scope := range event.Scopes {
				model := DurableEventModel{
					Scope:      string(scope),
					EventType:  string(event.Type),
					Payload:    string(payload),
					OccurredAt: event.OccurredAt,
				}
				if err := tx.Create(&model).Error; err != nil {
					return fmt.Errorf("failed to append event: %w", err)
				}
				stored = append(stored, shared.SequencedEvent{
					Seq:        model.Seq,
					Scope:      scope,
					Type:       event.Type,
					Payload:    event.Payload,
					OccurredAt: event.OccurredAt,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Replay retrieves a scope's log after the given cursor, oldest first
func (l *GormEventLog) Replay(ctx context.Context, scope shared.Scope, afterSeq int64, limit int) ([]shared.SequencedEvent, error) {
	if limit < 1 {
		limit = 100
	}
	var models []DurableEventModel
	result := l.db.WithContext(ctx).
		Where("scope = ? AND seq > ?", string(scope), afterSeq).
		Order("seq").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to replay events: %w", result.Error)
	}
	events := make([]shared.SequencedEvent, 0, len(models))
	for i := range models {
		event, err := l.modelToEvent(&models[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Ack records the last sequence an account processed in a scope. Cursors only
// move forward; a stale ack is ignored.
func (l *GormEventLog) Ack(ctx context.Context, accountID shared.AccountID, scope shared.Scope, seq int64, at time.Time) error {
	model := EventCursorModel{
		AccountID: accountID.String(),
		Scope:     string(scope),
		LastSeq:   seq,
		UpdatedAt: at,
	}
	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "scope"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seq":   seq,
			"updated_at": at,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "event_cursors", Name: "last_seq"}, Value: seq},
		}},
	}).Create(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to ack event: %w", result.Error)
	}
	return nil
}

// LastAck retrieves an account's cursor in a scope, zero when it never acked
func (l *GormEventLog) LastAck(ctx context.Context, accountID shared.AccountID, scope shared.Scope) (int64, error) {
	var model EventCursorModel
	result := l.db.WithContext(ctx).
		Where("account_id = ? AND scope = ?", accountID.String(), string(scope)).
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read event cursor: %w", result.Error)
	}
	return model.LastSeq, nil
}

// PruneBefore drops log rows older than the cutoff
func (l *GormEventLog) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := l.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&DurableEventModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (l *GormEventLog) modelToEvent(model *DurableEventModel) (shared.SequencedEvent, error) {
	var payload map[string]any
	if model.Payload != "" {
		if err := json.Unmarshal([]byte(model.Payload), &payload); err != nil {
			return shared.SequencedEvent{}, fmt.Errorf("corrupt payload for event %d: %w", model.Seq, err)
		}
	}
	return shared.SequencedEvent{
		Seq:        model.Seq,
		Scope:      shared.Scope(model.Scope),
		Type:       shared.EventType(model.EventType),
		Payload:    payload,
		OccurredAt: model.OccurredAt,
	}, nil
}
