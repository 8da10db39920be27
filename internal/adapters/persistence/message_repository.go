package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/message"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormMessageRepository implements message.Repository on a region shard. The
// message row holds the immutable content; per-recipient read state lives in
// receipt rows written at delivery time.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM message repository
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a message together with its delivery receipts
func (r *GormMessageRepository) Create(ctx context.Context, m *message.Message, receipts []*message.Receipt) error {
	model, err := r.messageToModel(m)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		receiptModels := make([]MessageReceiptModel, 0, len(receipts))
		for _, receipt := range receipts {
			receiptModels = append(receiptModels, *r.receiptToModel(receipt))
		}
		if len(receiptModels) > 0 {
			if err := tx.CreateInBatches(receiptModels, 200).Error; err != nil {
				return fmt.Errorf("failed to create receipts: %w", err)
			}
		}
		return nil
	})
}

// FindByID retrieves a message by ID
func (r *GormMessageRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.MessageID) (*message.Message, error) {
	var model MessageModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("message")
		}
		return nil, fmt.Errorf("failed to find message: %w", result.Error)
	}
	return r.modelToMessage(&model)
}

// ListInbox pages a recipient's undeleted messages, newest first
func (r *GormMessageRepository) ListInbox(ctx context.Context, regionID shared.RegionID, recipient shared.PlayerID, page, perPage int) ([]*message.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	base := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Joins("JOIN message_receipts ON message_receipts.message_id = messages.id").
		Where("messages.region_id = ? AND message_receipts.recipient_id = ? AND message_receipts.deleted_at IS NULL",
			regionID.String(), recipient.String())
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count inbox: %w", err)
	}
	var models []MessageModel
	result := base.
		Order("messages.sent_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list inbox: %w", result.Error)
	}
	messages, err := r.modelsToMessages(models)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// ListThread retrieves a root message and its replies in send order
func (r *GormMessageRepository) ListThread(ctx context.Context, regionID shared.RegionID, root shared.MessageID) ([]*message.Message, error) {
	var models []MessageModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND (id = ? OR parent_id = ?)", regionID.String(), root.String(), root.String()).
		Order("sent_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list thread: %w", result.Error)
	}
	return r.modelsToMessages(models)
}

// FindReceipt retrieves one recipient's receipt for a message
func (r *GormMessageRepository) FindReceipt(ctx context.Context, regionID shared.RegionID, id shared.MessageID, recipient shared.PlayerID) (*message.Receipt, error) {
	var model MessageReceiptModel
	result := r.db.WithContext(ctx).
		Where("message_id = ? AND recipient_id = ?", id.String(), recipient.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("message")
		}
		return nil, fmt.Errorf("failed to find receipt: %w", result.Error)
	}
	return r.modelToReceipt(&model), nil
}

// UpdateReceipt saves read, confirmation or deletion state
func (r *GormMessageRepository) UpdateReceipt(ctx context.Context, regionID shared.RegionID, receipt *message.Receipt) error {
	result := r.db.WithContext(ctx).Save(r.receiptToModel(receipt))
	if result.Error != nil {
		return fmt.Errorf("failed to update receipt: %w", result.Error)
	}
	return nil
}

// CountUnread counts a recipient's unread, undeleted messages
func (r *GormMessageRepository) CountUnread(ctx context.Context, regionID shared.RegionID, recipient shared.PlayerID) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&MessageReceiptModel{}).
		Where("recipient_id = ? AND read_at IS NULL AND deleted_at IS NULL", recipient.String()).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count unread: %w", result.Error)
	}
	return count, nil
}

func (r *GormMessageRepository) modelsToMessages(models []MessageModel) ([]*message.Message, error) {
	messages := make([]*message.Message, 0, len(models))
	for i := range models {
		m, err := r.modelToMessage(&models[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *GormMessageRepository) messageToModel(m *message.Message) (*MessageModel, error) {
	recipients := "[]"
	if len(m.Audience.Recipients) > 0 {
		raw, err := json.Marshal(m.Audience.Recipients)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal recipients: %w", err)
		}
		recipients = string(raw)
	}
	attachments := "[]"
	if len(m.Attachments) > 0 {
		raw, err := json.Marshal(m.Attachments)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachments = string(raw)
	}
	coordinates := ""
	if m.Coordinates != nil {
		raw, err := json.Marshal(m.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal coordinates: %w", err)
		}
		coordinates = string(raw)
	}
	return &MessageModel{
		ID:                   m.ID.String(),
		RegionID:             m.RegionID.String(),
		AuthorID:             m.AuthorID.String(),
		AudienceKind:         string(m.Audience.Kind),
		Recipients:           recipients,
		TeamID:               m.Audience.TeamID.String(),
		Sector:               m.Audience.Sector,
		Subject:              m.Subject,
		Body:                 m.Body,
		Priority:             string(m.Priority),
		ParentID:             m.ParentID.String(),
		Attachments:          attachments,
		Coordinates:          coordinates,
		ExpiresAt:            m.ExpiresAt,
		ConfirmationRequired: m.ConfirmationRequired,
		SentAt:               m.SentAt,
	}, nil
}

func (r *GormMessageRepository) modelToMessage(model *MessageModel) (*message.Message, error) {
	var recipients []shared.PlayerID
	if model.Recipients != "" {
		if err := json.Unmarshal([]byte(model.Recipients), &recipients); err != nil {
			return nil, fmt.Errorf("corrupt recipients for message %s: %w", model.ID, err)
		}
	}
	var attachments []message.Attachment
	if model.Attachments != "" {
		if err := json.Unmarshal([]byte(model.Attachments), &attachments); err != nil {
			return nil, fmt.Errorf("corrupt attachments for message %s: %w", model.ID, err)
		}
	}
	var coordinates *message.Coordinates
	if model.Coordinates != "" {
		coordinates = &message.Coordinates{}
		if err := json.Unmarshal([]byte(model.Coordinates), coordinates); err != nil {
			return nil, fmt.Errorf("corrupt coordinates for message %s: %w", model.ID, err)
		}
	}
	return &message.Message{
		ID:       shared.MessageID(model.ID),
		RegionID: shared.RegionID(model.RegionID),
		AuthorID: shared.PlayerID(model.AuthorID),
		Audience: message.Audience{
			Kind:       message.AudienceKind(model.AudienceKind),
			Recipients: recipients,
			TeamID:     shared.TeamID(model.TeamID),
			Sector:     model.Sector,
		},
		Subject:              model.Subject,
		Body:                 model.Body,
		Priority:             message.Priority(model.Priority),
		ParentID:             shared.MessageID(model.ParentID),
		Attachments:          attachments,
		Coordinates:          coordinates,
		ExpiresAt:            model.ExpiresAt,
		ConfirmationRequired: model.ConfirmationRequired,
		SentAt:               model.SentAt,
	}, nil
}

func (r *GormMessageRepository) receiptToModel(receipt *message.Receipt) *MessageReceiptModel {
	return &MessageReceiptModel{
		MessageID:   receipt.MessageID.String(),
		RecipientID: receipt.RecipientID.String(),
		ReadAt:      receipt.ReadAt,
		ConfirmedAt: receipt.ConfirmedAt,
		DeletedAt:   receipt.DeletedAt,
	}
}

func (r *GormMessageRepository) modelToReceipt(model *MessageReceiptModel) *message.Receipt {
	return &message.Receipt{
		MessageID:   shared.MessageID(model.MessageID),
		RecipientID: shared.PlayerID(model.RecipientID),
		ReadAt:      model.ReadAt,
		ConfirmedAt: model.ConfirmedAt,
		DeletedAt:   model.DeletedAt,
	}
}
