// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// CreateMessage inserts a new unread message row. body and fileRef may each
// be nil but the service layer never passes both as nil.
func CreateMessage(ctx context.Context, db *gorm.DB, chatID, senderID uint, body, fileRef *string) (*domain.Message, error) {
	m := &domain.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Body:     body,
		FileRef:  fileRef,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the chat's messages joined with the sender identity,
// ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, chatID uint) ([]domain.MessageView, error) {
	out := []domain.MessageView{}
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select("m.id AS id, m.chat_id AS chat_id, m.body AS body, m.file_ref AS file_ref, " +
			"m.is_read AS is_read, m.created_at AS created_at, a.name AS sender_name, a.email AS sender_email").
		Joins("JOIN accounts a ON a.id = m.sender_id").
		Where("m.chat_id = ?", chatID).
		Order("m.created_at ASC, m.id ASC").
		Scan(&out).Error
	return out, err
}

// MarkRead flags as read every unread message in chatID that readerID did not
// send. It returns the number of messages that changed; a repeat call returns 0.
func MarkRead(ctx context.Context, db *gorm.DB, chatID, readerID uint) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, readerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns how many messages chatID holds. It uses a raw COUNT so
// a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, chatID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).Scan(&total).Error
	return total, err
}
