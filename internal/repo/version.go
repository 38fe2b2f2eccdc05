package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// ListVersion identifies one state of a chat's message list. Sending a
// message raises Count and marking messages read bumps their updated_at, so
// the version moves whenever the rendered list would.
type ListVersion struct {
	ChatID uint
	Count  int64
	Latest time.Time // zero for an empty chat
}

// Stamp is Latest in Unix nanoseconds, or 0 for an empty chat.
func (v ListVersion) Stamp() int64 {
	if v.Latest.IsZero() {
		return 0
	}
	return v.Latest.UnixNano()
}

// MessageListVersion computes the ListVersion of chatID.
func MessageListVersion(ctx context.Context, db *gorm.DB, chatID uint) (ListVersion, error) {
	n, err := CountMessages(ctx, db, chatID)
	if err != nil {
		return ListVersion{}, err
	}
	v := ListVersion{ChatID: chatID, Count: n}
	if n == 0 {
		return v, nil
	}

	// SQLite hands MAX(updated_at) back as TEXT; read the newest row instead.
	var newest struct{ UpdatedAt time.Time }
	if err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("chat_id = ?", chatID).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&newest).Error; err != nil {
		return ListVersion{}, err
	}
	v.Latest = newest.UpdatedAt.UTC()
	return v, nil
}
