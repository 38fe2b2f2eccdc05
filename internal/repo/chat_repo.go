// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Pair semantics: a chat belongs to an unordered pair of accounts. New rows
// are written as (low, high), but lookups match both orientations so that
// rows created by older deployments are still found.
//
// Functions:
//
//   - FindChatByPair(ctx, db, a, b) -> *domain.Chat, error
//     Returns the lowest-id chat between a and b, or ErrNotFound.
//
//   - CreateChat(ctx, db, a, b) -> *domain.Chat, error
//     Inserts (low, high) unless the pair already has a chat, then re-reads.
//
//   - GetChat(ctx, db, id) -> *domain.Chat, error
//
//   - ListChatSummaries(ctx, db, accountID) -> []domain.ChatSummary, error
//     One row per chat with the other member, last message and unread count.
//
//   - ReconcileDuplicateChats(ctx, db) -> ReconcileResult, error
//     Keeps the lowest id per unordered pair, moving messages onto it.
//
// Usage:
//
//	chat, err := repo.FindChatByPair(ctx, tx, alice.ID, bob.ID)
//	if errors.Is(err, repo.ErrNotFound) {
//	    chat, err = repo.CreateChat(ctx, tx, alice.ID, bob.ID)
//	}
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ReconcileResult reports what a reconciliation pass changed.
type ReconcileResult struct {
	ChatsRemoved  int64 `json:"removed"`
	MessagesMoved int64 `json:"messagesMoved"`
}

// FindChatByPair returns the chat shared by accounts a and b in either
// orientation. When legacy duplicates exist the lowest id wins, matching the
// survivor chosen by ReconcileDuplicateChats.
func FindChatByPair(ctx context.Context, db *gorm.DB, a, b uint) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)", a, b, b, a).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateChat stores a chat for the pair in (low, high) order. If ux_chats_pair
// already holds the pair the insert is skipped and the existing row returned,
// so concurrent callers converge on one chat.
func CreateChat(ctx context.Context, db *gorm.DB, a, b uint) (*domain.Chat, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	c := &domain.Chat{User1ID: lo, User2ID: hi}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 && c.ID != 0 {
		return c, nil
	}
	return FindChatByPair(ctx, db, lo, hi)
}

// GetChat fetches a single chat by its ID. If the record does not exist, it
// returns ErrNotFound.
func GetChat(ctx context.Context, db *gorm.DB, id uint) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

const chatSummariesSQL = `
SELECT c.id         AS chat_id,
       o.name       AS other_name,
       o.email      AS other_email,
       lm.body      AS last_text,
       lm.file_ref  AS last_file_ref,
       lm.created_at AS last_at,
       ls.email     AS last_sender_email,
       (SELECT COUNT(*) FROM messages u
         WHERE u.chat_id = c.id AND u.sender_id <> ? AND u.is_read = ?) AS unread
FROM chats c
JOIN accounts o
  ON o.id = CASE WHEN c.user1_id = ? THEN c.user2_id ELSE c.user1_id END
LEFT JOIN messages lm
  ON lm.id = (SELECT m.id FROM messages m
               WHERE m.chat_id = c.id
               ORDER BY m.created_at DESC, m.id DESC
               LIMIT 1)
LEFT JOIN accounts ls ON ls.id = lm.sender_id
WHERE c.user1_id = ? OR c.user2_id = ?
ORDER BY CASE WHEN lm.created_at IS NULL THEN 1 ELSE 0 END,
         lm.created_at DESC,
         c.id DESC`

// ListChatSummaries returns one summary per chat of accountID, most recently
// active first; chats without messages come last.
func ListChatSummaries(ctx context.Context, db *gorm.DB, accountID uint) ([]domain.ChatSummary, error) {
	out := []domain.ChatSummary{}
	err := db.WithContext(ctx).
		Raw(chatSummariesSQL, accountID, false, accountID, accountID, accountID).
		Scan(&out).Error
	return out, err
}

// pairKey expressions order the members so (3,7) and (7,3) group together.
const (
	pairLo = "CASE WHEN user1_id < user2_id THEN user1_id ELSE user2_id END"
	pairHi = "CASE WHEN user1_id < user2_id THEN user2_id ELSE user1_id END"
)

type duplicateChat struct {
	DupID  uint
	KeepID uint
}

// ReconcileDuplicateChats collapses every group of chats sharing an unordered
// member pair into its lowest-id row. Messages of the removed rows are moved
// onto the survivor before the rows are deleted, all in one transaction.
// A second run finds nothing to do.
func ReconcileDuplicateChats(ctx context.Context, db *gorm.DB) (ReconcileResult, error) {
	var res ReconcileResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dups []duplicateChat
		err := tx.Raw(`
SELECT c.id AS dup_id, s.keep_id AS keep_id
FROM chats c
JOIN (
  SELECT MIN(id) AS keep_id, ` + pairLo + ` AS lo, ` + pairHi + ` AS hi
  FROM chats
  GROUP BY ` + pairLo + `, ` + pairHi + `
) s ON s.lo = CASE WHEN c.user1_id < c.user2_id THEN c.user1_id ELSE c.user2_id END
   AND s.hi = CASE WHEN c.user1_id < c.user2_id THEN c.user2_id ELSE c.user1_id END
WHERE c.id <> s.keep_id
ORDER BY c.id`).Scan(&dups).Error
		if err != nil {
			return err
		}
		for _, d := range dups {
			moved := tx.Model(&domain.Message{}).
				Where("chat_id = ?", d.DupID).
				UpdateColumn("chat_id", d.KeepID)
			if moved.Error != nil {
				return moved.Error
			}
			res.MessagesMoved += moved.RowsAffected

			del := tx.Delete(&domain.Chat{}, d.DupID)
			if del.Error != nil {
				return del.Error
			}
			res.ChatsRemoved += del.RowsAffected
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return res, nil
}

// NormalizeChatPairs rewrites legacy (high, low) rows as (low, high) so the
// ux_chats_pair index covers both orientations. Run it after reconciliation.
func NormalizeChatPairs(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Exec("UPDATE chats SET user1_id = user2_id, user2_id = user1_id WHERE user1_id > user2_id").
		Error
}
