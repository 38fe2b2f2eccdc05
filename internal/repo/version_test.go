package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

func TestMessageListVersion(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	ctx := context.Background()

	first := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	last := first.Add(5 * time.Minute)
	for _, m := range []*domain.Message{
		{ChatID: 1, SenderID: 1, Body: strp("hi"), CreatedAt: first, UpdatedAt: first},
		{ChatID: 1, SenderID: 2, Body: strp("hey"), CreatedAt: last, UpdatedAt: last},
		{ChatID: 2, SenderID: 1, Body: strp("elsewhere"), CreatedAt: last.Add(time.Hour), UpdatedAt: last.Add(time.Hour)},
	} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	cases := []struct {
		name   string
		chatID uint
		count  int64
		latest time.Time
	}{
		{"filters by chat and takes newest", 1, 2, last},
		{"empty chat", 3, 0, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := MessageListVersion(ctx, db, tc.chatID)
			if err != nil {
				t.Fatalf("MessageListVersion: %v", err)
			}
			if v.ChatID != tc.chatID || v.Count != tc.count || !v.Latest.Equal(tc.latest) {
				t.Fatalf("got %+v; want count=%d latest=%v", v, tc.count, tc.latest)
			}
			if n, err := CountMessages(ctx, db, tc.chatID); err != nil || n != v.Count {
				t.Fatalf("CountMessages = %d, %v; version count %d", n, err, v.Count)
			}
			if tc.count == 0 && v.Stamp() != 0 {
				t.Fatalf("empty chat stamp = %d", v.Stamp())
			}
			if tc.count > 0 && v.Stamp() != tc.latest.UnixNano() {
				t.Fatalf("stamp = %d; want %d", v.Stamp(), tc.latest.UnixNano())
			}
		})
	}
}

func TestMessageListVersion_MovesWhenMarkedRead(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Create(&domain.Message{ChatID: 3, SenderID: 1, Body: strp("x"), CreatedAt: old, UpdatedAt: old}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := MessageListVersion(ctx, db, 3)

	if _, err := MarkRead(ctx, db, 3, 2); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	after, _ := MessageListVersion(ctx, db, 3)
	if after.Count != before.Count || !after.Latest.After(before.Latest) {
		t.Fatalf("version should advance on read: before=%+v after=%+v", before, after)
	}
}

func TestMessageListVersion_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := MessageListVersion(ctx, newTestDB(t), 1); err == nil {
		t.Fatalf("expected error without a messages table")
	}

	db := newTestDB(t, &domain.Message{})
	now := time.Now().UTC()
	if err := db.Create(&domain.Message{ChatID: 9, SenderID: 1, Body: strp("x"), CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Exec(`ALTER TABLE messages RENAME COLUMN updated_at TO updated_at_old`).Error; err != nil {
		t.Fatalf("rename column: %v", err)
	}
	if _, err := MessageListVersion(ctx, db, 9); err == nil {
		t.Fatalf("expected error once updated_at is gone")
	}
}
