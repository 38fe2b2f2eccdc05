// Package services – MessageService
//
// This file implements MessageService, which appends text and file messages
// to chats, lists them in order, and flags them as read. Senders are
// identified by email; the chat must exist and, unless disabled, the sender
// must be one of its two members.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include chat identifiers where applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

// MessageService coordinates message persistence for chats.
type MessageService struct {
	DB *gorm.DB

	// RequireMembership rejects senders that are not part of the chat. Off
	// by default: the original API let any account post to any chat.
	RequireMembership bool
	// MaxRunes caps message text length; 0 disables the check.
	MaxRunes int
	// IdempotencyTTL is how long a recorded Idempotency-Key stays replayable.
	IdempotencyTTL time.Duration
}

// Send appends a text message from fromEmail to chatID.
func (s *MessageService) Send(ctx context.Context, chatID uint, fromEmail, text string) (*domain.Message, error) {
	return s.SendFile(ctx, chatID, fromEmail, text, "")
}

// SendFile appends a message carrying optional text and an optional file
// reference. At least one of them must be present.
func (s *MessageService) SendFile(ctx context.Context, chatID uint, fromEmail, text, fileRef string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("chat.id", int64(chatID)),
			attribute.Bool("message.has_file", fileRef != ""),
		),
	)
	defer span.End()

	text = sanitizeText(text)
	if text == "" && fileRef == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxRunes > 0 && utf8.RuneCountInString(text) > s.MaxRunes {
		return nil, ErrTooLong
	}

	sender, err := lookupAccount(ctx, s.DB, fromEmail)
	if err != nil {
		return nil, err
	}
	if _, err := s.chatFor(ctx, chatID, sender.ID); err != nil {
		return nil, err
	}

	m, err := repo.CreateMessage(ctx, s.DB, chatID, sender.ID, optional(text), optional(fileRef))
	if err != nil {
		return nil, err
	}
	kind := "text"
	if fileRef != "" {
		kind = "file"
	}
	messagesSent.WithLabelValues(kind).Inc()
	return m, nil
}

// List returns all messages of chatID with sender identity, oldest first.
func (s *MessageService) List(ctx context.Context, chatID uint) ([]domain.MessageView, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "List",
		trace.WithAttributes(attribute.Int64("chat.id", int64(chatID))))
	defer span.End()

	if _, err := s.chatFor(ctx, chatID, 0); err != nil {
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, chatID)
}

// MarkRead flags as read the messages in chatID that byEmail did not send and
// returns how many changed. Any registered account may do so; membership is
// only enforced on sends.
func (s *MessageService) MarkRead(ctx context.Context, chatID uint, byEmail string) (int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "MarkRead",
		trace.WithAttributes(attribute.Int64("chat.id", int64(chatID))))
	defer span.End()

	reader, err := lookupAccount(ctx, s.DB, byEmail)
	if err != nil {
		return 0, err
	}
	if _, err := s.chatFor(ctx, chatID, 0); err != nil {
		return 0, err
	}
	n, err := repo.MarkRead(ctx, s.DB, chatID, reader.ID)
	span.SetAttributes(attribute.Int64("messages.updated", n))
	return n, err
}

// Version returns the current version of chatID's message list, used by the
// HTTP layer to build weak ETags.
func (s *MessageService) Version(ctx context.Context, chatID uint) (repo.ListVersion, error) {
	return repo.MessageListVersion(ctx, s.DB, chatID)
}

// Replay returns the message recorded for (route, key), if any.
func (s *MessageService) Replay(ctx context.Context, route, key string) (*domain.Message, bool) {
	rec, err := repo.LookupReplay(ctx, s.DB, repo.ReplayKey{Route: route, Key: key}, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Remember records messageID as the result of (route, key). A concurrent
// duplicate is ignored.
func (s *MessageService) Remember(ctx context.Context, route, key string, messageID uint, status int) error {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.RecordReplay(ctx, s.DB, repo.ReplayKey{Route: route, Key: key}, messageID, status, time.Now().UTC(), ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// IdempotencyExists reports whether a live record exists for (route, key).
func (s *MessageService) IdempotencyExists(ctx context.Context, route, key string, now time.Time) (bool, error) {
	_, err := repo.LookupReplay(ctx, s.DB, repo.ReplayKey{Route: route, Key: key}, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// chatFor loads the chat and, when membership is enforced and memberID is
// non-zero, checks that memberID belongs to it.
func (s *MessageService) chatFor(ctx context.Context, chatID, memberID uint) (*domain.Chat, error) {
	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if s.RequireMembership && memberID != 0 && !chat.HasMember(memberID) {
		return nil, ErrNotChatMember
	}
	return chat, nil
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes line endings, collapses long blank runs and trims.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
