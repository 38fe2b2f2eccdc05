// Package services – ChatService
//
// This file implements the ChatService, which produces per-account chat
// summaries and runs the duplicate-chat reconciliation sweep. Persistence is
// reached through the narrow ChatRepo contract so the service can be tested
// without a database.
//
// Service-level errors (e.g., ErrAccountNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

// ChatRepo defines the repository contract required by ChatService.
type ChatRepo interface {
	// ListChatSummaries returns one summary per chat of the account.
	ListChatSummaries(ctx context.Context, db *gorm.DB, accountID uint) ([]domain.ChatSummary, error)

	// ReconcileDuplicateChats collapses duplicate chats per unordered pair.
	ReconcileDuplicateChats(ctx context.Context, db *gorm.DB) (repo.ReconcileResult, error)
}

// ChatService provides chat-level read models and maintenance.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the chat repository used by this service.
	Repo ChatRepo
}

// NewChatService constructs a ChatService.
func NewChatService(db *gorm.DB, r ChatRepo) *ChatService {
	return &ChatService{DB: db, Repo: r}
}

// Summaries lists the chats of email with the other member, a preview of the
// latest message and the unread count, most recently active first.
func (s *ChatService) Summaries(ctx context.Context, email string) ([]domain.ChatSummary, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Summaries")
	defer span.End()

	a, err := lookupAccount(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	out, err := s.Repo.ListChatSummaries(ctx, s.DB, a.ID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("chats", len(out)))
	return out, nil
}

// Reconcile removes duplicate chats, keeping the lowest id per pair and
// moving messages onto it. Running it again changes nothing.
func (s *ChatService) Reconcile(ctx context.Context) (repo.ReconcileResult, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Reconcile")
	defer span.End()

	res, err := s.Repo.ReconcileDuplicateChats(ctx, s.DB)
	if err != nil {
		return repo.ReconcileResult{}, err
	}
	chatsReconciled.Add(float64(res.ChatsRemoved))
	span.SetAttributes(
		attribute.Int64("chats.removed", res.ChatsRemoved),
		attribute.Int64("messages.moved", res.MessagesMoved),
	)
	return res, nil
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
