// Chat HTTP handlers.
//
// This file declares the service contracts the HTTP layer depends on, the
// Handlers wiring, and the chat endpoints:
//   - GET /chats?email=            (chat summaries with unread counts)
//   - GET /limpiarChatsDuplicados  (duplicate-chat reconciliation)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
	"github.com/tbourn/go-messenger-backend/internal/services"
	"github.com/tbourn/go-messenger-backend/internal/storage"
)

//
// Service contracts (context-aware)
//

// AccountService registers, verifies and authenticates accounts.
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*domain.Account, error)
	Verify(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) (domain.Profile, error)
	Profile(ctx context.Context, email string) (domain.Profile, error)
}

// ConnectionService drives connection requests between accounts.
type ConnectionService interface {
	SendRequest(ctx context.Context, fromEmail, toEmail string) (*services.SendResult, error)
	ListPending(ctx context.Context, email string) ([]domain.PendingRequest, error)
	Accept(ctx context.Context, requestID uint) (*domain.ChatInfo, error)
}

// MessageService appends, lists and marks messages.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	Send(ctx context.Context, chatID uint, fromEmail, text string) (*domain.Message, error)
	SendFile(ctx context.Context, chatID uint, fromEmail, text, fileRef string) (*domain.Message, error)
	List(ctx context.Context, chatID uint) ([]domain.MessageView, error)
	MarkRead(ctx context.Context, chatID uint, byEmail string) (int64, error)
	// Version identifies the current state of a chat's list, for ETags.
	Version(ctx context.Context, chatID uint) (repo.ListVersion, error)
	// Replay and Remember back the Idempotency-Key contract.
	Replay(ctx context.Context, route, key string) (*domain.Message, bool)
	Remember(ctx context.Context, route, key string, messageID uint, status int) error
}

// ChatService serves chat summaries and maintenance.
type ChatService interface {
	Summaries(ctx context.Context, email string) ([]domain.ChatSummary, error)
	Reconcile(ctx context.Context) (repo.ReconcileResult, error)
}

// FileStore names and removes uploaded attachments.
type FileStore interface {
	Place(original string) storage.Placement
	Remove(p storage.Placement) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	accounts AccountService
	conns    ConnectionService
	msgs     MessageService
	chats    ChatService
	files    FileStore

	// maxUploadBytes caps a single attachment; 0 disables the check.
	maxUploadBytes int64
}

// New constructs a Handlers bound to the given services and file store.
func New(accounts AccountService, conns ConnectionService, msgs MessageService, chats ChatService, files FileStore, maxUploadBytes int64) *Handlers {
	return &Handlers{
		accounts:       accounts,
		conns:          conns,
		msgs:           msgs,
		chats:          chats,
		files:          files,
		maxUploadBytes: maxUploadBytes,
	}
}

//
// DTOs
//

// ReconcileResponse reports what a reconciliation sweep changed.
type ReconcileResponse struct {
	Message       string `json:"message" example:"duplicate chats removed"`
	Removed       int64  `json:"removed" example:"2"`
	MessagesMoved int64  `json:"messagesMoved" example:"14"`
}

// emailQuery returns the trimmed ?email= value or writes a 400.
func emailQuery(c *gin.Context) (string, bool) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email is required")
		return "", false
	}
	return email, true
}

//
// Handlers
//

// ListChats godoc
// @ID          listChats
// @Summary     List chats of an account
// @Description One entry per chat with the other member, the latest message and the unread count, most recently active first.
// @Tags        Chats
// @Produce     json
//
// @Param       email  query  string  true  "Account email"  example(alice@example.com)
//
// @Success     200  {array}   domain.ChatSummary
// @Failure     400  {object}  handlers.ErrorResponse  "Missing email or unknown account"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	email, okQ := emailQuery(c)
	if !okQ {
		return
	}
	items, err := h.chats.Summaries(c.Request.Context(), email)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// ReconcileChats godoc
// @ID          reconcileChats
// @Summary     Remove duplicate chats
// @Description Keeps the lowest-id chat per pair of accounts, moves messages onto it and deletes the rest. Safe to repeat.
// @Tags        Maintenance
// @Produce     json
//
// @Success     200  {object}  handlers.ReconcileResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /limpiarChatsDuplicados [get]
func (h *Handlers) ReconcileChats(c *gin.Context) {
	res, err := h.chats.Reconcile(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ReconcileResponse{
		Message:       "duplicate chats removed",
		Removed:       res.ChatsRemoved,
		MessagesMoved: res.MessagesMoved,
	})
}
