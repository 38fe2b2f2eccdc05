// Message HTTP handlers.
//
// This file exposes the message endpoints:
//   - POST /mensaje         (append a text message)
//   - POST /mensajeArchivo  (append a message with an uploaded file)
//   - GET  /mensajes        (list a chat's messages, oldest first)
//   - POST /mensaje/visto   (mark the other member's messages as read)
//
// Handlers are transport-thin:
//   - validate inputs (ids, multipart parts, upload size)
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (route, key), the handler returns that recorded message
// and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/http/middleware"
	"github.com/tbourn/go-messenger-backend/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for POST /mensaje. ChatID accepts a
// number or a numeric string.
type PostMessageRequest struct {
	ChatID    utils.ID `json:"chatId"    swaggertype:"integer" example:"3"`
	FromEmail string   `json:"fromEmail" example:"alice@example.com"`
	Text      string   `json:"text"      example:"Hola!"`
}

// PostMessageResponse confirms a stored message.
type PostMessageResponse struct {
	Message string `json:"message"           example:"message sent"`
	ID      uint   `json:"id"                example:"41"`
	FileRef string `json:"fileRef,omitempty" example:"/uploads/1718000000000-3f1c...-photo.png"`
}

// MarkReadRequest is the JSON payload for POST /mensaje/visto.
type MarkReadRequest struct {
	ChatID    utils.ID `json:"chatId"    swaggertype:"integer" example:"3"`
	FromEmail string   `json:"fromEmail" example:"bob@example.com"`
}

// MarkReadResponse reports how many messages were flagged read.
type MarkReadResponse struct {
	Message string `json:"message" example:"messages marked as read"`
	Updated int64  `json:"updated" example:"4"`
}

const (
	headerReplayed = "Idempotency-Replayed"
	msgSent        = "message sent"
	msgBadChatID   = "chatId must be a positive integer"
)

//
// Helpers
//

// replay answers from a stored idempotency record. It reports false when no
// key was supplied or nothing replayable is stored.
func (h *Handlers) replay(c *gin.Context) bool {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || !middleware.IsReplay(c) {
		return false
	}
	prev, found := h.msgs.Replay(c.Request.Context(), c.FullPath(), key)
	if !found {
		return false
	}
	c.Header(headerReplayed, "true")
	ok(c, http.StatusOK, postMessageResponse(prev))
	return true
}

// remember records the result of a keyed request. Failures only cost a
// future replay, so they are logged and ignored.
func (h *Handlers) remember(c *gin.Context, m *domain.Message) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has {
		return
	}
	if err := h.msgs.Remember(c.Request.Context(), c.FullPath(), key, m.ID, http.StatusOK); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Uint("message_id", m.ID).Msg("idempotency record not stored")
	}
}

func postMessageResponse(m *domain.Message) PostMessageResponse {
	resp := PostMessageResponse{Message: msgSent, ID: m.ID}
	if m.FileRef != nil {
		resp.FileRef = *m.FileRef
	}
	return resp
}

// etagMatches reports whether an If-None-Match header value matches etag.
func etagMatches(header, etag string) bool {
	for _, part := range strings.Split(header, ",") {
		p := strings.TrimSpace(part)
		if p == etag || p == "*" {
			return true
		}
	}
	return false
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a text message
// @Description Appends a text message to the chat. When membership checks are enabled the sender must be a member of the chat.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request, unknown chat or sender, not a member"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mensaje [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ChatID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgBadChatID)
		return
	}
	if h.replay(c) {
		return
	}

	m, err := h.msgs.Send(c.Request.Context(), uint(req.ChatID), req.FromEmail, req.Text)
	if err != nil {
		failService(c, err)
		return
	}
	h.remember(c, m)
	ok(c, http.StatusOK, postMessageResponse(m))
}

// PostFileMessage godoc
// @ID          postFileMessage
// @Summary     Send a message with a file
// @Description Multipart upload. Text and file are each optional but at least one is required. The stored file is served under /uploads.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Messages
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       Idempotency-Key  header    string  false  "Idempotency key for safe retries"
// @Param       chatId           formData  int     true   "Chat id"
// @Param       fromEmail        formData  string  true   "Sender email"
// @Param       text             formData  string  false  "Optional caption"
// @Param       file             formData  file    false  "Attachment"
//
// @Success     200  {object}  handlers.PostMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing text and file, unknown chat or sender"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mensajeArchivo [post]
func (h *Handlers) PostFileMessage(c *gin.Context) {
	fh, err := c.FormFile("file")
	switch {
	case err == nil:
	case errors.Is(err, http.ErrMissingFile):
		fh = nil
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid multipart body")
		return
	}

	chatID, err := utils.ParseID(c.PostForm("chatId"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgBadChatID)
		return
	}
	if fh != nil && h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
			fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
		return
	}
	if h.replay(c) {
		return
	}

	ctx := c.Request.Context()
	fileRef, cleanup, okSave := h.saveUpload(c, fh)
	if !okSave {
		return
	}

	m, err := h.msgs.SendFile(ctx, chatID, c.PostForm("fromEmail"), c.PostForm("text"), fileRef)
	if err != nil {
		cleanup()
		failService(c, err)
		return
	}
	h.remember(c, m)
	ok(c, http.StatusOK, postMessageResponse(m))
}

// saveUpload stores fh, if any, and returns its public reference together
// with a func that removes it again.
func (h *Handlers) saveUpload(c *gin.Context, fh *multipart.FileHeader) (string, func(), bool) {
	if fh == nil {
		return "", func() {}, true
	}
	p := h.files.Place(fh.Filename)
	if err := c.SaveUploadedFile(fh, p.Path); err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not store file")
		return "", nil, false
	}
	cleanup := func() {
		if err := h.files.Remove(p); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("file", p.Name).Msg("orphan upload not removed")
		}
	}
	return p.Ref, cleanup, true
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a chat
// @Description Returns every message of the chat with the sender's name and email, oldest first.
// @Description Responses carry a weak ETag; a matching If-None-Match yields 304.
// @Tags        Messages
// @Produce     json
//
// @Param       chatId         query   int     true   "Chat id"  minimum(1)
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
//
// @Success     200  {array}   domain.MessageView
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad chat id or unknown chat"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mensajes [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID, err := utils.ParseID(c.Query("chatId"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgBadChatID)
		return
	}

	// The version is read before the list so a concurrent write can only make
	// the ETag older than the body, never newer.
	v, verr := h.msgs.Version(ctx, chatID)
	items, err := h.msgs.List(ctx, chatID)
	if err != nil {
		failService(c, err)
		return
	}

	// ETag (best effort), only once the chat is known to exist.
	if verr == nil {
		etag := fmt.Sprintf(`W/"messages:%d:%d:%d"`, v.ChatID, v.Count, v.Stamp())
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if inm := c.GetHeader("If-None-Match"); inm != "" && etagMatches(inm, etag) {
			c.Status(http.StatusNotModified)
			return
		}
	}
	ok(c, http.StatusOK, items)
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark messages as read
// @Description Flags as read every message in the chat that the reader did not send. Any registered account may call it; repeating it updates nothing.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.MarkReadRequest  true  "Chat and reader"
//
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad chat id, unknown chat or reader"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mensaje/visto [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ChatID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgBadChatID)
		return
	}
	n, err := h.msgs.MarkRead(c.Request.Context(), uint(req.ChatID), req.FromEmail)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Message: "messages marked as read", Updated: n})
}
