// Connection request HTTP handlers.
//
// Endpoints:
//   - POST /solicitud          (send a request from one account to another)
//   - GET  /solicitudes        (pending requests addressed to an account)
//   - POST /solicitud/aceptar  (accept a request, creating the chat)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/utils"
)

//
// DTOs
//

// SendRequestRequest is the JSON payload for POST /solicitud.
type SendRequestRequest struct {
	FromEmail string `json:"fromEmail" example:"alice@example.com"`
	ToEmail   string `json:"toEmail"   example:"bob@example.com"`
}

// AcceptRequestRequest is the JSON payload for POST /solicitud/aceptar.
// RequestID accepts a number or a numeric string.
type AcceptRequestRequest struct {
	RequestID utils.ID `json:"requestId" swaggertype:"integer" example:"12"`
}

// ChatResponse carries a confirmation and the chat it refers to. Chat is
// omitted when a request was merely recorded.
type ChatResponse struct {
	Message string           `json:"message" example:"request accepted"`
	Chat    *domain.ChatInfo `json:"chat,omitempty"`
}

//
// Handlers
//

// SendRequest godoc
// @ID          sendRequest
// @Summary     Send a connection request
// @Description Records a pending request. When the recipient already asked the sender, the outcome follows the configured reverse-request policy; under "accept" the response carries the new chat.
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SendRequestRequest  true  "Sender and recipient"
//
// @Success     200  {object}  handlers.ChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown account, self request, duplicate or existing chat"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /solicitud [post]
func (h *Handlers) SendRequest(c *gin.Context) {
	var req SendRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.conns.SendRequest(c.Request.Context(), req.FromEmail, req.ToEmail)
	if err != nil {
		failService(c, err)
		return
	}
	if res.Chat != nil {
		ok(c, http.StatusOK, ChatResponse{Message: "request accepted", Chat: res.Chat})
		return
	}
	ok(c, http.StatusOK, ChatResponse{Message: "request sent"})
}

// ListRequests godoc
// @ID          listRequests
// @Summary     List pending requests
// @Description Pending requests addressed to the account, oldest first, with the requester's name and email.
// @Tags        Requests
// @Produce     json
//
// @Param       email  query  string  true  "Recipient email"  example(bob@example.com)
//
// @Success     200  {array}   domain.PendingRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Missing email or unknown account"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /solicitudes [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	email, okQ := emailQuery(c)
	if !okQ {
		return
	}
	items, err := h.conns.ListPending(c.Request.Context(), email)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// AcceptRequest godoc
// @ID          acceptRequest
// @Summary     Accept a connection request
// @Description Marks the request accepted and returns the chat for the pair, creating it if needed. Accepting again returns the same chat.
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.AcceptRequestRequest  true  "Request id"
//
// @Success     200  {object}  handlers.ChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id or request not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /solicitud/aceptar [post]
func (h *Handlers) AcceptRequest(c *gin.Context) {
	var req AcceptRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RequestID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "requestId must be a positive integer")
		return
	}
	chat, err := h.conns.Accept(c.Request.Context(), uint(req.RequestID))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ChatResponse{Message: "request accepted", Chat: chat})
}
