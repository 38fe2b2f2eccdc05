// Account HTTP handlers.
//
// Endpoints:
//   - POST /registrar  (create an account and mail a verification code)
//   - POST /verificar  (confirm the mailed code)
//   - POST /login      (check credentials, return the public profile)
//   - GET  /usuario    (public profile lookup by email)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messenger-backend/internal/services"
)

//
// DTOs
//

// RegisterRequest is the JSON payload for POST /registrar.
type RegisterRequest struct {
	Name     string `json:"name"     example:"Alice"`
	Email    string `json:"email"    example:"alice@example.com"`
	Password string `json:"password" example:"s3cret"`
}

// RegisterResponse confirms a registration.
type RegisterResponse struct {
	Message string `json:"message" example:"account registered, check your email for the verification code"`
	Email   string `json:"email"   example:"alice@example.com"`
}

// VerifyRequest is the JSON payload for POST /verificar.
type VerifyRequest struct {
	Email string `json:"email" example:"alice@example.com"`
	Code  string `json:"code"  example:"042917"`
}

// LoginRequest is the JSON payload for POST /login.
type LoginRequest struct {
	Email    string `json:"email"    example:"alice@example.com"`
	Password string `json:"password" example:"s3cret"`
}

// bindJSON decodes the body into dst or writes a 400 (413 when the body
// limit was hit).
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Register an account
// @Description Creates an unverified account and mails a 6-digit verification code. Mail failures do not fail the registration.
// @Tags        Accounts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterRequest  true  "Account details"
//
// @Success     200  {object}  handlers.RegisterResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing field or email already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /registrar [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, RegisterResponse{
		Message: "account registered, check your email for the verification code",
		Email:   a.Email,
	})
}

// Verify godoc
// @ID          verify
// @Summary     Verify an account
// @Description Marks the account verified when the code matches. Repeating a successful verification succeeds.
// @Tags        Accounts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.VerifyRequest  true  "Email and code"
//
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Wrong code"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /verificar [post]
func (h *Handlers) Verify(c *gin.Context) {
	var req VerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.accounts.Verify(c.Request.Context(), req.Email, req.Code); err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "account verified"})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Checks the password and returns the public profile. Unverified accounts may log in.
// @Tags        Accounts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown email or wrong password"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// GetUser godoc
// @ID          getUser
// @Summary     Look up an account
// @Tags        Accounts
// @Produce     json
//
// @Param       email  query  string  true  "Account email"  example(alice@example.com)
//
// @Success     200  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Missing email"
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /usuario [get]
func (h *Handlers) GetUser(c *gin.Context) {
	email, okQ := emailQuery(c)
	if !okQ {
		return
	}
	p, err := h.accounts.Profile(c.Request.Context(), email)
	if err != nil {
		// The one lookup that answers 404 rather than 400.
		if errors.Is(err, services.ErrAccountNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
