// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic error codes written into ErrorResponse
// and the translation of service errors into (status, code, message).
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes (bad_request, not_found, conflict) mirror HTTP semantics;
//     domain codes (invalid_code, not_member) name failures the status cannot
//     convey alone.
//   - Workflow failures answer 400 even for missing records, the contract
//     existing clients were written against. Only GET /usuario uses 404.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "error": "request already pending"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messenger-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"

	// Domain-specific:
	ErrCodeInvalidCode        = "invalid_code"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeNotMember          = "not_member"
	ErrCodeUploadFailed       = "upload_failed"
)

// msgInternal is the only text a client sees for unexpected failures.
const msgInternal = "internal server error"

// mapServiceError translates a service error into status, code and message.
// Unknown errors map to 500 with a generic message.
func mapServiceError(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrMissingField),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrSelfRequest):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrChatNotFound):
		return http.StatusBadRequest, ErrCodeNotFound, err.Error()
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrChatExists):
		return http.StatusBadRequest, ErrCodeConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCode):
		return http.StatusBadRequest, ErrCodeInvalidCode, err.Error()
	case errors.Is(err, services.ErrInvalidCredential):
		return http.StatusBadRequest, ErrCodeInvalidCredentials, err.Error()
	case errors.Is(err, services.ErrNotChatMember):
		return http.StatusBadRequest, ErrCodeNotMember, err.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternal, msgInternal
	}
}

// failService writes the envelope for a service error. The raw error is
// attached to the Gin context so the access log and 5xx log carry it.
func failService(c *gin.Context, err error) {
	status, code, msg := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, status, code, msg)
}
