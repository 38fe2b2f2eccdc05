// Package services defines the business logic for accounts, connection
// requests, chats, and messages. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Input errors.
var (
	// ErrMissingField is returned when a required input is blank.
	ErrMissingField = errors.New("missing required field")

	// ErrEmptyMessage is returned when a message carries neither text nor a file.
	ErrEmptyMessage = errors.New("message needs text or a file")

	// ErrTooLong is returned when message text exceeds the configured rune limit.
	ErrTooLong = errors.New("message too long")
)

// Account errors.
var (
	// ErrAccountNotFound indicates that no account is registered under the email.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCode is returned when the email/code pair does not match.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrInvalidCredential is returned when the password does not match.
	ErrInvalidCredential = errors.New("invalid password")
)

// Connection errors.
var (
	// ErrSelfRequest is returned when an account asks to connect with itself.
	ErrSelfRequest = errors.New("cannot send a request to yourself")

	// ErrDuplicateRequest is returned when an equivalent pending request exists.
	ErrDuplicateRequest = errors.New("request already pending")

	// ErrChatExists is returned when the two accounts already share a chat.
	ErrChatExists = errors.New("chat already exists")

	// ErrRequestNotFound indicates that the connection request does not exist.
	ErrRequestNotFound = errors.New("request not found")
)

// Chat errors.
var (
	// ErrChatNotFound indicates that the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrNotChatMember is returned when the sender does not belong to the chat.
	ErrNotChatMember = errors.New("sender is not a member of this chat")
)
