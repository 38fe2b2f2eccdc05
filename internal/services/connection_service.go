// Package services – ConnectionService
//
// This file implements the connection workflow. A request moves from pending
// to accepted and never back; accepting it makes sure exactly one chat exists
// for the two accounts.
//
// Uniqueness is enforced twice: a lookup before each insert gives precise
// errors, and the storage-level unique indexes turn any racing insert into a
// no-op that the repository reports as a duplicate.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/config"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

// ConnectionService sends, lists and accepts connection requests.
type ConnectionService struct {
	DB *gorm.DB

	// ReversePolicy decides what a request does when the recipient already
	// has a pending request to the sender: config.ReversePolicyAllow,
	// ReversePolicyReject or ReversePolicyAccept.
	ReversePolicy string
}

// NewConnectionService wires a ConnectionService. An empty policy means allow.
func NewConnectionService(db *gorm.DB, policy string) *ConnectionService {
	if policy == "" {
		policy = config.ReversePolicyAllow
	}
	return &ConnectionService{DB: db, ReversePolicy: policy}
}

// SendResult is the outcome of SendRequest. Exactly one field is set: Request
// for a newly created pending request, Chat when the reverse request was
// accepted instead.
type SendResult struct {
	Request *domain.ConnectionRequest
	Chat    *domain.ChatInfo
}

// SendRequest asks toEmail to connect with fromEmail.
//
// Errors: ErrAccountNotFound, ErrSelfRequest, ErrDuplicateRequest (pending
// request for the same direction, or the reverse one under the reject
// policy), ErrChatExists.
func (s *ConnectionService) SendRequest(ctx context.Context, fromEmail, toEmail string) (*SendResult, error) {
	ctx, span := otel.Tracer("services/ConnectionService").Start(ctx, "SendRequest",
		trace.WithAttributes(attribute.String("policy", s.ReversePolicy)))
	defer span.End()

	from, err := lookupAccount(ctx, s.DB, fromEmail)
	if err != nil {
		return nil, err
	}
	to, err := lookupAccount(ctx, s.DB, toEmail)
	if err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return nil, ErrSelfRequest
	}

	if _, err := repo.FindPendingRequest(ctx, s.DB, from.ID, to.ID); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if _, err := repo.FindChatByPair(ctx, s.DB, from.ID, to.ID); err == nil {
		return nil, ErrChatExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if s.ReversePolicy != config.ReversePolicyAllow {
		reverse, err := repo.FindPendingRequest(ctx, s.DB, to.ID, from.ID)
		switch {
		case err == nil && s.ReversePolicy == config.ReversePolicyReject:
			return nil, ErrDuplicateRequest
		case err == nil && s.ReversePolicy == config.ReversePolicyAccept:
			info, aerr := s.Accept(ctx, reverse.ID)
			if aerr != nil {
				return nil, aerr
			}
			connectionRequests.WithLabelValues("auto_accepted").Inc()
			return &SendResult{Chat: info}, nil
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
	}

	r, err := repo.CreatePendingRequest(ctx, s.DB, from.ID, to.ID)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}
	connectionRequests.WithLabelValues("created").Inc()
	return &SendResult{Request: r}, nil
}

// ListPending returns the requests waiting for email to accept, oldest first.
func (s *ConnectionService) ListPending(ctx context.Context, email string) ([]domain.PendingRequest, error) {
	ctx, span := otel.Tracer("services/ConnectionService").Start(ctx, "ListPending")
	defer span.End()

	a, err := lookupAccount(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	return repo.ListPendingFor(ctx, s.DB, a.ID)
}

// Accept marks the request accepted and returns the chat for the pair,
// creating it if needed. Both steps run in one transaction. Accepting an
// already accepted request returns the same chat.
func (s *ConnectionService) Accept(ctx context.Context, requestID uint) (*domain.ChatInfo, error) {
	ctx, span := otel.Tracer("services/ConnectionService").Start(ctx, "Accept",
		trace.WithAttributes(attribute.Int64("request.id", int64(requestID))))
	defer span.End()

	var info domain.ChatInfo
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if err := repo.MarkRequestAccepted(ctx, tx, r.ID); err != nil {
			return err
		}

		chat, err := repo.FindChatByPair(ctx, tx, r.RequesterID, r.RecipientID)
		if errors.Is(err, repo.ErrNotFound) {
			chat, err = repo.CreateChat(ctx, tx, r.RequesterID, r.RecipientID)
		}
		if err != nil {
			return err
		}

		requester, err := repo.GetAccount(ctx, tx, r.RequesterID)
		if err != nil {
			return err
		}
		recipient, err := repo.GetAccount(ctx, tx, r.RecipientID)
		if err != nil {
			return err
		}
		info = domain.ChatInfo{
			ChatID: chat.ID,
			Members: [2]domain.Member{
				{Name: requester.Name, Email: requester.Email},
				{Name: recipient.Name, Email: recipient.Email},
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	connectionRequests.WithLabelValues("accepted").Inc()
	span.SetAttributes(attribute.Int64("chat.id", int64(info.ChatID)))
	return &info, nil
}
