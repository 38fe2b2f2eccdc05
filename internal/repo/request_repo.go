// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConnectionRequest model.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// FindPendingRequest returns the pending request from requesterID to
// recipientID, or ErrNotFound. Direction matters.
func FindPendingRequest(ctx context.Context, db *gorm.DB, requesterID, recipientID uint) (*domain.ConnectionRequest, error) {
	var r domain.ConnectionRequest
	err := db.WithContext(ctx).
		Where("requester_id = ? AND recipient_id = ? AND status = ?", requesterID, recipientID, domain.StatusPending).
		Order("id ASC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreatePendingRequest inserts a pending request. A concurrent insert for the
// same ordered pair loses against ux_requests_pending and yields ErrDuplicate.
func CreatePendingRequest(ctx context.Context, db *gorm.DB, requesterID, recipientID uint) (*domain.ConnectionRequest, error) {
	r := &domain.ConnectionRequest{
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      domain.StatusPending,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(r)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, ErrDuplicate
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return r, nil
}

// ListPendingFor returns the pending requests addressed to recipientID joined
// with the requester's identity, oldest first.
func ListPendingFor(ctx context.Context, db *gorm.DB, recipientID uint) ([]domain.PendingRequest, error) {
	out := []domain.PendingRequest{}
	err := db.WithContext(ctx).
		Table("connection_requests AS r").
		Select("r.id AS id, a.name AS name, a.email AS email, r.created_at AS created_at").
		Joins("JOIN accounts a ON a.id = r.requester_id").
		Where("r.recipient_id = ? AND r.status = ?", recipientID, domain.StatusPending).
		Order("r.created_at ASC, r.id ASC").
		Scan(&out).Error
	return out, err
}

// GetRequest fetches a request by id regardless of its status.
func GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.ConnectionRequest, error) {
	var r domain.ConnectionRequest
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkRequestAccepted flips the request to accepted. Accepting an already
// accepted request is a no-op that still succeeds.
func MarkRequestAccepted(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.ConnectionRequest{}).
		Where("id = ?", id).
		Update("status", domain.StatusAccepted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DedupePendingRequests deletes every pending request except the lowest id
// per ordered (requester, recipient) pair. It returns the number of rows
// removed.
func DedupePendingRequests(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Exec(`
DELETE FROM connection_requests
WHERE status = ?
  AND id NOT IN (
    SELECT keep_id FROM (
      SELECT MIN(id) AS keep_id
      FROM connection_requests
      WHERE status = ?
      GROUP BY requester_id, recipient_id
    ) survivors
  )`, domain.StatusPending, domain.StatusPending)
	return res.RowsAffected, res.Error
}
