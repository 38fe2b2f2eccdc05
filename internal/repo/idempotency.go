package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// ErrDuplicate indicates that a row violating a uniqueness rule already
// exists: a registered email, a pending request for the same ordered pair, or
// a replay record for the same ReplayKey.
var ErrDuplicate = errors.New("duplicate")

// ReplayKey is an Idempotency-Key scoped to the route pattern it was sent to.
// The same key on /mensaje and /mensajeArchivo names two different sends.
type ReplayKey struct {
	Route string
	Key   string
}

func (k ReplayKey) blank() bool {
	return strings.TrimSpace(k.Route) == "" || strings.TrimSpace(k.Key) == ""
}

// LookupReplay returns the record stored for k if it is still live at now,
// or ErrNotFound.
func LookupReplay(ctx context.Context, db *gorm.DB, k ReplayKey, now time.Time) (*domain.Idempotency, error) {
	if k.blank() {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where(&domain.Idempotency{Route: k.Route, Key: k.Key}).
		Where("expires_at > ?", now).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordReplay stores messageID as the outcome of k, live for ttl from now.
// A second record for the same k yields ErrDuplicate, even when the first
// one has expired but not yet been purged.
func RecordReplay(ctx context.Context, db *gorm.DB, k ReplayKey, messageID uint, status int, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	if k.blank() {
		return nil, errors.New("replay key must name a route and a key")
	}
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Route:     k.Route,
		Key:       k.Key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	switch {
	case err == nil:
		return rec, nil
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	default:
		return nil, err
	}
}

// PurgeExpiredIdempotency deletes records whose TTL has elapsed at now and
// reports how many went.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// uniqueViolationMarkers are the message fragments the two drivers use for
// unique-constraint failures: SQLite spells the constraint out and
// PostgreSQL reports SQLSTATE 23505.
var uniqueViolationMarkers = []string{
	"unique constraint failed",
	"constraint failed: unique",
	"sqlstate 23505",
	"duplicate key value",
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	for _, m := range uniqueViolationMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}
