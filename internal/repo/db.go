// Package repo is the GORM persistence layer for accounts, connection
// requests, chats, messages and idempotency records. Functions take the
// *gorm.DB explicitly so services can pass a transaction instead.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/config"
	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// Open selects the backend named by cfg.Driver.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(cfg.Path)
	case config.DriverPostgres:
		return OpenPostgres(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// sqlitePragmas travel in the DSN so the driver runs them on every pooled
// connection, not only the first one. busy_timeout goes first so the rest can
// wait out a concurrent writer.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// sqliteDSN appends sqlitePragmas to path as _pragma query parameters.
func sqliteDSN(path string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// pool bounds the database/sql connection pool behind a *gorm.DB.
type pool struct {
	maxOpen, maxIdle int
	idleTime, life   time.Duration
}

var (
	sqlitePool   = pool{maxOpen: 10, maxIdle: 10, idleTime: 5 * time.Minute, life: 30 * time.Minute}
	postgresPool = pool{maxOpen: 25, maxIdle: 10, idleTime: 5 * time.Minute, life: 30 * time.Minute}
)

func (p pool) apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxIdleTime(p.idleTime)
	sqlDB.SetConnMaxLifetime(p.life)
	return nil
}

// OpenSQLite opens (or creates) the database file at path. The parent
// directory must already exist; SQLite's own error for that case is opaque.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := sqlitePool.apply(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenPostgres connects to a PostgreSQL server using a URL or key/value DSN.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := postgresPool.apply(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the tables for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.ConnectionRequest{},
		&domain.Chat{},
		&domain.Message{},
		&domain.Idempotency{},
	)
}

// Migrate brings the schema up to date and then repairs legacy data so the
// pair uniqueness indexes can be created:
//
//  1. AutoMigrate all models.
//  2. Collapse duplicate pending requests per ordered pair (lowest id wins).
//  3. Reconcile duplicate chats per unordered pair, moving their messages.
//  4. Store every chat pair in (low, high) order.
//  5. Create ux_chats_pair and the partial ux_requests_pending index.
//
// It is safe to run on every start.
func Migrate(ctx context.Context, db *gorm.DB) (ReconcileResult, error) {
	if err := AutoMigrate(db); err != nil {
		return ReconcileResult{}, err
	}
	if _, err := DedupePendingRequests(ctx, db); err != nil {
		return ReconcileResult{}, fmt.Errorf("dedupe requests: %w", err)
	}
	res, err := ReconcileDuplicateChats(ctx, db)
	if err != nil {
		return res, fmt.Errorf("reconcile chats: %w", err)
	}
	if err := NormalizeChatPairs(ctx, db); err != nil {
		return res, fmt.Errorf("normalize chats: %w", err)
	}
	if err := EnsureIndexes(ctx, db); err != nil {
		return res, fmt.Errorf("create indexes: %w", err)
	}
	return res, nil
}

// EnsureIndexes creates the uniqueness indexes that back the one-chat-per-pair
// and one-pending-request-per-ordered-pair rules. Both statements are valid on
// SQLite and PostgreSQL.
func EnsureIndexes(ctx context.Context, db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_chats_pair ON chats (user1_id, user2_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_requests_pending ON connection_requests (requester_id, recipient_id) WHERE status = 'pending'`,
	}
	for _, s := range stmts {
		if err := db.WithContext(ctx).Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
