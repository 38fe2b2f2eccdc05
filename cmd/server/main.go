// Command server runs the messenger backend HTTP API.
//
// @title       Messenger Backend API
// @version     1.0
// @description Accounts with email verification, connection requests, two-party chats with text and file messages.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/config"
	httpapi "github.com/tbourn/go-messenger-backend/internal/http"
	"github.com/tbourn/go-messenger-backend/internal/mail"
	"github.com/tbourn/go-messenger-backend/internal/observability"
	"github.com/tbourn/go-messenger-backend/internal/repo"
	"github.com/tbourn/go-messenger-backend/internal/storage"
	"github.com/tbourn/go-messenger-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const (
	purgeEvery      = time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.InitLogging(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	gin.SetMode(cfg.GinMode)
	ver := sysutil.Version(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db open")
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentDB(db); err != nil {
			log.Fatal().Err(err).Msg("db tracing")
		}
	}
	res, err := repo.Migrate(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	if res.ChatsRemoved > 0 {
		log.Info().Int64("removed", res.ChatsRemoved).Int64("messages_moved", res.MessagesMoved).Msg("duplicate chats reconciled")
	}
	go purgeIdempotency(ctx, db, purgeEvery)

	mailer, err := mail.New(cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Msg("mailer")
	}
	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("upload dir")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{Mailer: mailer, Files: files}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("db", cfg.DB.Driver).
			Str("base_path", cfg.APIBasePath).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency deletes expired idempotency records until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency purge")
			}
		}
	}
}
