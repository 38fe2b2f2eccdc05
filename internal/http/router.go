// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, compression,
// metrics, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-messenger-backend/docs" // registers the OpenAPI document
	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/config"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/http/handlers"
	"github.com/tbourn/go-messenger-backend/internal/http/middleware"
	"github.com/tbourn/go-messenger-backend/internal/mail"
	"github.com/tbourn/go-messenger-backend/internal/repo"
	"github.com/tbourn/go-messenger-backend/internal/services"
	"github.com/tbourn/go-messenger-backend/internal/storage"
)

// uploadRoute is the only route whose body may exceed MaxBodyBytes.
const uploadRoute = "/mensajeArchivo"

// multipartOverhead leaves room for the form fields and part headers around
// an attachment of MaxUploadBytes.
const multipartOverhead = 64 << 10

// chatRepoShim adapts the repository free functions to the services.ChatRepo
// interface expected by the ChatService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type chatRepoShim struct{}

// ListChatSummaries proxies repo.ListChatSummaries.
func (chatRepoShim) ListChatSummaries(ctx context.Context, db *gorm.DB, accountID uint) ([]domain.ChatSummary, error) {
	return repo.ListChatSummaries(ctx, db, accountID)
}

// ReconcileDuplicateChats proxies repo.ReconcileDuplicateChats.
func (chatRepoShim) ReconcileDuplicateChats(ctx context.Context, db *gorm.DB) (repo.ReconcileResult, error) {
	return repo.ReconcileDuplicateChats(ctx, db)
}

// Deps are the collaborators built once in main and shared by all requests.
type Deps struct {
	Mailer mail.Mailer
	Files  *storage.FileStore
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, static
// uploads, and then mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Compression (skips /metrics and /uploads)
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per IP, bypass on replay; off when RateRPS is 0)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Dependency injection: services ← repo/db/mailer
	accountSvc := services.NewAccountService(db, auth.NewHasher(cfg.BcryptCost), deps.Mailer)
	connSvc := services.NewConnectionService(db, cfg.ReverseRequestPolicy)
	msgSvc := &services.MessageService{
		DB:                db,
		RequireMembership: cfg.RequireChatMembership,
		MaxRunes:          cfg.MaxMessageRunes,
		IdempotencyTTL:    cfg.IdempotencyTTL,
	}
	chatSvc := services.NewChatService(db, chatRepoShim{})

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Response compression; scrapes and stored files are left alone
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", storage.PublicPrefix})))

	// 6) Body size limits
	uploadPath := joinPath(cfg.APIBasePath, uploadRoute)
	r.Use(limitBody(cfg.MaxBodyBytes, map[string]int64{
		uploadPath: cfg.MaxUploadBytes + multipartOverhead,
	}))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		msgSvc.IdempotencyExists,
	))

	// 9) Token-bucket rate limiter per IP
	if cfg.RateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP()).
			Exempt("/health", "/metrics")
		r.Use(rl.Handler())
	}

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS). API
	// responses are not cached; attachments and docs are.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:        cfg.Security.EnableHSTS,
		HSTSMaxAge:        cfg.Security.HSTSMaxAge,
		NoStore:           true,
		EnablePolicy:      true,
		CacheablePrefixes: []string{storage.PublicPrefix, "/swagger"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Stored attachments
	if deps.Files != nil {
		r.Static(storage.PublicPrefix, deps.Files.Dir)
	}

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var files handlers.FileStore
	if deps.Files != nil {
		files = deps.Files
	}
	h := handlers.New(accountSvc, connSvc, msgSvc, chatSvc, files, cfg.MaxUploadBytes)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Accounts
		api.POST("/registrar", h.Register)
		api.POST("/verificar", h.Verify)
		api.POST("/login", h.Login)
		api.GET("/usuario", h.GetUser)

		// Connection requests
		api.POST("/solicitud", h.SendRequest)
		api.GET("/solicitudes", h.ListRequests)
		api.POST("/solicitud/aceptar", h.AcceptRequest)

		// Messages
		api.POST("/mensaje", h.PostMessage)
		api.POST(uploadRoute, h.PostFileMessage)
		api.GET("/mensajes", h.ListMessages)
		api.POST("/mensaje/visto", h.MarkRead)

		// Chats
		api.GET("/chats", h.ListChats)
		api.GET("/limpiarChatsDuplicados", h.ReconcileChats)
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader, or to the override registered for the
// matched route. Requests exceeding the cap will cause downstream body reads
// to error. A cap <= 0 disables the limit.
func limitBody(maxBytes int64, perRoute map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if v, ok := perRoute[c.FullPath()]; ok {
			limit = v
		}
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath returns the full route pattern of path mounted under prefix.
func joinPath(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	return prefix + path
}
