// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage backend, mail delivery, upload
// limits, connection-workflow policy, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Reverse-request policies decide what happens when A asks to connect with B
// while B's request to A is still pending.
const (
	ReversePolicyAllow  = "allow"  // create A→B alongside B→A
	ReversePolicyReject = "reject" // refuse A→B as a duplicate
	ReversePolicyAccept = "accept" // accept B→A and open the chat
)

// Supported storage backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-messenger-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and parameterizes the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // PostgreSQL DSN
}

// MailConfig configures the verification-mail sender. An empty Host selects
// the log-only sender.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Uploads / bodies
	UploadDir       string // where attachments are written
	MaxUploadBytes  int64  // multipart cap for /mensajeArchivo
	MaxBodyBytes    int64  // cap for every other request body
	MaxMessageRunes int    // text length cap

	// Accounts
	BcryptCost int
	Mail       MailConfig

	// Connection workflow
	ReverseRequestPolicy  string // allow|reject|accept
	RequireChatMembership bool   // opt-in: senders must belong to the chat

	// Rate limiting (RateRPS == 0 disables the limiter)
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults and
// normalization, and validates the result. Malformed values are reported
// rather than silently replaced by defaults; every problem found is joined
// into the returned error.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           ginMode(e.str("GIN_MODE", "release")),

		LogLevel:       logLevel(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/")),

		DB: DBConfig{
			Driver: driverName(e.str("DB_DRIVER", DriverSQLite)),
			Path:   e.str("DB_PATH", "app.db"),
			URL:    e.str("DATABASE_URL", ""),
		},

		UploadDir:       e.str("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:  int64(e.int("MAX_UPLOAD_BYTES", 10<<20)),
		MaxBodyBytes:    int64(e.int("MAX_BODY_BYTES", 1<<20)),
		MaxMessageRunes: e.int("MAX_MESSAGE_RUNES", 4000),

		BcryptCost: e.int("BCRYPT_COST", 10),
		Mail: MailConfig{
			Host:     e.str("SMTP_HOST", ""),
			Port:     e.int("SMTP_PORT", 587),
			Username: e.str("SMTP_USERNAME", ""),
			Password: e.str("SMTP_PASSWORD", ""),
			From:     e.str("MAIL_FROM", "no-reply@localhost"),
			Timeout:  e.dur("MAIL_TIMEOUT", 10*time.Second),
		},

		ReverseRequestPolicy:  strings.ToLower(e.str("REVERSE_REQUEST_POLICY", ReversePolicyAllow)),
		RequireChatMembership: e.bool("REQUIRE_CHAT_MEMBERSHIP", false),

		RateRPS:   e.float("RATE_RPS", 0),
		RateBurst: e.int("RATE_BURST", 20),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-messenger-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, cfg.validate()
}

// rule is one validation check; msg is reported when ok is false.
type rule struct {
	ok  bool
	msg string
}

func (c Config) validate() error {
	rules := []rule{
		{oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
			"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(c.Port) != "", "PORT must not be empty"},
		{c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
			"timeouts must be positive durations"},
		{c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0"},
		{oneOf(c.DB.Driver, DriverSQLite, DriverPostgres), "DB_DRIVER must be one of: sqlite, postgres"},
		{c.DB.Driver != DriverSQLite || strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty"},
		{c.DB.Driver != DriverPostgres || strings.TrimSpace(c.DB.URL) != "",
			"DATABASE_URL is required when DB_DRIVER=postgres"},
		{strings.TrimSpace(c.UploadDir) != "", "UPLOAD_DIR must not be empty"},
		{c.MaxUploadBytes > 0 && c.MaxBodyBytes > 0, "MAX_UPLOAD_BYTES and MAX_BODY_BYTES must be > 0"},
		{c.MaxMessageRunes >= 1, "MAX_MESSAGE_RUNES must be >= 1"},
		// bcrypt accepts 4..31
		{c.BcryptCost >= 4 && c.BcryptCost <= 31, "BCRYPT_COST must be between 4 and 31"},
		{c.Mail.Host == "" || (c.Mail.Port > 0 && c.Mail.Port <= 65535), "SMTP_PORT must be a valid port"},
		{c.Mail.Timeout > 0, "MAIL_TIMEOUT must be > 0"},
		{oneOf(c.ReverseRequestPolicy, ReversePolicyAllow, ReversePolicyReject, ReversePolicyAccept),
			"REVERSE_REQUEST_POLICY must be one of: allow, reject, accept"},
		{c.RateRPS >= 0, "RATE_RPS must be >= 0"},
		{c.RateBurst >= 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	var errs []error
	for _, r := range rules {
		if !r.ok {
			errs = append(errs, errors.New(r.msg))
		}
	}
	return errors.Join(errs...)
}

// env reads typed values from the process environment. Unset or empty
// variables yield the default; unparsable ones are recorded in errs.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	return v, ok && v != ""
}

func (e *env) fail(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, kind))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

// list splits a comma-separated variable, dropping blank entries.
func (e *env) list(k string) []string {
	v, ok := e.lookup(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func logLevel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "warning" {
		return "warn"
	}
	return v
}

// ginMode falls back to release for anything gin would not recognize.
func ginMode(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if oneOf(v, "debug", "release", "test") {
		return v
	}
	return "release"
}

func driverName(v string) string {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case "sqlite3":
		return DriverSQLite
	case "postgresql", "pg":
		return DriverPostgres
	}
	return v
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
