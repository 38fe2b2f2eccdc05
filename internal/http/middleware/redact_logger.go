package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxLoggedQuery caps the logged query string in bytes.
const maxLoggedQuery = 2048

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked in full in addition to Authorization, Cookie and
	// Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside UUIDs never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact replaces UUIDs, email addresses and phone numbers in s with
// placeholders. UUIDs go first so the phone pattern cannot eat their digits.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger is the access logger. Lookups such as /usuario?email= and
// /chats?email= put addresses in the URL, so the query and every header value
// are scrubbed before logging; bodies are never logged.
//
// It also installs the request-scoped logger returned by LoggerFrom and by
// zerolog.Ctx on the request context, tagged with request_id, method, route
// and client IP.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]bool{"authorization": true, "cookie": true, "set-cookie": true}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = true
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", Redact(route)).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(ctxLogger, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		query := scrubQuery(c.Request.URL.RawQuery)
		headers := scrubHeaders(c.Request.Header, masked)

		c.Next()

		status := c.Writer.Status()
		var errs string
		if len(c.Errors) > 0 {
			errs = c.Errors.String()
		}
		ev := eventFor(&l, status, errs)
		ev.Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

func scrubQuery(raw string) string {
	if q, err := url.QueryUnescape(raw); err == nil {
		raw = q
	}
	s := Redact(raw)
	if len(s) > maxLoggedQuery {
		s = s[:maxLoggedQuery] + "…"
	}
	return s
}

func scrubHeaders(h http.Header, masked map[string]bool) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if masked[strings.ToLower(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = Redact(strings.Join(vv, ", "))
	}
	return out
}

// eventFor logs at error for 5xx or recorded handler errors, warn for 4xx,
// info otherwise.
func eventFor(l *zerolog.Logger, status int, errs string) *zerolog.Event {
	switch {
	case errs != "":
		return l.Error().Str("errors", errs)
	case status >= 500:
		return l.Error()
	case status >= 400:
		return l.Warn()
	default:
		return l.Info()
	}
}
