package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a client retry a message post without creating a
// second message.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxIdempotency = "mw.idempotency"

	defaultKeyMaxLen = 200
)

// IdempotencyLookup reports whether a still-valid result is stored for key on
// the matched route pattern. Errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, route, key string, now time.Time) (bool, error)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen int              // longest accepted key; <= 0 means 200
	Now    func() time.Time // clock for the lookup; nil means time.Now
}

type idempotencyState struct {
	key    string
	replay bool
}

// IdempotencyValidator checks the Idempotency-Key header on write requests
// and asks lookup whether the (route, key) pair was already served. It never
// answers the request itself: handlers read the key with GetIdempotencyKey,
// serve the stored result when IsReplay is true, and record new results.
//
// Keys on GET/HEAD/OPTIONS are ignored. A malformed key is rejected with 400
// bad_idempotency_key. Replays skip the rate limiter.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultKeyMaxLen
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || !isWrite(c.Request.Method) {
			c.Next()
			return
		}
		if !validToken(key, maxLen) {
			abortWithError(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}

		st := &idempotencyState{key: key}
		route := c.FullPath()
		if lookup != nil && route != "" {
			hit, err := lookup(c.Request.Context(), route, key, now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case hit:
				st.replay = true
				idempotentReplays.WithLabelValues(route).Inc()
			}
		}
		c.Set(ctxIdempotency, st)
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key of a write request.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	st := idempotencyFrom(c)
	if st == nil {
		return "", false
	}
	return st.key, true
}

// IsReplay reports whether a stored result exists for this request's key.
func IsReplay(c *gin.Context) bool {
	st := idempotencyFrom(c)
	return st != nil && st.replay
}

func idempotencyFrom(c *gin.Context) *idempotencyState {
	v, ok := c.Get(ctxIdempotency)
	if !ok {
		return nil
	}
	st, _ := v.(*idempotencyState)
	return st
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
