package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type lookupCall struct {
	route, key string
	now        time.Time
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, inspect func(*gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		if inspect != nil {
			inspect(c)
		}
		c.Status(http.StatusNoContent)
	}
	r.POST("/mensaje", h)
	r.POST("/mensajeArchivo", h)
	r.GET("/mensajes", h)
	return r
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	r := idemRouter(IdempotencyOptions{}, lookup, func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
			t.Fatalf("no key expected")
		}
	})
	if w := serve(r, http.MethodPost, "/mensaje"); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if called {
		t.Fatalf("lookup must not run without a key")
	}
}

func TestIdempotencyValidator_IgnoredOnReads(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, nil, func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("GET must not carry an idempotency key")
		}
	})
	// Even a malformed key is not an error on a read.
	if w := serve(r, http.MethodGet, "/mensajes", HeaderIdempotencyKey, "not valid!"); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	r := idemRouter(IdempotencyOptions{MaxLen: 8}, nil, nil)
	for _, key := range []string{"has space", "semi;colon", "123456789", "ñandú"} {
		w := serve(r, http.MethodPost, "/mensaje", HeaderIdempotencyKey, key, HeaderRequestID, "rid-idem")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: status = %d", key, w.Code)
		}
		body := decodeEnvelope(t, w)
		if body["code"] != "bad_idempotency_key" || body["error"] != "invalid Idempotency-Key" || body["request_id"] != "rid-idem" {
			t.Fatalf("%q: unexpected body %v", key, body)
		}
	}
}

func TestIdempotencyValidator_DefaultMaxLen(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, nil, nil)
	if w := serve(r, http.MethodPost, "/mensaje", HeaderIdempotencyKey, strings.Repeat("k", defaultKeyMaxLen)); w.Code != http.StatusNoContent {
		t.Fatalf("max length key rejected: %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/mensaje", HeaderIdempotencyKey, strings.Repeat("k", defaultKeyMaxLen+1)); w.Code != http.StatusBadRequest {
		t.Fatalf("over-long key accepted: %d", w.Code)
	}
}

func TestIdempotencyValidator_LookupScopedToRoute(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	var calls []lookupCall
	lookup := func(_ context.Context, route, key string, now time.Time) (bool, error) {
		calls = append(calls, lookupCall{route, key, now})
		return route == "/mensajeArchivo" && key == "k-9", nil
	}

	var gotKey string
	var replay bool
	r := idemRouter(IdempotencyOptions{Now: func() time.Time { return fixed }}, lookup, func(c *gin.Context) {
		gotKey, _ = GetIdempotencyKey(c)
		replay = IsReplay(c)
	})

	before := testutil.ToFloat64(idempotentReplays.WithLabelValues("/mensajeArchivo"))

	serve(r, http.MethodPost, "/mensaje", HeaderIdempotencyKey, "  k-9 ")
	if gotKey != "k-9" || replay {
		t.Fatalf("/mensaje: key=%q replay=%v", gotKey, replay)
	}
	serve(r, http.MethodPost, "/mensajeArchivo", HeaderIdempotencyKey, "k-9")
	if gotKey != "k-9" || !replay {
		t.Fatalf("/mensajeArchivo: key=%q replay=%v", gotKey, replay)
	}

	if len(calls) != 2 || calls[0].route != "/mensaje" || calls[1].route != "/mensajeArchivo" {
		t.Fatalf("unexpected lookups: %+v", calls)
	}
	if !calls[0].now.Equal(fixed) || calls[0].now.Location() != time.UTC {
		t.Fatalf("lookup time should be the injected clock in UTC, got %v", calls[0].now)
	}
	if got := testutil.ToFloat64(idempotentReplays.WithLabelValues("/mensajeArchivo")); got != before+1 {
		t.Fatalf("replay counter = %v; want %v", got, before+1)
	}
}

func TestIdempotencyValidator_LookupErrorIsAMiss(t *testing.T) {
	buf := captureLogger(t)
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		return true, errors.New("db down")
	}
	r := idemRouter(IdempotencyOptions{}, lookup, func(c *gin.Context) {
		if IsReplay(c) {
			t.Fatalf("a failed lookup must not mark a replay")
		}
		if key, ok := GetIdempotencyKey(c); !ok || key != "k-err" {
			t.Fatalf("key should still be available, got %q", key)
		}
	})
	if w := serve(r, http.MethodPost, "/mensaje", HeaderIdempotencyKey, "k-err"); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(buf.String(), "idempotency lookup failed") {
		t.Fatalf("expected warning, got:\n%s", buf.String())
	}
}

func TestIdempotencyAccessors_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatalf("empty context must report nothing")
	}
	c.Set(ctxIdempotency, "garbage")
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatalf("foreign value must be ignored")
	}
}
