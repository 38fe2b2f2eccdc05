package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func serve(r *gin.Engine, method, target string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/chats", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"absent", "", false},
		{"token kept", "req-42.a_b:c~d", true},
		{"spaces replaced", "hello world", false},
		{"newline replaced", "a\nb", false},
		{"too long replaced", strings.Repeat("x", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hdr []string
			if tc.in != "" {
				hdr = []string{HeaderRequestID, tc.in}
			}
			w := serve(r, http.MethodGet, "/chats", hdr...)
			got := w.Header().Get(HeaderRequestID)
			if got != seen {
				t.Fatalf("header %q differs from context %q", got, seen)
			}
			if tc.keep {
				if got != tc.in {
					t.Fatalf("got %q; want %q", got, tc.in)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("expected a generated uuid, got %q", got)
			}
		})
	}
}

func TestRecovery_PanicBecomesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.POST("/mensaje", func(*gin.Context) { panic("kaboom") })

	w := serve(r, http.MethodPost, "/mensaje", HeaderRequestID, "rid-panic")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body["code"] != "internal_error" || body["error"] != "internal server error" || body["request_id"] != "rid-panic" {
		t.Fatalf("unexpected body: %v", body)
	}
	out := buf.String()
	if !strings.Contains(out, `"message":"panic recovered"`) || !strings.Contains(out, `"panic":"kaboom"`) {
		t.Fatalf("expected panic log, got:\n%s", out)
	}
}

func TestRecovery_PanicAfterWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.GET("/mensajes", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := serve(r, http.MethodGet, "/mensajes")
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("envelope must not follow a started body: %q", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("fallback still tags request id", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID())
		r.GET("/x", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("fallback")
			c.Status(http.StatusOK)
		})
		serve(r, http.MethodGet, "/x", HeaderRequestID, "rid-fb")
		if !strings.Contains(buf.String(), `"request_id":"rid-fb"`) {
			t.Fatalf("fallback logger lost request id:\n%s", buf.String())
		}
	})

	t.Run("scoped logger reaches services", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), RedactingLogger(RedactOptions{}))
		r.GET("/svc", func(c *gin.Context) {
			zerolog.Ctx(c.Request.Context()).Info().Msg("from-service")
			c.Status(http.StatusOK)
		})
		serve(r, http.MethodGet, "/svc", HeaderRequestID, "ctx-rid")

		var found bool
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if strings.Contains(line, `"message":"from-service"`) {
				found = strings.Contains(line, `"request_id":"ctx-rid"`) && strings.Contains(line, `"route":"/svc"`)
			}
		}
		if !found {
			t.Fatalf("service log should carry request fields, got:\n%s", buf.String())
		}
	})
}

func TestRequestIDFrom_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := RequestIDFrom(c); got != "" {
		t.Fatalf("RequestIDFrom = %q; want empty", got)
	}
}

func Test_validToken(t *testing.T) {
	cases := map[string]bool{
		"":                 false,
		"abc":              true,
		"7a8d9f4c-1b2a":    true,
		"a.b_c~d:e":        true,
		"has space":        false,
		"semi;colon":       false,
		"ñ":                false,
		"retry-7a8d9f4c/2": false,
	}
	for in, want := range cases {
		if got := validToken(in, 16); got != want {
			t.Errorf("validToken(%q) = %v; want %v", in, got, want)
		}
	}
	if validToken(strings.Repeat("a", 17), 16) {
		t.Errorf("length cap not enforced")
	}
}
