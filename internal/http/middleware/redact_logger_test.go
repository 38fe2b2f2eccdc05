package middleware

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_ScrubsQueryAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{HeaderIdempotencyKey}}))
	r.GET("/usuario", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	q := "email=a.b+tag@example.com&phone=+1-555-123-4567&id=123e4567-e89b-12d3-a456-426614174000"
	w := serve(r, http.MethodGet, "/usuario?"+q,
		"Authorization", "Bearer secret",
		"Cookie", "sid=topsecret",
		HeaderIdempotencyKey, "retry-1",
		"X-Note", "email a@b.com id=123e4567-e89b-12d3-a456-426614174000 phone 555-123-4567",
		HeaderRequestID, "rid-1",
	)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"route":"/usuario"`,
		`"request_id":"rid-1"`,
		`"message":"http_request"`,
		`[REDACTED:email]`, `[REDACTED:phone]`, `[REDACTED:id]`,
		`"Authorization":"[REDACTED]"`,
		`"Cookie":"[REDACTED]"`,
		`"Idempotency-Key":"[REDACTED]"`,
		`"X-Note":"email [REDACTED:email] id=[REDACTED:id] phone [REDACTED:phone]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("missing %s in:\n%s", want, logs)
		}
	}
	for _, leak := range []string{"example.com", "topsecret", "retry-1"} {
		if strings.Contains(logs, leak) {
			t.Errorf("%q leaked into logs", leak)
		}
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		handler gin.HandlerFunc
		level   string
		extra   string
	}{
		{"2xx info", func(c *gin.Context) { c.Status(http.StatusOK) }, "info", ""},
		{"4xx warn", func(c *gin.Context) { c.Status(http.StatusNotFound) }, "warn", ""},
		{"5xx error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) }, "error", ""},
		{"recorded error", func(c *gin.Context) {
			_ = c.Error(errors.New("disk full"))
			c.Status(http.StatusBadRequest)
		}, "error", `"errors":"Error #01: disk full`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogger(t)
			r := gin.New()
			r.Use(RedactingLogger(RedactOptions{}))
			r.GET("/x", tc.handler)
			serve(r, http.MethodGet, "/x")

			logs := buf.String()
			if !strings.Contains(logs, `"level":"`+tc.level+`"`) {
				t.Fatalf("want level %s, got:\n%s", tc.level, logs)
			}
			if tc.extra != "" && !strings.Contains(logs, tc.extra) {
				t.Fatalf("want %s, got:\n%s", tc.extra, logs)
			}
		})
	}
}

func TestRedactingLogger_LookupEmailNeverLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/chats", func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, http.MethodGet, "/chats?email=alice%40x.io&email=bob@x.io")

	logs := buf.String()
	if strings.Contains(logs, "bob@x.io") || strings.Contains(logs, "alice%40x.io") {
		t.Fatalf("raw email leaked to logs: %s", logs)
	}
	if !strings.Contains(logs, `"query":"email=[REDACTED:email]&email=[REDACTED:email]"`) {
		t.Fatalf("unexpected query field: %s", logs)
	}
}

func TestRedactingLogger_UnmatchedPathIsScrubbed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	serve(r, http.MethodGet, "/u/carol@x.io")

	if logs := buf.String(); strings.Contains(logs, "carol@x.io") || !strings.Contains(logs, `"route":"/u/[REDACTED:email]"`) {
		t.Fatalf("unmatched path not scrubbed: %s", logs)
	}
}

func TestRedact(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"plain", "plain"},
		{"a@b.io", "[REDACTED:email]"},
		{"call 212 555 1212", "call [REDACTED:phone]"},
		{"id 123e4567-e89b-12d3-a456-426614174000", "id [REDACTED:id]"},
	}
	for _, tc := range cases {
		if got := Redact(tc.in); got != tc.want {
			t.Fatalf("Redact(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func Test_scrubQuery_Truncates(t *testing.T) {
	got := scrubQuery("chatId=" + strings.Repeat("9", maxLoggedQuery))
	if len(got) != maxLoggedQuery+len("…") || !strings.HasSuffix(got, "…") {
		t.Fatalf("len=%d suffix=%q", len(got), got[len(got)-5:])
	}
}
