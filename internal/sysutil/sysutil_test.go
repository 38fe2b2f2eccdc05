package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"trace", zerolog.TraceLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func preserveLogging(t *testing.T) {
	t.Helper()
	lvl, global, ctxDefault := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = global
		zerolog.DefaultContextLogger = ctxDefault
	})
}

func TestInitLogging_JSON(t *testing.T) {
	preserveLogging(t)
	var buf bytes.Buffer

	InitLogging("warn", false, &buf)
	log.Info().Msg("dropped")
	zerolog.Ctx(context.Background()).Warn().Str("chat_id", "3").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want exactly one line at warn level, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v (%q)", err, lines[0])
	}
	if rec["message"] != "kept" || rec["chat_id"] != "3" || rec["time"] == nil {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestInitLogging_Pretty(t *testing.T) {
	preserveLogging(t)
	var buf bytes.Buffer

	l := InitLogging("debug", true, &buf)
	l.Debug().Msg("hello console")

	out := buf.String()
	if !strings.Contains(out, "hello console") || strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	// no args -> ""
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	// only empties -> ""
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q; want \"\"", got)
	}
	// picks first non-empty (preserves original spacing)
	if got := FirstNonEmpty("   ", "  hello  ", "world"); got != "  hello  " {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "  hello  ")
	}
}

func TestVersion(t *testing.T) {
	t.Setenv("APP_VERSION", "1.4.0")
	if got := Version("2.0.0"); got != "2.0.0" {
		t.Fatalf("linked version should win, got %q", got)
	}
	if got := Version(""); got != "1.4.0" {
		t.Fatalf("APP_VERSION fallback, got %q", got)
	}

	t.Setenv("APP_VERSION", "")
	if got := Version(""); got == "" {
		t.Fatalf("Version must never be empty")
	}
}
