package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// emit logs one event through a fresh handler and returns the written line.
func emit(t *testing.T, format logFormat, ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{level: slog.LevelDebug, writer: aw, format: format})
	LogEvent(ctx, slog.New(h).With("component", component), level, event, attrs...)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line")
	}
	return line
}

func TestKVLineFollowsKeyOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "rid-123"), 42, 7, 9)
	line := emit(t, formatKV, ctx, "app", slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	tokens := strings.Split(line, " ")
	want := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(want) {
		t.Fatalf("too few tokens: %s", line)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, want prefix %s", i, tokens[i], prefix)
		}
	}
	if tokens[len(tokens)-1] != "cause=unit" {
		t.Fatalf("cause should come last: %s", line)
	}
}

func TestJSONLineFollowsKeyOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "rid-json"), 11, 22, 33)
	line := emit(t, formatJSON, ctx, "auth", slog.LevelError, "token.acquire",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	pos := -1
	for _, part := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"auth"`, `"event":"token.acquire"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`} {
		idx := strings.Index(line, part)
		if idx == -1 || idx < pos {
			t.Fatalf("%s missing or out of order in %s", part, line)
		}
		pos = idx
	}
}

func TestRIDIsCompacted(t *testing.T) {
	raw := "123:456:789"
	kv := emit(t, formatKV, WithRID(Background(), raw), "app", slog.LevelInfo, "rid.test")
	if !strings.Contains(kv, "rid="+CompactRID(raw)) || strings.Contains(kv, "rid_full=") {
		t.Fatalf("KV output should carry only the compact rid: %s", kv)
	}

	js := emit(t, formatJSON, WithRID(Background(), raw), "app", slog.LevelInfo, "rid.test")
	for _, want := range []string{`"rid":"` + CompactRID(raw) + `"`, `"rid_full":"` + raw + `"`, `"ts_unix_nano"`} {
		if !strings.Contains(js, want) {
			t.Fatalf("expected %s in %s", want, js)
		}
	}
}

func TestDurationsBecomeMilliseconds(t *testing.T) {
	line := emit(t, formatKV, Background(), "backend", slog.LevelDebug, "request.done",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("remaining", 42*time.Second),
		slog.Duration("startup_duration", 3*time.Millisecond),
	)
	for _, want := range []string{"duration_ms=2", "remaining_ms=42000", "startup_duration_ms=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestUnknownOutcomeDroppedStatusLowercased(t *testing.T) {
	line := emit(t, formatKV, Background(), "feedback", slog.LevelInfo, "session.capture",
		slog.String("outcome", "exploded"),
		slog.String("status", "OK"),
	)
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped: %s", line)
	}
	if !strings.Contains(line, "status=ok") {
		t.Fatalf("status should be normalized: %s", line)
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	line := emit(t, formatJSON, Background(), "auth", slog.LevelInfo, "token.debug",
		slog.String("password", "hunter2"),
		slog.Group("pair", slog.String("access", "eyJhbGciOi"), slog.String("refresh", "r-1")),
	)
	for _, leaked := range []string{"hunter2", "eyJhbGciOi", "r-1"} {
		if strings.Contains(line, leaked) {
			t.Fatalf("secret %q leaked: %s", leaked, line)
		}
	}
	if !strings.Contains(line, `"pair.access":"[redacted]"`) {
		t.Fatalf("grouped secret not redacted by leaf key: %s", line)
	}
}

func TestGroupsPrefixKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{writer: aw, format: formatKV})

	log := slog.New(h).With("component", "app").WithGroup("req").With("id", "abc")
	log.WithGroup("inner").Info("grouped", slog.Int("n", 1))
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"req.id=abc", "req.inner.n=1", "event=grouped"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestSanitizeLimitStripsControlRunes(t *testing.T) {
	if got := SanitizeLimit("he\x00llo\u200b world", 5); got != "hello…" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if SanitizeLimit("short", 10) != "short" {
		t.Fatal("short strings must pass through")
	}
}
