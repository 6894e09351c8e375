package log

import (
	"bytes"
	"encoding/json"
	"errors"
	stdlog "log"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, f Formatter, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(&buf)))
	return l, &buf
}

func TestTextFormatterIncludesFields(t *testing.T) {
	l, buf := newBufferLogger(t, &TextFormatter{DisableTimestamp: true}, InfoLevel)
	l.With(Component("eventlog")).Info("appended", Uint64("id", 7), Str("note", "two words"))

	got := buf.String()
	for _, want := range []string{"INFO  appended", "component=eventlog", "id=7", `note="two words"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	l, buf := newBufferLogger(t, &JSONFormatter{}, DebugLevel)
	l.Warn("skipped record", Err(errors.New("crc mismatch")), Int("n", 2))

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["level"] != "warn" || m["msg"] != "skipped record" || m["error"] != "crc mismatch" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestLevelGatingSharedWithChildren(t *testing.T) {
	root, buf := newBufferLogger(t, &TextFormatter{DisableTimestamp: true}, WarnLevel)
	child := root.With(Component("chat"))

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be gated at warn, got %q", buf.String())
	}

	root.SetLevel(DebugLevel)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("child did not pick up root level change: %q", buf.String())
	}
	if child.GetLevel() != DebugLevel {
		t.Fatalf("child level = %v", child.GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfigRedacts(t *testing.T) {
	var buf bytes.Buffer
	l, err := ApplyConfig(&Config{Level: "info", Format: "json", Outputs: []string{"null"}, Redact: []string{"token"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	bl := l.(*BaseLogger)
	bl.outputs = append(bl.outputs, NewWriterOutput(&buf))
	l.Info("login", Str("token", "secret"))
	if strings.Contains(buf.String(), "secret") || !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("token not redacted: %q", buf.String())
	}

	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestRedirectStdLog(t *testing.T) {
	l, buf := newBufferLogger(t, &TextFormatter{DisableTimestamp: true}, InfoLevel)
	prev := stdlog.Writer()
	t.Cleanup(func() { stdlog.SetOutput(prev) })

	RedirectStdLog(l)
	stdlog.Printf("from pebble %d", 1)
	if !strings.Contains(buf.String(), "from pebble 1") || !strings.Contains(buf.String(), "component=stdlog") {
		t.Fatalf("std log not redirected: %q", buf.String())
	}
}
