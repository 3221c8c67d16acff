package logrus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Debug("debug", nil)
	l.Info("info", nil)
	l.Warn("cache operation failed, continuing without cache", repositorycache.Fields{
		"aggregate": "reader",
		"op":        "save",
	})
	l.Error("error", repositorycache.Fields{"error": "boom"})

	entries := hook.AllEntries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	warn := entries[2]
	if warn.Level != logrus.WarnLevel {
		t.Errorf("expected warn level, got %s", warn.Level)
	}
	if warn.Data["aggregate"] != "reader" || warn.Data["op"] != "save" {
		t.Errorf("unexpected fields %v", warn.Data)
	}
	if warn.Data["component"] != "cache" {
		t.Errorf("expected component=cache, got %v", warn.Data["component"])
	}
	if hook.LastEntry().Level != logrus.ErrorLevel {
		t.Errorf("expected last entry at error level, got %s", hook.LastEntry().Level)
	}
	if hook.LastEntry().Data["error"] != "boom" {
		t.Errorf("expected string error field kept, got %v", hook.LastEntry().Data["error"])
	}
}

func TestLogrusLoggerAttachesErrorValues(t *testing.T) {
	base, hook := test.NewNullLogger()
	l := New(base)
	boom := errors.New("boom")

	f := repositorycache.Fields{"error": boom, "op": "get"}
	l.Error("failed", f)

	got, ok := hook.LastEntry().Data[logrus.ErrorKey].(error)
	if !ok || !errors.Is(got, boom) {
		t.Fatalf("expected error value under %q, got %v", logrus.ErrorKey, hook.LastEntry().Data)
	}
	if hook.LastEntry().Data["op"] != "get" {
		t.Errorf("expected op=get, got %v", hook.LastEntry().Data["op"])
	}
	if len(f) != 2 {
		t.Errorf("expected caller fields untouched, got %v", f)
	}
}

func TestLogrusLoggerTextOutputIsOrdered(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	New(base).Info("hit", repositorycache.Fields{"op": "get", "aggregate": "book", "key": "book:id:1"})

	line := buf.String()
	a := strings.Index(line, "aggregate=")
	c := strings.Index(line, "component=")
	k := strings.Index(line, "key=")
	o := strings.Index(line, "op=")
	if a < 0 || c < 0 || k < 0 || o < 0 {
		t.Fatalf("missing fields in %q", line)
	}
	if !(a < c && c < k && k < o) {
		t.Errorf("expected fields in key order, got %q", line)
	}
}
