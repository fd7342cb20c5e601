package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func reset() {
	mu.Lock()
	loggers = make(map[string]*slog.Logger)
	levels = make(map[string]*slog.LevelVar)
	initialized = false
	cfg = Config{}
	onEntry = nil
	mu.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	reset()
	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"scheduler": "debug", "api": "warn"},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"scheduler", true, true, true},
		{"api", false, false, true},
		{"lrme", false, true, true},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerCreatedBeforeInitializeIsUpdated(t *testing.T) {
	reset()

	before := GetLogger("fdhw")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"fdhw": "debug"}})

	after := GetLogger("fdhw")
	if !after.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should accept debug after Initialize")
	}
}

func TestSetModuleLevel(t *testing.T) {
	reset()
	Initialize(Config{Level: "info"})

	if SetModuleLevel("pipeline", "bogus") {
		t.Error("SetModuleLevel accepted an invalid level")
	}
	if !SetModuleLevel("pipeline", "error") {
		t.Fatal("SetModuleLevel rejected a valid level")
	}
	if GetLogger("pipeline").Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled at error level")
	}
}

func TestMultiHandlerWritesOncePerEnabledHandler(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	slog.New(NewMultiHandler(debug, info)).Debug("only once")

	if n := strings.Count(buf.String(), "only once"); n != 1 {
		t.Errorf("got %d copies, want 1: %s", n, buf.String())
	}
}

func TestBufferHandlerCapturesModuleAndAttrs(t *testing.T) {
	reset()
	rb := NewRingBuffer(4)
	var seen []Entry
	SetEntryCallback(func(e Entry) { seen = append(seen, e) })

	l := slog.New(NewBufferHandler(rb, slog.LevelDebug)).With("module", "lrme")
	l.WithGroup("port").Info("disabled", "name", "ref_ds4", "err", errors.New("boom"))

	got := rb.Tail("", 0)
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Module != "lrme" {
		t.Errorf("module = %q, want lrme", e.Module)
	}
	if e.Attrs["port.name"] != "ref_ds4" {
		t.Errorf("port.name = %v", e.Attrs["port.name"])
	}
	if e.Attrs["port.err"] != "boom" {
		t.Errorf("port.err = %v", e.Attrs["port.err"])
	}
	if len(seen) != 1 {
		t.Errorf("callback saw %d entries, want 1", len(seen))
	}
}

func TestRingBufferTail(t *testing.T) {
	rb := NewRingBuffer(3)
	for i, m := range []string{"a", "b", "a", "b", "a"} {
		rb.Write(Entry{Time: time.Unix(int64(i), 0), Module: m, Message: m})
	}

	if rb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", rb.Len())
	}
	all := rb.Tail("", 0)
	if all[0].Time.Unix() != 2 || all[2].Time.Unix() != 4 {
		t.Errorf("entries out of order: %+v", all)
	}
	if got := rb.Tail("a", 0); len(got) != 2 {
		t.Errorf("module filter returned %d entries, want 2", len(got))
	}
	if got := rb.Tail("", 1); len(got) != 1 || got[0].Time.Unix() != 4 {
		t.Errorf("limit returned %+v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"", 0, false},
		{"trace", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
