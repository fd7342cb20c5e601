package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherReloadsTopology(t *testing.T) {
	path := writeFile(t, "pipeline.toml", "[[nodes]]\nname = \"a\"\nkind = \"sink\"\n")

	w := NewWatcher(path, LoadTopology, discardLogger(), WithDebounce[*Topology](50*time.Millisecond))
	received := make(chan *Topology, 4)
	w.OnReload(func(t *Topology) { received <- t })

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	body := "depth = 3\n[[nodes]]\nname = \"a\"\nkind = \"sink\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case top := <-received:
		if top.Depth != 3 {
			t.Errorf("Depth = %d, want 3", top.Depth)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	path := writeFile(t, "pipeline.toml", "[[nodes]]\nname = \"a\"\nkind = \"sink\"\n")
	w := NewWatcher(path, LoadTopology, discardLogger(), WithDebounce[*Topology](20*time.Millisecond))
	received := make(chan *Topology, 1)
	w.OnReload(func(t *Topology) { received <- t })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-received:
		t.Fatal("reload triggered by unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherReloadErrorSkipsHandlers(t *testing.T) {
	path := writeFile(t, "pipeline.toml", "not = [valid")

	var gotErr error
	w := NewWatcher(path, LoadTopology, discardLogger(), WithErrorHandler[*Topology](func(err error) { gotErr = err }))
	called := false
	w.OnReload(func(*Topology) { called = true })

	w.Reload()

	if called {
		t.Error("handler ran for invalid file")
	}
	if !errors.Is(gotErr, ErrInvalidTopology) {
		t.Errorf("error = %v, want ErrInvalidTopology", gotErr)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := writeFile(t, "pipeline.toml", "[[nodes]]\nname = \"a\"\nkind = \"sink\"\n")
	w := NewWatcher(path, LoadTopology, discardLogger())
	n := 0
	off := w.OnReload(func(*Topology) { n++ })
	w.Reload()
	off()
	w.Reload()
	if n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
}
