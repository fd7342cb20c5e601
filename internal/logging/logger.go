package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultHistorySize = 2000

// Logger is satisfied by *slog.Logger. Pipeline nodes take this instead of
// the concrete type so tests can pass a discarding logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the [logging] table of the service configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	globalLevel = &slog.LevelVar{}
	loggers     = make(map[string]*slog.Logger)
	levels      = make(map[string]*slog.LevelVar)
	history     = NewRingBuffer(defaultHistorySize)
	onEntry     EntryCallback
)

// Initialize applies the configuration to every existing and future module
// logger. It may be called again when the configuration is reloaded.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	initialized = true
	globalLevel.Set(levelOrDefault(c.Level, slog.LevelInfo))

	for module, lv := range levels {
		lv.Set(moduleLevel(module))
		loggers[module] = slog.New(newHandler(c.Format, lv)).With("module", module)
	}

	slog.SetDefault(slog.New(newHandler(c.Format, globalLevel)))
}

// History returns the in-memory log history.
func History() *RingBuffer {
	return history
}

// SetEntryCallback registers a function invoked for every buffered entry.
func SetEntryCallback(cb EntryCallback) {
	mu.Lock()
	defer mu.Unlock()
	onEntry = cb
}

func entryCallback() EntryCallback {
	mu.RLock()
	defer mu.RUnlock()
	return onEntry
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	l, ok := loggers[module]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(module))
	levels[module] = lv

	format := "text"
	if initialized {
		format = cfg.Format
	}
	l = slog.New(newHandler(format, lv)).With("module", module)
	loggers[module] = l
	return l
}

// SetModuleLevel changes the level of a single module at runtime.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)

	mu.Lock()
	defer mu.Unlock()
	levels[module].Set(parsed)
	return true
}

// moduleLevel must be called with mu held.
func moduleLevel(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	level := levelOrDefault(cfg.Level, slog.LevelInfo)
	if s, ok := cfg.Modules[module]; ok {
		level = levelOrDefault(s, level)
	}
	return level
}

func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	handlers := make([]slog.Handler, 0, 3)
	if stdoutAttached() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if JournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(history, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// stdoutAttached reports whether stdout goes somewhere other than /dev/null.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func levelOrDefault(s string, def slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return def
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
