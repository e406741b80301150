// Package logging owns the process-wide logger.
//
// The logger is initialized once with Init and lives for the rest of the
// process; there is no teardown. Until Init runs, Log returns a logger that
// discards everything, so packages can log unconditionally.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how the process logger is built.
type Config struct {
	// Level is one of trace, debug, info, warn, error.
	Level string
	// Format is "text" (bracketed level tags) or "json".
	Format string
	// File, when set, additionally writes uncolored entries to a rotating file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output defaults to os.Stderr.
	Output io.Writer
}

var (
	std     atomic.Pointer[logrus.Logger]
	once    sync.Once
	initErr error
)

func init() {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	std.Store(discard)
}

// Init builds the process logger from cfg. Only the first call has an
// effect; later calls return the logger (and error) of the first one.
func Init(cfg Config) (*logrus.Logger, error) {
	once.Do(func() {
		logger, err := New(cfg)
		if err != nil {
			initErr = err
			return
		}
		std.Store(logger)
	})
	return Log(), initErr
}

// Log returns the process logger.
func Log() *logrus.Logger {
	return std.Load()
}

// New builds a standalone logger. Init uses it for the process logger; tests
// and tools can use it directly.
func New(cfg Config) (*logrus.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&Formatter{Color: colorEnabled(output)})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File != "" {
		logger.AddHook(&fileHook{
			writer: &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
			},
			formatter: &Formatter{Timestamps: true},
		})
	}

	return logger, nil
}

// ParseLevel accepts the logrus level names plus "warn".
func ParseLevel(value string) (logrus.Level, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(value)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if termenv.EnvNoColor() {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// fileHook mirrors every entry to a rotating log file.
type fileHook struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}
