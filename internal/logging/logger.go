package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level      slog.Level
	OutputFile string // optional file sink next to stderr
	JSONFormat bool   // text for interactive use, JSON for machines
}

var (
	once sync.Once
	file *os.File
)

// Initialize installs the process-wide default logger. Component loggers
// hang off slog.Default() with a "component" attribute, so this must run
// before any of them are created.
func Initialize(cfg Config) error {
	var initErr error
	once.Do(func() {
		logger, f, err := newLogger(cfg)
		if err != nil {
			initErr = fmt.Errorf("initialize logger: %w", err)
			return
		}
		file = f
		slog.SetDefault(logger)
	})
	return initErr
}

func newLogger(cfg Config) (*slog.Logger, *os.File, error) {
	writers := []io.Writer{os.Stderr}

	var f *os.File
	if cfg.OutputFile != "" {
		dir := filepath.Dir(cfg.OutputFile)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		var err error
		f, err = os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		writers = append(writers, f)
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), f, nil
}

// Close closes the file sink if one was opened.
func Close() error {
	if file != nil {
		err := file.Close()
		file = nil
		return err
	}
	return nil
}
