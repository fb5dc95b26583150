package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/venthub/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "venthub"

// Logger wraps slog.Logger with hub-specific defaults.
//
// All methods are safe for concurrent use. The Debug/Info/Warn/Error methods
// promoted from slog.Logger satisfy the small Logger interfaces declared by the
// device, discovery, group and automation packages.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// JSON is the default format; "text" selects the human-readable handler.
// Output is stdout unless "stderr" is configured.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return newWithWriter(output, cfg, version)
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with component=name.
//
//	discoveryLog := logger.Component("discovery")
//	discoveryLog.Info("run complete", "new", 2)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
