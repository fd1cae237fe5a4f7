package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
)

// serviceName tags every log line so aggregated streams can tell the
// bridge apart from its neighbours.
const serviceName = "meshbridge"

// Logger is the bridge's structured logger, a thin wrapper over
// slog.Logger carrying the service and version attributes. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
// Format chooses the handler (json unless "text"), Output the stream
// (stdout unless "stderr"), Level the threshold (info when the value
// is unrecognised).
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(pickWriter(cfg.Output), cfg.Format, parseLevel(cfg.Level))

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// With returns a child logger carrying extra default key-value pairs.
//
//	mqttLog := logger.With("component", "mqtt")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the early-startup logger used before the configuration
// file has been read: JSON to stdout at info level, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

func pickWriter(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
