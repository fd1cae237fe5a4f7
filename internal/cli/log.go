// Package cli implements the meshctl command-line interface.
//
// meshctl is the operator's offline and cloud tooling for the bridge:
// it validates and inspects mesh network export documents without any
// network access, and talks directly to the Connect Mesh cloud API for
// device listing, light control and scene recall.
//
// # Commands
//
//   - validate: schema-check an export document, optionally with
//     cross-reference checking (--refs)
//   - inspect: summarise an export document (keys, ranges, counts)
//   - devices: list devices or read live status from the cloud
//   - light: switch and dim a light through the cloud
//   - scenes: list and recall scenes
//   - hashpw: hash an operator password for the bridge configuration
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers
// are passed through context.Context so subcommands never reach for a
// package-level logger.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger writing to w at the given level. Timestamps
// are short wall-clock stamps, which reads better than full RFC3339 in a
// terminal.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           level,
	})
}

// ctxKey is the type for context keys used in this package. A distinct
// type prevents collisions with other packages.
type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, falling back to the
// package default so commands always have a valid logger.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
