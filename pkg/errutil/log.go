// Package errutil bridges oops-coded errors and structured logging.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. When err carries an oops code or
// context those are emitted as separate attributes.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	logger.Error(msg, attrs...)
}
