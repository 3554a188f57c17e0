package api

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/nodewarden/internal/logging"
)

// HTTPLoggingMiddleware logs HTTP requests, picking the level from the
// response status. Routine polls (health checks, metrics scrapes, the
// webapp's status loop) land at debug so they do not flood the journal
// on a device that logs to flash.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path
	remoteAddr := ctx.RemoteAddr()

	next(ctx)

	status := ctx.Status()
	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", remoteAddr),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	}

	message := "HTTP request completed"
	switch {
	case status >= 500:
		logger.LogAttrs(ctx.Context(), slog.LevelError, message, logAttrs...)
	case status >= 400:
		logger.LogAttrs(ctx.Context(), slog.LevelWarn, message, logAttrs...)
	case method == "OPTIONS" || isRoutinePoll(path):
		logger.LogAttrs(ctx.Context(), slog.LevelDebug, message, logAttrs...)
	default:
		logger.LogAttrs(ctx.Context(), slog.LevelInfo, message, logAttrs...)
	}
}

func isRoutinePoll(path string) bool {
	switch path {
	case "/api/health", "/api/status", "/metrics":
		return true
	}
	return false
}
