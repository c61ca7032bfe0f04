package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/meroku/framecaster/internal/catalog"
	"github.com/meroku/framecaster/internal/compose"
	"github.com/meroku/framecaster/internal/farcaster"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrAppNotFound):
		return http.StatusNotFound
	case errors.Is(err, farcaster.ErrInvalidFID),
		errors.Is(err, compose.ErrTooManySentences):
		return http.StatusBadRequest
	case errors.Is(err, errNoApps):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and responds with its status text. Internal errors are
// logged at error level, client errors at debug.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	attrs := []any{"method", r.Method, "path", r.URL.Path, "error", err}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Debug("request rejected", attrs...)
	}
	http.Error(w, http.StatusText(status), status)
}

func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}
