package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/craigoj/homestead-snap-report-sub000/internal/adapters/http/openapi"
)

// openAPIValidationMiddleware buffers the body for contract checks, so the
// size cap has to be applied here rather than only in the handlers.
func openAPIValidationMiddleware(next http.Handler, validator *openapi.Validator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		limit := bodyLimitFor(r.URL.Path)
		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		if r.ContentLength != 0 && r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
		if err := validator.Validate(r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
				return
			}
			slog.Warn("request_validation_failed",
				"request_id", requestIDFromContext(r.Context()),
				"path", r.URL.Path,
				"error", err,
			)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bodyLimitFor(path string) int64 {
	if path == "/v1/extract" {
		return maxExtractBodyBytes
	}
	return maxReviewBodyBytes
}
