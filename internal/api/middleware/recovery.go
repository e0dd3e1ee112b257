package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
)

// RecoveryMiddleware turns panics into a 500 JSON response.
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("Panic serving %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
					respondMessage(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
