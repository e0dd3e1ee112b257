package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/ratelimit"
)

// RateLimitMiddleware limits requests per client IP. Limiter failures let
// the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), "api:"+ClientIP(r))
			if err != nil {
				log.Warn("Rate limiter unavailable: %v", err)
				allowed = true
			}
			if !allowed {
				respondRateLimited(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the originating client address: the first
// X-Forwarded-For hop, then X-Real-IP, then the connection peer.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   "Rate limit exceeded",
		"message": "Too many requests. Please try again later.",
	})
}
