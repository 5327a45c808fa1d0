package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

// Middleware returns an HTTP middleware that enforces the limiter keyed by
// client IP. It is placed in front of the credential endpoints (login and
// signup) to slow down guessing. When the limit is exceeded the middleware
// responds with HTTP 429 and a JSON error body; onReject hooks (metrics) run
// before the response is written.
func Middleware(limiter *Limiter, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(clientIP(r))
			if err != nil {
				// A broken counter store must not lock everyone out.
				slog.Error("rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !ok {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    "too_many_requests",
						"message": "Too many requests. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
