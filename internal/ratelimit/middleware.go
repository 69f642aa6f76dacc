package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmphub/dmphub/internal/auth"
)

// Middleware returns an HTTP middleware that enforces rate limits using the
// provided Limiter. Limits apply to API client callers only: the client's ID
// is the bucket key and its RateLimit field the custom rate override. User
// sessions pass through unlimited.
//
// Rate-limit headers are always set on limited responses:
//
//	X-RateLimit-Limit     — maximum requests allowed in the window
//	X-RateLimit-Remaining — tokens remaining in the current window
//	X-RateLimit-Reset     — Unix timestamp when the bucket is fully replenished
//
// When the limit is exceeded the middleware responds with HTTP 429 and a JSON
// error body.
func Middleware(limiter *Limiter, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, ok := auth.CallerFromContext(r.Context()).(auth.ClientCaller)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			q := limiter.Take(client.Client.ID, client.Client.RateLimit)

			// Always set headers so callers can inspect their quota.
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", q.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", q.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", q.ResetAt.Unix()))

			if !q.Allowed {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Rate limit exceeded. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
