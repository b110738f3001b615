package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	red "digital-storefront/internal/infra/redis"
)

// RateLimiter counts hits per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// WithClaimRateLimit limits how often one user may run the claim reconciler.
func (s *Server) WithClaimRateLimit(l RateLimiter, limit int, window time.Duration) *Server {
	s.limiter, s.claimLimit, s.claimWindow = l, limit, window
	return s
}

// rateLimitUser must run after requireUser. Limiter failures let the request through.
func (s *Server) rateLimitUser(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := claimsFrom(r.Context())
			if s.limiter == nil || s.claimLimit <= 0 || c == nil {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := s.limiter.Allow(r.Context(), red.UserActionKey(c.Subject, action), s.claimLimit, s.claimWindow)
			if err != nil {
				s.log.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", formatSeconds(s.claimWindow))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "RATE_LIMITED", Message: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.Itoa(int(d.Round(time.Second) / time.Second))
}
