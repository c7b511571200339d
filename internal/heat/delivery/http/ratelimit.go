package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tair/heat-service/pkg/logger"
)

// RateLimiter implements a sliding-window limit on mutations using Redis.
// A nil *RateLimiter lets every request through.
type RateLimiter struct {
	redis       *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRateLimiter creates a new rate limiter. It returns nil when client is nil.
func NewRateLimiter(client *redis.Client, maxRequests int, window time.Duration) *RateLimiter {
	if client == nil || maxRequests <= 0 {
		return nil
	}
	return &RateLimiter{
		redis:       client,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Middleware limits requests per user, falling back to the client IP
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	if rl == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := "ip:" + clientIP(r)
		if userID := UserIDFromContext(r.Context()); userID != "" {
			identifier = "user:" + userID
		}

		allowed, remaining, resetTime, err := rl.checkLimit(r.Context(), identifier)
		if err != nil {
			// Fail open
			logger.Error(r.Context()).
				Err(err).
				Str("identifier", identifier).
				Msg("Rate limiter error")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			rateLimitedTotal.Inc()
			logger.Warn(r.Context()).
				Str("identifier", identifier).
				Int("limit", rl.maxRequests).
				Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			respondError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Too many requests. Try again in %v", time.Until(resetTime).Round(time.Second)))
			return
		}

		next.ServeHTTP(w, r)
	}
}

// checkLimit checks if request is within rate limit using sliding window
func (rl *RateLimiter) checkLimit(ctx context.Context, identifier string) (bool, int, time.Time, error) {
	key := "heat:ratelimit:" + identifier
	now := time.Now()
	windowStart := now.Add(-rl.window)

	pipe := rl.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	pipe.Expire(ctx, key, rl.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := countCmd.Val()
	remaining := rl.maxRequests - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < int64(rl.maxRequests), remaining, now.Add(rl.window), nil
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
