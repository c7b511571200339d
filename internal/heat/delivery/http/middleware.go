package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tair/heat-service/pkg/auth"
	"github.com/tair/heat-service/pkg/logger"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
)

// UserIDFromContext returns the authenticated user id, or "" for anonymous callers
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid bearer token and stores the user id in the request context
func AuthMiddleware(validator *auth.Validator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				logger.Warn(r.Context()).Msg("Missing authorization header")
				respondError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				logger.Warn(r.Context()).Msg("Invalid authorization header format")
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn(r.Context()).Err(err).Msg("Invalid token")
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

// OptionalAuthMiddleware identifies the caller when a valid token is present, but doesn't require it
func OptionalAuthMiddleware(validator *auth.Validator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if claims, err := validator.ValidateToken(token); err == nil {
					logger.Debug(r.Context()).
						Str("user_id", claims.Identity()).
						Msg("Optional auth: User identified")
					r = r.WithContext(context.WithValue(r.Context(), UserIDKey, claims.Identity()))
				}
			}
			next.ServeHTTP(w, r)
		}
	}
}

// RecoveryMiddleware recovers from panics and returns 500 error
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(r.Context()).
					Interface("panic", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")
				respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r.Header.Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware provides structured logging for requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		event := logger.Info(r.Context())
		if rw.statusCode >= 500 {
			event = logger.Error(r.Context())
		} else if rw.statusCode >= 400 {
			event = logger.Warn(r.Context())
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Msg("Request completed")
	})
}
