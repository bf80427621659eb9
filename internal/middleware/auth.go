package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"pollhub/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// CredentialContextKey holds the raw bearer credential from the
	// Authorization header. The credential stays opaque here; the poll
	// service hands it to the identity gateway, which is the only place
	// tokens are resolved.
	CredentialContextKey ContextKey = "credential"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// BearerCredential extracts the bearer token, when present, into the
// request context. It never rejects a request: authentication is enforced
// per operation by the service layer, so anonymous reads pass through
// untouched.
func BearerCredential(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" || token == authHeader {
				// Malformed header; treat as anonymous rather than failing
				// a read that never needed credentials.
				logger.Debug("Ignoring malformed Authorization header")
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), CredentialContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialFromContext returns the bearer credential stored by
// BearerCredential, or the empty string for anonymous requests.
func CredentialFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(CredentialContextKey).(string); ok {
		return token
	}
	return ""
}

// RequestID creates a middleware that adds a unique request ID to each request
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := generateRequestID()

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// generateRequestID generates a random request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(bytes)
}
