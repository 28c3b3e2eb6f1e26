package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nl2sqlchat/nl2sqlchat/internal/observability"
)

type contextKey struct{}

const challenge = `Bearer realm="nl2sql-chat"`

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// PrincipalFromContext returns the authenticated principal, or "" when the
// request was not authenticated. Chat sessions are owned by this value.
func PrincipalFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Principal
}

// Middleware authenticates every request by API key and stores the
// resulting Identity on the request context. Role checks are left to the
// handlers.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			identity, ok := Identity{}, false
			if apiKey != "" {
				identity, ok = validator.Validate(r.Context(), apiKey)
			}
			if !ok {
				reason := "invalid API key"
				if apiKey == "" {
					reason = "missing API key"
				}
				logger.WarnContext(r.Context(), "chat_auth_rejected",
					observability.TraceAttr(r.Context()),
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				writeUnauthorized(w, r, reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// extractAPIKey prefers X-API-Key and falls back to a bearer token.
func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
