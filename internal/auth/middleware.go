package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	TokenContextKey contextKey = "access_token"
	ScopeContextKey contextKey = "scope"
)

// SessionCookie names the browser session id cookie.
const SessionCookie = "outfred_sid"

// Authenticator identifies callers either by bearer token or by the session
// cookie of a signed-in browser.
type Authenticator struct {
	verifier *TokenVerifier
	registry *Registry
	logger   *zap.Logger
}

func NewAuthenticator(verifier *TokenVerifier, registry *Registry, logger *zap.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, registry: registry, logger: logger}
}

// Identify resolves the caller. The returned context carries the identity,
// the access token and the browser scope when known.
func (a *Authenticator) Identify(r *http.Request) (context.Context, bool) {
	ctx := r.Context()

	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		ctx = context.WithValue(ctx, ScopeContextKey, cookie.Value)
	}

	if token := bearerToken(r); token != "" {
		id, err := a.verifier.Verify(ctx, token)
		if err != nil {
			a.logger.Debug("rejected bearer token", zap.Error(err))
			return ctx, false
		}
		ctx = context.WithValue(ctx, UserContextKey, id)
		return context.WithValue(ctx, TokenContextKey, token), true
	}

	scope := ScopeFrom(ctx)
	if scope == "" {
		return ctx, false
	}
	c, ok := a.registry.Restore(ctx, scope)
	if !ok {
		return ctx, false
	}
	id, ok := c.Identity()
	if !ok {
		return ctx, false
	}
	ctx = context.WithValue(ctx, UserContextKey, id)
	return context.WithValue(ctx, TokenContextKey, c.AccessToken(ctx)), true
}

// Middleware rejects unauthenticated requests with 401 before the handler runs.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := a.Identify(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the identity when there is one and never rejects.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := a.Identify(r)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly must sit behind Middleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || id.Role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(UserContextKey).(models.Identity)
	return id, ok
}

func AccessTokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(TokenContextKey).(string)
	return t
}

func ScopeFrom(ctx context.Context) string {
	s, _ := ctx.Value(ScopeContextKey).(string)
	return s
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	// Browsers cannot set headers on websocket upgrades
	return r.URL.Query().Get("access_token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
