// Package supabase wraps the Supabase auth service behind a small call
// surface. A Factory hands out one Client per process; when the service is
// not configured that Client is a stub with the same surface, so callers
// never check for a missing client.
package supabase

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/storage"
)

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// refreshMargin refreshes sessions slightly before they actually lapse.
const refreshMargin = 10 * time.Second

// Expired reports whether the access token is (about to be) unusable.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(refreshMargin).Before(time.Unix(s.ExpiresAt, 0))
}

type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// AuthChangeEvent is delivered to OnAuthStateChange listeners. Session is nil
// for EventSignedOut.
type AuthChangeEvent struct {
	Type    EventType
	Scope   string
	Session *Session
}

type Listener func(AuthChangeEvent)

type SignUpParams struct {
	Email      string
	Password   string
	Data       map[string]any
	RedirectTo string
}

// Client is the call surface shared by the real client and the stub.
// Session-bearing calls act on the scope carried by ctx (see WithScope).
type Client interface {
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp returns the created user and, when the project auto-confirms
	// email addresses, the new session.
	SignUp(ctx context.Context, params SignUpParams) (*User, *Session, error)
	SignOut(ctx context.Context) error
	// GetUser validates an access token against the auth service.
	GetUser(ctx context.Context, accessToken string) (*User, error)
	OnAuthStateChange(fn Listener) (unsubscribe func())
}

type scopeKey struct{}

const DefaultScope = "default"

// WithScope binds ctx to a browser session id.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope bound to ctx, DefaultScope when unset.
func ScopeFrom(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(string); ok && s != "" {
		return s
	}
	return DefaultScope
}

// EnvLookup is satisfied by config.Resolver.
type EnvLookup interface {
	Lookup(name string) (string, bool)
}

type Factory struct {
	env         EnvLookup
	store       storage.Store
	logger      *zap.Logger
	httpClient  *http.Client
	redirectURL string

	once   sync.Once
	client Client
}

type Option func(*Factory)

// WithRedirectURL sets the default email redirect target for sign-ups.
func WithRedirectURL(url string) Option {
	return func(f *Factory) { f.redirectURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.httpClient = c }
}

func NewFactory(env EnvLookup, store storage.Store, logger *zap.Logger, opts ...Option) *Factory {
	f := &Factory{
		env:        env,
		store:      store,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Client returns the process-wide client, building it on first use.
func (f *Factory) Client() Client {
	f.once.Do(func() {
		f.client = f.build()
	})
	return f.client
}

// HasSession reports whether a session was persisted for scope. It reads
// device storage only and never contacts Supabase.
func (f *Factory) HasSession(ctx context.Context, scope string) bool {
	_, err := f.store.Get(ctx, sessionKey(scope))
	return err == nil
}

func (f *Factory) build() Client {
	url, hasURL := f.env.Lookup("SUPABASE_URL")
	key, hasKey := f.env.Lookup("SUPABASE_ANON_KEY")

	f.logger.Debug("supabase config check",
		zap.Bool("has_url", hasURL),
		zap.Bool("has_key", hasKey),
		zap.String("url", truncate(url, 20)),
	)

	if !hasURL || !hasKey {
		f.logger.Error("supabase configuration missing",
			zap.Strings("required", []string{
				"SUPABASE_URL (or VITE_/VITE_PUBLIC_/NEXT_PUBLIC_ prefixed)",
				"SUPABASE_ANON_KEY (or VITE_/VITE_PUBLIC_/NEXT_PUBLIC_ prefixed)",
			}),
		)
		return stubClient{}
	}

	return newGotrueClient(strings.TrimRight(url, "/"), key, f.store, f.httpClient, f.redirectURL, f.logger)
}

func truncate(s string, n int) string {
	if s == "" {
		return "missing"
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// stubClient is handed out when the service is not configured. Reads come
// back empty, credential operations fail with KindNotConfigured.
type stubClient struct{}

func notConfigured() *Error {
	return &Error{Kind: KindNotConfigured, Message: msgNotConfigured}
}

func (stubClient) GetSession(context.Context) (*Session, error) { return nil, nil }

func (stubClient) SignInWithPassword(context.Context, string, string) (*Session, error) {
	return nil, notConfigured()
}

func (stubClient) SignUp(context.Context, SignUpParams) (*User, *Session, error) {
	return nil, nil, notConfigured()
}

func (stubClient) SignOut(context.Context) error { return nil }

func (stubClient) GetUser(context.Context, string) (*User, error) {
	return nil, notConfigured()
}

func (stubClient) OnAuthStateChange(Listener) func() { return func() {} }
