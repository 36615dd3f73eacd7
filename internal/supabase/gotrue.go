package supabase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/storage"
)

type gotrueClient struct {
	api         gotrue.Client
	httpClient  *http.Client
	store       storage.Store
	redirectURL string
	logger      *zap.Logger
	now         func() time.Time

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

func newGotrueClient(url, anonKey string, store storage.Store, hc *http.Client, redirectURL string, logger *zap.Logger) *gotrueClient {
	api := gotrue.New("", anonKey).
		WithCustomGoTrueURL(url + "/auth/v1").
		WithClient(*hc)

	logger.Info("created supabase auth client", zap.String("url", url))

	return &gotrueClient{
		api:         api,
		httpClient:  hc,
		store:       store,
		redirectURL: redirectURL,
		logger:      logger,
		now:         time.Now,
		listeners:   make(map[int]Listener),
	}
}

func sessionKey(scope string) string {
	return storage.Scoped(storage.KeyAuthToken, scope)
}

func (c *gotrueClient) GetSession(ctx context.Context) (*Session, error) {
	scope := ScopeFrom(ctx)

	var s Session
	err := storage.GetJSON(ctx, c.store, sessionKey(scope), &s)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !s.Expired(c.now()) {
		return &s, nil
	}

	if s.RefreshToken == "" {
		c.clear(ctx, scope)
		return nil, nil
	}

	res, err := c.api.RefreshToken(s.RefreshToken)
	if err != nil {
		c.clear(ctx, scope)
		return nil, classify(err)
	}

	refreshed := fromGotrueSession(res.Session, c.now())
	if err := c.save(ctx, scope, refreshed); err != nil {
		return nil, err
	}
	c.emit(AuthChangeEvent{Type: EventTokenRefreshed, Scope: scope, Session: refreshed})

	return refreshed, nil
}

func (c *gotrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	res, err := c.api.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, classify(err)
	}

	s := fromGotrueSession(res.Session, c.now())
	if s.User.ID == "" {
		return s, nil
	}

	scope := ScopeFrom(ctx)
	if err := c.save(ctx, scope, s); err != nil {
		return nil, err
	}
	c.emit(AuthChangeEvent{Type: EventSignedIn, Scope: scope, Session: s})

	return s, nil
}

func (c *gotrueClient) SignUp(ctx context.Context, params SignUpParams) (*User, *Session, error) {
	redirect := params.RedirectTo
	if redirect == "" {
		redirect = c.redirectURL
	}

	api := c.api
	if redirect != "" {
		hc := *c.httpClient
		hc.Transport = &redirectTransport{base: hc.Transport, redirectTo: redirect}
		api = api.WithClient(hc)
	}

	res, err := api.Signup(types.SignupRequest{
		Email:    params.Email,
		Password: params.Password,
		Data:     params.Data,
	})
	if err != nil {
		return nil, nil, classify(err)
	}

	// With auto-confirm on the server answers with a session, otherwise
	// with the bare user awaiting confirmation.
	if res.Session.AccessToken == "" {
		if isNilUUID(res.User.ID.String()) {
			return nil, nil, nil
		}
		u := fromGotrueUser(res.User)
		return &u, nil, nil
	}

	s := fromGotrueSession(res.Session, c.now())
	scope := ScopeFrom(ctx)
	if err := c.save(ctx, scope, s); err != nil {
		return nil, nil, err
	}
	c.emit(AuthChangeEvent{Type: EventSignedIn, Scope: scope, Session: s})

	return &s.User, s, nil
}

func (c *gotrueClient) SignOut(ctx context.Context) error {
	scope := ScopeFrom(ctx)

	var s Session
	err := storage.GetJSON(ctx, c.store, sessionKey(scope), &s)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}

	var remoteErr error
	if err == nil && s.AccessToken != "" {
		if lerr := c.api.WithToken(s.AccessToken).Logout(); lerr != nil {
			remoteErr = classify(lerr)
		}
	}

	c.clear(ctx, scope)
	return remoteErr
}

func (c *gotrueClient) GetUser(_ context.Context, accessToken string) (*User, error) {
	res, err := c.api.WithToken(accessToken).GetUser()
	if err != nil {
		return nil, classify(err)
	}
	u := fromGotrueUser(res.User)
	return &u, nil
}

func (c *gotrueClient) OnAuthStateChange(fn Listener) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *gotrueClient) emit(evt AuthChangeEvent) {
	c.listenersMu.RLock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	c.logger.Debug("auth state changed", zap.String("event", string(evt.Type)), zap.String("scope", evt.Scope))
	for _, fn := range fns {
		fn(evt)
	}
}

func (c *gotrueClient) save(ctx context.Context, scope string, s *Session) error {
	return storage.SetJSON(ctx, c.store, sessionKey(scope), s, 0)
}

// clear drops the stored session and tells listeners the scope signed out.
func (c *gotrueClient) clear(ctx context.Context, scope string) {
	if err := c.store.Delete(ctx, sessionKey(scope)); err != nil {
		c.logger.Warn("failed to drop stored session", zap.String("scope", scope), zap.Error(err))
	}
	c.emit(AuthChangeEvent{Type: EventSignedOut, Scope: scope})
}

func fromGotrueUser(u types.User) User {
	return User{
		ID:           u.ID.String(),
		Email:        u.Email,
		UserMetadata: u.UserMetadata,
	}
}

func fromGotrueSession(s types.Session, now time.Time) *Session {
	out := &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		User:         fromGotrueUser(s.User),
	}
	if out.ExpiresAt == 0 && out.ExpiresIn > 0 {
		out.ExpiresAt = now.Add(time.Duration(out.ExpiresIn) * time.Second).Unix()
	}
	if isNilUUID(out.User.ID) {
		out.User.ID = ""
	}
	return out
}

func isNilUUID(id string) bool {
	return id == "" || id == "00000000-0000-0000-0000-000000000000"
}

// redirectTransport adds the email redirect target to sign-up calls, which
// gotrue-go has no request field for.
type redirectTransport struct {
	base       http.RoundTripper
	redirectTo string
}

func (t *redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if !strings.HasSuffix(r.URL.Path, "/signup") {
		return base.RoundTrip(r)
	}

	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("redirect_to", t.redirectTo)
	r.URL.RawQuery = q.Encode()

	return base.RoundTrip(r)
}
