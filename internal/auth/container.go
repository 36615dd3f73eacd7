package auth

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/metrics"
	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/supabase"
)

// WelcomeMailer sends the post-registration welcome email.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, to, name, lang string) error
}

// WelcomeNotifier drops the welcome notification into the user's inbox.
type WelcomeNotifier interface {
	SendWelcome(ctx context.Context, userID, name, lang string) error
}

// CodeIssuer stores short-lived email verification codes.
type CodeIssuer interface {
	Issue(ctx context.Context, email, userID string) (string, error)
	Verify(ctx context.Context, email, code string) (bool, error)
}

// LanguageSource returns the UI language chosen in a browser session.
type LanguageSource interface {
	Language(ctx context.Context, scope string) string
}

// SessionStore reports whether auth state was persisted for a browser scope.
type SessionStore interface {
	HasSession(ctx context.Context, scope string) bool
}

type Deps struct {
	Client      supabase.Client
	Sessions    SessionStore
	Mailer      WelcomeMailer
	Notifier    WelcomeNotifier
	Codes       CodeIssuer
	Languages   LanguageSource
	RedirectURL string
	Logger      *zap.Logger
}

// Container holds the authenticated identity of one browser session and
// keeps it in sync with the client's session-change notifications.
type Container struct {
	deps  Deps
	scope string

	mu       sync.RWMutex
	loading  bool
	identity *models.Identity
	// gen counts identity writes. The initial fetch only applies its result
	// if nothing was written while it was in flight.
	gen uint64

	startOnce   sync.Once
	unsubscribe func()
	ready       chan struct{}
}

func NewContainer(scope string, deps Deps) *Container {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Container{
		deps:    deps,
		scope:   scope,
		loading: true,
		ready:   make(chan struct{}),
	}
}

// Start subscribes to session changes and restores the current session in
// the background. Ready is closed once the restore finished.
func (c *Container) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		unsubscribe := c.deps.Client.OnAuthStateChange(c.onAuthStateChange)

		c.mu.Lock()
		c.unsubscribe = unsubscribe
		startGen := c.gen
		c.mu.Unlock()

		go c.checkAuth(ctx, startGen)
	})
}

func (c *Container) checkAuth(ctx context.Context, startGen uint64) {
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		close(c.ready)
	}()

	log := c.deps.Logger.With(zap.String("scope", c.scope))
	log.Debug("checking authentication status")

	s, err := c.deps.Client.GetSession(c.scoped(ctx))
	if err != nil {
		log.Warn("auth check failed", zap.Error(err))
		return
	}
	if s == nil || s.User.ID == "" {
		log.Debug("session check result", zap.Bool("logged_in", false))
		return
	}
	log.Debug("session check result", zap.Bool("logged_in", true))

	id := IdentityFromUser(s.User)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != startGen {
		return
	}
	c.identity = &id
}

func (c *Container) onAuthStateChange(evt supabase.AuthChangeEvent) {
	if evt.Scope != c.scope {
		return
	}
	c.deps.Logger.Debug("auth state changed", zap.String("scope", c.scope), zap.String("event", string(evt.Type)))

	if evt.Session != nil && evt.Session.User.ID != "" {
		id := IdentityFromUser(evt.Session.User)
		c.setIdentity(&id)
		return
	}
	c.setIdentity(nil)
}

func (c *Container) setIdentity(id *models.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.identity = id
}

// Close stops listening for session changes.
func (c *Container) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Container) Ready() <-chan struct{} { return c.ready }

func (c *Container) Scope() string { return c.scope }

func (c *Container) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Identity returns a copy of the current identity.
func (c *Container) Identity() (models.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return models.Identity{}, false
	}
	return *c.identity, true
}

func (c *Container) IsAuthenticated() bool {
	_, ok := c.Identity()
	return ok
}

func (c *Container) IsAdmin() bool {
	id, ok := c.Identity()
	return ok && id.Role == models.RoleAdmin
}

// AccessToken returns the token of the stored session, empty when signed out.
func (c *Container) AccessToken(ctx context.Context) string {
	s, err := c.deps.Client.GetSession(c.scoped(ctx))
	if err != nil || s == nil {
		return ""
	}
	return s.AccessToken
}

func (c *Container) Login(ctx context.Context, email, password string) (err error) {
	defer func() { metrics.AuthAttempts.WithLabelValues("login", metrics.Result(err)).Inc() }()

	log := c.deps.Logger.With(zap.String("scope", c.scope), zap.String("email", email))
	log.Info("attempting login")

	s, err := c.deps.Client.SignInWithPassword(c.scoped(ctx), email, password)
	if err == nil && (s == nil || s.User.ID == "") {
		err = ErrNoUser
	}
	if err != nil {
		log.Warn("login failed", zap.Error(err))
		return loginError(err)
	}

	id := IdentityFromUser(s.User)
	c.setIdentity(&id)
	log.Info("user logged in", zap.String("user_id", id.ID))

	return nil
}

// Register creates the account, then issues a verification code, sends the
// welcome email and notification. Any of those side effects failing aborts
// before the identity is set, even though the remote account now exists.
func (c *Container) Register(ctx context.Context, email, password, name string) (err error) {
	defer func() { metrics.AuthAttempts.WithLabelValues("register", metrics.Result(err)).Inc() }()

	log := c.deps.Logger.With(zap.String("scope", c.scope), zap.String("email", email))
	log.Info("attempting registration")

	u, _, err := c.deps.Client.SignUp(c.scoped(ctx), supabase.SignUpParams{
		Email:    email,
		Password: password,
		Data: map[string]any{
			"full_name": name,
			"role":      string(models.RoleUser),
		},
		RedirectTo: c.deps.RedirectURL,
	})
	if err == nil && (u == nil || u.ID == "") {
		err = ErrNoUser
	}
	if err != nil {
		log.Warn("registration failed", zap.Error(err))
		return registerError(err)
	}
	log.Info("user registered", zap.String("user_id", u.ID))

	if _, err := c.deps.Codes.Issue(ctx, email, u.ID); err != nil {
		return fmt.Errorf("issue verification code: %w", err)
	}

	lang := c.deps.Languages.Language(ctx, c.scope)
	if err := c.deps.Mailer.SendWelcome(ctx, email, name, lang); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	log.Info("welcome email sent")

	if err := c.deps.Notifier.SendWelcome(ctx, u.ID, name, lang); err != nil {
		return fmt.Errorf("send welcome notification: %w", err)
	}

	id := IdentityFromUser(*u)
	c.setIdentity(&id)

	return nil
}

// Logout always ends up signed out locally, whatever the remote call says.
func (c *Container) Logout(ctx context.Context) error {
	err := c.deps.Client.SignOut(c.scoped(ctx))
	c.setIdentity(nil)
	metrics.AuthAttempts.WithLabelValues("logout", metrics.Result(err)).Inc()

	if err != nil {
		c.deps.Logger.Warn("remote sign-out failed", zap.String("scope", c.scope), zap.Error(err))
	}
	return err
}

// Verify consumes a verification code issued at registration.
func (c *Container) Verify(ctx context.Context, email, code string) error {
	ok, err := c.deps.Codes.Verify(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

func (c *Container) scoped(ctx context.Context) context.Context {
	return supabase.WithScope(ctx, c.scope)
}
