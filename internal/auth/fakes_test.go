package auth

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/vindennt/outfred-gateway/internal/supabase"
)

// fakeClient is an in-memory supabase.Client whose session-change stream is
// driven by the test.
type fakeClient struct {
	mu sync.Mutex

	session    *supabase.Session
	sessionErr error
	// gate, when set, blocks GetSession until closed
	gate chan struct{}

	signInSession *supabase.Session
	signInErr     error
	signUpUser    *supabase.User
	signUpErr     error
	signOutErr    error
	lastSignUp    supabase.SignUpParams
	users         map[string]*supabase.User

	listeners map[int]supabase.Listener
	nextID    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		listeners: make(map[int]supabase.Listener),
		users:     make(map[string]*supabase.User),
	}
}

func (f *fakeClient) GetSession(ctx context.Context) (*supabase.Session, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeClient) SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error) {
	f.mu.Lock()
	s, err := f.signInSession, f.signInErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	f.emit(supabase.AuthChangeEvent{Type: supabase.EventSignedIn, Scope: supabase.ScopeFrom(ctx), Session: s})
	return s, nil
}

func (f *fakeClient) SignUp(ctx context.Context, params supabase.SignUpParams) (*supabase.User, *supabase.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSignUp = params
	return f.signUpUser, nil, f.signUpErr
}

func (f *fakeClient) SignOut(ctx context.Context) error {
	f.mu.Lock()
	err := f.signOutErr
	f.session = nil
	f.mu.Unlock()

	f.emit(supabase.AuthChangeEvent{Type: supabase.EventSignedOut, Scope: supabase.ScopeFrom(ctx)})
	return err
}

func (f *fakeClient) GetUser(ctx context.Context, accessToken string) (*supabase.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[accessToken]
	if !ok {
		return nil, &supabase.Error{Kind: supabase.KindUnknown, Message: "invalid JWT"}
	}
	return u, nil
}

func (f *fakeClient) OnAuthStateChange(fn supabase.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// HasSession treats any scope as persisted while the fake holds a session.
func (f *fakeClient) HasSession(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session != nil
}

func (f *fakeClient) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeClient) emit(evt supabase.AuthChangeEvent) {
	f.mu.Lock()
	fns := make([]supabase.Listener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

func sessionFor(id, email string, meta map[string]any) *supabase.Session {
	return &supabase.Session{
		AccessToken: "token-" + id,
		User:        supabase.User{ID: id, Email: email, UserMetadata: meta},
	}
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendWelcome(ctx context.Context, to, name, lang string) error {
	return m.Called(to, name, lang).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendWelcome(ctx context.Context, userID, name, lang string) error {
	return m.Called(userID, name, lang).Error(0)
}

type mockCodes struct{ mock.Mock }

func (m *mockCodes) Issue(ctx context.Context, email, userID string) (string, error) {
	args := m.Called(email, userID)
	return args.String(0), args.Error(1)
}

func (m *mockCodes) Verify(ctx context.Context, email, code string) (bool, error) {
	args := m.Called(email, code)
	return args.Bool(0), args.Error(1)
}

type fixedLanguage string

func (l fixedLanguage) Language(context.Context, string) string { return string(l) }
