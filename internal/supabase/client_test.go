package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/storage"
)

type fakeEnv map[string]string

func (e fakeEnv) Lookup(name string) (string, bool) {
	v, ok := e[name]
	return v, ok && v != ""
}

func TestFactory_StubWhenUnconfigured(t *testing.T) {
	tests := []struct {
		name string
		env  fakeEnv
	}{
		{name: "nothing set", env: fakeEnv{}},
		{name: "url only", env: fakeEnv{"SUPABASE_URL": "https://x.supabase.co"}},
		{name: "key only", env: fakeEnv{"SUPABASE_ANON_KEY": "anon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := NewFactory(tt.env, storage.NewMemoryStore(), zap.NewNop())

			c := f.Client()
			require.NotNil(t, c)
			assert.IsType(t, stubClient{}, c)

			s, err := c.GetSession(ctx)
			assert.NoError(t, err)
			assert.Nil(t, s)

			_, err = c.SignInWithPassword(ctx, "a@example.com", "pw")
			assert.Equal(t, KindNotConfigured, KindOf(err))
			assert.Equal(t, "Supabase not configured. Please add environment variables.", err.Error())

			_, _, err = c.SignUp(ctx, SignUpParams{Email: "a@example.com"})
			assert.Equal(t, KindNotConfigured, KindOf(err))

			assert.NoError(t, c.SignOut(ctx))

			unsubscribe := c.OnAuthStateChange(func(AuthChangeEvent) {})
			require.NotNil(t, unsubscribe)
			unsubscribe()
		})
	}
}

func TestFactory_MemoizesAcrossGoroutines(t *testing.T) {
	f := NewFactory(fakeEnv{"SUPABASE_URL": "http://127.0.0.1:1", "SUPABASE_ANON_KEY": "anon"},
		storage.NewMemoryStore(), zap.NewNop())

	const n = 16
	clients := make([]Client, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients[i] = f.Client()
		}()
	}
	wg.Wait()

	for _, c := range clients {
		assert.Same(t, clients[0].(*gotrueClient), c.(*gotrueClient))
	}
}

func TestFactory_HasSession(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	f := NewFactory(fakeEnv{}, store, zap.NewNop())

	assert.False(t, f.HasSession(ctx, "sid-1"))

	require.NoError(t, storage.SetJSON(ctx, store, sessionKey("sid-1"), Session{AccessToken: "a"}, 0))
	assert.True(t, f.HasSession(ctx, "sid-1"))
	assert.False(t, f.HasSession(ctx, "sid-2"))
}

func TestScope(t *testing.T) {
	assert.Equal(t, DefaultScope, ScopeFrom(context.Background()))
	assert.Equal(t, "sid-1", ScopeFrom(WithScope(context.Background(), "sid-1")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    ErrorKind
		message string
	}{
		{
			name:    "invalid grant",
			err:     errors.New(`response status code 400: {"error":"invalid_grant","error_description":"Invalid login credentials"}`),
			kind:    KindInvalidCredentials,
			message: "Invalid login credentials",
		},
		{
			name:    "error code only",
			err:     errors.New(`response status code 400: {"code":400,"error_code":"email_not_confirmed","msg":"Email not confirmed"}`),
			kind:    KindEmailNotConfirmed,
			message: "Email not confirmed",
		},
		{
			name:    "already registered",
			err:     errors.New(`response status code 422: {"code":422,"error_code":"user_already_exists","msg":"User already registered"}`),
			kind:    KindAlreadyRegistered,
			message: "User already registered",
		},
		{
			name:    "plain text body",
			err:     errors.New("response status code 500: upstream exploded"),
			kind:    KindUnknown,
			message: "upstream exploded",
		},
		{
			name:    "transport error",
			err:     errors.New("dial tcp: connection refused"),
			kind:    KindUnknown,
			message: "dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.message, got.Message)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, classify(nil))
}

func TestSessionExpired(t *testing.T) {
	now := time.Unix(1_000_000, 0)

	assert.False(t, (&Session{}).Expired(now))
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Hour).Unix()}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now.Add(5 * time.Second).Unix()}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now.Add(-time.Minute).Unix()}).Expired(now))
}

const testUserID = "3f1c9a4e-8d2b-4c57-9e61-0b7a2d5f8c13"

// fakeGotrue answers the handful of gotrue endpoints the client uses.
type fakeGotrue struct {
	mu         sync.Mutex
	redirectTo string
	logouts    int
	expiresAt  int64
}

func (f *fakeGotrue) snapshot() (redirectTo string, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirectTo, f.logouts
}

func (f *fakeGotrue) tokenJSON(access string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": "refresh-" + access,
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    f.expiry(),
		"user": map[string]any{
			"id":            testUserID,
			"email":         "jane@example.com",
			"user_metadata": map[string]any{"full_name": "Jane Doe", "role": "merchant"},
		},
	}
}

func (f *fakeGotrue) expiry() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiresAt
}

func (f *fakeGotrue) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			var body struct {
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
				return
			}
			writeJSON(w, f.tokenJSON("access-1"))
		case "refresh_token":
			f.mu.Lock()
			f.expiresAt = time.Now().Add(time.Hour).Unix()
			f.mu.Unlock()
			writeJSON(w, f.tokenJSON("access-2"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.redirectTo = r.URL.Query().Get("redirect_to")
		f.mu.Unlock()

		if body.Email == "taken@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`)
			return
		}
		writeJSON(w, map[string]any{
			"id":            testUserID,
			"email":         body.Email,
			"user_metadata": map[string]any{"full_name": "New User", "role": "user"},
		})
	})

	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"msg":"invalid JWT"}`)
			return
		}
		writeJSON(w, f.tokenJSON("access-1")["user"])
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeGotrue) (*gotrueClient, *storage.MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store := storage.NewMemoryStore()
	f := NewFactory(fakeEnv{"SUPABASE_URL": srv.URL + "/", "SUPABASE_ANON_KEY": "anon"}, store, zap.NewNop(),
		WithRedirectURL("https://outfred.example/welcome"))

	c, ok := f.Client().(*gotrueClient)
	require.True(t, ok)
	return c, store
}

type eventLog struct {
	mu     sync.Mutex
	events []AuthChangeEvent
}

func (l *eventLog) add(e AuthChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func TestGotrueClient_SignInPersistsAndEmits(t *testing.T) {
	fake := &fakeGotrue{expiresAt: time.Now().Add(time.Hour).Unix()}
	c, _ := newTestClient(t, fake)
	ctx := WithScope(context.Background(), "sid-1")

	var log eventLog
	unsubscribe := c.OnAuthStateChange(log.add)
	defer unsubscribe()

	s, err := c.SignInWithPassword(ctx, "jane@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, testUserID, s.User.ID)
	assert.Equal(t, "merchant", s.User.UserMetadata["role"])

	restored, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "access-1", restored.AccessToken)

	other, err := c.GetSession(WithScope(context.Background(), "sid-2"))
	require.NoError(t, err)
	assert.Nil(t, other, "sessions are per scope")

	assert.Equal(t, []EventType{EventSignedIn}, log.types())
	assert.Equal(t, "sid-1", log.events[0].Scope)
}

func TestGotrueClient_SignInInvalidCredentials(t *testing.T) {
	c, _ := newTestClient(t, &fakeGotrue{})

	_, err := c.SignInWithPassword(context.Background(), "jane@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
}

func TestGotrueClient_RefreshesExpiredSession(t *testing.T) {
	fake := &fakeGotrue{expiresAt: time.Now().Add(-time.Minute).Unix()}
	c, _ := newTestClient(t, fake)
	ctx := WithScope(context.Background(), "sid-1")

	_, err := c.SignInWithPassword(ctx, "jane@example.com", "secret")
	require.NoError(t, err)

	var log eventLog
	c.OnAuthStateChange(log.add)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "access-2", s.AccessToken)
	assert.Equal(t, []EventType{EventTokenRefreshed}, log.types())
}

func TestGotrueClient_SignUpSendsRedirect(t *testing.T) {
	fake := &fakeGotrue{}
	c, _ := newTestClient(t, fake)

	u, s, err := c.SignUp(context.Background(), SignUpParams{
		Email:    "new@example.com",
		Password: "secret1",
		Data:     map[string]any{"full_name": "New User", "role": "user"},
	})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Nil(t, s, "confirmation pending, no session")
	assert.Equal(t, "new@example.com", u.Email)
	redirectTo, _ := fake.snapshot()
	assert.Equal(t, "https://outfred.example/welcome", redirectTo)
}

func TestGotrueClient_SignUpAlreadyRegistered(t *testing.T) {
	c, _ := newTestClient(t, &fakeGotrue{})

	_, _, err := c.SignUp(context.Background(), SignUpParams{Email: "taken@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, KindAlreadyRegistered, KindOf(err))
	assert.Equal(t, "User already registered", err.Error())
}

func TestGotrueClient_SignOutClearsAndEmits(t *testing.T) {
	fake := &fakeGotrue{expiresAt: time.Now().Add(time.Hour).Unix()}
	c, _ := newTestClient(t, fake)
	ctx := WithScope(context.Background(), "sid-1")

	_, err := c.SignInWithPassword(ctx, "jane@example.com", "secret")
	require.NoError(t, err)

	var log eventLog
	c.OnAuthStateChange(log.add)

	require.NoError(t, c.SignOut(ctx))
	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, logouts := fake.snapshot()
	assert.Equal(t, 1, logouts)
	assert.Equal(t, []EventType{EventSignedOut}, log.types())

	require.NoError(t, c.SignOut(ctx), "signing out twice is a no-op")
}

func TestGotrueClient_GetUser(t *testing.T) {
	c, _ := newTestClient(t, &fakeGotrue{})

	u, err := c.GetUser(context.Background(), "access-1")
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)

	_, err = c.GetUser(context.Background(), "forged")
	require.Error(t, err)
	assert.Equal(t, "invalid JWT", err.Error())
}

func TestGotrueClient_Unsubscribe(t *testing.T) {
	fake := &fakeGotrue{expiresAt: time.Now().Add(time.Hour).Unix()}
	c, _ := newTestClient(t, fake)

	var log eventLog
	unsubscribe := c.OnAuthStateChange(log.add)
	unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "jane@example.com", "secret")
	require.NoError(t, err)
	assert.Empty(t, log.types())
}
