package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/supabase"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims supabaseClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() supabaseClaims {
	return supabaseClaims{
		Email:        "admin@example.com",
		UserMetadata: map[string]any{"full_name": "Admin", "role": "admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-admin",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestTokenVerifier_Local(t *testing.T) {
	v := NewTokenVerifier(newFakeClient(), testSecret)

	id, err := v.Verify(context.Background(), signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: "u-admin", Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin}, id)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.Verify(context.Background(), signToken(t, testSecret, expired))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = v.Verify(context.Background(), signToken(t, "another-secret-another-secret-12345", validClaims()))
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"anon"}
	_, err = v.Verify(context.Background(), signToken(t, testSecret, wrongAud))
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)

	noSub := validClaims()
	noSub.Subject = ""
	_, err = v.Verify(context.Background(), signToken(t, testSecret, noSub))
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestTokenVerifier_Remote(t *testing.T) {
	client := newFakeClient()
	client.users["good"] = &supabase.User{ID: "u1", Email: "jane@example.com"}
	v := NewTokenVerifier(client, "")

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, "jane", id.Name)

	_, err = v.Verify(context.Background(), "bad")
	assert.Error(t, err)
}

func newTestAuthenticator(client *fakeClient) (*Authenticator, *Registry) {
	registry := NewRegistry(Deps{Client: client, Sessions: client, Languages: fixedLanguage("ar")})
	return NewAuthenticator(NewTokenVerifier(client, testSecret), registry, zap.NewNop()), registry
}

func TestMiddleware(t *testing.T) {
	client := newFakeClient()
	a, registry := newTestAuthenticator(client)
	defer registry.Close()

	var got models.Identity
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("no credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u-admin", got.ID)
	})

	t.Run("query token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?access_token="+signToken(t, testSecret, validClaims()), nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("session cookie", func(t *testing.T) {
		client.mu.Lock()
		client.session = sessionFor("u-cookie", "c@example.com", nil)
		client.mu.Unlock()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sid-cookie"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u-cookie", got.ID)
	})

	t.Run("signed out cookie", func(t *testing.T) {
		client.mu.Lock()
		client.session = nil
		client.mu.Unlock()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sid-empty"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOptional_UnknownCookiesAllocateNothing(t *testing.T) {
	client := newFakeClient()
	a, registry := newTestAuthenticator(client)
	defer registry.Close()

	h := a.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 500; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/header", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: fmt.Sprintf("made-up-%d", i)})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, client.listenerCount())
}

func TestAdminOnly(t *testing.T) {
	a, registry := newTestAuthenticator(newFakeClient())
	defer registry.Close()

	h := a.Middleware(AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	user := validClaims()
	user.UserMetadata = map[string]any{"role": "merchant"}

	tests := []struct {
		name   string
		claims supabaseClaims
		want   int
	}{
		{"admin", validClaims(), http.StatusNoContent},
		{"merchant", user, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, tt.claims))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRegistry(t *testing.T) {
	client := newFakeClient()
	client.session = sessionFor("u1", "a@example.com", nil)
	r := NewRegistry(Deps{Client: client})

	c1 := r.Get(context.Background(), "sid-a")
	c2 := r.Get(context.Background(), "sid-a")
	assert.Same(t, c1, c2)
	assert.False(t, c1.Loading())
	assert.True(t, c1.IsAuthenticated())

	r.Get(context.Background(), "sid-b")
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, client.listenerCount())

	r.Remove("sid-a")
	_, ok := r.Lookup("sid-a")
	assert.False(t, ok)
	assert.Equal(t, 1, client.listenerCount())

	r.Close()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, client.listenerCount())
}

func TestRegistry_Restore(t *testing.T) {
	client := newFakeClient()
	r := NewRegistry(Deps{Client: client, Sessions: client})
	defer r.Close()

	_, ok := r.Restore(context.Background(), "sid-a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	client.mu.Lock()
	client.session = sessionFor("u1", "a@example.com", nil)
	client.mu.Unlock()

	c, ok := r.Restore(context.Background(), "sid-a")
	require.True(t, ok)
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, 1, r.Len())

	// live containers are reused even without persisted state
	client.mu.Lock()
	client.session = nil
	client.mu.Unlock()
	again, ok := r.Restore(context.Background(), "sid-a")
	require.True(t, ok)
	assert.Same(t, c, again)
}

func TestRegistry_Evict(t *testing.T) {
	client := newFakeClient()
	r := NewRegistry(Deps{Client: client})
	defer r.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Get(context.Background(), "sid-old")
	now = now.Add(20 * time.Minute)
	r.Get(context.Background(), "sid-new")
	now = now.Add(15 * time.Minute)

	assert.Equal(t, 1, r.Evict(30*time.Minute))
	_, ok := r.Lookup("sid-old")
	assert.False(t, ok)
	_, ok = r.Lookup("sid-new")
	assert.True(t, ok)
	assert.Equal(t, 1, client.listenerCount())
}

func TestRegistry_GetHonoursContext(t *testing.T) {
	client := newFakeClient()
	client.gate = make(chan struct{})
	defer close(client.gate)
	r := NewRegistry(Deps{Client: client})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := r.Get(ctx, "sid-slow")
	assert.True(t, c.Loading())
}

func TestHandlers_LoginSessionLogout(t *testing.T) {
	client := newFakeClient()
	client.signInSession = sessionFor("u1", "jane@example.com", map[string]any{"full_name": "Jane"})
	registry := NewRegistry(Deps{Client: client, Languages: fixedLanguage("en")})
	defer registry.Close()
	h := NewHandlers(registry, false, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"jane@example.com","password":"secret1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Authenticated)
	assert.Equal(t, "Jane", res.User.Name)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	sid := cookies[0]
	assert.Equal(t, SessionCookie, sid.Name)
	assert.True(t, sid.HttpOnly)

	// the same browser session is recognised on the next request
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(sid)
	rec = httptest.NewRecorder()
	h.Session(rec, req)
	res = models.SessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Authenticated)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(sid)
	rec = httptest.NewRecorder()
	h.Logout(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, registry.Len())
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestHandlers_LoginErrors(t *testing.T) {
	client := newFakeClient()
	client.signInErr = &supabase.Error{Kind: supabase.KindInvalidCredentials, Message: "Invalid login credentials"}
	registry := NewRegistry(Deps{Client: client})
	defer registry.Close()
	h := NewHandlers(registry, false, zap.NewNop())

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"bad json", `{`, http.StatusBadRequest, "Invalid request body"},
		{"bad email", `{"email":"nope","password":"x"}`, http.StatusBadRequest, "Invalid Email"},
		{"missing password", `{"email":"a@example.com"}`, http.StatusBadRequest, "Invalid Password"},
		{"wrong password", `{"email":"a@example.com","password":"x"}`, http.StatusUnauthorized, MsgInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body)))

			assert.Equal(t, tt.code, rec.Code)
			var res models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.want, res.Error)
		})
	}
}

func TestHandlers_UnknownCookie(t *testing.T) {
	client := newFakeClient()
	registry := NewRegistry(Deps{Client: client, Sessions: client})
	defer registry.Close()
	h := NewHandlers(registry, false, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})
	rec := httptest.NewRecorder()
	h.Session(rec, req)
	assert.JSONEq(t, `{"authenticated":false,"isAdmin":false,"loading":false,"user":null}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})
	rec = httptest.NewRecorder()
	h.Logout(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, client.listenerCount())
}

func TestHandlers_SessionWithoutCookie(t *testing.T) {
	registry := NewRegistry(Deps{Client: newFakeClient()})
	h := NewHandlers(registry, false, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Session(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false,"isAdmin":false,"loading":false,"user":null}`, rec.Body.String())
	assert.Equal(t, 0, registry.Len())
}
