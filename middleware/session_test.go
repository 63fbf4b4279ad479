package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/session"
)

const testClientID = "client-1"

var testKeys = session.Keys{ClientID: testClientID}

func testResources() session.ResourceConfig {
	return session.ResourceConfig{
		Auth: session.AuthConfig{
			Region:           "us-east-1",
			UserPoolID:       "us-east-1_pool",
			UserPoolClientID: testClientID,
		},
	}
}

func unsignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return s
}

func signedInRequest(t *testing.T) *http.Request {
	t.Helper()
	now := time.Now()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/user", nil)
	req.AddCookie(&http.Cookie{Name: testKeys.LastAuthUser(), Value: "alice"})
	req.AddCookie(&http.Cookie{Name: testKeys.Token("alice", session.KindAccessToken), Value: unsignedToken(t, jwt.MapClaims{
		"sub": "sub-1", "username": "alice", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
	})})
	return req
}

func TestSessionMiddleware_Attach(t *testing.T) {
	m := NewSessionMiddleware(testResources(), session.DefaultCookieOptions(), nil, nil, zap.NewNop())

	t.Run("signed out request gets an empty scope", func(t *testing.T) {
		var scope *session.Scope
		handler := m.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope = GetScopeFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotNil(t, scope)
		assert.Equal(t, "", scope.LastAuthUser())
		assert.Empty(t, scope.Bridge.GetAll())
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("scope providers read the request cookies", func(t *testing.T) {
		var tokens *session.AuthTokens
		handler := m.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			scope := GetScopeFromContext(r.Context())
			tokens, err = scope.Library.Auth.TokenProvider.FetchTokens(r.Context(), session.FetchTokensOptions{})
			require.NoError(t, err)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), signedInRequest(t))

		require.NotNil(t, tokens)
		assert.Equal(t, "alice", tokens.Username)
	})

	t.Run("writes are flushed before the header", func(t *testing.T) {
		name := testKeys.Token("alice", session.KindClockDrift)
		handler := m.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			GetScopeFromContext(r.Context()).Bridge.Set(name, "250")
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, signedInRequest(t))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, name, cookies[0].Name)
		assert.Equal(t, "250", cookies[0].Value)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, `{"ok":true}`, w.Body.String())
	})

	t.Run("writes are flushed when the handler writes nothing", func(t *testing.T) {
		handler := m.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			GetScopeFromContext(r.Context()).Bridge.Delete(testKeys.LastAuthUser())
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, signedInRequest(t))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, testKeys.LastAuthUser(), cookies[0].Name)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})

	t.Run("each request gets its own scope", func(t *testing.T) {
		var scopes []*session.Scope
		handler := m.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes = append(scopes, GetScopeFromContext(r.Context()))
		}))

		handler.ServeHTTP(httptest.NewRecorder(), signedInRequest(t))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.Len(t, scopes, 2)
		assert.NotSame(t, scopes[0], scopes[1])
		assert.Equal(t, "alice", scopes[0].LastAuthUser())
		assert.Equal(t, "", scopes[1].LastAuthUser())
	})
}

func TestSessionMiddleware_WithoutWritePolicy(t *testing.T) {
	m := NewSessionMiddleware(testResources(), nil, nil, nil, zap.NewNop())

	handler := m.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := GetScopeFromContext(r.Context())
		name := testKeys.Token("alice", session.KindClockDrift)
		scope.Bridge.Set(name, "99")

		record, ok := scope.Bridge.Get(name)
		assert.True(t, ok)
		assert.Equal(t, "99", record.Value)
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, signedInRequest(t))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestSessionMiddleware_RequireSession(t *testing.T) {
	m := NewSessionMiddleware(testResources(), session.DefaultCookieOptions(), nil, nil, zap.NewNop())

	t.Run("missing LastAuthUser returns 401", func(t *testing.T) {
		handler := m.Attach(m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthorized")
	})

	t.Run("session present calls next", func(t *testing.T) {
		called := false
		handler := m.Attach(m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, signedInRequest(t))

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("without Attach returns 401", func(t *testing.T) {
		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, signedInRequest(t))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetScopeFromContext(ctx))
	assert.Equal(t, "", GetRequestIDFromContext(ctx))

	scope := &session.Scope{}
	ctx = WithScope(ctx, scope)
	ctx = WithRequestID(ctx, "req-7")
	assert.Same(t, scope, GetScopeFromContext(ctx))
	assert.Equal(t, "req-7", GetRequestIDFromContext(ctx))
}
