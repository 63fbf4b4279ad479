package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/session"
	"github.com/upb/vision-gateway/utils"
)

// SessionMiddleware builds a fresh request scope from the incoming cookies
// and writes the scope's cookie changes back before the response header.
type SessionMiddleware struct {
	resources session.ResourceConfig
	cookies   *session.CookieOptions
	userPools cognito.UserPoolsAPI
	identity  cognito.IdentityAPI
	logger    *zap.Logger
}

// NewSessionMiddleware creates a SessionMiddleware. cookies may be nil, in
// which case token refreshes are kept for the request only and never sent
// back to the browser.
func NewSessionMiddleware(resources session.ResourceConfig, cookies *session.CookieOptions, userPools cognito.UserPoolsAPI, identity cognito.IdentityAPI, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		resources: resources,
		cookies:   cookies,
		userPools: userPools,
		identity:  identity,
		logger:    logger,
	}
}

// NewScope builds the scope of r. The scope is not shared with any other
// request.
func (m *SessionMiddleware) NewScope(r *http.Request) *session.Scope {
	keys := session.Keys{ClientID: m.resources.Auth.UserPoolClientID}
	bridge := session.NewCookieBridge(r, keys, m.cookies)
	storage := session.NewKeyValueStorage(bridge)

	store := cognito.NewTokenStore(storage, keys)
	return &session.Scope{
		Bridge:  bridge,
		Storage: storage,
		Library: session.LibraryOptions{
			Auth: session.AuthOptions{
				TokenProvider:       cognito.NewUserPoolsTokenProvider(store, m.userPools, keys.ClientID, m.logger),
				CredentialsProvider: cognito.NewIdentityPoolCredentialsProvider(m.identity, storage, m.resources.Auth, m.logger),
			},
		},
	}
}

// Attach puts a new scope into the request context and wraps the response
// writer so pending cookie writes are flushed ahead of the status line.
func (m *SessionMiddleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := m.NewScope(r)
		fw := &cookieFlushWriter{ResponseWriter: w, bridge: scope.Bridge}

		next.ServeHTTP(fw, r.WithContext(WithScope(r.Context(), scope)))

		if !fw.wroteHeader {
			// Nothing written yet: net/http sends 200 after we return.
			if n := scope.Bridge.WriteCookies(w); n > 0 {
				m.logger.Debug("flushed session cookies",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.Int("count", n))
			}
		}
	})
}

// RequireSession rejects requests that carry no LastAuthUser cookie. It must
// run after Attach.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if GetScopeFromContext(ctx).LastAuthUser() == "" {
			m.logger.Warn("missing session",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Sign-in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type cookieFlushWriter struct {
	http.ResponseWriter
	bridge      *session.CookieBridge
	wroteHeader bool
}

func (w *cookieFlushWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.bridge.WriteCookies(w.ResponseWriter)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieFlushWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cookieFlushWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
