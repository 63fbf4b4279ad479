package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/config"
	"github.com/upb/vision-gateway/handlers"
	"github.com/upb/vision-gateway/middleware"
	"github.com/upb/vision-gateway/session"
	"github.com/upb/vision-gateway/utils"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName   = "oauth_state"
	stateCookieMaxAge = 600
)

// ErrNoScope is returned when a handler runs without the session middleware.
var ErrNoScope = errors.New("request has no session scope")

// IDTokenVerifier verifies ID tokens returned by the hosted UI.
// *oidc.IDTokenVerifier satisfies it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// PasswordAuthenticator signs users in with a password and revokes their
// refresh tokens. *cognito.Authenticator satisfies it.
type PasswordAuthenticator interface {
	SignIn(ctx context.Context, username, password string) (*session.AuthTokens, error)
	GlobalSignOut(ctx context.Context, accessToken string) error
}

// SignInRequest is the body of POST /auth/sign-in.
type SignInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignInResponse reports the outcome of a sign-in.
type SignInResponse struct {
	IsSignedIn bool   `json:"isSignedIn"`
	Username   string `json:"username"`
}

// Handler handles sign-in flows. Tokens obtained by any flow are written to
// the request's cookie bridge so they reach the browser under the same
// names the client SDK uses.
type Handler struct {
	cfg           *config.Config
	oauth         *oauth2.Config
	verifier      IDTokenVerifier
	authenticator PasswordAuthenticator
	logger        *zap.Logger
	now           func() time.Time
}

// NewHandler creates a new auth handler. oauth and verifier may be nil when
// the hosted UI is not configured, authenticator may be nil when password
// sign-in is not offered.
func NewHandler(cfg *config.Config, oauth *oauth2.Config, verifier IDTokenVerifier, authenticator PasswordAuthenticator, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:           cfg,
		oauth:         oauth,
		verifier:      verifier,
		authenticator: authenticator,
		logger:        logger,
		now:           time.Now,
	}
}

// NewOAuth2Config returns the authorization code flow configuration of the
// hosted UI, or nil when no domain is configured.
func NewOAuth2Config(cfg config.CognitoConfig) *oauth2.Config {
	if cfg.Domain == "" || cfg.ClientID == "" {
		return nil
	}
	domain := strings.TrimSuffix(cfg.Domain, "/")
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  domain + "/oauth2/authorize",
			TokenURL: domain + "/oauth2/token",
		},
	}
}

// Issuer returns the token issuer of a user pool.
func Issuer(cfg config.CognitoConfig) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", cfg.Region, cfg.UserPoolID)
}

// NewIDTokenVerifier returns a verifier backed by the user pool's JWKS, or
// nil when the user pool is not configured. Keys are fetched lazily.
func NewIDTokenVerifier(ctx context.Context, cfg config.CognitoConfig) *oidc.IDTokenVerifier {
	if cfg.UserPoolID == "" || cfg.ClientID == "" {
		return nil
	}
	issuer := Issuer(cfg)
	keys := oidc.NewRemoteKeySet(ctx, issuer+"/.well-known/jwks.json")
	return oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: cfg.ClientID})
}

// HandleLogin redirects to Cognito hosted UI for OAuth2 authorization
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		h.logger.Error("hosted UI not configured")
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.SetCookie(w, h.stateCookie(state, stateCookieMaxAge))
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code for tokens, verifies the
// ID token and stores the session in the auth cookies.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if errDesc := r.URL.Query().Get("error_description"); errDesc != "" {
		h.logger.Warn("hosted UI returned an error",
			zap.String("request_id", requestID),
			zap.String("error", r.URL.Query().Get("error")),
			zap.String("description", errDesc))
		_ = utils.WriteUnauthorized(w, errDesc)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	http.SetCookie(w, h.stateCookie("", -1))

	if h.oauth == nil || h.verifier == nil {
		h.logger.Error("hosted UI not configured", zap.String("request_id", requestID))
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("token exchange failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		h.logger.Warn("token response has no id_token", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	idToken, err := h.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		h.logger.Warn("id token verification failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Invalid token")
		return
	}

	tokens, err := cognito.NewAuthTokens(token.AccessToken, rawIDToken, token.RefreshToken, h.now())
	if err != nil {
		h.logger.Warn("failed to decode tokens",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Invalid token")
		return
	}
	if tokens.Username == "" {
		// Access tokens from some federated providers omit username
		if claims, err := cognito.ExtractClaims(rawIDToken); err == nil {
			tokens.Username = claims.UserName()
		}
		if tokens.Username == "" {
			tokens.Username = idToken.Subject
		}
	}

	if err := h.storeSession(ctx, tokens); err != nil {
		h.logger.Error("failed to store session",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to store session")
		return
	}

	h.logger.Info("hosted UI sign-in completed",
		zap.String("request_id", requestID),
		zap.String("username", tokens.Username))

	http.Redirect(w, r, h.frontEndURL(), http.StatusFound)
}

// HandleLogout clears the session cookies and redirects to Cognito logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.clearSession(r.Context()); err != nil {
		h.logger.Warn("failed to clear session",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
	}

	if h.oauth == nil {
		http.Redirect(w, r, h.frontEndURL(), http.StatusFound)
		return
	}
	http.Redirect(w, r, buildLogoutURL(h.cfg.Cognito.Domain, h.cfg.Cognito.ClientID, h.frontEndURL()), http.StatusFound)
}

// HandleSignIn handles POST /auth/sign-in with a username and password.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if h.authenticator == nil {
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	var req SignInRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	tokens, err := h.authenticator.SignIn(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.Info("password sign-in failed",
			zap.String("request_id", requestID),
			zap.String("username", req.Username),
			zap.Error(err))
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.storeSession(ctx, tokens); err != nil {
		h.logger.Error("failed to store session",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to store session")
		return
	}

	_ = utils.WriteOK(w, SignInResponse{IsSignedIn: true, Username: tokens.Username})
}

// HandleSignOut handles POST /auth/sign-out. With ?global=true every refresh
// token of the user is revoked before the cookies are cleared.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	global, _ := strconv.ParseBool(r.URL.Query().Get("global"))
	if global {
		if h.authenticator == nil {
			_ = utils.WriteInternalServerError(w, "Authentication not configured")
			return
		}
		if err := h.globalSignOut(ctx); err != nil {
			h.logger.Warn("global sign-out failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			handlers.HandleServiceError(w, err, h.logger)
			return
		}
	}

	if err := h.clearSession(ctx); err != nil {
		h.logger.Error("failed to clear session",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to clear session")
		return
	}

	utils.WriteNoContent(w)
}

func (h *Handler) globalSignOut(ctx context.Context) error {
	scope := middleware.GetScopeFromContext(ctx)
	if scope == nil {
		return ErrNoScope
	}
	tokens, err := cognito.NewTokenStore(scope.Storage, scope.Bridge.Keys()).LoadTokens()
	if err != nil {
		return err
	}
	if tokens == nil {
		return cognito.ErrUserUnauthenticated
	}
	return h.authenticator.GlobalSignOut(ctx, tokens.AccessToken.Raw)
}

// storeSession makes tokens the session of the request. Records of a
// different previous user are removed.
func (h *Handler) storeSession(ctx context.Context, tokens *session.AuthTokens) error {
	scope := middleware.GetScopeFromContext(ctx)
	if scope == nil {
		return ErrNoScope
	}
	store := cognito.NewTokenStore(scope.Storage, scope.Bridge.Keys())

	if prev := scope.LastAuthUser(); prev != "" && prev != tokens.Username {
		if err := store.ClearTokens(); err != nil {
			return err
		}
	}
	scope.Bridge.Adopt(tokens.Username)
	return store.StoreTokens(tokens)
}

func (h *Handler) clearSession(ctx context.Context) error {
	scope := middleware.GetScopeFromContext(ctx)
	if scope == nil {
		return ErrNoScope
	}
	if creds := scope.Library.Auth.CredentialsProvider; creds != nil {
		creds.ClearCredentials()
	}
	return cognito.NewTokenStore(scope.Storage, scope.Bridge.Keys()).ClearTokens()
}

func (h *Handler) frontEndURL() string {
	if h.cfg.Cognito.FrontEndURL == "" {
		return "/"
	}
	return h.cfg.Cognito.FrontEndURL
}

func (h *Handler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.cfg.Cognito.RedirectURI, "https"),
		SameSite: http.SameSiteLaxMode,
	}
}

func buildLogoutURL(domain, clientID, logoutURI string) string {
	base := strings.TrimSuffix(domain, "/") + "/logout"
	params := url.Values{
		"client_id":  {clientID},
		"logout_uri": {logoutURI},
	}
	return base + "?" + params.Encode()
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
