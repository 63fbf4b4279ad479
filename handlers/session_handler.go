package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/vision-gateway/middleware"
	"github.com/upb/vision-gateway/services"
	"github.com/upb/vision-gateway/services/authapi"
	"github.com/upb/vision-gateway/services/graphql"
	"github.com/upb/vision-gateway/services/storage"
	"github.com/upb/vision-gateway/session"
	"github.com/upb/vision-gateway/utils"
)

// GraphQLHeaderPrefix marks request headers that are forwarded to the
// GraphQL endpoint with the prefix removed.
const GraphQLHeaderPrefix = "X-Graphql-Header-"

// SessionResponse is the auth session as exposed over HTTP. Secret parts of
// the AWS credentials are never returned.
type SessionResponse struct {
	IsSignedIn  bool             `json:"isSignedIn"`
	Username    string           `json:"username,omitempty"`
	UserSub     string           `json:"userSub,omitempty"`
	IdentityID  string           `json:"identityId,omitempty"`
	Tokens      *TokensView      `json:"tokens,omitempty"`
	Credentials *CredentialsView `json:"credentials,omitempty"`
}

// TokensView carries the user pool tokens of a session.
type TokensView struct {
	IDToken     string    `json:"idToken,omitempty"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CredentialsView identifies the AWS credentials of a session.
type CredentialsView struct {
	AccessKeyID string     `json:"accessKeyId"`
	Expiration  *time.Time `json:"expiration,omitempty"`
}

// SessionHandler exposes the session-aware facade over HTTP. A facade is
// bound to the scope of each request.
type SessionHandler struct {
	resources session.ResourceConfig
	caps      services.Capabilities
	logger    *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(resources session.ResourceConfig, caps services.Capabilities, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		resources: resources,
		caps:      caps,
		logger:    logger,
	}
}

func (h *SessionHandler) facade(w http.ResponseWriter, r *http.Request) (*services.Facade, bool) {
	scope := middleware.GetScopeFromContext(r.Context())
	if scope == nil {
		h.logger.Error("session scope missing from request context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteInternalServerError(w, "")
		return nil, false
	}
	return services.NewFacade(h.resources, h.caps, scope), true
}

// HandleFetchSession handles GET /api/v1/auth/session
func (h *SessionHandler) HandleFetchSession(w http.ResponseWriter, r *http.Request) {
	f, ok := h.facade(w, r)
	if !ok {
		return
	}

	forceRefresh, _ := strconv.ParseBool(r.URL.Query().Get("forceRefresh"))
	sess, err := f.FetchAuthSession(r.Context(), authapi.FetchAuthSessionOptions{ForceRefresh: forceRefresh})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, newSessionResponse(sess))
}

// HandleGetCurrentUser handles GET /api/v1/auth/user
func (h *SessionHandler) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	f, ok := h.facade(w, r)
	if !ok {
		return
	}

	user, err := f.GetCurrentUser(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, user)
}

// HandleFetchUserAttributes handles GET /api/v1/auth/user/attributes
func (h *SessionHandler) HandleFetchUserAttributes(w http.ResponseWriter, r *http.Request) {
	f, ok := h.facade(w, r)
	if !ok {
		return
	}

	attributes, err := f.FetchUserAttributes(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, attributes)
}

// HandleListStorage handles GET /api/v1/storage
func (h *SessionHandler) HandleListStorage(w http.ResponseWriter, r *http.Request) {
	in, err := parseListInput(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	f, ok := h.facade(w, r)
	if !ok {
		return
	}

	out, err := f.ListStorage(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, out)
}

// HandleGraphQL handles POST /api/v1/graphql. The response is the GraphQL
// envelope as returned by the endpoint.
func (h *SessionHandler) HandleGraphQL(w http.ResponseWriter, r *http.Request) {
	var opts graphql.Options
	if err := utils.DecodeJSON(w, r, &opts); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&opts); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	f, ok := h.facade(w, r)
	if !ok {
		return
	}

	resp, err := f.GraphQL(r.Context(), opts, forwardedHeaders(r.Header))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, resp)
}

func parseListInput(r *http.Request) (storage.ListInput, error) {
	q := r.URL.Query()
	in := storage.ListInput{
		Prefix:           q.Get("prefix"),
		AccessLevel:      storage.AccessLevel(q.Get("accessLevel")),
		TargetIdentityID: q.Get("targetIdentityId"),
		NextToken:        q.Get("nextToken"),
	}

	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return in, &utils.ValidationError{
				Message: "Validation failed",
				Fields:  map[string]string{"pageSize": "pageSize must be a number"},
			}
		}
		in.PageSize = int32(n)
	}
	if v := q.Get("listAll"); v != "" {
		listAll, err := strconv.ParseBool(v)
		if err != nil {
			return in, &utils.ValidationError{
				Message: "Validation failed",
				Fields:  map[string]string{"listAll": "listAll must be true or false"},
			}
		}
		in.ListAll = listAll
	}
	return in, nil
}

func forwardedHeaders(src http.Header) http.Header {
	out := make(http.Header)
	for name, values := range src {
		if !strings.HasPrefix(name, GraphQLHeaderPrefix) {
			continue
		}
		target := strings.TrimPrefix(name, GraphQLHeaderPrefix)
		if target == "" {
			continue
		}
		for _, v := range values {
			out.Add(target, v)
		}
	}
	return out
}

func newSessionResponse(sess *authapi.AuthSession) SessionResponse {
	resp := SessionResponse{
		IsSignedIn: sess.SignedIn(),
		UserSub:    sess.UserSub,
		IdentityID: sess.IdentityID,
	}
	if sess.Tokens != nil {
		resp.Username = sess.Tokens.Username
		resp.Tokens = &TokensView{
			AccessToken: sess.Tokens.AccessToken.Raw,
			ExpiresAt:   sess.Tokens.AccessToken.ExpiresAt(),
		}
		if sess.Tokens.IDToken != nil {
			resp.Tokens.IDToken = sess.Tokens.IDToken.Raw
		}
	}
	if sess.Credentials != nil {
		resp.Credentials = &CredentialsView{AccessKeyID: sess.Credentials.AccessKeyID}
		if sess.Credentials.CanExpire {
			exp := sess.Credentials.Expires
			resp.Credentials.Expiration = &exp
		}
	}
	return resp
}
