package authapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/session"
)

// FetchAuthSessionOptions controls FetchAuthSession.
type FetchAuthSessionOptions struct {
	ForceRefresh bool
}

// AuthSession is the auth state of a request.
type AuthSession struct {
	Tokens      *session.AuthTokens
	Credentials *aws.Credentials
	IdentityID  string
	UserSub     string
}

// SignedIn reports whether the session carries user pool tokens.
func (s *AuthSession) SignedIn() bool {
	return s != nil && s.Tokens != nil
}

// SignInDetails describes how the current user signed in.
type SignInDetails struct {
	LoginID string `json:"loginId,omitempty"`
}

// CurrentUser identifies the signed-in user.
type CurrentUser struct {
	Username      string         `json:"username"`
	UserID        string         `json:"userId"`
	SignInDetails *SignInDetails `json:"signInDetails,omitempty"`
}

// API implements the auth operations that run inside a server context.
type API struct {
	userPools cognito.UserPoolsAPI
	logger    *zap.Logger
}

// NewAPI creates the auth API.
func NewAPI(userPools cognito.UserPoolsAPI, logger *zap.Logger) *API {
	return &API{userPools: userPools, logger: logger}
}

// FetchAuthSession returns tokens and, when an identity pool is configured,
// AWS credentials for the request. A signed-out request yields an empty
// session, not an error.
func (a *API) FetchAuthSession(ctx context.Context, spec session.ContextSpec, opts FetchAuthSessionOptions) (*AuthSession, error) {
	lib, err := spec.Library()
	if err != nil {
		return nil, err
	}

	tokens, err := lib.Auth.TokenProvider.FetchTokens(ctx, session.FetchTokensOptions{ForceRefresh: opts.ForceRefresh})
	if err != nil {
		return nil, err
	}

	out := &AuthSession{Tokens: tokens}
	if tokens != nil {
		out.UserSub, _ = tokens.AccessToken.StringClaim("sub")
	}

	if lib.Auth.CredentialsProvider == nil {
		return out, nil
	}
	creds, err := lib.Auth.CredentialsProvider.FetchCredentials(ctx, session.FetchCredentialsOptions{
		Tokens:       tokens,
		ForceRefresh: opts.ForceRefresh,
	})
	if err != nil {
		return nil, err
	}
	if creds != nil {
		out.Credentials = &creds.Credentials
		out.IdentityID = creds.IdentityID
	}
	a.logger.Debug("fetched auth session",
		zap.Bool("signed_in", out.SignedIn()),
		zap.String("identity_id", out.IdentityID),
	)
	return out, nil
}

// FetchUserAttributes returns the user pool attributes of the signed-in user.
func (a *API) FetchUserAttributes(ctx context.Context, spec session.ContextSpec) (map[string]string, error) {
	tokens, err := signedInTokens(ctx, spec)
	if err != nil {
		return nil, err
	}

	out, err := a.userPools.GetUser(ctx, &cip.GetUserInput{
		AccessToken: aws.String(tokens.AccessToken.Raw),
	})
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string, len(out.UserAttributes))
	for _, attr := range out.UserAttributes {
		attrs[aws.ToString(attr.Name)] = aws.ToString(attr.Value)
	}
	return attrs, nil
}

// GetCurrentUser returns the identity of the signed-in user from its tokens.
func (a *API) GetCurrentUser(ctx context.Context, spec session.ContextSpec) (*CurrentUser, error) {
	tokens, err := signedInTokens(ctx, spec)
	if err != nil {
		return nil, err
	}

	user := &CurrentUser{Username: tokens.Username}
	if name, ok := tokens.AccessToken.StringClaim("username"); ok {
		user.Username = name
	}
	user.UserID, _ = tokens.AccessToken.StringClaim("sub")

	if tokens.IDToken != nil {
		for _, claim := range []string{"email", "phone_number", "cognito:username"} {
			if v, ok := tokens.IDToken.StringClaim(claim); ok && v != "" {
				user.SignInDetails = &SignInDetails{LoginID: v}
				break
			}
		}
	}
	return user, nil
}

func signedInTokens(ctx context.Context, spec session.ContextSpec) (*session.AuthTokens, error) {
	lib, err := spec.Library()
	if err != nil {
		return nil, err
	}
	tokens, err := lib.Auth.TokenProvider.FetchTokens(ctx, session.FetchTokensOptions{})
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, cognito.ErrUserUnauthenticated
	}
	return tokens, nil
}
