package cognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/session"
)

// expiryTolerance treats tokens as expired slightly before exp.
const expiryTolerance = 5 * time.Second

// UserPoolsTokenProvider serves the request's user pool tokens from storage
// and refreshes them when they are about to expire.
type UserPoolsTokenProvider struct {
	store    *TokenStore
	client   UserPoolsAPI
	clientID string
	logger   *zap.Logger
	now      func() time.Time
}

// NewUserPoolsTokenProvider creates a token provider over store.
func NewUserPoolsTokenProvider(store *TokenStore, client UserPoolsAPI, clientID string, logger *zap.Logger) *UserPoolsTokenProvider {
	return &UserPoolsTokenProvider{
		store:    store,
		client:   client,
		clientID: clientID,
		logger:   logger,
		now:      time.Now,
	}
}

// FetchTokens implements session.TokenProvider.
func (p *UserPoolsTokenProvider) FetchTokens(ctx context.Context, opts session.FetchTokensOptions) (*session.AuthTokens, error) {
	tokens, err := p.store.LoadTokens()
	if err != nil || tokens == nil {
		return nil, err
	}

	if !opts.ForceRefresh && !p.expired(tokens) {
		return tokens, nil
	}

	if tokens.RefreshToken == "" {
		p.logger.Debug("tokens expired without refresh token", zap.String("username", tokens.Username))
		if err := p.store.ClearTokens(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return p.refresh(ctx, tokens)
}

func (p *UserPoolsTokenProvider) expired(tokens *session.AuthTokens) bool {
	deadline := p.now().Add(tokens.ClockDrift).Add(expiryTolerance)

	if exp := tokens.AccessToken.ExpiresAt(); !exp.IsZero() && deadline.After(exp) {
		return true
	}
	if tokens.IDToken != nil {
		if exp := tokens.IDToken.ExpiresAt(); !exp.IsZero() && deadline.After(exp) {
			return true
		}
	}
	return false
}

func (p *UserPoolsTokenProvider) refresh(ctx context.Context, current *session.AuthTokens) (*session.AuthTokens, error) {
	out, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": current.RefreshToken,
		},
	})
	if err != nil {
		p.logger.Warn("token refresh failed",
			zap.String("username", current.Username),
			zap.Error(err),
		)
		if isNotAuthorized(err) {
			if clearErr := p.store.ClearTokens(); clearErr != nil {
				p.logger.Error("failed to clear tokens", zap.Error(clearErr))
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	if out.AuthenticationResult == nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRefresh, errors.New("empty authentication result"))
	}

	tokens, err := tokensFromResult(out.AuthenticationResult, p.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	tokens.Username = current.Username
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = current.RefreshToken
	}

	if err := p.store.StoreTokens(tokens); err != nil {
		return nil, err
	}

	p.logger.Debug("tokens refreshed", zap.String("username", tokens.Username))
	return tokens, nil
}

// tokensFromResult decodes an authentication result. Username is taken from
// the access token and may be overridden by the caller.
func tokensFromResult(result *types.AuthenticationResultType, now time.Time) (*session.AuthTokens, error) {
	return NewAuthTokens(aws.ToString(result.AccessToken), aws.ToString(result.IdToken), aws.ToString(result.RefreshToken), now)
}

// NewAuthTokens decodes raw tokens issued by the user pool. idToken and
// refreshToken may be empty. The clock drift is measured against the access
// token's issue time.
func NewAuthTokens(accessToken, idToken, refreshToken string, now time.Time) (*session.AuthTokens, error) {
	access, err := DecodeJWT(accessToken)
	if err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}

	tokens := &session.AuthTokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ClockDrift:   clockDrift(access, now),
	}
	tokens.Username, _ = access.StringClaim("username")

	if idToken != "" {
		id, err := DecodeJWT(idToken)
		if err != nil {
			return nil, fmt.Errorf("decode id token: %w", err)
		}
		tokens.IDToken = &id
	}
	return tokens, nil
}
