package cognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/upb/vision-gateway/session"
)

// Authenticator performs password sign-in and global sign-out against a
// user pool app client.
type Authenticator struct {
	client   UserPoolsAPI
	clientID string
	now      func() time.Time
}

// NewAuthenticator creates an authenticator for clientID.
func NewAuthenticator(client UserPoolsAPI, clientID string) *Authenticator {
	return &Authenticator{client: client, clientID: clientID, now: time.Now}
}

// SignIn exchanges a username and password for tokens. The returned tokens
// are not stored; callers adopt the username into their cookie bridge and
// persist them through a TokenStore.
func (a *Authenticator) SignIn(ctx context.Context, username, password string) (*session.AuthTokens, error) {
	out, err := a.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(a.clientID),
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return nil, err
	}
	if out.ChallengeName != "" {
		return nil, fmt.Errorf("%w: %s", ErrChallengeRequired, out.ChallengeName)
	}
	if out.AuthenticationResult == nil {
		return nil, errors.New("sign-in returned no authentication result")
	}

	tokens, err := tokensFromResult(out.AuthenticationResult, a.now())
	if err != nil {
		return nil, err
	}
	if tokens.Username == "" {
		tokens.Username = username
	}
	return tokens, nil
}

// GlobalSignOut revokes every refresh token issued to the user.
func (a *Authenticator) GlobalSignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrUserUnauthenticated
	}
	_, err := a.client.GlobalSignOut(ctx, &cip.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	return err
}
