package authapi

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/session"
)

// MockUserPools is a mock implementation of cognito.UserPoolsAPI
type MockUserPools struct {
	mock.Mock
}

func (m *MockUserPools) InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.InitiateAuthOutput), args.Error(1)
}

func (m *MockUserPools) GetUser(ctx context.Context, params *cip.GetUserInput, _ ...func(*cip.Options)) (*cip.GetUserOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.GetUserOutput), args.Error(1)
}

func (m *MockUserPools) GlobalSignOut(ctx context.Context, params *cip.GlobalSignOutInput, _ ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.GlobalSignOutOutput), args.Error(1)
}

type fixedTokens struct {
	tokens *session.AuthTokens
	opts   *session.FetchTokensOptions
}

func (f fixedTokens) FetchTokens(_ context.Context, opts session.FetchTokensOptions) (*session.AuthTokens, error) {
	if f.opts != nil {
		*f.opts = opts
	}
	return f.tokens, nil
}

type fixedCredentials struct {
	res  *session.CredentialsAndIdentityID
	seen *session.FetchCredentialsOptions
}

func (f fixedCredentials) FetchCredentials(_ context.Context, opts session.FetchCredentialsOptions) (*session.CredentialsAndIdentityID, error) {
	if f.seen != nil {
		*f.seen = opts
	}
	return f.res, nil
}

func (f fixedCredentials) ClearCredentials() {}

func aliceTokens() *session.AuthTokens {
	return &session.AuthTokens{
		Username:    "alice",
		AccessToken: session.JWT{Raw: "access", Payload: map[string]any{"sub": "sub-1", "username": "alice"}},
		IDToken:     &session.JWT{Raw: "id", Payload: map[string]any{"email": "alice@example.com"}},
	}
}

func run[T any](t *testing.T, lib session.LibraryOptions, fn func(context.Context, session.ContextSpec) (T, error)) (T, error) {
	t.Helper()
	return session.RunWithServerContext(context.Background(), session.ResourceConfig{}, lib, fn)
}

func TestAPI_FetchAuthSession(t *testing.T) {
	api := NewAPI(new(MockUserPools), zap.NewNop())

	var tokenOpts session.FetchTokensOptions
	var credOpts session.FetchCredentialsOptions
	lib := session.LibraryOptions{Auth: session.AuthOptions{
		TokenProvider: fixedTokens{tokens: aliceTokens(), opts: &tokenOpts},
		CredentialsProvider: fixedCredentials{
			res:  &session.CredentialsAndIdentityID{Credentials: aws.Credentials{AccessKeyID: "AKIA"}, IdentityID: "us-east-1:abc"},
			seen: &credOpts,
		},
	}}

	s, err := run(t, lib, func(ctx context.Context, spec session.ContextSpec) (*AuthSession, error) {
		return api.FetchAuthSession(ctx, spec, FetchAuthSessionOptions{ForceRefresh: true})
	})
	require.NoError(t, err)
	assert.True(t, s.SignedIn())
	assert.Equal(t, "sub-1", s.UserSub)
	assert.Equal(t, "us-east-1:abc", s.IdentityID)
	assert.Equal(t, "AKIA", s.Credentials.AccessKeyID)
	assert.True(t, tokenOpts.ForceRefresh)
	assert.True(t, credOpts.ForceRefresh)
	assert.Equal(t, "alice", credOpts.Tokens.Username)
}

func TestAPI_FetchAuthSession_SignedOutWithoutIdentityPool(t *testing.T) {
	api := NewAPI(new(MockUserPools), zap.NewNop())
	lib := session.LibraryOptions{Auth: session.AuthOptions{TokenProvider: fixedTokens{}}}

	s, err := run(t, lib, func(ctx context.Context, spec session.ContextSpec) (*AuthSession, error) {
		return api.FetchAuthSession(ctx, spec, FetchAuthSessionOptions{})
	})
	require.NoError(t, err)
	assert.False(t, s.SignedIn())
	assert.Nil(t, s.Credentials)
	assert.Empty(t, s.IdentityID)
}

func TestAPI_FetchUserAttributes(t *testing.T) {
	client := new(MockUserPools)
	client.On("GetUser", mock.Anything, &cip.GetUserInput{AccessToken: aws.String("access")}).
		Return(&cip.GetUserOutput{
			Username: aws.String("alice"),
			UserAttributes: []types.AttributeType{
				{Name: aws.String("email"), Value: aws.String("alice@example.com")},
				{Name: aws.String("sub"), Value: aws.String("sub-1")},
			},
		}, nil)

	api := NewAPI(client, zap.NewNop())
	lib := session.LibraryOptions{Auth: session.AuthOptions{TokenProvider: fixedTokens{tokens: aliceTokens()}}}

	attrs, err := run(t, lib, func(ctx context.Context, spec session.ContextSpec) (map[string]string, error) {
		return api.FetchUserAttributes(ctx, spec)
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "alice@example.com", "sub": "sub-1"}, attrs)
	client.AssertExpectations(t)
}

func TestAPI_FetchUserAttributes_SignedOut(t *testing.T) {
	client := new(MockUserPools)
	api := NewAPI(client, zap.NewNop())
	lib := session.LibraryOptions{Auth: session.AuthOptions{TokenProvider: fixedTokens{}}}

	_, err := run(t, lib, func(ctx context.Context, spec session.ContextSpec) (map[string]string, error) {
		return api.FetchUserAttributes(ctx, spec)
	})
	assert.ErrorIs(t, err, cognito.ErrUserUnauthenticated)
	client.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestAPI_GetCurrentUser(t *testing.T) {
	api := NewAPI(new(MockUserPools), zap.NewNop())
	lib := session.LibraryOptions{Auth: session.AuthOptions{TokenProvider: fixedTokens{tokens: aliceTokens()}}}

	user, err := run(t, lib, func(ctx context.Context, spec session.ContextSpec) (*CurrentUser, error) {
		return api.GetCurrentUser(ctx, spec)
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "sub-1", user.UserID)
	require.NotNil(t, user.SignInDetails)
	assert.Equal(t, "alice@example.com", user.SignInDetails.LoginID)
}

func TestAPI_DestroyedContext(t *testing.T) {
	api := NewAPI(new(MockUserPools), zap.NewNop())
	lib := session.LibraryOptions{Auth: session.AuthOptions{TokenProvider: fixedTokens{tokens: aliceTokens()}}}

	spec, err := run(t, lib, func(_ context.Context, spec session.ContextSpec) (session.ContextSpec, error) {
		return spec, nil
	})
	require.NoError(t, err)

	_, err = api.GetCurrentUser(context.Background(), spec)
	assert.ErrorIs(t, err, session.ErrContextDestroyed)
}
