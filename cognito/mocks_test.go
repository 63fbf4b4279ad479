package cognito

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/stretchr/testify/mock"

	"github.com/upb/vision-gateway/session"
)

const (
	testClientID = "client123"
	testUser     = "alice"
)

// MockUserPoolsAPI is a mock implementation of UserPoolsAPI
type MockUserPoolsAPI struct {
	mock.Mock
}

func (m *MockUserPoolsAPI) InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.InitiateAuthOutput), args.Error(1)
}

func (m *MockUserPoolsAPI) GetUser(ctx context.Context, params *cip.GetUserInput, _ ...func(*cip.Options)) (*cip.GetUserOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.GetUserOutput), args.Error(1)
}

func (m *MockUserPoolsAPI) GlobalSignOut(ctx context.Context, params *cip.GlobalSignOutInput, _ ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.GlobalSignOutOutput), args.Error(1)
}

// MockIdentityAPI is a mock implementation of IdentityAPI
type MockIdentityAPI struct {
	mock.Mock
}

func (m *MockIdentityAPI) GetId(ctx context.Context, params *cognitoidentity.GetIdInput, _ ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cognitoidentity.GetIdOutput), args.Error(1)
}

func (m *MockIdentityAPI) GetCredentialsForIdentity(ctx context.Context, params *cognitoidentity.GetCredentialsForIdentityInput, _ ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cognitoidentity.GetCredentialsForIdentityOutput), args.Error(1)
}

// newBridge returns a cookie bridge over a request carrying cookies.
func newBridge(t *testing.T, cookies map[string]string) *session.CookieBridge {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return session.NewCookieBridge(req, session.Keys{ClientID: testClientID}, session.DefaultCookieOptions())
}
