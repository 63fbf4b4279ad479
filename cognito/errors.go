package cognito

import (
	"errors"

	"github.com/aws/smithy-go"
)

var (
	// ErrUserUnauthenticated is returned when an operation needs a signed-in user.
	ErrUserUnauthenticated = errors.New("user is not authenticated")

	// ErrTokenRefresh is returned when the refresh token could not be exchanged.
	ErrTokenRefresh = errors.New("token refresh failed")

	// ErrChallengeRequired is returned when sign-in needs another step
	// (MFA, new password) that this service does not drive.
	ErrChallengeRequired = errors.New("sign-in challenge required")

	// ErrNoCredentials is returned when AWS credentials were needed but none
	// could be obtained for the request.
	ErrNoCredentials = errors.New("no AWS credentials available")
)

const codeNotAuthorized = "NotAuthorizedException"

func isNotAuthorized(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == codeNotAuthorized
}
