package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// JWT is a decoded, unverified JSON web token.
type JWT struct {
	Raw     string
	Payload map[string]any
}

// ExpiresAt returns the exp claim, or the zero time when the claim is missing.
func (t JWT) ExpiresAt() time.Time {
	return t.numericDate("exp")
}

// IssuedAt returns the iat claim, or the zero time when the claim is missing.
func (t JWT) IssuedAt() time.Time {
	return t.numericDate("iat")
}

// StringClaim returns a string claim and whether it was set.
func (t JWT) StringClaim(name string) (string, bool) {
	v, ok := t.Payload[name].(string)
	return v, ok
}

func (t JWT) numericDate(name string) time.Time {
	switch v := t.Payload[name].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}

// AuthTokens is the token set of a signed-in user.
type AuthTokens struct {
	IDToken      *JWT
	AccessToken  JWT
	RefreshToken string
	ClockDrift   time.Duration
	Username     string
}

// FetchTokensOptions controls a token fetch.
type FetchTokensOptions struct {
	ForceRefresh bool
}

// TokenProvider yields the current user's tokens. A nil result with a nil
// error means the request is signed out.
type TokenProvider interface {
	FetchTokens(ctx context.Context, opts FetchTokensOptions) (*AuthTokens, error)
}

// CredentialsAndIdentityID is a set of temporary AWS credentials and the
// identity they were issued for.
type CredentialsAndIdentityID struct {
	Credentials aws.Credentials
	IdentityID  string
}

// FetchCredentialsOptions controls a credentials fetch. Tokens is nil for
// guest access.
type FetchCredentialsOptions struct {
	Tokens       *AuthTokens
	ForceRefresh bool
}

// CredentialsProvider exchanges tokens for AWS credentials. A nil result with
// a nil error means no credentials are available for the request.
type CredentialsProvider interface {
	FetchCredentials(ctx context.Context, opts FetchCredentialsOptions) (*CredentialsAndIdentityID, error)
	ClearCredentials()
}
