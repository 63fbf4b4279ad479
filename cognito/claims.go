package cognito

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/vision-gateway/session"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidToken is returned when a token cannot be decoded
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds the Cognito claims found in id and access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Sub             string `json:"sub"`
	Email           string `json:"email"`
	EmailVerified   bool   `json:"email_verified"`
	TokenUse        string `json:"token_use"`
	AuthTime        int64  `json:"auth_time"`
	CognitoUsername string `json:"cognito:username"`
	Username        string `json:"username"`
	ClientID        string `json:"client_id"`
	Scope           string `json:"scope"`
}

// UserName returns the user name carried by the token. Access tokens use
// "username", id tokens use "cognito:username".
func (c *Claims) UserName() string {
	if c.Username != "" {
		return c.Username
	}
	return c.CognitoUsername
}

// ExtractClaims parses claims from a JWT without verifying its signature.
// Signature validation is left to the identity platform.
func ExtractClaims(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims, nil
}

// DecodeJWT decodes the payload of a JWT without verification.
func DecodeJWT(tokenString string) (session.JWT, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return session.JWT{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return session.JWT{Raw: tokenString, Payload: claims}, nil
}

// clockDrift is the difference between the issuer's clock, taken from iat,
// and the local clock.
func clockDrift(token session.JWT, now time.Time) time.Duration {
	iat := token.IssuedAt()
	if iat.IsZero() {
		return 0
	}
	return iat.Sub(now).Truncate(time.Millisecond)
}
