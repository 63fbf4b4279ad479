package cognito

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsignedToken builds a JWT with alg "none" for tests.
func unsignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return s
}

func TestExtractClaims(t *testing.T) {
	now := time.Now()
	tokenString := unsignedToken(t, jwt.MapClaims{
		"iss":              "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test",
		"sub":              "5f1c3b2a-0000-4000-8000-000000000001",
		"email":            "test@example.com",
		"email_verified":   true,
		"token_use":        "id",
		"cognito:username": "testuser",
		"exp":              now.Add(time.Hour).Unix(),
		"iat":              now.Unix(),
	})

	claims, err := ExtractClaims(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "5f1c3b2a-0000-4000-8000-000000000001", claims.Sub)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "id", claims.TokenUse)
	assert.Equal(t, "testuser", claims.UserName())
}

func TestExtractClaims_AccessTokenUsername(t *testing.T) {
	claims, err := ExtractClaims(unsignedToken(t, jwt.MapClaims{
		"sub":       "abc",
		"username":  "from-access",
		"token_use": "access",
		"client_id": "client",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-access", claims.UserName())
	assert.Equal(t, "client", claims.ClientID)
}

func TestExtractClaims_MissingSub(t *testing.T) {
	_, err := ExtractClaims(unsignedToken(t, jwt.MapClaims{"email": "a@b.c"}))
	assert.ErrorIs(t, err, ErrMissingClaim)
	assert.Contains(t, err.Error(), "sub")
}

func TestExtractClaims_Malformed(t *testing.T) {
	_, err := ExtractClaims("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	iat := exp.Add(-2 * time.Hour)
	raw := unsignedToken(t, jwt.MapClaims{"exp": exp.Unix(), "iat": iat.Unix(), "username": "alice"})

	tok, err := DecodeJWT(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, tok.Raw)
	assert.True(t, exp.Equal(tok.ExpiresAt()))
	assert.True(t, iat.Equal(tok.IssuedAt()))

	name, ok := tok.StringClaim("username")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, err = DecodeJWT("a.b")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClockDrift(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := DecodeJWT(unsignedToken(t, jwt.MapClaims{"iat": now.Add(3 * time.Second).Unix()}))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, clockDrift(tok, now))

	noIat, err := DecodeJWT(unsignedToken(t, jwt.MapClaims{"sub": "x"}))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), clockDrift(noIat, now))
}
