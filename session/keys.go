package session

import (
	"fmt"
	"strings"
)

const keyPrefix = "CognitoIdentityServiceProvider"

// Token record kinds stored per user.
const (
	KindIDToken      = "idToken"
	KindAccessToken  = "accessToken"
	KindRefreshToken = "refreshToken"
	KindClockDrift   = "clockDrift"
)

var tokenKinds = []string{KindIDToken, KindAccessToken, KindRefreshToken, KindClockDrift}

// Keys derives credential record names for a user pool app client.
type Keys struct {
	ClientID string
}

// LastAuthUser returns the name of the record holding the session identity.
func (k Keys) LastAuthUser() string {
	return fmt.Sprintf("%s.%s.LastAuthUser", keyPrefix, k.ClientID)
}

// Token returns the record name for one token kind of user. The user segment
// is escaped so that names like "alice@example.com" stay valid cookie names.
func (k Keys) Token(user, kind string) string {
	return fmt.Sprintf("%s.%s.%s.%s", keyPrefix, k.ClientID, EscapeNameSegment(user), kind)
}

// ForUser returns every record name relevant to a session of user: the four
// token records followed by the LastAuthUser record. An empty user yields no
// names.
func (k Keys) ForUser(user string) []string {
	if user == "" {
		return nil
	}
	names := make([]string, 0, len(tokenKinds)+1)
	for _, kind := range tokenKinds {
		names = append(names, k.Token(user, kind))
	}
	return append(names, k.LastAuthUser())
}

// Cookie-name bytes that js-cookie leaves unescaped.
const nameSafeBytes = "-_.!~*'#$&+^`|"

// EscapeNameSegment percent-encodes s the way the browser SDK's cookie
// storage encodes names: encodeURIComponent, with #$&+^`| kept and ( )
// escaped. The result only contains valid cookie-name characters.
func EscapeNameSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte(nameSafeBytes, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
