package cognito

import (
	"fmt"
	"strconv"
	"time"

	"github.com/upb/vision-gateway/session"
)

// TokenStore reads and writes the user pool token records through a
// key-value storage.
type TokenStore struct {
	storage session.KeyValueStorage
	keys    session.Keys
}

// NewTokenStore creates a token store for the given app client.
func NewTokenStore(storage session.KeyValueStorage, keys session.Keys) *TokenStore {
	return &TokenStore{storage: storage, keys: keys}
}

// LastAuthUser returns the stored session identity, or "".
func (s *TokenStore) LastAuthUser() (string, error) {
	user, _, err := s.storage.GetItem(s.keys.LastAuthUser())
	return user, err
}

// LoadTokens returns the stored tokens, or nil when the user is signed out.
func (s *TokenStore) LoadTokens() (*session.AuthTokens, error) {
	user, err := s.LastAuthUser()
	if err != nil || user == "" {
		return nil, err
	}

	rawAccess, found, err := s.storage.GetItem(s.keys.Token(user, session.KindAccessToken))
	if err != nil || !found {
		return nil, err
	}
	access, err := DecodeJWT(rawAccess)
	if err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}

	tokens := &session.AuthTokens{AccessToken: access, Username: user}

	if rawID, found, err := s.storage.GetItem(s.keys.Token(user, session.KindIDToken)); err != nil {
		return nil, err
	} else if found {
		id, err := DecodeJWT(rawID)
		if err != nil {
			return nil, fmt.Errorf("decode id token: %w", err)
		}
		tokens.IDToken = &id
	}

	if tokens.RefreshToken, _, err = s.storage.GetItem(s.keys.Token(user, session.KindRefreshToken)); err != nil {
		return nil, err
	}

	if drift, found, err := s.storage.GetItem(s.keys.Token(user, session.KindClockDrift)); err != nil {
		return nil, err
	} else if found {
		if ms, err := strconv.ParseInt(drift, 10, 64); err == nil {
			tokens.ClockDrift = time.Duration(ms) * time.Millisecond
		}
	}

	return tokens, nil
}

// StoreTokens writes tokens for tokens.Username and makes it the session
// identity.
func (s *TokenStore) StoreTokens(tokens *session.AuthTokens) error {
	if tokens == nil || tokens.Username == "" {
		return fmt.Errorf("%w: username", ErrMissingClaim)
	}
	user := tokens.Username

	items := []struct{ key, value string }{
		{s.keys.Token(user, session.KindAccessToken), tokens.AccessToken.Raw},
		{s.keys.Token(user, session.KindClockDrift), strconv.FormatInt(tokens.ClockDrift.Milliseconds(), 10)},
		{s.keys.LastAuthUser(), user},
	}
	if tokens.IDToken != nil {
		items = append(items, struct{ key, value string }{s.keys.Token(user, session.KindIDToken), tokens.IDToken.Raw})
	}
	if tokens.RefreshToken != "" {
		items = append(items, struct{ key, value string }{s.keys.Token(user, session.KindRefreshToken), tokens.RefreshToken})
	}

	for _, item := range items {
		if err := s.storage.SetItem(item.key, item.value); err != nil {
			return err
		}
	}
	return nil
}

// ClearTokens removes every record of the current session.
func (s *TokenStore) ClearTokens() error {
	user, err := s.LastAuthUser()
	if err != nil {
		return err
	}
	for _, key := range s.keys.ForUser(user) {
		if err := s.storage.RemoveItem(key); err != nil {
			return err
		}
	}
	return nil
}
