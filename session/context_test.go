package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type stubTokenProvider struct {
	storage KeyValueStorage
	keys    Keys
}

func (p stubTokenProvider) FetchTokens(_ context.Context, _ FetchTokensOptions) (*AuthTokens, error) {
	user, found, err := p.storage.GetItem(p.keys.LastAuthUser())
	if err != nil || !found {
		return nil, err
	}
	access, _, err := p.storage.GetItem(p.keys.Token(user, KindAccessToken))
	if err != nil {
		return nil, err
	}
	return &AuthTokens{Username: user, AccessToken: JWT{Raw: access}}, nil
}

func TestLibraryOptions_Validate(t *testing.T) {
	assert.ErrorIs(t, LibraryOptions{}.Validate(), ErrMissingTokenProvider)
	assert.NoError(t, LibraryOptions{Auth: AuthOptions{TokenProvider: stubTokenProvider{}}}.Validate())
}

func TestRunWithServerContext(t *testing.T) {
	cfg := ResourceConfig{Auth: AuthConfig{UserPoolClientID: testClientID}}
	lib := LibraryOptions{Auth: AuthOptions{TokenProvider: stubTokenProvider{}}}

	t.Run("returns result unchanged", func(t *testing.T) {
		got, err := RunWithServerContext(context.Background(), cfg, lib, func(_ context.Context, spec ContextSpec) (string, error) {
			assert.True(t, spec.Active())
			c, err := spec.Config()
			require.NoError(t, err)
			return c.Auth.UserPoolClientID, nil
		})
		require.NoError(t, err)
		assert.Equal(t, testClientID, got)
	})

	t.Run("returns error unchanged", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := RunWithServerContext(context.Background(), cfg, lib, func(context.Context, ContextSpec) (int, error) {
			return 0, boom
		})
		assert.Same(t, boom, err)
	})

	t.Run("spec unusable after scope ends", func(t *testing.T) {
		var leaked ContextSpec
		_, err := RunWithServerContext(context.Background(), cfg, lib, func(_ context.Context, spec ContextSpec) (struct{}, error) {
			leaked = spec
			return struct{}{}, nil
		})
		require.NoError(t, err)

		assert.False(t, leaked.Active())
		_, err = leaked.Library()
		assert.ErrorIs(t, err, ErrContextDestroyed)
		_, err = leaked.Config()
		assert.ErrorIs(t, err, ErrContextDestroyed)
	})

	t.Run("destroyed after panic", func(t *testing.T) {
		var leaked ContextSpec
		assert.Panics(t, func() {
			_, _ = RunWithServerContext(context.Background(), cfg, lib, func(_ context.Context, spec ContextSpec) (int, error) {
				leaked = spec
				panic("handler failure")
			})
		})
		assert.False(t, leaked.Active())
	})

	t.Run("invalid options", func(t *testing.T) {
		called := false
		_, err := RunWithServerContext(context.Background(), cfg, LibraryOptions{}, func(context.Context, ContextSpec) (int, error) {
			called = true
			return 0, nil
		})
		assert.ErrorIs(t, err, ErrMissingTokenProvider)
		assert.False(t, called)
	})

	t.Run("unique tokens", func(t *testing.T) {
		run := func() ContextSpec {
			spec, _ := RunWithServerContext(context.Background(), cfg, lib, func(_ context.Context, spec ContextSpec) (ContextSpec, error) {
				return spec, nil
			})
			return spec
		}
		assert.NotEqual(t, run().Token, run().Token)
	})
}

func TestRunWithServerContext_ConcurrentScopesIsolated(t *testing.T) {
	keys := Keys{ClientID: testClientID}
	cfg := ResourceConfig{Auth: AuthConfig{UserPoolClientID: testClientID}}

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		user := fmt.Sprintf("user-%d", i)
		g.Go(func() error {
			req := newRequest(map[string]string{
				keys.LastAuthUser():                user,
				keys.Token(user, KindAccessToken): "token-" + user,
			})
			bridge := NewCookieBridge(req, keys, DefaultCookieOptions())
			storage := NewKeyValueStorage(bridge)
			lib := LibraryOptions{Auth: AuthOptions{TokenProvider: stubTokenProvider{storage: storage, keys: keys}}}

			got, err := RunWithServerContext(context.Background(), cfg, lib, func(ctx context.Context, spec ContextSpec) (*AuthTokens, error) {
				l, err := spec.Library()
				if err != nil {
					return nil, err
				}
				return l.Auth.TokenProvider.FetchTokens(ctx, FetchTokensOptions{})
			})
			if err != nil {
				return err
			}
			if got.Username != user || got.AccessToken.Raw != "token-"+user {
				return fmt.Errorf("scope for %s saw %s/%s", user, got.Username, got.AccessToken.Raw)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestScope_LastAuthUser(t *testing.T) {
	var nilScope *Scope
	assert.Equal(t, "", nilScope.LastAuthUser())

	keys := Keys{ClientID: testClientID}
	req := newRequest(map[string]string{keys.LastAuthUser(): "carol"})
	scope := &Scope{Bridge: NewCookieBridge(req, keys, nil)}
	assert.Equal(t, "carol", scope.LastAuthUser())
}
