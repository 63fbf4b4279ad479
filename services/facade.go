package services

import (
	"context"
	"net/http"

	"github.com/upb/vision-gateway/services/authapi"
	"github.com/upb/vision-gateway/services/graphql"
	"github.com/upb/vision-gateway/services/storage"
	"github.com/upb/vision-gateway/session"
)

// Capabilities are the process-wide implementations the facade binds to a
// request scope.
type Capabilities struct {
	Auth    *authapi.API
	Storage *storage.API
	GraphQL *graphql.Client
}

// Facade exposes the auth, storage and GraphQL operations pre-bound to one
// request's scope. Every call runs inside its own server context built from
// the scope's providers. Errors are returned as produced.
type Facade struct {
	config session.ResourceConfig
	caps   Capabilities
	scope  *session.Scope
}

// NewFacade binds caps to scope.
func NewFacade(config session.ResourceConfig, caps Capabilities, scope *session.Scope) *Facade {
	return &Facade{config: config, caps: caps, scope: scope}
}

// FetchAuthSession returns the request's tokens and credentials.
func (f *Facade) FetchAuthSession(ctx context.Context, opts authapi.FetchAuthSessionOptions) (*authapi.AuthSession, error) {
	return session.RunWithServerContext(ctx, f.config, f.scope.Library,
		func(ctx context.Context, spec session.ContextSpec) (*authapi.AuthSession, error) {
			return f.caps.Auth.FetchAuthSession(ctx, spec, opts)
		})
}

// FetchUserAttributes returns the user pool attributes of the signed-in user.
func (f *Facade) FetchUserAttributes(ctx context.Context) (map[string]string, error) {
	return session.RunWithServerContext(ctx, f.config, f.scope.Library,
		func(ctx context.Context, spec session.ContextSpec) (map[string]string, error) {
			return f.caps.Auth.FetchUserAttributes(ctx, spec)
		})
}

// GetCurrentUser returns the identity of the signed-in user.
func (f *Facade) GetCurrentUser(ctx context.Context) (*authapi.CurrentUser, error) {
	return session.RunWithServerContext(ctx, f.config, f.scope.Library,
		func(ctx context.Context, spec session.ContextSpec) (*authapi.CurrentUser, error) {
			return f.caps.Auth.GetCurrentUser(ctx, spec)
		})
}

// ListStorage lists storage items visible to the request's identity.
func (f *Facade) ListStorage(ctx context.Context, in storage.ListInput) (*storage.ListOutput, error) {
	return session.RunWithServerContext(ctx, f.config, f.scope.Library,
		func(ctx context.Context, spec session.ContextSpec) (*storage.ListOutput, error) {
			return f.caps.Storage.List(ctx, spec, in)
		})
}

// GraphQL executes a GraphQL operation. headers are merged after the auth
// headers.
func (f *Facade) GraphQL(ctx context.Context, opts graphql.Options, headers http.Header) (*graphql.Response, error) {
	return session.RunWithServerContext(ctx, f.config, f.scope.Library,
		func(ctx context.Context, spec session.ContextSpec) (*graphql.Response, error) {
			return f.caps.GraphQL.Do(ctx, spec, opts, headers)
		})
}
