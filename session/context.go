package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrMissingTokenProvider is returned when LibraryOptions has no token provider.
	ErrMissingTokenProvider = errors.New("library options: token provider is required")

	// ErrContextDestroyed is returned when a context spec is used after its
	// scope has ended.
	ErrContextDestroyed = errors.New("server context has been destroyed")
)

// AuthOptions carries the per-request auth providers.
type AuthOptions struct {
	TokenProvider       TokenProvider
	CredentialsProvider CredentialsProvider
}

// LibraryOptions is the per-request capability set bound into a server context.
type LibraryOptions struct {
	Auth AuthOptions
}

// Validate checks that the options can back a server context.
func (o LibraryOptions) Validate() error {
	if o.Auth.TokenProvider == nil {
		return ErrMissingTokenProvider
	}
	return nil
}

const (
	stateIdle int32 = iota
	stateScoped
)

type serverContext struct {
	state   atomic.Int32
	config  ResourceConfig
	library LibraryOptions
}

// ContextSpec is the handle passed to code running inside a server context.
type ContextSpec struct {
	Token uuid.UUID
	sc    *serverContext
}

// Active reports whether the scope that issued the spec is still running.
func (s ContextSpec) Active() bool {
	return s.sc != nil && s.sc.state.Load() == stateScoped
}

// Library returns the capability set bound to the scope.
func (s ContextSpec) Library() (LibraryOptions, error) {
	if !s.Active() {
		return LibraryOptions{}, ErrContextDestroyed
	}
	return s.sc.library, nil
}

// Config returns the resource configuration bound to the scope.
func (s ContextSpec) Config() (ResourceConfig, error) {
	if !s.Active() {
		return ResourceConfig{}, ErrContextDestroyed
	}
	return s.sc.config, nil
}

// RunWithServerContext runs fn inside a fresh server context built from cfg
// and lib. The context is destroyed when fn returns, fails or panics. The
// result and error of fn are returned unchanged.
func RunWithServerContext[T any](
	ctx context.Context,
	cfg ResourceConfig,
	lib LibraryOptions,
	fn func(ctx context.Context, spec ContextSpec) (T, error),
) (T, error) {
	var zero T
	if err := lib.Validate(); err != nil {
		return zero, err
	}

	sc := &serverContext{config: cfg, library: lib}
	sc.state.Store(stateScoped)
	defer sc.state.Store(stateIdle)

	return fn(ctx, ContextSpec{Token: uuid.New(), sc: sc})
}
