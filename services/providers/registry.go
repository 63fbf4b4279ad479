package providers

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	// ErrProviderNotFound is returned by Lookup for an unknown name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrDuplicateProvider is returned when two providers share a name.
	ErrDuplicateProvider = errors.New("duplicate provider name")
)

// Registry maps MODEL_PROVIDER names to the providers built at startup. It
// is immutable once created, so lookups need no locking.
type Registry struct {
	byName map[string]Provider
}

// NewRegistry indexes providers by Name.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil || p.Name() == "" {
			return nil, errors.New("provider must be non-nil and named")
		}
		if _, dup := r.byName[p.Name()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProvider, p.Name())
		}
		r.byName[p.Name()] = p
	}
	return r, nil
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.byName))
}
