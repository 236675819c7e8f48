package core

import (
	"context"

	"factorycore/pkg/domain"
)

// ParametersResolver builds a factory from free-form request parameters,
// such as a repository URL.
type ParametersResolver interface {
	// Accept reports whether the resolver understands params.
	Accept(params map[string]string) bool
	// CreateFactory builds the factory described by params.
	CreateFactory(ctx context.Context, params map[string]string) (*domain.Factory, error)
}

// ResolverChain dispatches to the first accepting resolver, in registration
// order.
type ResolverChain struct {
	resolvers []ParametersResolver
}

// NewResolverChain returns a chain over resolvers. Nil entries are skipped
// and an empty chain is valid.
func NewResolverChain(resolvers ...ParametersResolver) *ResolverChain {
	c := &ResolverChain{}
	for _, r := range resolvers {
		if r != nil {
			c.resolvers = append(c.resolvers, r)
		}
	}
	return c
}

// Len returns the number of registered resolvers.
func (c *ResolverChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.resolvers)
}

// Resolve builds a factory with the first resolver that accepts params. Only
// that resolver is invoked and its error is returned as is.
func (c *ResolverChain) Resolve(ctx context.Context, params map[string]string) (*domain.Factory, error) {
	if params == nil {
		return nil, domain.InvalidArgumentf("Factory build parameters required")
	}
	if c != nil {
		for _, r := range c.resolvers {
			if !r.Accept(params) {
				continue
			}
			f, err := r.CreateFactory(ctx, params)
			if err != nil {
				return nil, err
			}
			if f == nil {
				return nil, domain.ServerError("resolver produced no factory", nil)
			}
			return f, nil
		}
	}
	return nil, domain.InvalidArgumentf("Cannot build factory with any of the provided parameters.")
}
