package auth

import (
	"context"
	"net/http"
)

// ChainProvider consults providers in order and returns the first identity found. A
// provider error stops the chain.
type ChainProvider []IdentityProvider

// ResolveSession implements IdentityProvider.
func (c ChainProvider) ResolveSession(ctx context.Context, r *http.Request) (*Identity, error) {
	for _, p := range c {
		identity, err := p.ResolveSession(ctx, r)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}
	return nil, nil
}

var _ IdentityProvider = ChainProvider(nil)
