package iconcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackwell-systems/appregistry/internal/icon"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/provider"
)

// ErrNotInstalled is returned when the provider no longer reports an identity.
var ErrNotInstalled = errors.New("identity not reported by provider")

// ProviderResolver resolves misses by querying the package of the identity.
type ProviderResolver struct {
	Provider provider.Provider
}

// Resolve implements Resolver. An entry whose icon cannot be decoded still
// resolves with its title and a nil icon.
func (r ProviderResolver) Resolve(ctx context.Context, key identity.Key) (string, []byte, error) {
	entries, err := r.Provider.QueryLiveEntries(ctx, key.Package)
	if err != nil {
		return "", nil, fmt.Errorf("failed to query %s: %w", key.Package, err)
	}
	for _, e := range entries {
		if e.Identity != key {
			continue
		}
		if e.Icon == nil {
			return e.Title, nil, nil
		}
		data, err := icon.Load(e.Icon)
		if err != nil {
			return e.Title, nil, nil
		}
		return e.Title, data, nil
	}
	return "", nil, fmt.Errorf("%s: %w", key, ErrNotInstalled)
}
