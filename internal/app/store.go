package app

import (
	"context"
	"fmt"

	"listing_sync/internal/domain"
)

// LocalStore joins record persistence and image caching into the single
// collaborator the engine works against.
type LocalStore struct {
	domain.PropertyRepository
	domain.ImageCache
}

// NewLocalStore wires repo and images. A nil images disables image caching:
// every CacheImage call fails and records are created without a featured image.
func NewLocalStore(repo domain.PropertyRepository, images domain.ImageCache) *LocalStore {
	if images == nil {
		images = noImages{}
	}
	return &LocalStore{PropertyRepository: repo, ImageCache: images}
}

type noImages struct{}

func (noImages) CacheImage(_ context.Context, url string) (domain.AssetRef, error) {
	return "", fmt.Errorf("%w: image caching disabled (%s)", domain.ErrAssetCache, url)
}
