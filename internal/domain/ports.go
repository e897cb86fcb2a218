package domain

import "context"

// PropertyRepository persists records keyed by external id. Each method is a
// single atomic write or read.
type PropertyRepository interface {
	// FindByExternalID returns the record in any status, or ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (PropertyRecord, error)
	Create(ctx context.Context, f RecordFields) (PropertyRecord, error)
	Update(ctx context.Context, id int64, f RecordFields) error
	// Reactivate overwrites the mutable fields and moves a retired record back to active.
	Reactivate(ctx context.Context, id int64, f RecordFields) error
	Retire(ctx context.Context, id int64) error
	ListActive(ctx context.Context) ([]PropertyRecord, error)
}

// ImageCache stores a remote image locally and returns a reference to it.
type ImageCache interface {
	CacheImage(ctx context.Context, url string) (AssetRef, error)
}

// LocalStore is everything the reconciliation engine needs from persistence.
type LocalStore interface {
	PropertyRepository
	ImageCache
}

// RunLog keeps a history of sync reports.
type RunLog interface {
	RecordRun(ctx context.Context, r SyncReport) error
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

type CatalogClient interface {
	FetchListings(ctx context.Context, token string) ([]RawEntry, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
