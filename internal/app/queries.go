package app

import (
	"context"
	"time"

	"listing_sync/internal/domain"
)

const activeListKey = "properties:active"

func propertyKey(externalID string) string { return "property:" + externalID }

// QueryService is the read side used by the display layer.
type QueryService struct {
	repo     domain.PropertyRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.PropertyRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) ListActive(ctx context.Context) ([]domain.PropertyRecord, error) {
	var out []domain.PropertyRecord
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, activeListKey, &out); ok {
			return out, nil
		}
	}
	rs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	// copy to avoid aliasing the repo's backing array
	out = make([]domain.PropertyRecord, len(rs))
	copy(out, rs)
	if s.cache != nil {
		_ = s.cache.Set(ctx, activeListKey, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

// GetProperty returns an active record. Retired records are reported as
// domain.ErrNotFound.
func (s *QueryService) GetProperty(ctx context.Context, externalID string) (domain.PropertyRecord, error) {
	key := propertyKey(externalID)
	var rec domain.PropertyRecord
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &rec); ok {
			return rec, nil
		}
	}
	rec, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return domain.PropertyRecord{}, err
	}
	if !rec.IsActive() {
		return domain.PropertyRecord{}, domain.ErrNotFound
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, rec, int(s.cacheTTL.Seconds()))
	}
	return rec, nil
}

// invalidate drops read caches for the given ids and the active list.
func invalidate(ctx context.Context, c domain.Cache, externalIDs []string) {
	if c == nil || len(externalIDs) == 0 {
		return
	}
	for _, id := range externalIDs {
		_ = c.Del(ctx, propertyKey(id))
	}
	_ = c.Del(ctx, activeListKey)
}
