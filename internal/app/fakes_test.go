package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"listing_sync/internal/domain"
)

// ---- in-memory LocalStore ----

type memStore struct {
	mu     sync.Mutex
	nextID int64
	recs   map[string]*domain.PropertyRecord

	imageErr   error
	createErr  map[string]error
	listErr    error
	cachedURLs []string
	writes     int
	calls      int
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]*domain.PropertyRecord{}}
}

func (m *memStore) seed(f domain.RecordFields, status domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := &domain.PropertyRecord{ID: m.nextID, Status: status}
	setFields(rec, f)
	if f.FeaturedImage != nil {
		ref := *f.FeaturedImage
		rec.FeaturedImage = &ref
	}
	m.recs[f.ExternalID] = rec
}

func setFields(r *domain.PropertyRecord, f domain.RecordFields) {
	r.ExternalID = f.ExternalID
	r.Title = f.Title
	r.Description = f.Description
	r.BookingURL = f.BookingURL
	r.Bedrooms = f.Bedrooms
	r.Bathrooms = f.Bathrooms
}

func (m *memStore) byID(id int64) *domain.PropertyRecord {
	for _, r := range m.recs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *memStore) FindByExternalID(_ context.Context, externalID string) (domain.PropertyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r, ok := m.recs[externalID]
	if !ok {
		return domain.PropertyRecord{}, domain.ErrNotFound
	}
	return *r, nil
}

func (m *memStore) Create(_ context.Context, f domain.RecordFields) (domain.PropertyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.createErr[f.ExternalID]; err != nil {
		return domain.PropertyRecord{}, err
	}
	if _, ok := m.recs[f.ExternalID]; ok {
		return domain.PropertyRecord{}, fmt.Errorf("%w: %s", domain.ErrDuplicate, f.ExternalID)
	}
	m.writes++
	m.nextID++
	rec := &domain.PropertyRecord{ID: m.nextID, Status: domain.StatusActive}
	setFields(rec, f)
	if f.FeaturedImage != nil {
		ref := *f.FeaturedImage
		rec.FeaturedImage = &ref
	}
	m.recs[f.ExternalID] = rec
	return *rec, nil
}

func (m *memStore) Update(_ context.Context, id int64, f domain.RecordFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r := m.byID(id)
	if r == nil {
		return domain.ErrNotFound
	}
	m.writes++
	setFields(r, f)
	return nil
}

func (m *memStore) Reactivate(_ context.Context, id int64, f domain.RecordFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r := m.byID(id)
	if r == nil {
		return domain.ErrNotFound
	}
	m.writes++
	setFields(r, f)
	r.Status = domain.StatusActive
	return nil
}

func (m *memStore) Retire(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r := m.byID(id)
	if r == nil {
		return domain.ErrNotFound
	}
	m.writes++
	r.Status = domain.StatusRetired
	return nil
}

func (m *memStore) ListActive(_ context.Context) ([]domain.PropertyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.PropertyRecord
	for _, r := range m.recs {
		if r.IsActive() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CacheImage(_ context.Context, url string) (domain.AssetRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cachedURLs = append(m.cachedURLs, url)
	if m.imageErr != nil {
		return "", m.imageErr
	}
	return domain.AssetRef("assets/" + url), nil
}

func (m *memStore) get(t *testing.T, externalID string) domain.PropertyRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[externalID]
	if !ok {
		t.Fatalf("record %s not found", externalID)
	}
	return *r
}

// snapshot is a comparable view of the whole store.
func (m *memStore) snapshot() map[string]domain.PropertyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.PropertyRecord, len(m.recs))
	for k, r := range m.recs {
		out[k] = *r
	}
	return out
}

// ---- cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
	gets  int
}

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- helpers ----

func listing(id string, bedrooms int, photos ...string) domain.Listing {
	return domain.Listing{
		ExternalID: id,
		Title:      "Villa " + id,
		BookingURL: "https://book.example/" + id,
		Bedrooms:   bedrooms,
		Bathrooms:  1,
		Photos:     photos,
	}
}

func fields(id string, bedrooms int) domain.RecordFields {
	return listing(id, bedrooms).Fields()
}

func rawEntries(t *testing.T, js string) []domain.RawEntry {
	t.Helper()
	var out []domain.RawEntry
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		t.Fatalf("decode raw entries: %v", err)
	}
	return out
}

func ref(s string) *domain.AssetRef {
	r := domain.AssetRef(s)
	return &r
}
