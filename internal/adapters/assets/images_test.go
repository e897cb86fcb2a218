package assets_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listing_sync/internal/adapters/assets"
	"listing_sync/internal/adapters/assets/mocks"
	"listing_sync/internal/domain"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/sniffed":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngBytes)
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>not an image</body></html>"))
		case "/huge.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(make([]byte, 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestImageCache_CacheImage(t *testing.T) {
	ts := imageServer(t)
	store := new(mocks.Client)
	store.On("PutObject", mock.Anything, "imgs", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "properties/") && strings.HasSuffix(key, ".png")
	}), mock.Anything, int64(len(pngBytes)), mock.MatchedBy(func(o minio.PutObjectOptions) bool {
		return o.ContentType == "image/png"
	})).Return(minio.UploadInfo{}, nil)

	c := assets.NewImageCache(store, "imgs", "https://cdn.example.com/", 1024, time.Second)

	ref, err := c.CacheImage(context.Background(), ts.URL+"/photo.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ref), "https://cdn.example.com/properties/"))

	// same URL maps to the same object
	ref2, err := c.CacheImage(context.Background(), ts.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, ref, ref2)
	store.AssertNumberOfCalls(t, "PutObject", 2)
}

func TestImageCache_SniffsContentType(t *testing.T) {
	ts := imageServer(t)
	store := new(mocks.Client)
	store.On("PutObject", mock.Anything, "imgs", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)

	c := assets.NewImageCache(store, "imgs", "", 1024, time.Second)
	ref, err := c.CacheImage(context.Background(), ts.URL+"/sniffed")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ref), "imgs/properties/"))
	assert.True(t, strings.HasSuffix(string(ref), ".png"))
}

func TestImageCache_Failures(t *testing.T) {
	ts := imageServer(t)
	store := new(mocks.Client)
	c := assets.NewImageCache(store, "imgs", "", 1024, time.Second)

	for _, path := range []string{"/missing.png", "/page.html", "/huge.png"} {
		t.Run(path, func(t *testing.T) {
			ref, err := c.CacheImage(context.Background(), ts.URL+path)
			assert.ErrorIs(t, err, domain.ErrAssetCache)
			assert.Empty(t, ref)
		})
	}
	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImageCache_PutFailure(t *testing.T) {
	ts := imageServer(t)
	store := new(mocks.Client)
	store.On("PutObject", mock.Anything, "imgs", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("bucket offline"))

	c := assets.NewImageCache(store, "imgs", "", 1024, time.Second)
	_, err := c.CacheImage(context.Background(), ts.URL+"/photo.png")
	assert.ErrorIs(t, err, domain.ErrAssetCache)
}

func TestImageCache_EnsureBucket(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		store := new(mocks.Client)
		store.On("BucketExists", mock.Anything, "imgs").Return(true, nil)
		c := assets.NewImageCache(store, "imgs", "", 0, 0)
		require.NoError(t, c.EnsureBucket(context.Background()))
		store.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})
	t.Run("created", func(t *testing.T) {
		store := new(mocks.Client)
		store.On("BucketExists", mock.Anything, "imgs").Return(false, nil)
		store.On("MakeBucket", mock.Anything, "imgs", mock.Anything).Return(nil)
		c := assets.NewImageCache(store, "imgs", "", 0, 0)
		require.NoError(t, c.EnsureBucket(context.Background()))
		store.AssertExpectations(t)
	})
}
