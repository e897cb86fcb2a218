package assets

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog/log"

	"listing_sync/internal/adapters/observability"
	"listing_sync/internal/domain"
)

const keyPrefix = "properties/"

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/avif": ".avif",
}

// ImageCache downloads an image and stores it under a key derived from its URL,
// so caching the same URL twice overwrites one object.
type ImageCache struct {
	store     Client
	bucket    string
	publicURL string
	maxBytes  int64
	hc        *http.Client
}

func NewImageCache(store Client, bucket, publicURL string, maxBytes int64, timeout time.Duration) *ImageCache {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageCache{
		store:     store,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		hc:        &http.Client{Timeout: timeout},
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *ImageCache) EnsureBucket(ctx context.Context) error {
	ok, err := c.store.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if ok {
		return nil
	}
	if err := c.store.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	log.Info().Str("bucket", c.bucket).Msg("created asset bucket")
	return nil
}

// CacheImage fetches url and stores it. Every failure wraps domain.ErrAssetCache.
func (c *ImageCache) CacheImage(ctx context.Context, url string) (domain.AssetRef, error) {
	data, contentType, err := c.download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrAssetCache, url, err)
	}

	key := objectKey(url, contentType)
	_, err = c.store.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"source-url": url},
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %w", domain.ErrAssetCache, key, err)
	}
	return c.ref(key), nil
}

func (c *ImageCache) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", "listing-sync/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("assets", "download", 0, time.Since(start))
		return nil, "", err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("assets", "download", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("bad status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", c.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty body")
	}

	contentType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("not an image: %s", contentType)
	}
	return data, strings.ToLower(contentType), nil
}

func objectKey(url, contentType string) string {
	sum := sha1.Sum([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:]) + extByType[contentType]
}

func (c *ImageCache) ref(key string) domain.AssetRef {
	if c.publicURL != "" {
		return domain.AssetRef(c.publicURL + "/" + key)
	}
	return domain.AssetRef(c.bucket + "/" + key)
}
