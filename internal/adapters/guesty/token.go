package guesty

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"listing_sync/internal/domain"
)

// DefaultTokenLifetime is used when the identity endpoint omits expires_in.
const DefaultTokenLifetime = 23 * time.Hour

const tokenCacheKey = "guesty:access_token"

type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) form() string {
	v := url.Values{}
	v.Set("client_id", c.ClientID)
	v.Set("client_secret", c.ClientSecret)
	v.Set("grant_type", "client_credentials")
	return v.Encode()
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (t *cachedToken) validAt(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// TokenCache hands out bearer tokens, refreshing from the identity endpoint
// when none is cached or the cached one expired. Tokens are cached for the
// granted lifetime minus a guard window so none expires mid-request.
// When shared is non-nil the token is also kept there for other processes.
type TokenCache struct {
	client *Client
	creds  Credentials
	guard  time.Duration
	shared domain.Cache
	now    func() time.Time

	mu  sync.Mutex
	cur *cachedToken
	sf  singleflight.Group
}

func NewTokenCache(client *Client, creds Credentials, guard time.Duration, shared domain.Cache) *TokenCache {
	return &TokenCache{
		client: client,
		creds:  creds,
		guard:  guard,
		shared: shared,
		now:    time.Now,
	}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	now := c.now()

	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()
	if cur.validAt(now) {
		return cur.AccessToken, nil
	}

	if c.shared != nil {
		var ct cachedToken
		ok, err := c.shared.Get(ctx, tokenCacheKey, &ct)
		if err != nil {
			log.Warn().Err(err).Msg("shared token cache read failed")
		} else if ok && ct.validAt(now) {
			c.store(&ct)
			return ct.AccessToken, nil
		}
	}

	v, err, _ := c.sf.Do("token", func() (any, error) {
		// a flight that finished just before this one may already have stored a token
		c.mu.Lock()
		cur := c.cur
		c.mu.Unlock()
		if cur.validAt(c.now()) {
			return cur.AccessToken, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, e.g. after the provider rejected it.
func (c *TokenCache) Invalidate(ctx context.Context) {
	c.store(nil)
	if c.shared != nil {
		if err := c.shared.Del(ctx, tokenCacheKey); err != nil {
			log.Warn().Err(err).Msg("shared token cache delete failed")
		}
	}
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	if c.creds.ClientID == "" || c.creds.ClientSecret == "" {
		return "", fmt.Errorf("%w: client credentials are not configured", domain.ErrAuth)
	}
	tr, err := c.client.requestToken(ctx, c.creds)
	if err != nil {
		return "", err
	}

	ttl := c.ttl(time.Duration(tr.ExpiresIn) * time.Second)
	ct := &cachedToken{AccessToken: tr.AccessToken, ExpiresAt: c.now().Add(ttl)}
	c.store(ct)

	if c.shared != nil && ttl >= time.Second {
		if err := c.shared.Set(ctx, tokenCacheKey, ct, int(ttl.Seconds())); err != nil {
			log.Warn().Err(err).Msg("shared token cache write failed")
		}
	}
	log.Info().Dur("ttl", ttl).Msg("access token refreshed")
	return ct.AccessToken, nil
}

// ttl is the cache lifetime for a token granted for lifetime.
func (c *TokenCache) ttl(lifetime time.Duration) time.Duration {
	if lifetime <= 0 {
		return DefaultTokenLifetime
	}
	ttl := lifetime - c.guard
	if ttl < lifetime/2 {
		ttl = lifetime / 2
	}
	return ttl
}

func (c *TokenCache) store(t *cachedToken) {
	c.mu.Lock()
	c.cur = t
	c.mu.Unlock()
}
