// Package guesty talks to the listing provider: the OAuth2 client-credentials
// identity endpoint and the listings endpoint.
package guesty

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"listing_sync/internal/adapters/observability"
	"listing_sync/internal/domain"
)

const (
	maxAttempts   = 3
	maxRetryAfter = 30 * time.Second
	maxBodyBytes  = 64 << 20
)

type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

// New returns a client for the API rooted at base. timeout bounds every single
// HTTP attempt.
func New(base string, rps int, timeout time.Duration) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type listingsPage struct {
	Items   *[]domain.RawEntry `json:"items"`
	Results *[]domain.RawEntry `json:"results"` // open-api shape
}

// FetchListings returns the full raw catalog. Any failure, including a body
// without a listings array, is an error wrapping domain.ErrFetch; an empty
// array is a valid, empty catalog.
func (c *Client) FetchListings(ctx context.Context, token string) ([]domain.RawEntry, error) {
	status, body, err := c.send(ctx, "listings", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/listings", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	switch {
	case status == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, domain.ErrUnauthorized)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrFetch, status, snippet(body))
	}

	var page listingsPage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", domain.ErrFetch, err)
	}
	items := page.Items
	if items == nil {
		items = page.Results
	}
	if items == nil {
		return nil, fmt.Errorf("%w: response has no items array", domain.ErrFetch)
	}
	if *items == nil {
		return []domain.RawEntry{}, nil
	}
	return *items, nil
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
}

// requestToken performs the client-credentials grant.
func (c *Client) requestToken(ctx context.Context, creds Credentials) (tokenResponse, error) {
	form := creds.form()
	status, body, err := c.send(ctx, "oauth2/token", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/oauth2/token", strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	if status < 200 || status > 299 {
		return tokenResponse{}, fmt.Errorf("%w: status %d: %s", domain.ErrAuth, status, snippet(body))
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return tokenResponse{}, fmt.Errorf("%w: decode body: %w", domain.ErrAuth, err)
	}
	if strings.TrimSpace(tr.AccessToken) == "" {
		return tokenResponse{}, fmt.Errorf("%w: response has no access_token", domain.ErrAuth)
	}
	return tr, nil
}

// send performs a request with client-side rate limiting and retries on
// transport errors, 429 and transient 5xx, honoring Retry-After when provided.
// It returns the final status and body; non-retryable statuses are not errors here.
func (c *Client) send(ctx context.Context, endpoint string, build func() (*http.Request, error)) (int, []byte, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := c.rl.Wait(ctx); err != nil {
			return 0, nil, err
		}
		// fresh request each attempt
		req, err := build()
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("User-Agent", "listing-sync/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("guesty", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return 0, nil, lastErr
		}
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		observability.ObserveExternal("guesty", endpoint, resp.StatusCode, time.Since(start))
		if rerr != nil {
			return 0, nil, fmt.Errorf("read body: %w", rerr)
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return resp.StatusCode, body, nil
		default:
			return resp.StatusCode, body, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return 0, nil, lastErr
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date), capped at maxRetryAfter.
// Returns 0 if absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(h); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// backoff returns 200ms, 400ms, 800ms... for attempt i with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
