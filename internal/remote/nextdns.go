package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"domainguard/internal/errs"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/cenkalti/backoff/v5"
)

// Retry schedule constants from spec.md §4.2: exponential backoff with
// base 1s, factor 2, capped at 30s. The library's own RandomizationFactor
// is disabled in favor of the additive uniform-[0,1)s jitter term the
// spec names explicitly (see jitteredBackOff).
const (
	retryBaseInterval = 1 * time.Second
	retryMultiplier   = 2
	retryMaxInterval  = 30 * time.Second
)

// jitteredBackOff adds spec.md §4.2's "jitter uniform in [0, 1) second
// added to each wait" on top of an underlying schedule. backoff.v5's
// ExponentialBackOff only offers a multiplicative RandomizationFactor,
// which is a different shape of jitter than the spec names, so it is
// disabled (RandomizationFactor 0) and this wraps it instead.
type jitteredBackOff struct {
	backoff.BackOff
}

func (j jitteredBackOff) NextBackOff() time.Duration {
	d := j.BackOff.NextBackOff()
	if d < 0 {
		return d // propagate the underlying schedule's stop signal untouched
	}
	return d + time.Duration(rand.Float64()*float64(time.Second))
}

// Config tunes the production client.
type Config struct {
	BaseURL        string
	APIKey         string
	ProfileID      string
	RequestTimeout time.Duration
	MaxRetries     int
	CacheTTL       time.Duration
	RateLimitReq   int
	RateLimitWin   time.Duration
}

type cacheEntry struct {
	domains   []string
	fetchedAt time.Time
}

// nextDNSClient talks to https://api.nextdns.io over net/http, per spec.md
// §6's wire protocol. Reads go through an in-memory TTL cache with
// single-flight refill; writes are rate-limited and retried with
// exponential backoff + jitter.
type nextDNSClient struct {
	cfg    Config
	http   *http.Client
	log    *zap.Logger
	limiter *rate.Limiter
	group  singleflight.Group
	cache  *lru.Cache[string, cacheEntry]
}

// New returns a production Client.
func New(cfg Config, log *zap.Logger) (*nextDNSClient, error) {
	cache, err := lru.New[string, cacheEntry](4)
	if err != nil {
		return nil, fmt.Errorf("remote: cache init: %w", err)
	}
	limiter := rate.NewLimiter(rate.Every(cfg.RateLimitWin/time.Duration(cfg.RateLimitReq)), cfg.RateLimitReq)
	return &nextDNSClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     log,
		limiter: limiter,
		cache:   cache,
	}, nil
}

func (c *nextDNSClient) url(path string) string {
	return fmt.Sprintf("%s/profiles/%s%s", c.cfg.BaseURL, c.cfg.ProfileID, path)
}

// do executes one HTTP request with rate limiting and retry/backoff,
// classifying failures per spec.md §4.2/§6.
func (c *nextDNSClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("remote: rate limiter: %w", err)
	}

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote: encode request: %w", err)
		}
		bodyBytes = b
	}

	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.url(path), bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &errs.RemoteTransient{Op: method + " " + path, Err: err}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			if wait > 0 {
				return nil, &retryAfterError{wait: wait, inner: &errs.RemoteTransient{
					Op:  method + " " + path,
					Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
				}}
			}
			return nil, &errs.RemoteTransient{Op: method + " " + path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
		}

		return nil, backoff.Permanent(&errs.RemotePermanent{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", string(respBody)),
		})
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = retryBaseInterval
	ebo.Multiplier = retryMultiplier
	ebo.MaxInterval = retryMaxInterval
	ebo.RandomizationFactor = 0
	bo := jitteredBackOff{ebo}

	result, err := backoff.Retry(ctx, wrapRetryAfter(op),
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxTries(c.cfg.MaxRetries))),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// maxTries converts the configured retry count (default 3) into backoff's
// total attempt count: the first try plus that many retries.
func maxTries(retries int) int {
	if retries <= 0 {
		retries = 3
	}
	return retries + 1
}

// retryAfterError carries a server-specified wait. wrapRetryAfter sleeps
// it before handing the inner error back to backoff.Retry, which then also
// waits its own computed interval before the next attempt.
type retryAfterError struct {
	wait  time.Duration
	inner error
}

func (e *retryAfterError) Error() string { return e.inner.Error() }
func (e *retryAfterError) Unwrap() error { return e.inner }

func wrapRetryAfter(op func() (*http.Response, error)) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		resp, err := op()
		if err == nil {
			return resp, nil
		}
		var ra *retryAfterError
		if e, ok := err.(*retryAfterError); ok {
			ra = e
			time.Sleep(ra.wait)
			return nil, ra.inner
		}
		return nil, err
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}

func (c *nextDNSClient) invalidate(key string) { c.cache.Remove(key) }

func (c *nextDNSClient) cachedList(ctx context.Context, key, path string) ([]string, error) {
	if entry, ok := c.cache.Get(key); ok && time.Since(entry.fetchedAt) < c.cfg.CacheTTL {
		return entry.domains, nil
	}
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		var parsed struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("remote: decode %s: %w", path, err)
		}
		domains := make([]string, len(parsed.Data))
		for i, d := range parsed.Data {
			domains[i] = d.ID
		}
		c.cache.Add(key, cacheEntry{domains: domains, fetchedAt: time.Now()})
		return domains, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *nextDNSClient) GetDenylist(ctx context.Context) ([]string, error) {
	return c.cachedList(ctx, "denylist", "/denylist")
}

func (c *nextDNSClient) GetAllowlist(ctx context.Context) ([]string, error) {
	return c.cachedList(ctx, "allowlist", "/allowlist")
}

func (c *nextDNSClient) AddDeny(ctx context.Context, domain string) error {
	resp, err := c.do(ctx, http.MethodPost, "/denylist", map[string]string{"id": domain, "active": "true"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.invalidate("denylist")
	return nil
}

func (c *nextDNSClient) RemoveDeny(ctx context.Context, domain string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/denylist/"+domain, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.invalidate("denylist")
	return nil
}

func (c *nextDNSClient) AddAllow(ctx context.Context, domain string) error {
	resp, err := c.do(ctx, http.MethodPost, "/allowlist", map[string]string{"id": domain, "active": "true"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.invalidate("allowlist")
	return nil
}

func (c *nextDNSClient) RemoveAllow(ctx context.Context, domain string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/allowlist/"+domain, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.invalidate("allowlist")
	return nil
}

func (c *nextDNSClient) SetCategory(ctx context.Context, id string, active bool) error {
	resp, err := c.do(ctx, http.MethodPatch, "/parentalControl/categories/"+id, map[string]bool{"active": active})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *nextDNSClient) SetService(ctx context.Context, id string, active bool) error {
	resp, err := c.do(ctx, http.MethodPatch, "/parentalControl/services/"+id, map[string]bool{"active": active})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *nextDNSClient) GetParentalControl(ctx context.Context) (ParentalControlState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/parentalControl", nil)
	if err != nil {
		return ParentalControlState{}, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Categories []struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"categories"`
		Services []struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"services"`
		SafeSearch        bool `json:"safeSearch"`
		YoutubeRestricted bool `json:"youtubeRestrictedMode"`
		BlockBypass       bool `json:"blockDisguisedTrackers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ParentalControlState{}, fmt.Errorf("remote: decode parentalControl: %w", err)
	}

	state := ParentalControlState{
		ActiveCategories: map[string]bool{},
		ActiveServices:   map[string]bool{},
		Global: GlobalFlags{
			ForceSafeSearch:   parsed.SafeSearch,
			YoutubeRestricted: parsed.YoutubeRestricted,
			BlockBypass:       parsed.BlockBypass,
		},
	}
	for _, cat := range parsed.Categories {
		if cat.Active {
			state.ActiveCategories[cat.ID] = true
		}
	}
	for _, svc := range parsed.Services {
		if svc.Active {
			state.ActiveServices[svc.ID] = true
		}
	}
	return state, nil
}

func (c *nextDNSClient) UpdateParentalControlGlobal(ctx context.Context, flags GlobalFlags) error {
	resp, err := c.do(ctx, http.MethodPatch, "/parentalControl", map[string]bool{
		"safeSearch":            flags.ForceSafeSearch,
		"youtubeRestrictedMode": flags.YoutubeRestricted,
		"blockDisguisedTrackers": flags.BlockBypass,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

var _ Client = (*nextDNSClient)(nil)
