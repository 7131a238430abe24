// Package portal is the client of the multi-tenant customer portal API that
// owns services, providers, settings, products and bookings.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"peran/internal/metrics"
)

const (
	headerTenant = "X-Tenant"
	headerCSRF   = "X-CSRF-Token"
)

// ErrCSRFUnavailable means no anti-forgery token could be obtained, so no
// mutating request can be attempted.
var ErrCSRFUnavailable = errors.New("csrf token unavailable")

// StatusError is a non-2xx portal response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Code)
}

// Client talks to <baseURL>/api. Construct it once and share it.
type Client struct {
	baseURL    string
	tenant     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client for tenant. The cookie jar keeps the CSRF
// cookie paired with the tokens fetched for mutations.
func NewClient(baseURL, tenant string, logger zerolog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tenant:  tenant,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
		log: logger.With().Str("component", "portal").Logger(),
	}
}

// UseRedisCache configures optional Redis caching for catalog GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit caps outbound requests per second.
func (c *Client) UseRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// Tenant returns the tenant identifier sent with every request.
func (c *Client) Tenant() string {
	return c.tenant
}

func (c *Client) bookingURL(path string) string {
	return c.baseURL + "/api/system/booking" + path
}

func (c *Client) cacheKey(parts ...string) string {
	return "peran:" + c.tenant + ":" + strings.Join(parts, ":")
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		metrics.IncCacheLookup(false)
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup(false)
		return false
	}
	metrics.IncCacheLookup(true)
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// InvalidateCatalog drops cached services, providers and products.
func (c *Client) InvalidateCatalog(ctx context.Context) {
	if c.redis == nil {
		return
	}
	keys := []string{
		c.cacheKey("services", "true"), c.cacheKey("services", "false"),
		c.cacheKey("providers", "true"), c.cacheKey("providers", "false"),
		c.cacheKey("products"),
	}
	_ = c.redis.Del(ctx, keys...).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req, "")
	return c.do(endpoint, req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint, url string, body, out any) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, url, body, "")
	if err != nil {
		return err
	}
	return c.do(endpoint, req, out)
}

func (c *Client) newJSONRequest(ctx context.Context, method, url string, body any, csrf string) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req, csrf)
	return req, nil
}

func (c *Client) do(endpoint string, req *http.Request, out any) error {
	status, raw, err := c.send(endpoint, req)
	if err != nil {
		return err
	}
	if status >= 300 {
		return &StatusError{Code: status, Message: messageOf(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// send performs the request and returns the status and the whole body.
func (c *Client) send(endpoint string, req *http.Request) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return 0, nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObservePortalRequest(endpoint, "error", time.Since(started))
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	metrics.ObservePortalRequest(endpoint, outcome(resp.StatusCode), time.Since(started))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) addHeaders(req *http.Request, csrf string) {
	if c.tenant != "" {
		req.Header.Set(headerTenant, c.tenant)
	}
	if csrf != "" {
		req.Header.Set(headerCSRF, csrf)
	}
	req.Header.Set("Accept", "application/json")
}

// csrfToken fetches a fresh token. Tokens are never reused across calls since
// the server may rotate the cookie secret.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.doGet(ctx, "csrf_token", c.baseURL+"/api/csrf-token", &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCSRFUnavailable, err)
	}
	if resp.CSRFToken == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrCSRFUnavailable)
	}
	return resp.CSRFToken, nil
}

// Ping checks that the portal answers for this tenant.
func (c *Client) Ping(ctx context.Context) error {
	return c.doGet(ctx, "ping", c.bookingURL("/public/settings"), nil)
}

func outcome(status int) string {
	switch {
	case status == http.StatusConflict:
		return "conflict"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "ok"
	}
}

// messageOf extracts a `message` field, or returns the trimmed body text.
func messageOf(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
