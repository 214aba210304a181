// Package shopify implements domain.CommerceClient against the Shopify Admin
// API: REST for reads, GraphQL for product and metafield mutations.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/infrastructure/metrics"
	"github.com/shoprewrite/backend/internal/infrastructure/retry"
)

const service = "shopify"

// Defaults for the admin API client
const (
	DefaultAPIVersion      = "2024-01"
	DefaultPageSize        = 250
	DefaultHandleCacheSize = 2048
)

// Config holds configuration for the admin API client
type Config struct {
	// BaseURL replaces https://{store domain} when set
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	// RateLimit is the sustained request rate per second
	RateLimit float64
	RateBurst int
	PageSize  int

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	HandleCacheSize int
}

// Client handles communication with the Shopify Admin API
type Client struct {
	httpClient  *http.Client
	config      Config
	rateLimiter *rate.Limiter
	policy      retry.Policy
	// handles maps "{domain}/{collection id}" to the collection handle
	handles *lru.Cache[string, string]
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewClient creates a new admin API client
func NewClient(cfg Config, m *metrics.Metrics, logger zerolog.Logger) (*Client, error) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 4
	}
	if cfg.PageSize <= 0 || cfg.PageSize > DefaultPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.HandleCacheSize <= 0 {
		cfg.HandleCacheSize = DefaultHandleCacheSize
	}

	handles, err := lru.New[string, string](cfg.HandleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create handle cache: %w", err)
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		config:      cfg,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		handles:     handles,
		metrics:     m,
		logger:      logger,
	}
	c.policy = retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		BaseDelay:       cfg.BaseDelay,
		MaxDelay:        cfg.MaxDelay,
		HonorRetryAfter: true,
		Retryable:       isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.IncRetry(service)
			c.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying admin API call")
		},
	}
	return c, nil
}

func (c *Client) endpoint(store domain.Store, path string, params url.Values) string {
	base := c.config.BaseURL
	if base == "" {
		base = "https://" + strings.TrimSpace(store.Domain)
	}
	u := fmt.Sprintf("%s/admin/api/%s/%s", strings.TrimRight(base, "/"), c.config.APIVersion, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// getJSON issues a REST GET and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, store domain.Store, operation, path string, params url.Values, out interface{}) error {
	body, err := c.do(ctx, store, operation, http.MethodGet, c.endpoint(store, path, params), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return malformed(operation, "decode response", err)
	}
	return nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// graphql posts a query and decodes its data member into out
func (c *Client) graphql(ctx context.Context, store domain.Store, operation, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var decoded struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}

	_, err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		body, err := c.attempt(ctx, store, operation, http.MethodPost, c.endpoint(store, "graphql.json", nil), payload)
		if err != nil {
			return err
		}
		decoded.Data, decoded.Errors = nil, nil
		if err := json.Unmarshal(body, &decoded); err != nil {
			return malformed(operation, "decode response", err)
		}
		if len(decoded.Errors) > 0 {
			return graphQLFailure(operation, decoded.Errors)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if out == nil || len(decoded.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return malformed(operation, "decode data", err)
	}
	return nil
}

// graphQLFailure converts top-level GraphQL errors. A THROTTLED code is
// reported as 429 so it is retried.
func graphQLFailure(operation string, errs []graphQLError) error {
	messages := make([]string, 0, len(errs))
	status := http.StatusOK
	for _, e := range errs {
		messages = append(messages, e.Message)
		if strings.EqualFold(e.Extensions.Code, "THROTTLED") {
			status = http.StatusTooManyRequests
		}
	}
	apiErr := &domain.CommerceAPIError{Operation: operation, Message: strings.Join(messages, "; ")}
	if status != http.StatusOK {
		apiErr.StatusCode = status
	}
	return apiErr
}

// do runs one request through the retry policy and returns the body
func (c *Client) do(ctx context.Context, store domain.Store, operation, method, reqURL string, payload []byte) ([]byte, error) {
	var body []byte
	_, err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		b, err := c.attempt(ctx, store, operation, method, reqURL, payload)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

// attempt executes a single rate limited HTTP request
func (c *Client) attempt(ctx context.Context, store domain.Store, operation, method, reqURL string, payload []byte) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", store.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(service, "error", time.Since(start))
		return nil, &domain.CommerceAPIError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveRequest(service, "error", time.Since(start))
		return nil, &domain.CommerceAPIError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveRequest(service, strconv.Itoa(resp.StatusCode), time.Since(start))
		c.logger.Debug().Str("operation", operation).Int("status", resp.StatusCode).Msg("admin API error response")
		return nil, &domain.CommerceAPIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	c.metrics.ObserveRequest(service, "ok", time.Since(start))
	return body, nil
}

// malformed reports an undecodable body. It is permanent.
func malformed(operation, message string, err error) error {
	return &domain.CommerceAPIError{
		Operation: operation,
		Message:   message,
		Err:       fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err),
	}
}

func isTransient(err error) bool {
	var apiErr *domain.CommerceAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

// parseRetryAfter accepts delta seconds, including Shopify's "2.0", or an
// HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage extracts a readable message from an admin API error body
func errorMessage(body []byte) string {
	var decoded struct {
		Errors interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Errors != nil {
		switch v := decoded.Errors.(type) {
		case string:
			return v
		default:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
