// Package adsapi is the low-level HTTP client for the third-party ads
// platform. All creation calls are form-encoded POSTs (the platform does not
// accept JSON bodies; nested values travel as JSON strings inside individual
// form fields) and every call runs through one shared retry loop guarded by a
// per-client circuit breaker.
package adsapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL     string
	AccessToken string
	AccountID   string

	HTTPClient *http.Client

	// Timeout is the per-call budget. Defaults to 30s.
	Timeout time.Duration

	// MaxAttempts bounds the retry loop, first try included. Defaults to 3.
	MaxAttempts int

	// BaseDelay and MaxDelay shape the exponential backoff
	// (BaseDelay * Multiplier^(attempt-1), capped at MaxDelay).
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// ShouldRetry decides whether a failed call is worth another attempt.
	// The orchestrator wires the error classifier here so retry policy has a
	// single source of truth. When nil, every failure is retried.
	ShouldRetry func(error) bool

	// BreakerThreshold consecutive failures open the breaker for
	// BreakerCooldown. Defaults: 5 failures, 30s cooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Sleep and Now are injectable for tests. Defaults use real timers.
	Sleep func(context.Context, time.Duration) error
	Now   func() time.Time
}

type Client struct {
	baseURL     string
	accessToken string
	accountID   string
	client      *http.Client
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	shouldRetry func(error) bool
	sleep       func(context.Context, time.Duration) error
	breaker     *breaker
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ads api base url required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("ads api access token required")
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("ads api account id required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		client:      client,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		multiplier:  cfg.Multiplier,
		shouldRetry: cfg.ShouldRetry,
		sleep:       sleep,
		breaker:     newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, cfg.Now),
	}, nil
}

// Fields is a flat form payload. Nested structures must be pre-serialized to
// JSON strings by the payload assembler.
type Fields map[string]string

func (f Fields) values() url.Values {
	v := url.Values{}
	for k, val := range f {
		v.Set(k, val)
	}
	return v
}

// CreateCampaign creates a campaign under the configured ad account and
// returns the remote campaign id.
func (c *Client) CreateCampaign(ctx context.Context, payload Fields) (string, error) {
	return c.createObject(ctx, c.accountPath("campaigns"), payload)
}

// CreateAdSet creates an ad set and returns its remote id.
func (c *Client) CreateAdSet(ctx context.Context, payload Fields) (string, error) {
	return c.createObject(ctx, c.accountPath("adsets"), payload)
}

// CreateAdCreative creates an ad creative and returns its remote id.
func (c *Client) CreateAdCreative(ctx context.Context, payload Fields) (string, error) {
	return c.createObject(ctx, c.accountPath("adcreatives"), payload)
}

// CreateAd creates an ad and returns its remote id.
func (c *Client) CreateAd(ctx context.Context, payload Fields) (string, error) {
	return c.createObject(ctx, c.accountPath("ads"), payload)
}

// UploadImage uploads image bytes under a logical name and returns the
// content handle (hash) the platform assigned.
func (c *Client) UploadImage(ctx context.Context, name string, data []byte) (string, error) {
	payload := Fields{
		"name":  name,
		"bytes": base64.StdEncoding.EncodeToString(data),
	}
	body, err := c.do(ctx, http.MethodPost, c.accountPath("adimages"), payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Images map[string]struct {
			Hash string `json:"hash"`
		} `json:"images"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode image upload response: %w", err)
	}
	for _, img := range resp.Images {
		if img.Hash != "" {
			return img.Hash, nil
		}
	}
	return "", fmt.Errorf("image upload response missing hash")
}

// UpdateStatus activates or pauses a remote object.
func (c *Client) UpdateStatus(ctx context.Context, objectID, status string) error {
	_, err := c.do(ctx, http.MethodPost, "/"+objectID, Fields{"status": status})
	return err
}

// GetObject re-reads a remote object with an explicit field list.
func (c *Client) GetObject(ctx context.Context, objectID string, fields []string) (map[string]json.RawMessage, error) {
	path := "/" + objectID
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var record map[string]json.RawMessage
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", objectID, err)
	}
	return record, nil
}

// DeleteObject removes a remote object.
func (c *Client) DeleteObject(ctx context.Context, objectID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/"+objectID, nil)
	return err
}

func (c *Client) accountPath(collection string) string {
	return fmt.Sprintf("/act_%s/%s", c.accountID, collection)
}

func (c *Client) createObject(ctx context.Context, path string, payload Fields) (string, error) {
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create response missing id")
	}
	return resp.ID, nil
}

// do runs one call through the shared retry loop. The breaker is consulted
// before and updated after every attempt; a non-retryable classification or
// an open breaker aborts immediately.
func (c *Client) do(ctx context.Context, method, path string, payload Fields) ([]byte, error) {
	var lastErr error
	delay := c.baseDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.breaker.allow(); err != nil {
			return nil, err
		}
		body, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			c.breaker.success()
			return body, nil
		}
		c.breaker.failure()
		lastErr = err
		if c.shouldRetry != nil && !c.shouldRetry(err) {
			return nil, err
		}
		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * c.multiplier)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}
	return nil, fmt.Errorf("ads api call failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload Fields) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = strings.NewReader(payload.values().Encode())
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and connection failures surface here; the classifier
		// treats them as recoverable network errors.
		return nil, fmt.Errorf("ads api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}
