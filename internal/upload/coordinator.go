// Package upload fetches creative images, normalizes them, and pushes them to
// the ads platform with a content-addressed dedup cache and bounded
// concurrency.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Uploader is the slice of the ads API client the coordinator needs.
type Uploader interface {
	UploadImage(ctx context.Context, name string, data []byte) (string, error)
}

type Config struct {
	// MaxConcurrent bounds how many images are in flight at once. Default 3.
	MaxConcurrent int
	// MaxRetries is how many extra whole passes run over the failed subset.
	// Default 2.
	MaxRetries int
	// MaxDownloadBytes caps a single source image fetch. Default 10 MiB.
	MaxDownloadBytes int64
	// DownloadTimeout is the per-fetch budget. Default 30s.
	DownloadTimeout time.Duration

	HTTPClient *http.Client
}

type Coordinator struct {
	uploader      Uploader
	client        *http.Client
	maxConcurrent int
	maxRetries    int
	maxDownload   int64
	timeout       time.Duration

	mu    sync.Mutex
	cache map[string]string // content hash -> remote handle
}

func NewCoordinator(uploader Uploader, cfg Config) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = 10 << 20
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.DownloadTimeout}
	}
	return &Coordinator{
		uploader:      uploader,
		client:        client,
		maxConcurrent: cfg.MaxConcurrent,
		maxRetries:    cfg.MaxRetries,
		maxDownload:   cfg.MaxDownloadBytes,
		timeout:       cfg.DownloadTimeout,
		cache:         map[string]string{},
	}
}

// BatchResult maps each source URL to either its upload handle or the reason
// it failed. Partial success is returned to the caller, which decides whether
// that is acceptable.
type BatchResult struct {
	Successful map[string]string
	Failed     map[string]string
}

// UploadBatch processes all URLs with bounded concurrency, then re-runs the
// failed subset up to MaxRetries extra passes. It returns an error only when
// zero items succeeded.
func (c *Coordinator) UploadBatch(ctx context.Context, urls []string, format TargetFormat) (BatchResult, error) {
	result := BatchResult{
		Successful: map[string]string{},
		Failed:     map[string]string{},
	}
	pending := append([]string(nil), urls...)

	for pass := 0; pass <= c.maxRetries && len(pending) > 0; pass++ {
		if pass > 0 {
			log.Printf("[upload] retry pass %d for %d failed images", pass, len(pending))
		}
		failed := c.runPass(ctx, pending, format, &result)
		pending = failed
	}
	for _, u := range pending {
		if _, ok := result.Failed[u]; !ok {
			result.Failed[u] = "upload did not complete"
		}
	}
	if len(result.Successful) == 0 && len(urls) > 0 {
		return result, fmt.Errorf("all %d image uploads failed", len(urls))
	}
	return result, nil
}

// runPass uploads every URL in the slice concurrently and returns the subset
// that failed. Results are joined before returning, so a slow image delays
// only pass completion, not its siblings.
func (c *Coordinator) runPass(ctx context.Context, urls []string, format TargetFormat, result *BatchResult) []string {
	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, sourceURL := range urls {
		sourceURL := sourceURL
		g.Go(func() error {
			handle, err := c.processOne(gctx, sourceURL, format)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[sourceURL] = err.Error()
				failed = append(failed, sourceURL)
				return nil
			}
			result.Successful[sourceURL] = handle
			delete(result.Failed, sourceURL)
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// processOne runs the full per-item pipeline: fetch, normalize, dedup by
// content hash, upload.
func (c *Coordinator) processOne(ctx context.Context, sourceURL string, format TargetFormat) (string, error) {
	raw, err := c.fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	normalized, err := Normalize(raw, format)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(normalized)
	hash := hex.EncodeToString(sum[:])

	c.mu.Lock()
	if handle, ok := c.cache[hash]; ok {
		c.mu.Unlock()
		return handle, nil
	}
	c.mu.Unlock()

	handle, err := c.uploader.UploadImage(ctx, hash[:16], normalized)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	c.mu.Lock()
	c.cache[hash] = handle
	c.mu.Unlock()
	return handle, nil
}

func (c *Coordinator) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported image url scheme %q", parsed.Scheme)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("fetch image: content type %q is not an image", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > c.maxDownload {
		return nil, fmt.Errorf("image exceeds %d byte download limit", c.maxDownload)
	}
	return data, nil
}
