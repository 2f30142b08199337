package adsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:     "https://ads.example.com/v19.0",
		AccessToken: "test-token",
		AccountID:   "123456",
		HTTPClient:  &http.Client{Transport: rt},
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCreateCampaignFormEncoding(t *testing.T) {
	var captured *http.Request
	var capturedBody string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		b, _ := io.ReadAll(req.Body)
		capturedBody = string(b)
		return jsonResponse(200, `{"id":"cmp_1"}`), nil
	}, nil)

	id, err := c.CreateCampaign(context.Background(), Fields{
		"name":      "Spring Sale",
		"objective": "OUTCOME_SALES",
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	if id != "cmp_1" {
		t.Fatalf("expected cmp_1, got %q", id)
	}
	if captured.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", captured.Method)
	}
	if want := "/v19.0/act_123456/campaigns"; captured.URL.Path != want {
		t.Fatalf("expected path %s, got %s", want, captured.URL.Path)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", got)
	}
	if got := captured.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(capturedBody, "name=Spring+Sale") || !strings.Contains(capturedBody, "objective=OUTCOME_SALES") {
		t.Fatalf("body missing form fields: %s", capturedBody)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	calls := 0
	var delays []time.Duration
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return jsonResponse(500, `{"error":{"code":2,"message":"transient"}}`), nil
		}
		return jsonResponse(200, `{"id":"cmp_2"}`), nil
	}, func(cfg *Config) {
		cfg.Sleep = func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}
	})

	id, err := c.CreateCampaign(context.Background(), Fields{"name": "x"})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if id != "cmp_2" {
		t.Fatalf("expected cmp_2, got %q", id)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(delays))
	}
	if delays[0] != 500*time.Millisecond || delays[1] != time.Second {
		t.Fatalf("expected exponential delays 500ms, 1s; got %v", delays)
	}
}

func TestRetriesExhausted(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(500, `{"error":{"code":2,"message":"still down"}}`), nil
	}, nil)

	_, err := c.CreateCampaign(context.Background(), Fields{"name": "x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
	if apiErr.Code != 2 {
		t.Fatalf("expected code 2, got %d", apiErr.Code)
	}
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(400, `{"error":{"code":100,"message":"Invalid parameter"}}`), nil
	}, func(cfg *Config) {
		cfg.ShouldRetry = func(err error) bool {
			var apiErr *APIError
			return !errors.As(err, &apiErr) || apiErr.Code != 100
		}
	})

	_, err := c.CreateCampaign(context.Background(), Fields{"name": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("non-retryable error should not retry, got %d attempts", calls)
	}
}

func TestBreakerFailsFastAfterThreshold(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, fmt.Errorf("connection refused")
	}, func(cfg *Config) {
		cfg.MaxAttempts = 1
	})

	for i := 0; i < 5; i++ {
		if _, err := c.CreateCampaign(context.Background(), Fields{"name": "x"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if calls != 5 {
		t.Fatalf("expected 5 network calls, got %d", calls)
	}

	// Sixth call is rejected by the breaker without touching the network.
	_, err := c.CreateCampaign(context.Background(), Fields{"name": "x"})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("open breaker should skip the network, got %d calls", calls)
	}
}

func TestUploadImageParsesHash(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if want := "/v19.0/act_123456/adimages"; req.URL.Path != want {
			t.Errorf("expected path %s, got %s", want, req.URL.Path)
		}
		return jsonResponse(200, `{"images":{"pic":{"hash":"abc123"}}}`), nil
	}, nil)

	hash, err := c.UploadImage(context.Background(), "pic", []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if hash != "abc123" {
		t.Fatalf("expected hash abc123, got %q", hash)
	}
}

func TestGetObjectFields(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if got := req.URL.Query().Get("fields"); got != "id,status" {
			t.Errorf("expected fields=id,status, got %q", got)
		}
		return jsonResponse(200, `{"id":"cmp_1","status":"PAUSED"}`), nil
	}, nil)

	record, err := c.GetObject(context.Background(), "cmp_1", []string{"id", "status"})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	var status string
	if err := json.Unmarshal(record["status"], &status); err != nil || status != "PAUSED" {
		t.Fatalf("expected status PAUSED, got %s (%v)", record["status"], err)
	}
}

func TestParseAPIErrorEnvelope(t *testing.T) {
	body := `{"error":{"code":190,"error_subcode":463,"message":"Token expired","error_user_msg":"Please log in again","fbtrace_id":"Axyz"}}`
	apiErr := parseAPIError(401, []byte(body))
	if apiErr.Code != 190 || apiErr.Subcode != 463 {
		t.Fatalf("unexpected codes %d/%d", apiErr.Code, apiErr.Subcode)
	}
	if apiErr.HTTPStatus != 401 {
		t.Fatalf("expected http status 401, got %d", apiErr.HTTPStatus)
	}
	if apiErr.UserMessage != "Please log in again" {
		t.Fatalf("unexpected user message %q", apiErr.UserMessage)
	}
	if apiErr.TraceID != "Axyz" {
		t.Fatalf("unexpected trace id %q", apiErr.TraceID)
	}
}

func TestParseAPIErrorMalformedBody(t *testing.T) {
	apiErr := parseAPIError(503, []byte("<html>gateway timeout</html>"))
	if apiErr.Code != 1 {
		t.Fatalf("expected generic code 1, got %d", apiErr.Code)
	}
	if apiErr.HTTPStatus != 503 {
		t.Fatalf("expected http status 503, got %d", apiErr.HTTPStatus)
	}
}

func TestContextCancelledBeforeCall(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Error("network should not be reached with a cancelled context")
		return nil, nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CreateCampaign(ctx, Fields{"name": "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
