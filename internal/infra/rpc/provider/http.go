package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Provider  string
	Endpoint  string
	Status    int
	Body      string
	Throttled bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.Status, e.Endpoint, e.Body)
}

func (e *StatusError) QuotaExceeded() bool    { return e.Throttled }
func (e *StatusError) SourceEndpoint() string { return e.Endpoint }
func (e *StatusError) StatusCode() int        { return e.Status }

// HTTPProvider implements Provider for JSON over HTTP.
type HTTPProvider struct {
	*BaseProvider

	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a new HTTP provider. When apiKey is set it is sent
// both as x-aptos-api-key and as a bearer token.
func NewHTTPProvider(name, endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Endpoint returns the provider's base URL.
func (p *HTTPProvider) Endpoint() string {
	return p.endpoint
}

// PostJSON posts body as JSON to the endpoint path and returns the raw response body.
func (p *HTTPProvider) PostJSON(ctx context.Context, path string, body any) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return p.do(ctx, http.MethodPost, path, jsonData)
}

// GetJSON performs a GET on the endpoint path and returns the raw response body.
func (p *HTTPProvider) GetJSON(ctx context.Context, path string) ([]byte, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	start := time.Now()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.endpoint+path, reader)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("x-aptos-api-key", p.apiKey)
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("%s %s: %w", method, p.endpoint+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.RecordFailure()
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		statusErr := &StatusError{
			Provider: p.Name,
			Endpoint: p.endpoint,
			Status:   resp.StatusCode,
			Body:     text,
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			p.Monitor.RecordThrottle(resp.StatusCode, resp.Header.Get("Retry-After"))
			statusErr.Throttled = true
		case resp.StatusCode == http.StatusForbidden:
			p.Monitor.RecordThrottle(resp.StatusCode, "")
			statusErr.Throttled = p.Monitor.DetectThrottlePattern(text)
		case p.Monitor.DetectThrottlePattern(text):
			p.Monitor.RecordThrottle(resp.StatusCode, "")
			statusErr.Throttled = true
		}
		return nil, statusErr
	}

	p.RecordSuccess(time.Since(start))
	return body, nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
