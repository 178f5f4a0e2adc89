package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Session is a shared HTTP session for all outbound requests. It carries
// default headers (user agent, optional site cookie) and retries transient
// server errors a bounded number of times.
type Session struct {
	client     *http.Client
	headers    map[string]string
	maxRetries int
}

// Option configures a Session.
type Option func(*Session)

// WithCookie sets a raw Cookie header sent on every request.
func WithCookie(cookie string) Option {
	return func(s *Session) {
		s.headers["Cookie"] = cookie
	}
}

// WithHeader sets an arbitrary default header.
func WithHeader(key, value string) Option {
	return func(s *Session) {
		s.headers[key] = value
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.client.Timeout = d
	}
}

// NewSession creates a session with browser-like defaults.
func NewSession(opts ...Option) *Session {
	s := &Session{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: map[string]string{
			"User-Agent": defaultUserAgent,
		},
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get performs a GET request. 5xx responses are retried up to the session's
// retry limit; any remaining non-2xx status is returned as a *StatusError
// with the body already closed. The caller owns the body on success.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", rawURL, s.maxRetries+1, lastErr)
}

// GetJSON performs a GET request and decodes the JSON response body into v.
func (s *Session) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := s.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", rawURL, err)
	}
	return nil
}

// Client exposes the underlying http.Client for callers that need to build
// their own requests.
func (s *Session) Client() *http.Client {
	return s.client
}

// Header returns the default value set for a header key, if any.
func (s *Session) Header(key string) string {
	return s.headers[key]
}
