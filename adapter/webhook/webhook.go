// Package webhook posts bundle completion events to an HTTP endpoint.
//
// Each request carries the event type and session ID as headers so that
// receivers can deduplicate retried deliveries. With a secret configured
// the body is signed with HMAC-SHA256.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ytwritergod/archivetoziptest/adapter"
	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Request headers set on every delivery.
const (
	HeaderEvent     = "X-Bundlebot-Event"
	HeaderDelivery  = "X-Bundlebot-Delivery"
	HeaderSignature = "X-Bundlebot-Signature"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 256

// Config configures the webhook adapter.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are added to each request, e.g. Authorization.
	Headers map[string]string
	// Secret, if set, signs each body; see Sign.
	Secret  string
	Timeout time.Duration
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes bundle completion events via HTTP POST.
type Adapter struct {
	url     string
	headers http.Header
	secret  []byte
	retries int
	backoff time.Duration
	client  *http.Client
}

// New validates cfg and creates the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("webhook URL must be http or https, got %q", cfg.URL)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	headers := make(http.Header, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", "bundlebot/"+types.Version)

	return &Adapter{
		url:     cfg.URL,
		headers: headers,
		secret:  []byte(cfg.Secret),
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish posts the event. Network errors, 5xx and 429 responses are
// retried; any other 4xx fails at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BundleCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	h := a.headers.Clone()
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderDelivery, event.SessionID)
	if len(a.secret) > 0 {
		h.Set(HeaderSignature, Sign(a.secret, body))
	}

	err = adapter.Retry(ctx, a.retries, a.backoff,
		func(ctx context.Context) error { return a.deliver(ctx, h, body) },
		permanent,
	)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (a *Adapter) deliver(ctx context.Context, h http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = h

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	// Body is the start of the response body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the receiver may accept a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

func permanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !se.Retryable()
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
