// client.go implements the signed HTTP client: a single-consumer request
// queue draining through the rate limiter, RSA-PSS signing per request, and
// bounded retry with exponential backoff and jitter.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// RetryConfig tunes the bounded-retry loop.
type RetryConfig struct {
	MaxAttempt        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// Client is the signed, rate-limited, serially-queued Kalshi HTTP client.
// Exactly one background worker drains the request queue: while a request
// is in flight no other request is signed or sent.
type Client struct {
	signer  *Signer
	limiter *RateLimiter
	http    *resty.Client
	retry   RetryConfig
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	queue   chan *pendingRequest
}

type pendingRequest struct {
	ctx    context.Context
	method string
	path   string
	body   any
	result chan requestOutcome
}

type requestOutcome struct {
	payload map[string]any
	err     error
}

// NewClient builds a signed client against baseURL. The resty transport is
// configured with a 30s timeout and JSON content type; its own retry
// condition is left disabled because the retry algorithm here is custom.
func NewClient(baseURL string, signer *Signer, limiter *RateLimiter, retry RetryConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		signer:  signer,
		limiter: limiter,
		http:    httpClient,
		retry:   retry,
		logger:  logger.With("component", "exchange_client"),
		queue:   make(chan *pendingRequest, 256),
	}
}

// Do enqueues a request and blocks until the single worker has processed it
// (including any retries) or ctx is cancelled. The worker is started lazily
// on first call.
func (c *Client) Do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	c.ensureWorker()

	req := &pendingRequest{
		ctx:    ctx,
		method: method,
		path:   path,
		body:   body,
		result: make(chan requestOutcome, 1),
	}

	select {
	case c.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-req.result:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) ensureWorker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.runWorker()
}

// runWorker is the sole consumer of the queue: one signing + send + classify
// + retry cycle completes before the next request is even signed.
func (c *Client) runWorker() {
	for req := range c.queue {
		payload, err := c.sendWithRetry(req)
		req.result <- requestOutcome{payload: payload, err: err}
	}
}

func (c *Client) sendWithRetry(req *pendingRequest) (map[string]any, error) {
	start := time.Now()
	attempt := 0
	var lastErr error

	for {
		if err := c.limiter.Acquire(req.ctx); err != nil {
			return nil, err
		}

		payload, err := c.sendOnce(req)
		if err == nil {
			return payload, nil
		}
		if req.ctx.Err() != nil {
			return nil, req.ctx.Err()
		}
		lastErr = err

		if !Retryable(err) {
			return nil, err
		}

		attempt++
		if attempt >= c.retry.MaxAttempt {
			return nil, lastErr
		}

		delay := time.Duration(float64(c.retry.BaseDelay) * math.Pow(c.retry.BackoffMultiplier, float64(attempt-1)))
		delay += time.Duration(rand.Float64() * 0.1 * float64(delay))

		if time.Since(start)+delay > c.retry.MaxDelay {
			return nil, lastErr
		}

		c.logger.Warn("retrying request", "method", req.method, "path", req.path, "attempt", attempt, "delay", delay, "err", err)

		select {
		case <-time.After(delay):
		case <-req.ctx.Done():
			return nil, req.ctx.Err()
		}
	}
}

// sendOnce performs exactly one sign+send+classify cycle. Every attempt is
// re-signed with a fresh timestamp.
func (c *Client) sendOnce(req *pendingRequest) (map[string]any, error) {
	timestampMs := time.Now().UnixMilli()
	headers, err := c.signer.Sign(req.method, req.path, timestampMs)
	if err != nil {
		return nil, fmt.Errorf("signing %s %s: %w", req.method, req.path, err)
	}

	r := c.http.R().
		SetContext(req.ctx).
		SetHeader("KALSHI-ACCESS-KEY", headers.AccessKey).
		SetHeader("KALSHI-ACCESS-SIGNATURE", headers.AccessSignature).
		SetHeader("KALSHI-ACCESS-TIMESTAMP", headers.AccessTimestamp)

	if req.body != nil {
		r = r.SetBody(req.body)
	}

	resp, err := r.Execute(strings.ToUpper(req.method), req.path)
	if err != nil {
		return nil, &TransportError{Op: req.method + " " + req.path, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &HttpError{StatusCode: resp.StatusCode(), Payload: tryParseJSON(resp.Body())}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return parsed, nil
}

func tryParseJSON(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	return parsed
}
