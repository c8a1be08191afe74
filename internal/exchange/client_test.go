package exchange

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	signer, err := NewSigner("key", string(pemBytes))
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, retry RetryConfig) *Client {
	t.Helper()
	limiter, err := NewRateLimiter(1000) // effectively unthrottled for these tests
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(baseURL, testSigner(t), limiter, retry, testLogger())
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"balance":1,"portfolio_value":2,"updated_ts":123}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, RetryConfig{
		MaxAttempt:        5,
		BaseDelay:         5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          time.Second,
	})

	payload, err := c.Do(context.Background(), "GET", "/balance", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", calls)
	}
	if payload["balance"] != float64(1) {
		t.Errorf("balance = %v, want 1", payload["balance"])
	}
}

func TestClientNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, RetryConfig{
		MaxAttempt:        5,
		BaseDelay:         5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          time.Second,
	})

	_, err := c.Do(context.Background(), "POST", "/orders", nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	httpErr, ok := err.(*HttpError)
	if !ok {
		t.Fatalf("error = %T, want *HttpError", err)
	}
	if httpErr.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want 400", httpErr.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retry on 4xx)", calls)
	}
}

func TestClientExhaustsRetryBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, RetryConfig{
		MaxAttempt:        3,
		BaseDelay:         1 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          time.Second,
	})

	_, err := c.Do(context.Background(), "GET", "/orders", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retry budget")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3 (= max_attempt)", calls)
	}
}

func TestClientSerializesRequests(t *testing.T) {
	var inFlight int32
	var maxInFlight int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, RetryConfig{
		MaxAttempt:        1,
		BaseDelay:         time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          time.Second,
	})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			_, _ = c.Do(context.Background(), "GET", "/ping", nil)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("max concurrent in-flight requests = %d, want 1", got)
	}
}
