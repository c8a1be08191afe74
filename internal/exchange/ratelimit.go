// ratelimit.go implements the token-bucket rate limiter that gates every
// outbound request made by the signed Kalshi client.
//
// Kalshi enforces a flat per-key requests/second limit rather than
// Polymarket's per-endpoint-category windows, so a single shared bucket
// with continuous (non-windowed) refill is enough here.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter with continuous refill. Callers
// block in Acquire until a token is available or ctx is cancelled. It is
// intended to be consulted by a single serial consumer (the signed
// client's request worker); under that precondition it exactly enforces
// <= rate long-run throughput with bursts up to capacity.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // burst allowance, equal to rate
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were recalculated
}

// NewRateLimiter creates a limiter refilling at ratePerSecond tokens/second
// with burst capacity equal to the rate. Rejects non-positive rates.
func NewRateLimiter(ratePerSecond int) (*RateLimiter, error) {
	if ratePerSecond <= 0 {
		return nil, fmt.Errorf("rate must be > 0, got %d", ratePerSecond)
	}
	rate := float64(ratePerSecond)
	return &RateLimiter{
		tokens:   rate,
		capacity: rate,
		rate:     rate,
		lastTime: time.Now(),
	}, nil
}

// Acquire blocks until at least one token is available, then consumes it.
// Returns ctx.Err() if ctx is cancelled while waiting.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(rl.lastTime).Seconds()
		rl.lastTime = now

		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}

		if rl.tokens >= 1.0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		deficit := 1.0 - rl.tokens
		wait := time.Duration(deficit / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}
