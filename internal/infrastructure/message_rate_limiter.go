package infrastructure

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// MessageRateLimiter throttles outbound sends per device with a token bucket.
type MessageRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewMessageRateLimiter allows perSecond sends per device with the given burst.
func NewMessageRateLimiter(perSecond float64, burst int) *MessageRateLimiter {
	return &MessageRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *MessageRateLimiter) limiter(deviceID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, exists := rl.limiters[deviceID]
	if !exists {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[deviceID] = l
	}
	return l
}

// Wait blocks until the device may send or ctx is done.
func (rl *MessageRateLimiter) Wait(ctx context.Context, deviceID string) error {
	return rl.limiter(deviceID).Wait(ctx)
}

// Allow consumes a token if one is available without waiting.
func (rl *MessageRateLimiter) Allow(deviceID string) bool {
	return rl.limiter(deviceID).Allow()
}

// Forget drops a device's bucket, e.g. after its session goes away.
func (rl *MessageRateLimiter) Forget(deviceID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, deviceID)
}
