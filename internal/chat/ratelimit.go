package chat

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimit configures the per-session token bucket for chat lines.
// A zero Burst disables limiting.
type RateLimit struct {
	Burst          int
	RefillInterval time.Duration
}

// rateLimiter refills Burst tokens per RefillInterval.
type rateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func newRateLimiter(cfg RateLimit, now func() time.Time) *rateLimiter {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(cfg.Burst)), cfg.Burst),
		now:     now,
	}
}

// allow takes one token. A nil limiter always allows.
func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.AllowN(rl.now(), 1)
}
