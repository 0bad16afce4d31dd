package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates calls to an external service. Implementations block until the
// next call is allowed or the context is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewIntervalLimiter returns a token-bucket Limiter admitting one call per
// interval. A zero interval admits everything immediately.
func NewIntervalLimiter(interval time.Duration) Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
