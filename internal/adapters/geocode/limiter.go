package geocode

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out permits for remote calls. One instance is shared by every
// resolver call in the process.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewIntervalLimiter allows one call per interval with no burst. A zero
// interval disables limiting.
func NewIntervalLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
