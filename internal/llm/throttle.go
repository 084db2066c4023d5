package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"techdigest/internal/core"
)

// Throttle spaces successive calls at least interval apart.
// Wait blocks the caller, so a stage that calls Wait before every oracle request
// cannot issue two requests closer together than interval.
type Throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewThrottle creates a throttle. Intervals below core.MinOracleInterval are raised to it.
func NewThrottle(interval time.Duration) *Throttle {
	if interval < core.MinOracleInterval {
		interval = core.MinOracleInterval
	}
	return newThrottle(interval)
}

func newThrottle(interval time.Duration) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1), interval: interval}
}

// Interval reports the enforced spacing
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Wait blocks until the next call is allowed or ctx is done
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
