package ingest

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound requests. One instance must be shared by every
// fetch in the process; the SEC ceiling applies to the caller as a whole.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewSpacingLimiter returns a limiter that admits one request per spacing
// interval with no burst, so consecutive requests are at least spacing apart.
func NewSpacingLimiter(spacing time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(spacing), 1)
}

// Unlimited is a zero-delay limiter for tests and offline runs.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
