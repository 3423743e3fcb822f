package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Pacer enforces a minimum delay between the starts of successive
// documents. One Pacer is created per run and shared by its workers.
type Pacer struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// NewPacer returns a Pacer that admits one document per delay. A
// non-positive delay never waits.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1), delay: delay}
}

// Delay is the configured minimum spacing.
func (p *Pacer) Delay() time.Duration { return p.delay }

// Wait blocks until the next document may start. A nil Pacer never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return eris.Wrap(p.limiter.Wait(ctx), "ingest: pacing")
}
