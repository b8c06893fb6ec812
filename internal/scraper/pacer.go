package scraper

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer waits a random duration in [Min, Max] between requests to one site.
type Pacer struct {
	Min, Max time.Duration
	// Rand overrides the random source; it must return values in [0, 1).
	Rand func() float64
}

func (p Pacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return max(p.Min, 0)
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	return p.Min + time.Duration(r()*float64(p.Max-p.Min))
}

// Wait sleeps for one delay or until ctx is done.
func (p Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
