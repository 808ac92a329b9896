package vaas

import (
	"context"

	"golang.org/x/time/rate"
)

// pollLimiter optionally throttles the HTTP-transport polling loop used by
// for_sha256/for_url between consecutive 202 responses. Spec.md §9 leaves
// the exact cadence unspecified ("source re-requests immediately... may add
// a small back-off without changing the contract"); a nil pollLimiter
// preserves the eager-poll default.
type pollLimiter struct {
	limiter *rate.Limiter
}

// newPollLimiter returns a limiter allowing at most r polls per second with
// the given burst, or nil if r <= 0 (the default, eager-poll behavior).
func newPollLimiter(r rate.Limit, burst int) *pollLimiter {
	if r <= 0 {
		return nil
	}
	return &pollLimiter{limiter: rate.NewLimiter(r, burst)}
}

// wait blocks until the next poll is permitted or ctx is done. A nil
// receiver returns immediately, preserving eager polling.
func (p *pollLimiter) wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
