package vaas

import (
	"context"
	"time"
)

// NewDeadline returns a context that is canceled after d, along with its
// CancelFunc. Carried over from the original SDK's CancellationToken
// convenience constructors (from_seconds/from_minutes); idiomatic Go callers
// should prefer context.WithTimeout directly, but this mirrors the source's
// ergonomics for a one-line cancellation handle.
func NewDeadline(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
