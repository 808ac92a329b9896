package vaas

import (
	"context"
	"io"
)

// transport is the C6 abstraction the orchestrator (C5) drives. Either
// realization in spec.md §4.6 implements it: the persistent frame-channel
// transport (transport_ws.go) or the stateless HTTP transport
// (transport_http.go). Build() selects one at build time; the orchestrator
// never branches on which it got.
type transport interface {
	// forSha256 asks the server whether it has a report for sha.
	forSha256(ctx context.Context, sha Sha256, opts Options) (VaasVerdict, error)
	// forStream uploads and/or analyzes r (of the given byte length) and
	// returns its verdict.
	forStream(ctx context.Context, r io.Reader, size int64, opts Options) (VaasVerdict, error)
	// forURL submits url for analysis and returns its verdict.
	forURL(ctx context.Context, rawURL string, opts Options) (VaasVerdict, error)
	// close aborts background tasks (if any) and fails every still-pending
	// waiter with ConnectionClosed.
	close() error
}
