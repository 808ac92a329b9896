package vaas

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/go-logr/logr"
)

// Connection is the long-lived handle bundling the live transport, the
// active configuration, and (for the frame transport) the session id and
// background tasks. Create one with Builder.Build; destroy it with Close.
type Connection struct {
	transport transport
	opts      Options
	metrics   *metrics
	log       logr.Logger

	closeOnce sync.Once
}

// Close aborts background tasks (if any) and resolves every still-pending
// waiter with ConnectionClosed. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.close()
	})
	return err
}

// ForSha256 asks the server whether it has a report for sha.
func (c *Connection) ForSha256(ctx context.Context, sha Sha256) (VaasVerdict, error) {
	return c.transport.forSha256(ctx, sha, c.opts)
}

// ForSha256List requests verdicts for every hash in shas concurrently,
// returning one Result per input element in input order.
func (c *Connection) ForSha256List(ctx context.Context, shas []Sha256) []Result {
	return gather(len(shas), func(i int) Result {
		v, err := c.ForSha256(ctx, shas[i])
		return Result{Verdict: v, Err: err}
	})
}

// ForStream analyzes the bytes read from r (exactly size bytes) and returns
// their verdict.
func (c *Connection) ForStream(ctx context.Context, r io.Reader, size int64) (VaasVerdict, error) {
	return c.transport.forStream(ctx, r, size, c.opts)
}

// ForBuf is a one-shot stream around buf, forwarding to ForStream.
func (c *Connection) ForBuf(ctx context.Context, buf []byte) (VaasVerdict, error) {
	if len(buf) == 0 {
		return c.ForStream(ctx, bytes.NewReader(nil), 0)
	}
	return c.ForStream(ctx, bytes.NewReader(buf), int64(len(buf)))
}

// ForURL submits url for analysis and returns its verdict.
func (c *Connection) ForURL(ctx context.Context, url string) (VaasVerdict, error) {
	return c.transport.forURL(ctx, url, c.opts)
}

// ForURLList requests verdicts for every URL in urls concurrently,
// returning one Result per input element in input order.
func (c *Connection) ForURLList(ctx context.Context, urls []string) []Result {
	return gather(len(urls), func(i int) Result {
		v, err := c.ForURL(ctx, urls[i])
		return Result{Verdict: v, Err: err}
	})
}

// ForFile requests a verdict for the file at path. If use_cache or
// use_hash_lookup is set, it first hashes the file and tries ForSha256; an
// Unknown verdict, or one missing full metadata, falls back to uploading
// the file's bytes via ForStream. A hash-lookup pre-check error never fails
// the overall call — it falls back to upload instead (§7 propagation policy).
func (c *Connection) ForFile(ctx context.Context, path string) (VaasVerdict, error) {
	if c.opts.UseCache || c.opts.UseHashLookup {
		if sha, err := HashFile(path); err == nil {
			verdict, err := c.ForSha256(ctx, sha)
			if err == nil && verdict.Verdict != Unknown && verdict.hasFullMetadata() {
				return verdict, nil
			}
			// Unknown, partial metadata, or a pre-check error: fall through
			// to upload.
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return VaasVerdict{}, newError(ErrIo, "open "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return VaasVerdict{}, newError(ErrIo, "stat "+path, err)
	}
	return c.ForStream(ctx, f, info.Size())
}

// ForFileList requests verdicts for every file in paths concurrently,
// returning one Result per input element in input order.
func (c *Connection) ForFileList(ctx context.Context, paths []string) []Result {
	return gather(len(paths), func(i int) Result {
		v, err := c.ForFile(ctx, paths[i])
		return Result{Verdict: v, Err: err}
	})
}

// gather runs fn(0)..fn(n-1) concurrently and collects their results in
// input order, so one slow element does not block the others (§9 "Lazy
// sequences of results... Implement as a parallel gather, not a fused
// stream").
func gather(n int, fn func(i int) Result) []Result {
	results := make([]Result, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return results
}
