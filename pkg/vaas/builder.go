package vaas

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// TransportKind selects one of the two C6 realizations at build time.
type TransportKind int

const (
	// TransportHTTP is the stateless request/response realization,
	// preferred for new integrations per spec.md §9.
	TransportHTTP TransportKind = iota
	// TransportFrame is the persistent bidirectional frame-channel
	// realization, kept for wire compatibility with servers that require it.
	TransportFrame
)

// Builder assembles a Connection. The zero value is not usable; start from
// NewBuilder.
type Builder struct {
	credential    Credential
	opts          Options
	transportKind TransportKind
	httpClient    *http.Client
	registerer    prometheus.Registerer
	log           logr.Logger
	pollRate      rate.Limit
	pollBurst     int
}

// NewBuilder starts a Builder authenticating with credential. Defaults
// match spec.md §3: keep_alive=true, keep_alive_delay=10s, use_cache=true,
// use_hash_lookup=true, HTTP transport, production server URL, no metrics
// registration, and a discarding logger.
func NewBuilder(credential Credential) *Builder {
	return &Builder{
		credential:    credential,
		opts:          defaultOptions(),
		transportKind: TransportHTTP,
		log:           logr.Discard(),
	}
}

// WithServerURL overrides the default production endpoint.
func (b *Builder) WithServerURL(url string) *Builder {
	b.opts.ServerURL = url
	return b
}

// WithKeepAlive toggles the frame transport's keep-alive ping loop. Ignored
// by the HTTP transport.
func (b *Builder) WithKeepAlive(enabled bool) *Builder {
	b.opts.KeepAlive = enabled
	return b
}

// WithKeepAliveDelay sets the frame transport's ping interval.
func (b *Builder) WithKeepAliveDelay(d time.Duration) *Builder {
	b.opts.KeepAliveDelay = d
	return b
}

// WithUseCache toggles whether the server's cache is consulted.
func (b *Builder) WithUseCache(enabled bool) *Builder {
	b.opts.UseCache = enabled
	return b
}

// WithUseHashLookup toggles whether the cloud hash database is consulted.
func (b *Builder) WithUseHashLookup(enabled bool) *Builder {
	b.opts.UseHashLookup = enabled
	return b
}

// WithFrameTransport selects the persistent bidirectional frame channel.
func (b *Builder) WithFrameTransport() *Builder {
	b.transportKind = TransportFrame
	return b
}

// WithHTTPTransport selects the stateless HTTP request/response transport
// (the default).
func (b *Builder) WithHTTPTransport() *Builder {
	b.transportKind = TransportHTTP
	return b
}

// WithHTTPClient sets the *http.Client reused for every token exchange and
// (for the HTTP transport) every verdict request. When unset, token
// exchanges use http.DefaultClient and the HTTP transport constructs its
// own client.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithMetrics registers Prometheus collectors against reg. Unset leaves the
// collectors unregistered (still safe to use, just not exported).
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithLogger sets the structured logger used for connection diagnostics.
// Unset defaults to logr.Discard().
func (b *Builder) WithLogger(log logr.Logger) *Builder {
	b.log = log
	return b
}

// WithPollBackoff throttles the HTTP transport's polling loop to at most r
// requests per second (burst allows short bursts above that rate). Unset
// (or r<=0) preserves the default eager-poll behavior of spec.md §4.5.
func (b *Builder) WithPollBackoff(r rate.Limit, burst int) *Builder {
	b.pollRate = r
	b.pollBurst = burst
	return b
}

// Build connects to the server and returns a ready-to-use Connection. For
// the frame transport this performs the dial and authentication handshake;
// for the HTTP transport this only constructs the client (no round trip).
func (b *Builder) Build(ctx context.Context) (*Connection, error) {
	m := newMetrics(b.registerer)
	tokens := NewTokenProvider(b.credential, b.httpClient, b.log)
	tokens.attachMetrics(m)

	opts := b.opts
	var tr transport
	var err error

	switch b.transportKind {
	case TransportFrame:
		if opts.ServerURL == "" {
			opts.ServerURL = defaultFrameServerURL
		}
		tr, err = connectFrameTransport(ctx, opts.ServerURL, tokens, opts, m, b.log)
	default:
		if opts.ServerURL == "" {
			opts.ServerURL = defaultHTTPServerURL
		}
		limiter := newPollLimiter(b.pollRate, b.pollBurst)
		tr = newHTTPTransport(opts.ServerURL, tokens, b.httpClient, limiter, m, b.log)
	}
	if err != nil {
		return nil, err
	}

	return &Connection{
		transport: tr,
		opts:      opts,
		metrics:   m,
		log:       b.log,
	}, nil
}
