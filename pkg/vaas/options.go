package vaas

import "time"

// defaultFrameServerURL/defaultHTTPServerURL are the well-known production
// endpoints for each transport realization; Build() picks the one matching
// the selected transport when ServerURL is left empty.
const (
	defaultFrameServerURL = "wss://gateway-vaas.gdatasecurity.de"
	defaultHTTPServerURL  = "https://gateway-vaas.gdatasecurity.de"
)

// Options configures a Connection. Build one through Builder; it is
// immutable once build() returns it.
type Options struct {
	KeepAlive      bool
	KeepAliveDelay time.Duration
	UseCache       bool
	UseHashLookup  bool
	ServerURL      string
}

func defaultOptions() Options {
	return Options{
		KeepAlive:      true,
		KeepAliveDelay: 10 * time.Second,
		UseCache:       true,
		UseHashLookup:  true,
	}
}

// forStream narrows Options to the fields the stream endpoint honors: only
// use_hash_lookup is taken from the caller (§9 Open Question). The HTTP
// transport's POST /files URL carries useCache=true regardless of this
// value.
func (o Options) forStream() Options {
	narrowed := o
	narrowed.UseCache = false
	return narrowed
}

// forURL narrows Options to the fields the URL endpoint honors: only
// use_hash_lookup applies.
func (o Options) forURL() Options {
	narrowed := o
	narrowed.UseCache = false
	return narrowed
}
