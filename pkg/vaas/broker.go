package vaas

import (
	"sync"

	"github.com/go-logr/logr"
)

// broker correlates outstanding requests to their eventual responses by
// opaque request id. It is the multiplexing core described in spec.md §4.4:
// the transport reader learns about responses in arbitrary order, and each
// caller must await exactly its own. The map is mutex-protected; the
// critical section is strictly the map operation, never a waiter's
// suspension (resolution happens on a buffered channel after the lock is
// released).
type broker struct {
	mu      sync.Mutex
	waiters map[string]chan verdictOutcome
	log     logr.Logger
}

type verdictOutcome struct {
	resp verdictResponse
	err  error
}

func newBroker(log logr.Logger) *broker {
	return &broker{
		waiters: make(map[string]chan verdictOutcome),
		log:     log,
	}
}

// register allocates a slot for id. The caller must register before any
// frame that could produce a matching response is sent, otherwise a fast
// response could race ahead of registration.
func (b *broker) register(id string) <-chan verdictOutcome {
	ch := make(chan verdictOutcome, 1)
	b.mu.Lock()
	b.waiters[id] = ch
	b.mu.Unlock()
	return ch
}

// forget removes id's slot without resolving it, used when a caller gives up
// on a registration before the matching response ever arrives (e.g. after
// the request frame or the upload failed).
func (b *broker) forget(id string) {
	b.mu.Lock()
	delete(b.waiters, id)
	b.mu.Unlock()
}

// complete resolves id's slot with result and removes it. A complete for an
// unknown id is logged and dropped.
func (b *broker) complete(id string, result verdictOutcome) {
	b.mu.Lock()
	ch, ok := b.waiters[id]
	if ok {
		delete(b.waiters, id)
	}
	b.mu.Unlock()

	if !ok {
		b.log.Info("response for unknown correlation id dropped", "guid", id)
		return
	}
	ch <- result
}

// failAll resolves every outstanding slot with err and clears the table.
// Used on connection loss so that no waiter leaks.
func (b *broker) failAll(err error) {
	b.mu.Lock()
	waiters := b.waiters
	b.waiters = make(map[string]chan verdictOutcome)
	b.mu.Unlock()

	for id, ch := range waiters {
		ch <- verdictOutcome{err: err}
		_ = id
	}
}
