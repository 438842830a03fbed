// Package connpool implements a small HTTP client pool keyed by peer
// address. Adapted from the teacher's gRPC connection pool: the control
// plane here is plain HTTP rather than gRPC, so the pooled resource is an
// *http.Client bound to a small keep-alive transport instead of a
// *grpc.ClientConn, but the bounded-size, LRU-eviction shape is unchanged.
package connpool

import (
	"net/http"
	"sync"
	"time"
)

type poolEntry struct {
	client   *http.Client
	lastUsed time.Time
}

// Pool hands out *http.Client values for repeated HTTP calls (health
// probes, neighbor updates, repair candidate checks) to the same peer
// address, reusing keep-alive connections instead of paying a fresh dial on
// every call. The pool has a maximum size; the least-recently-used client
// is evicted when a new address is added past that size.
type Pool struct {
	mut sync.Mutex

	maxClients int
	timeout    time.Duration
	clients    map[string]*poolEntry
}

// New creates a new Pool. Clients built by the pool use timeout as their
// http.Client.Timeout; a request context can shorten that limit but not
// extend it.
func New(maxClients int, timeout time.Duration) *Pool {
	return &Pool{
		maxClients: maxClients,
		timeout:    timeout,
		clients:    make(map[string]*poolEntry, maxClients),
	}
}

// Get returns the pooled *http.Client for addr, creating one if needed.
func (p *Pool) Get(addr string) *http.Client {
	p.mut.Lock()
	defer p.mut.Unlock()

	if e, ok := p.clients[addr]; ok {
		e.lastUsed = time.Now()
		return e.client
	}

	client := &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	p.clients[addr] = &poolEntry{client: client, lastUsed: time.Now()}

	if len(p.clients) > p.maxClients {
		p.evictOldest()
	}
	return client
}

// evictOldest must be called with mut held.
func (p *Pool) evictOldest() {
	var oldestAddr string
	var oldest time.Time

	for addr, e := range p.clients {
		if oldest.IsZero() || e.lastUsed.Before(oldest) {
			oldest = e.lastUsed
			oldestAddr = addr
		}
	}
	if oldestAddr != "" {
		delete(p.clients, oldestAddr)
	}
}

// Remove drops the pooled client for addr, e.g. after learning the peer at
// addr has left the ring or is permanently dead.
func (p *Pool) Remove(addr string) {
	p.mut.Lock()
	defer p.mut.Unlock()
	delete(p.clients, addr)
}
