// Package transport implements the two external interfaces of a ring node:
// an HTTP control plane (gorilla/mux, for operators and clients) and a
// newline-or-frame-delimited JSON TCP peer channel (for election, leader
// announcement and shared-variable forwarding). Both are thin adapters over
// internal/node: they decode a request, call into the node's dispatcher
// methods, and encode the result.
package transport

import (
	"context"
	"time"
)

// httpTimeoutFactor and peerTimeoutFactor are the k multipliers from the
// delay & timeout policy (§4.4): effective timeout is
// base + max(delay*k, 1s). Peer TCP carries multi-hop operations (election
// token forwarding, leader floods) so it tolerates more cumulative delay
// than a single HTTP hop.
const (
	httpTimeoutFactor = 2
	peerTimeoutFactor = 4
)

// effectiveTimeout computes the inflated I/O timeout for one outbound send.
func effectiveTimeout(base time.Duration, delay time.Duration, k int) time.Duration {
	inflate := time.Duration(k) * delay
	if inflate < time.Second {
		inflate = time.Second
	}
	return base + inflate
}

// httpTimeout and peerTimeout are effectiveTimeout specialized to each
// transport's k factor.
func httpTimeout(base, delay time.Duration) time.Duration {
	return effectiveTimeout(base, delay, httpTimeoutFactor)
}

func peerTimeout(base, delay time.Duration) time.Duration {
	return effectiveTimeout(base, delay, peerTimeoutFactor)
}

// waitForDelay blocks for delay before an outbound send, mirroring the
// original system's unconditional time.sleep(delay) ahead of every socket
// and HTTP call in §4.4's delay policy. It returns ctx's error if the
// context is canceled before delay elapses.
func waitForDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
