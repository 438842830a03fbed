package main

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loopvia/ringd/internal/health"
	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
)

// ringHealthWatcher feeds the background health checker's transitions into
// a Prometheus gauge. It never touches ring state (§5's "advisory only"
// rule) — the election/repair machinery reacts to send failures directly.
type ringHealthWatcher struct {
	gauge *prometheus.GaugeVec
}

func newRingHealthWatcher() *ringHealthWatcher {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ring_peer_health",
		Help: "Perceived health of a ring peer as last reported by the background checker (0=healthy, 1=unhealthy, 2=dead).",
	}, []string{"peer_id"})
	prometheus.MustRegister(gauge)
	return &ringHealthWatcher{gauge: gauge}
}

func (w *ringHealthWatcher) HealthChanged(d health.Descriptor, h health.Health) {
	w.gauge.WithLabelValues(strconv.Itoa(d.ID)).Set(float64(h))
}

// refreshHealthTargets periodically tells checker which peers to track:
// this node's current prev and next, mirroring the original system's
// habit of only probing its immediate ring neighbors.
func refreshHealthTargets(ctx context.Context, n *node.Node, checker *health.Checker) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := n.State.Snapshot()
			var targets []health.Descriptor
			if snap.Prev != nil {
				targets = append(targets, toDescriptor(*snap.Prev))
			}
			if snap.Next != nil && (snap.Prev == nil || snap.Next.ID != snap.Prev.ID) {
				targets = append(targets, toDescriptor(*snap.Next))
			}
			_ = checker.CheckNodes(targets)
		}
	}
}

func toDescriptor(n identity.NodeInfo) health.Descriptor {
	addr := n.Host
	if u, err := url.Parse(n.Host); err == nil && u.Host != "" {
		addr = u.Host
	}
	return health.Descriptor{ID: n.ID, Addr: addr}
}
