// Package health implements a background, advisory health checker for ring
// peers. It polls each known peer's HTTP health endpoint on an interval and
// reports transitions between Healthy, Unhealthy and Dead to a Watcher.
//
// Checker never mutates ring state itself — the ring's own election and
// repair machinery reacts synchronously to failed sends, per the protocol.
// Checker exists to feed operators and metrics a live picture of which
// peers are currently responding, nothing more.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/loopvia/ringd/internal/connpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Health describes the perceived liveness of a peer.
type Health int

const (
	Healthy Health = iota
	Unhealthy
	Dead
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Descriptor identifies a peer to probe: its ring node id and the base HTTP
// address (host:port, no scheme) its control plane listens on.
type Descriptor struct {
	ID   int
	Addr string
}

func (d Descriptor) key() string {
	return fmt.Sprintf("%d/%s", d.ID, d.Addr)
}

type metrics struct {
	jobs              prometheus.Gauge
	checksTotal       prometheus.Counter
	failedChecksTotal prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	var m metrics
	m.jobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ringd_health_jobs",
		Help: "Current number of running health check jobs",
	})
	m.checksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringd_health_checks_total",
		Help: "Total number of health checks performed (succeeded and failed)",
	})
	m.failedChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ringd_health_checks_failed_total",
		Help: "Total number of failed health checks",
	})

	if r != nil {
		r.MustRegister(m.jobs, m.checksTotal, m.failedChecksTotal)
	}

	return &m
}

func (m *metrics) Unregister(r prometheus.Registerer) {
	if r == nil {
		return
	}
	r.Unregister(m.jobs)
	r.Unregister(m.checksTotal)
	r.Unregister(m.failedChecksTotal)
}

// Watcher receives health transition events for tracked peers.
type Watcher interface {
	// HealthChanged is invoked whenever a peer's perceived health changes.
	// May be called concurrently.
	HealthChanged(d Descriptor, health Health)
}

// Config configures how the checker performs.
type Config struct {
	// CheckFrequency is how often each tracked peer is probed.
	CheckFrequency time.Duration
	// CheckTimeout bounds each individual probe.
	CheckTimeout time.Duration
	// MaxFailures is the number of consecutive failures tolerated before a
	// peer moves from Unhealthy to Dead. 0 = Dead on the first failure.
	MaxFailures int

	Log        log.Logger
	Registerer prometheus.Registerer
}

// Checker actively polls a set of peers for health and reports transitions
// to a Watcher. The set of tracked peers is updated via CheckNodes.
type Checker struct {
	cfg     Config
	pool    *connpool.Pool
	metrics *metrics
	watcher Watcher

	updates chan map[string]Descriptor

	mut  sync.RWMutex
	jobs map[string]*job
	stop chan struct{}
	done chan struct{}
}

// NewChecker creates a new health checker, immediately starting its
// background loop. Call Close to stop it.
func NewChecker(cfg Config, p *connpool.Pool, w Watcher) *Checker {
	if cfg.Log == nil {
		cfg.Log = log.NewNopLogger()
	}
	cfg.Log = log.With(cfg.Log, "component", "health_checker")

	c := &Checker{
		cfg:     cfg,
		pool:    p,
		watcher: w,
		metrics: newMetrics(cfg.Registerer),

		updates: make(chan map[string]Descriptor, 1),

		jobs: make(map[string]*job),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go c.run()
	return c
}

// run owns c.jobs for its entire lifetime: it is the only goroutine that
// ever writes to the map, so every mutation funnels through reconcile or
// stopAll rather than being scattered across callers.
func (c *Checker) run() {
	defer close(c.done)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-c.stop:
			c.mut.Lock()
			c.stopAll()
			c.mut.Unlock()
			return

		case wanted := <-c.updates:
			c.mut.Lock()
			c.reconcile(wanted, &wg)
			c.mut.Unlock()
		}
	}
}

// reconcile brings c.jobs in line with wanted: starting a job for every
// descriptor not yet tracked, and stopping any job whose descriptor no
// longer appears. Called with c.mut held.
func (c *Checker) reconcile(wanted map[string]Descriptor, wg *sync.WaitGroup) {
	for key, d := range wanted {
		if _, tracked := c.jobs[key]; tracked {
			continue
		}

		level.Debug(c.cfg.Log).Log("msg", "health-tracking peer", "addr", d.Addr)
		c.metrics.jobs.Inc()

		wg.Add(1)
		c.jobs[key] = newJob(jobConfig{
			Pool:        c.pool,
			Node:        d,
			CheckConfig: c.cfg,
			Watcher:     c.watcher,
			Log:         c.cfg.Log,
			Metrics:     c.metrics,
			OnDone: func() {
				c.metrics.jobs.Dec()
				wg.Done()
			},
		})
	}

	for key := range c.jobs {
		if _, stillWanted := wanted[key]; stillWanted {
			continue
		}
		c.stopTracking(key)
	}
}

// stopAll stops every tracked job. Called with c.mut held.
func (c *Checker) stopAll() {
	for key := range c.jobs {
		c.stopTracking(key)
	}
}

// stopTracking stops the job for key and removes it from c.jobs. Called
// with c.mut held.
func (c *Checker) stopTracking(key string) {
	j := c.jobs[key]
	level.Debug(c.cfg.Log).Log("msg", "stopping health tracking", "addr", j.cfg.Node.Addr)
	j.Stop()
	delete(c.jobs, key)
}

// CheckNodes updates the set of peers being tracked. Peers absent from a
// subsequent call stop being checked.
func (c *Checker) CheckNodes(ds []Descriptor) error {
	c.mut.RLock()
	defer c.mut.RUnlock()

	select {
	case <-c.done:
		return fmt.Errorf("checker closed")
	default:
	}

	wanted := map[string]Descriptor{}
	for _, d := range ds {
		wanted[d.key()] = d
	}
	c.updates <- wanted

	return nil
}

// SetHealth explicitly sets a tracked peer's health, e.g. immediately after
// a failed send to it on the election or shared-variable path, without
// waiting for the next scheduled probe.
func (c *Checker) SetHealth(d Descriptor, h Health) error {
	c.mut.RLock()
	defer c.mut.RUnlock()

	if j, ok := c.jobs[d.key()]; ok {
		j.SetHealth(h)
		return nil
	}

	return fmt.Errorf("peer not being checked")
}

// Close stops the checker. Fails if already closed.
func (c *Checker) Close() error {
	c.mut.Lock()
	select {
	case <-c.stop:
		c.mut.Unlock()
		return fmt.Errorf("checker closed")
	default:
	}
	close(c.stop)
	// run takes c.mut to stop its jobs, so it must not be held while
	// waiting for run to exit.
	c.mut.Unlock()
	<-c.done

	c.metrics.Unregister(c.cfg.Registerer)
	return nil
}
