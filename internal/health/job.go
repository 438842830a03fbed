package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/loopvia/ringd/internal/connpool"
)

type jobConfig struct {
	Pool *connpool.Pool
	Node Descriptor
	Log  log.Logger

	Metrics     *metrics
	CheckConfig Config
	Watcher     Watcher
	// OnDone is called when the job's goroutine exits.
	OnDone func()
}

type job struct {
	cfg  jobConfig
	done chan struct{}

	mut            sync.Mutex
	health         Health
	failedAttempts int
}

// newJob creates and starts a health check job. Call Stop to finish.
func newJob(c jobConfig) *job {
	j := &job{
		cfg:    c,
		health: Healthy,
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *job) run() {
	defer j.cfg.OnDone()

	t := time.NewTicker(j.cfg.CheckConfig.CheckFrequency)
	defer t.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-t.C:
			j.doCheck()
		}
	}
}

// doCheck issues a GET /health against the peer and records the outcome.
// A 2xx response counts as success; anything else, including a timeout or
// dial failure, counts as a failure.
func (j *job) doCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.CheckConfig.CheckTimeout)
	defer cancel()

	cli := j.cfg.Pool.Get(j.cfg.Node.Addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+j.cfg.Node.Addr+"/health", nil)
	if err != nil {
		level.Debug(j.cfg.Log).Log("msg", "building health check request failed", "err", err)
		j.processCheckResult(false)
		return
	}

	resp, err := cli.Do(req)
	success := err == nil && ctx.Err() == nil
	if err != nil {
		level.Debug(j.cfg.Log).Log("msg", "health check failed", "addr", j.cfg.Node.Addr, "err", err)
	} else {
		defer resp.Body.Close()
		success = resp.StatusCode >= 200 && resp.StatusCode < 300
	}

	j.processCheckResult(success)
}

func (j *job) processCheckResult(success bool) {
	j.cfg.Metrics.checksTotal.Inc()
	if !success {
		j.cfg.Metrics.failedChecksTotal.Inc()
	}

	switch {
	case success:
		j.SetHealth(Healthy)

	case !success && j.failedAttempts < j.cfg.CheckConfig.MaxFailures:
		j.failedAttempts++
		j.SetHealth(Unhealthy)

	default:
		j.SetHealth(Dead)
	}
}

// SetHealth explicitly sets the job's health.
func (j *job) SetHealth(h Health) {
	j.mut.Lock()
	defer j.mut.Unlock()

	// Dead can recover to Healthy, but not directly to Unhealthy.
	if j.health == h || (j.health == Dead && h == Unhealthy) {
		return
	}

	if h == Healthy {
		j.failedAttempts = 0
	}

	j.health = h

	go j.cfg.Watcher.HealthChanged(j.cfg.Node, h)
}

// Stop stops the job. Only call once.
func (j *job) Stop() {
	close(j.done)
}
