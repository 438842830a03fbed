package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/loopvia/ringd/internal/connpool"
	"github.com/stretchr/testify/require"
)

func TestJob_Pass(t *testing.T) {
	checkedCh := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case checkedCh <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := Descriptor{ID: 0, Addr: srv.Listener.Addr().String()}

	doneCh := make(chan struct{})

	j := newJob(jobConfig{
		Pool:    connpool.New(5, time.Second),
		Node:    d,
		Log:     log.NewNopLogger(),
		Metrics: newMetrics(nil),
		CheckConfig: Config{
			CheckFrequency: 200 * time.Millisecond,
			CheckTimeout:   time.Second,
			MaxFailures:    0,
		},
		Watcher: &fakeWatcher{
			OnHealthChanged: func(d Descriptor, h Health) {},
		},
		OnDone: func() { close(doneCh) },
	})
	defer j.Stop()

	select {
	case <-checkedCh:
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected check to be called within 5 seconds")
	}
}

func TestJob_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	healthCh := make(chan Health)
	w := &fakeWatcher{
		OnHealthChanged: func(d Descriptor, h Health) {
			healthCh <- h
		},
	}

	d := Descriptor{ID: 0, Addr: srv.Listener.Addr().String()}
	j := newJob(jobConfig{
		Pool:    connpool.New(5, time.Second),
		Node:    d,
		Log:     log.NewNopLogger(),
		Metrics: newMetrics(nil),
		CheckConfig: Config{
			CheckFrequency: 200 * time.Millisecond,
			CheckTimeout:   500 * time.Millisecond,
			MaxFailures:    1,
		},
		Watcher: w,
		OnDone:  func() {},
	})
	defer j.Stop()

	select {
	case h := <-healthCh:
		require.Equal(t, Unhealthy, h)
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected health to have changed within 5 seconds")
	}
}

func TestJob_Fail(t *testing.T) {
	d := Descriptor{ID: 0, Addr: "127.0.0.1:1"}

	healthCh := make(chan Health)

	j := newJob(jobConfig{
		Pool:    connpool.New(5, time.Second),
		Node:    d,
		Log:     log.NewNopLogger(),
		Metrics: newMetrics(nil),
		CheckConfig: Config{
			CheckFrequency: 200 * time.Millisecond,
			CheckTimeout:   time.Second,
			MaxFailures:    1,
		},
		Watcher: &fakeWatcher{
			OnHealthChanged: func(d Descriptor, h Health) {
				healthCh <- h
			},
		},
		OnDone: func() {},
	})
	defer j.Stop()

	select {
	case h := <-healthCh:
		require.Equal(t, Unhealthy, h)
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected health to have changed within 5 seconds")
	}
}

func TestJob_Transitions(t *testing.T) {
	health := Healthy
	watcher := &fakeWatcher{
		OnHealthChanged: func(d Descriptor, h Health) {
			health = h
		},
	}

	j := &job{
		cfg: jobConfig{
			Pool:    connpool.New(5, time.Second),
			Node:    Descriptor{Addr: "127.0.0.1:1"},
			Log:     log.NewNopLogger(),
			Metrics: newMetrics(nil),
			CheckConfig: Config{
				CheckFrequency: time.Second,
				CheckTimeout:   time.Second,
				MaxFailures:    4,
			},
			Watcher: watcher,
			OnDone:  func() {},
		},
	}

	tt := []struct {
		success bool
		health  Health
	}{
		{true, Healthy},
		{false, Unhealthy}, // 1
		{false, Unhealthy}, // 2
		{false, Unhealthy}, // 3
		{false, Unhealthy}, // 4
		{false, Dead},
		{false, Dead},
		{true, Healthy},
		// Ensure failure count resets
		{false, Unhealthy},
	}

	for _, tc := range tt {
		j.processCheckResult(tc.success)
		time.Sleep(100 * time.Millisecond)
		require.Equal(t, tc.health, health)
	}
}
