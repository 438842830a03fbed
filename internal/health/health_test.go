package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loopvia/ringd/internal/connpool"
	"github.com/stretchr/testify/require"
)

func TestChecker(t *testing.T) {
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

	checker := NewChecker(Config{
		CheckFrequency: 200 * time.Millisecond,
		CheckTimeout:   time.Second,
		MaxFailures:    0,
	}, connpool.New(100, time.Second), &fakeWatcher{})
	defer checker.Close()

	err := checker.CheckNodes([]Descriptor{d})
	require.NoError(t, err)

	select {
	case <-checkedCh:
	case <-time.After(5 * time.Second):
		require.Fail(t, "expected check to be run")
	}

	checker.CheckNodes([]Descriptor{})

	time.Sleep(300 * time.Millisecond)
	for len(checkedCh) > 0 {
		<-checkedCh
	}
	select {
	case <-checkedCh:
		require.Fail(t, "expected check to not run again")
	case <-time.After(1 * time.Second):
	}
}

type fakeWatcher struct {
	OnHealthChanged func(d Descriptor, h Health)
}

func (f *fakeWatcher) HealthChanged(d Descriptor, h Health) {
	if f.OnHealthChanged != nil {
		f.OnHealthChanged(d, h)
	}
}
