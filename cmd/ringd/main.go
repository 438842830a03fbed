// Command ringd runs one ring coordination node: it serves the HTTP control
// surface and the peer TCP channel over the configuration resolved by
// internal/config, and, if JOIN_ADDR names an existing member, joins that
// node's ring at startup.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loopvia/ringd/internal/config"
	"github.com/loopvia/ringd/internal/connpool"
	"github.com/loopvia/ringd/internal/health"
	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/logging"
	"github.com/loopvia/ringd/internal/node"
	"github.com/loopvia/ringd/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("ringd: failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		NodeID:         cfg.NodeID,
		AggregatorHost: cfg.LogAggregatorHost,
		AggregatorPort: cfg.LogAggregatorPort,
	})

	reg, err := cfg.Resolver(ctx)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build registry resolver", "err", err)
		os.Exit(1)
	}

	self := identity.NodeInfo{ID: cfg.NodeID, Host: cfg.Host, SocketPort: cfg.SocketPort}
	pool := connpool.New(32, 5*time.Second)

	// n is assigned once node.New returns but the control client's delay
	// lookup is wired up first; it only runs once the server is serving
	// traffic, by which point n is non-nil.
	var n *node.Node
	controlClient := transport.NewHTTPClient(pool, 5*time.Second, func() time.Duration {
		if n == nil {
			return 0
		}
		return n.State.Snapshot().Delay
	})
	peerClient := transport.NewPeerClient(2 * time.Second)

	n = node.New(self, reg, controlClient, peerClient, logger)
	n.SetDelay(time.Duration(cfg.MessageDelay * float64(time.Second)))

	peerLis, err := net.Listen("tcp", fmt.Sprintf(":%d", self.SocketPort))
	if err != nil {
		level.Error(logger).Log("msg", "failed to open peer listener", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := transport.NewPeerServer(n, logger).Serve(peerLis); err != nil {
			level.Warn(logger).Log("msg", "peer listener stopped", "err", err)
		}
	}()

	if joinAddr := os.Getenv("JOIN_ADDR"); joinAddr != "" {
		if err := joinExisting(ctx, controlClient, n, joinAddr); err != nil {
			level.Error(logger).Log("msg", "failed to join existing ring", "addr", joinAddr, "err", err)
			os.Exit(1)
		}
	}

	checker := health.NewChecker(health.Config{
		CheckFrequency: 5 * time.Second,
		CheckTimeout:   2 * time.Second,
		MaxFailures:    2,
		Log:            logger,
		Registerer:     prometheus.DefaultRegisterer,
	}, pool, newRingHealthWatcher())
	go refreshHealthTargets(ctx, n, checker)
	defer checker.Close()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: transport.NewHTTPServer(n, logger).Router(),
	}
	go func() {
		<-ctx.Done()
		_ = n.Ring.Leave(context.Background())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	level.Info(logger).Log("msg", "ringd starting", "node_id", self.ID, "http_addr", httpSrv.Addr, "socket_port", self.SocketPort)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "http server stopped unexpectedly", "err", err)
		os.Exit(1)
	}
}

// joinExisting asks the node at addr to insert self into its ring and
// applies the returned neighbor triple locally, mirroring the /join
// HTTP round-trip described in §6.1.
func joinExisting(ctx context.Context, client *transport.HTTPClient, n *node.Node, addr string) error {
	target := identity.NodeInfo{Host: addr}
	assigned, err := client.Join(ctx, target, n.Self)
	if err != nil {
		return err
	}
	n.Ring.UpdateNeighbors(assigned)
	return nil
}
