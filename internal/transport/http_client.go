package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loopvia/ringd/internal/connpool"
	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
)

// HTTPClient is the outbound dialer for the HTTP control plane (§6.1),
// implementing node.ControlClient. It reuses *http.Client connections via
// internal/connpool, exactly as the background health checker does.
type HTTPClient struct {
	Pool        *connpool.Pool
	BaseTimeout time.Duration

	// Delay returns this node's own currently-configured send delay (§4.4);
	// it is a function rather than a fixed value because delay can change
	// at runtime via /setDelay and the client must always use the latest.
	Delay func() time.Duration
}

// NewHTTPClient constructs an HTTPClient.
func NewHTTPClient(pool *connpool.Pool, baseTimeout time.Duration, delay func() time.Duration) *HTTPClient {
	if delay == nil {
		delay = func() time.Duration { return 0 }
	}
	return &HTTPClient{Pool: pool, BaseTimeout: baseTimeout, Delay: delay}
}

var _ node.ControlClient = (*HTTPClient)(nil)

func (c *HTTPClient) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	delay := c.Delay()
	timeout := httpTimeout(c.BaseTimeout, delay)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := waitForDelay(ctx, delay); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Key the pool by host:port so every call to one peer, and the health
	// checker's probes of it, share a client. The copy carries the
	// delay-inflated timeout, which the pooled client's own Timeout would
	// otherwise cap.
	cli := *c.Pool.Get(req.URL.Host)
	cli.Timeout = timeout
	resp, err := cli.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("transport: %s %s: status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transport: decode response from %s: %w", url, err)
	}
	return nil
}

// UpdateNeighbors sends a POST /update_neighbors to target.
func (c *HTTPClient) UpdateNeighbors(ctx context.Context, target identity.NodeInfo, update node.NeighborUpdate) error {
	return c.do(ctx, http.MethodPost, target.Host+"/update_neighbors", encodeNeighborUpdate(update), nil)
}

// Health sends a GET /health to target.
func (c *HTTPClient) Health(ctx context.Context, target identity.NodeInfo) (node.HealthSnapshot, error) {
	var snap node.HealthSnapshot
	if err := c.do(ctx, http.MethodGet, target.Host+"/health", nil, &snap); err != nil {
		return node.HealthSnapshot{}, err
	}
	return snap, nil
}

// Join sends a POST /join to target, used by a newly-starting node to
// insert itself into an existing ring via any known member.
func (c *HTTPClient) Join(ctx context.Context, target identity.NodeInfo, self identity.NodeInfo) (node.NeighborUpdate, error) {
	body := joinBody{NodeID: self.ID, Host: self.Host, SocketPort: self.SocketPort}
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodPost, target.Host+"/join", body, &raw); err != nil {
		return node.NeighborUpdate{}, err
	}
	return neighborUpdateFromRaw(raw), nil
}

// Leave sends a POST /leave to self.Host, asking the node there to detach
// itself from the ring.
func (c *HTTPClient) Leave(ctx context.Context, self identity.NodeInfo) error {
	return c.do(ctx, http.MethodPost, self.Host+"/leave", nil, nil)
}
