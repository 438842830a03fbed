package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
)

// PeerClient is the outbound dialer for the peer TCP channel, implementing
// node.PeerClient. Each call dials fresh, per §6.2's "one request, one
// reply, then closes" framing — unlike the HTTP control client, the peer
// channel is not pooled, mirroring the original system's one-shot
// socket-per-message behavior.
type PeerClient struct {
	// BaseTimeout is the floor dial/IO timeout before the delay-dependent
	// inflation from §4.4 is applied.
	BaseTimeout time.Duration
}

// NewPeerClient constructs a PeerClient with the given base timeout.
func NewPeerClient(baseTimeout time.Duration) *PeerClient {
	return &PeerClient{BaseTimeout: baseTimeout}
}

var _ node.PeerClient = (*PeerClient)(nil)

func (c *PeerClient) send(ctx context.Context, target identity.NodeInfo, delay time.Duration, req peerRequest) (peerResponse, error) {
	addr, err := target.DialAddr()
	if err != nil {
		return peerResponse{}, fmt.Errorf("transport: %w", err)
	}

	timeout := peerTimeout(c.BaseTimeout, delay)

	if err := waitForDelay(ctx, delay); err != nil {
		return peerResponse{}, fmt.Errorf("transport: %w", err)
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return peerResponse{}, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return peerResponse{}, fmt.Errorf("transport: encode peer request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return peerResponse{}, fmt.Errorf("transport: write to %s: %w", addr, err)
	}

	var resp peerResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return peerResponse{}, fmt.Errorf("transport: read reply from %s: %w", addr, err)
	}
	return resp, nil
}

// Election sends an ELECTION token to target.
func (c *PeerClient) Election(ctx context.Context, target identity.NodeInfo, candidateID int, delay time.Duration) (node.ElectionReply, error) {
	resp, err := c.send(ctx, target, delay, peerRequest{Type: msgElection, CandidateID: candidateID})
	if err != nil {
		return node.ElectionReply{}, err
	}
	return node.ElectionReply{Status: resp.Status, Error: resp.Error}, nil
}

// Leader sends a LEADER announcement to target.
func (c *PeerClient) Leader(ctx context.Context, target identity.NodeInfo, leaderID int, leaderHost string, leaderSocketPort int, delay time.Duration) (node.LeaderReply, error) {
	resp, err := c.send(ctx, target, delay, peerRequest{
		Type:             msgLeader,
		LeaderID:         leaderID,
		LeaderHost:       leaderHost,
		LeaderSocketPort: leaderSocketPort,
	})
	if err != nil {
		return node.LeaderReply{}, err
	}
	return node.LeaderReply{Status: resp.Status}, nil
}

// GetVar sends a GET_VAR request to target, which must be the current
// leader.
func (c *PeerClient) GetVar(ctx context.Context, target identity.NodeInfo, delay time.Duration) (node.GetVarReply, error) {
	resp, err := c.send(ctx, target, delay, peerRequest{Type: msgGetVar})
	if err != nil {
		return node.GetVarReply{}, err
	}
	return node.GetVarReply{Value: resp.Value, LeaderID: resp.LeaderID, Error: resp.Error}, nil
}

// SetVar sends a SET_VAR request to target, which must be the current
// leader.
func (c *PeerClient) SetVar(ctx context.Context, target identity.NodeInfo, value int, delay time.Duration) (node.SetVarReply, error) {
	resp, err := c.send(ctx, target, delay, peerRequest{Type: msgSetVar, Value: value})
	if err != nil {
		return node.SetVarReply{}, err
	}
	reply := node.SetVarReply{Status: resp.Status, LeaderID: resp.LeaderID, Error: resp.Error}
	if resp.Value != nil {
		reply.Value = *resp.Value
	}
	return reply, nil
}

// Ping sends a bare PING liveness probe to target's peer port and checks
// for an "OK" status.
func (c *PeerClient) Ping(ctx context.Context, target identity.NodeInfo, delay time.Duration) error {
	resp, err := c.send(ctx, target, delay, peerRequest{Type: msgPing})
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return fmt.Errorf("transport: ping to %s returned unexpected status %q", target, resp.Status)
	}
	return nil
}
