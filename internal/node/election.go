package node

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/loopvia/ringd/internal/identity"
)

// PeerClient is the outbound side of the peer TCP channel (§6.2): the calls
// Election and SharedVar need to make against other nodes. Implemented by
// internal/transport.
type PeerClient interface {
	Election(ctx context.Context, target identity.NodeInfo, candidateID int, delay time.Duration) (ElectionReply, error)
	Leader(ctx context.Context, target identity.NodeInfo, leaderID int, leaderHost string, leaderSocketPort int, delay time.Duration) (LeaderReply, error)
	GetVar(ctx context.Context, target identity.NodeInfo, delay time.Duration) (GetVarReply, error)
	SetVar(ctx context.Context, target identity.NodeInfo, value int, delay time.Duration) (SetVarReply, error)
}

// Election implements Chang–Roberts token forwarding and leader-announcement
// flooding over the peer channel (§4.2).
type Election struct {
	state *State
	ring  *Ring
	peer  PeerClient
	log   log.Logger
}

// NewElection constructs an Election engine.
func NewElection(state *State, ring *Ring, peer PeerClient, l log.Logger) *Election {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &Election{state: state, ring: ring, peer: peer, log: log.With(l, "component", "election")}
}

// Start begins a Chang–Roberts election with self as the initial candidate.
// A no-op if one is already in progress. On a single-node ring (no next
// known, or next is self) self wins immediately.
func (e *Election) Start(ctx context.Context) error {
	snap := e.state.Snapshot()
	if !snap.Alive {
		return ErrKilled
	}
	if snap.Next == nil || snap.Next.ID == snap.Self.ID {
		e.state.SetLeader(snap.Self.ID, snap.Self)
		return nil
	}
	if !e.state.TryStartElection() {
		// Already running; Chang–Roberts tolerates concurrent tokens, so a
		// second start is absorbed rather than sending a duplicate.
		return nil
	}

	reply, err := e.relay(ctx, snap.Self.ID)
	if err != nil {
		e.state.ClearElection()
		return err
	}
	if reply.Error != "" {
		e.state.ClearElection()
		return fmt.Errorf("node: election: %s", reply.Error)
	}
	return nil
}

// HandleElection processes an incoming ELECTION token. A killed node acts
// as a passive wire: it forwards the token unchanged without substituting
// its own id.
func (e *Election) HandleElection(ctx context.Context, candidateID int) (ElectionReply, error) {
	snap := e.state.Snapshot()

	if !snap.Alive {
		reply, err := e.relay(ctx, candidateID)
		return reply, err
	}

	if candidateID == snap.Self.ID {
		e.state.SetLeader(snap.Self.ID, snap.Self)
		level.Info(e.log).Log("msg", "elected self as leader", "node", snap.Self.ID)
		if err := e.announceLeader(ctx, snap.Self.ID, snap.Self); err != nil {
			level.Warn(e.log).Log("msg", "leader announcement failed", "err", err)
		}
		return ElectionReply{Status: "LEADER"}, nil
	}

	forward := candidateID
	if candidateID < snap.Self.ID {
		forward = snap.Self.ID
	}

	// Mark ourselves as participating; if a start is already underway this
	// is a no-op and we still forward per Chang–Roberts semantics.
	e.state.TryStartElection()

	return e.relay(ctx, forward)
}

// relay forwards a token to next, attempting one repair+retry if the send
// fails, per §4.2's "failure during election" rule.
func (e *Election) relay(ctx context.Context, candidateID int) (ElectionReply, error) {
	snap := e.state.Snapshot()
	if snap.Next == nil {
		return ElectionReply{Error: "NO_NEXT_NODE"}, nil
	}

	reply, err := e.peer.Election(ctx, *snap.Next, candidateID, snap.Delay)
	if err != nil {
		if _, rerr := e.ring.Repair(ctx, snap.Next.ID); rerr != nil {
			return ElectionReply{Error: "SOCKET_COMM_ERROR"}, nil
		}
		snap2 := e.state.Snapshot()
		if snap2.Next == nil {
			return ElectionReply{Error: "NO_NEXT_NODE"}, nil
		}
		reply, err = e.peer.Election(ctx, *snap2.Next, candidateID, snap2.Delay)
		if err != nil {
			return ElectionReply{Error: "SOCKET_COMM_ERROR"}, nil
		}
	}
	if reply.Error != "" {
		return reply, nil
	}
	return ElectionReply{Status: "FORWARDED"}, nil
}

// announceLeader floods the LEADER message once around the ring, starting
// at next; the ring is a self-loop when there are no other nodes to tell.
func (e *Election) announceLeader(ctx context.Context, leaderID int, leader identity.NodeInfo) error {
	snap := e.state.Snapshot()
	if snap.Next == nil || snap.Next.ID == snap.Self.ID {
		return nil
	}
	return e.sendLeader(ctx, *snap.Next, leaderID, leader)
}

func (e *Election) sendLeader(ctx context.Context, target identity.NodeInfo, leaderID int, leader identity.NodeInfo) error {
	snap := e.state.Snapshot()
	_, err := e.peer.Leader(ctx, target, leaderID, leader.Host, leader.SocketPort, snap.Delay)
	if err != nil {
		if _, rerr := e.ring.Repair(ctx, target.ID); rerr != nil {
			return fmt.Errorf("node: leader announcement: %w", err)
		}
		snap2 := e.state.Snapshot()
		if snap2.Next == nil {
			return fmt.Errorf("node: leader announcement: no next after repair")
		}
		return e.sendLeader(ctx, *snap2.Next, leaderID, leader)
	}
	return nil
}

// HandleLeader processes an incoming LEADER announcement. Per the "forward
// exactly once" resolution of the killed-node-forwarding open question
// (§9), a LEADER message whose leader_id already matches the locally-known
// leader is a no-op: it is not re-forwarded.
func (e *Election) HandleLeader(ctx context.Context, leaderID int, leaderHost string, leaderSocketPort int) (LeaderReply, error) {
	snap := e.state.Snapshot()

	if snap.LeaderID != nil && *snap.LeaderID == leaderID {
		return LeaderReply{Status: "IGNORED"}, nil
	}

	leaderInfo := identity.NodeInfo{ID: leaderID, Host: leaderHost, SocketPort: leaderSocketPort}
	e.state.SetLeader(leaderID, leaderInfo)

	if snap.Self.ID == leaderID {
		// Announcement has traveled the full ring back to its originator.
		return LeaderReply{Status: "OK"}, nil
	}

	if err := e.announceLeader(ctx, leaderID, leaderInfo); err != nil {
		return LeaderReply{}, err
	}
	return LeaderReply{Status: "OK"}, nil
}
