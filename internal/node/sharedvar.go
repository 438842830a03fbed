package node

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// SharedVar implements the leader-mediated shared integer (§4.3): the
// leader holds the value directly, every other node forwards GET/SET to
// the leader over the peer channel and triggers re-election on failure.
type SharedVar struct {
	state    *State
	election *Election
	peer     PeerClient
	log      log.Logger
}

// NewSharedVar constructs a SharedVar service.
func NewSharedVar(state *State, election *Election, peer PeerClient, l log.Logger) *SharedVar {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &SharedVar{state: state, election: election, peer: peer, log: log.With(l, "component", "sharedvar")}
}

// Get returns the current shared value and the id of the node that served
// it, routing to the leader when self is not the leader.
func (s *SharedVar) Get(ctx context.Context) (value int, servedBy int, err error) {
	snap := s.state.Snapshot()
	if !snap.Alive {
		return 0, 0, ErrKilled
	}
	if snap.LeaderID != nil && *snap.LeaderID == snap.Self.ID {
		if snap.SharedValue != nil {
			value = *snap.SharedValue
		}
		return value, snap.Self.ID, nil
	}
	if snap.Leader == nil {
		return 0, 0, ErrNoLeader
	}

	reply, rerr := s.peer.GetVar(ctx, *snap.Leader, snap.Delay)
	if rerr != nil || reply.Error != "" {
		s.recoverFromLeaderFailure(ctx)
		return 0, 0, fmt.Errorf("node: shared variable get failed: %w", coalesceErr(rerr, reply.Error))
	}
	if reply.Value != nil {
		value = *reply.Value
	}
	if reply.LeaderID != nil {
		servedBy = *reply.LeaderID
	}
	return value, servedBy, nil
}

// Set assigns the shared value, routing to the leader when self is not the
// leader.
func (s *SharedVar) Set(ctx context.Context, value int) (servedBy int, err error) {
	snap := s.state.Snapshot()
	if !snap.Alive {
		return 0, ErrKilled
	}
	if snap.LeaderID != nil && *snap.LeaderID == snap.Self.ID {
		s.state.SetSharedValue(value)
		return snap.Self.ID, nil
	}
	if snap.Leader == nil {
		return 0, ErrNoLeader
	}

	reply, rerr := s.peer.SetVar(ctx, *snap.Leader, value, snap.Delay)
	if rerr != nil || reply.Error != "" {
		s.recoverFromLeaderFailure(ctx)
		return 0, fmt.Errorf("node: shared variable set failed: %w", coalesceErr(rerr, reply.Error))
	}
	if reply.LeaderID != nil {
		servedBy = *reply.LeaderID
	}
	return servedBy, nil
}

// recoverFromLeaderFailure clears the stale leader belief and kicks off a
// fresh election, per §4.3's failure-recovery rule. The election's own
// success/failure is independent of the error already being returned to
// the caller that triggered recovery.
func (s *SharedVar) recoverFromLeaderFailure(ctx context.Context) {
	s.state.ClearLeader()
	s.state.ClearElection()
	if err := s.election.Start(ctx); err != nil {
		level.Warn(s.log).Log("msg", "re-election after leader failure did not complete", "err", err)
	}
}

// HandleGetVar serves a peer GET_VAR request. Only meaningful when self is
// the leader.
func (s *SharedVar) HandleGetVar(ctx context.Context) (GetVarReply, error) {
	snap := s.state.Snapshot()
	if !snap.Alive {
		return GetVarReply{Error: "NODE_KILLED"}, nil
	}
	if snap.LeaderID == nil || *snap.LeaderID != snap.Self.ID {
		return GetVarReply{Error: "NOT_LEADER", LeaderID: snap.LeaderID}, nil
	}
	v := 0
	if snap.SharedValue != nil {
		v = *snap.SharedValue
	}
	return GetVarReply{Value: &v, LeaderID: snap.LeaderID}, nil
}

// HandleSetVar serves a peer SET_VAR request. Only meaningful when self is
// the leader.
func (s *SharedVar) HandleSetVar(ctx context.Context, value int) (SetVarReply, error) {
	snap := s.state.Snapshot()
	if !snap.Alive {
		return SetVarReply{Error: "NODE_KILLED"}, nil
	}
	if snap.LeaderID == nil || *snap.LeaderID != snap.Self.ID {
		return SetVarReply{Error: "NOT_LEADER", LeaderID: snap.LeaderID}, nil
	}
	s.state.SetSharedValue(value)
	return SetVarReply{Status: "OK", Value: value, LeaderID: snap.LeaderID}, nil
}
