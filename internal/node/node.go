package node

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/registry"
)

// Node wires State together with the Ring, Election and SharedVar
// components that operate on it. It is the single object a transport
// adapter (internal/transport) needs to dispatch both HTTP and peer TCP
// requests.
type Node struct {
	Self identity.NodeInfo

	State     *State
	Ring      *Ring
	Election  *Election
	SharedVar *SharedVar
}

// New constructs a Node. control and peer are the outbound clients the ring
// and election/sharedvar components use to talk to other nodes; a single
// transport implementation typically satisfies both interfaces.
func New(self identity.NodeInfo, reg registry.Resolver, control ControlClient, peer PeerClient, l log.Logger) *Node {
	state := NewState(self)
	ring := NewRing(state, reg, control, l)
	election := NewElection(state, ring, peer, l)
	sharedVar := NewSharedVar(state, election, peer, l)

	return &Node{
		Self:      self,
		State:     state,
		Ring:      ring,
		Election:  election,
		SharedVar: sharedVar,
	}
}

// HealthSnapshot builds the read-only status view for GET /health and the
// repair/join probes that consult it.
func (n *Node) HealthSnapshot() HealthSnapshot {
	snap := n.State.Snapshot()

	status := "alive"
	if !snap.Alive {
		status = "killed"
	}

	return HealthSnapshot{
		Status:   status,
		NodeID:   snap.Self.ID,
		LeaderID: snap.LeaderID,
		IsLeader: snap.LeaderID != nil && *snap.LeaderID == snap.Self.ID,
		Delay:    snap.Delay.Seconds(),
		Next:     snap.Next,
		Prev:     snap.Prev,
		NextNext: snap.NextNext,
		Alive:    snap.Alive,
	}
}

// Kill sets alive to false, per §4.5.
func (n *Node) Kill() { n.State.SetAlive(false) }

// Revive sets alive to true, per §4.5.
func (n *Node) Revive() { n.State.SetAlive(true) }

// SetDelay sets the per-send artificial delay, per §4.5.
func (n *Node) SetDelay(d time.Duration) { n.State.SetDelay(d) }
