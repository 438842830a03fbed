// Package node implements the coordination core: ring topology management,
// Chang–Roberts leader election, and the leader-mediated shared integer
// value. All three share one mutex-protected State (see state.go) — exactly
// the kind of tight coupling the teacher keeps in a single package rather
// than splitting across package boundaries.
package node

import (
	"errors"
	"fmt"

	"github.com/loopvia/ringd/internal/identity"
)

// ErrKilled is returned when an operation is attempted against a node whose
// alive flag is false.
var ErrKilled = errors.New("node: administratively killed")

// ErrNoLeader is returned by the shared-variable service when no leader is
// currently known.
var ErrNoLeader = errors.New("node: no leader elected")

// ErrNoNext is a topology error: the ring has no successor to operate on.
var ErrNoNext = errors.New("node: no next node in ring")

// OptionalNode represents one field of a partial neighbor update: untouched
// (zero value), explicitly cleared (Set=true, Value=nil), or set to a value
// (Set=true, Value=non-nil).
type OptionalNode struct {
	Set   bool
	Value *identity.NodeInfo
}

// SetNode returns an OptionalNode that assigns n.
func SetNode(n identity.NodeInfo) OptionalNode {
	cp := n
	return OptionalNode{Set: true, Value: &cp}
}

// ClearNode returns an OptionalNode that clears the field.
func ClearNode() OptionalNode {
	return OptionalNode{Set: true, Value: nil}
}

// nodeOrClear returns SetNode(*n) if n is non-nil, ClearNode() otherwise.
func nodeOrClear(n *identity.NodeInfo) OptionalNode {
	if n == nil {
		return ClearNode()
	}
	return SetNode(*n)
}

// NeighborUpdate is a partial update to a node's prev/next/next_next
// pointers, mirroring the /update_neighbors wire contract (§6.1): any
// subset of fields may be present.
type NeighborUpdate struct {
	Prev     OptionalNode
	Next     OptionalNode
	NextNext OptionalNode
}

// HealthSnapshot is the read-only status view exposed at GET /health and
// relied on by repair/join to discover a peer's own successor.
type HealthSnapshot struct {
	Status   string
	NodeID   int
	LeaderID *int
	IsLeader bool
	Delay    float64
	Next     *identity.NodeInfo
	Prev     *identity.NodeInfo
	NextNext *identity.NodeInfo
	Alive    bool
}

// ElectionReply is the response to a peer ELECTION message.
type ElectionReply struct {
	Status string // "LEADER" or "FORWARDED"
	Error  string // "SOCKET_COMM_ERROR" or "NO_NEXT_NODE"
}

// LeaderReply is the response to a peer LEADER message.
type LeaderReply struct {
	Status string // "OK" or "IGNORED"
}

// GetVarReply is the response to a peer GET_VAR message.
type GetVarReply struct {
	Value    *int
	LeaderID *int
	Error    string // "NODE_KILLED" or "NOT_LEADER"
}

// SetVarReply is the response to a peer SET_VAR message.
type SetVarReply struct {
	Status   string
	Value    int
	LeaderID *int
	Error    string
}

func coalesceErr(err error, code string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("node: peer error %s", code)
}
