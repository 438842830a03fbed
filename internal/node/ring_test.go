package node

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/registry"
)

type fakeControlClient struct {
	nodes map[int]*Node // node id -> the peer's own Node, for loopback-style tests

	onUpdateNeighbors func(target identity.NodeInfo, update NeighborUpdate) error
	onHealth          func(target identity.NodeInfo) (HealthSnapshot, error)
}

func (f *fakeControlClient) UpdateNeighbors(ctx context.Context, target identity.NodeInfo, update NeighborUpdate) error {
	if f.onUpdateNeighbors != nil {
		return f.onUpdateNeighbors(target, update)
	}
	if n, ok := f.nodes[target.ID]; ok {
		n.Ring.UpdateNeighbors(update)
		return nil
	}
	return fmt.Errorf("no such node %d", target.ID)
}

func (f *fakeControlClient) Health(ctx context.Context, target identity.NodeInfo) (HealthSnapshot, error) {
	if f.onHealth != nil {
		return f.onHealth(target)
	}
	if n, ok := f.nodes[target.ID]; ok {
		return n.HealthSnapshot(), nil
	}
	return HealthSnapshot{}, fmt.Errorf("no such node %d", target.ID)
}

func nodeInfo(id int) identity.NodeInfo {
	return identity.NodeInfo{ID: id, Host: fmt.Sprintf("http://127.0.0.1:%d", 8000+id), SocketPort: 9000 + id}
}

// newTestRing builds a single Node whose Ring client is a shared
// fakeControlClient; tests register each Node into the client's nodes map
// so Ring operations route through the map rather than real sockets.
func newTestRing(t *testing.T, id int, client *fakeControlClient) *Node {
	t.Helper()
	n := New(nodeInfo(id), registry.NewStatic(nil), client, nil, nil)
	client.nodes[id] = n
	return n
}

// joinAndApply joins joiner into host's ring and applies the resulting
// neighbor triple onto joiner's own state, mirroring what the /join HTTP
// round-trip does in production.
func joinAndApply(t *testing.T, host, joiner *Node) {
	t.Helper()
	assigned, err := host.Ring.Join(context.Background(), joiner.Self)
	require.NoError(t, err)
	joiner.Ring.UpdateNeighbors(assigned)
}

func TestRing_JoinSingleton(t *testing.T) {
	client := &fakeControlClient{nodes: map[int]*Node{}}
	a := newTestRing(t, 1, client)
	j := newTestRing(t, 2, client)

	assigned, err := a.Ring.Join(context.Background(), j.Self)
	require.NoError(t, err)

	require.Equal(t, 1, assigned.Prev.Value.ID)
	require.Equal(t, 1, assigned.Next.Value.ID)
	require.Equal(t, 1, assigned.NextNext.Value.ID)

	aSnap := a.State.Snapshot()
	require.Equal(t, 2, aSnap.Next.ID)
	require.Equal(t, 2, aSnap.Prev.ID)
	require.Equal(t, 1, aSnap.NextNext.ID)
}

func TestRing_JoinExistingRing(t *testing.T) {
	client := &fakeControlClient{nodes: map[int]*Node{}}
	a := newTestRing(t, 1, client)
	b := newTestRing(t, 2, client)
	j := newTestRing(t, 3, client)

	// Form ring 1 -> 2 -> 1 first.
	_, err := a.Ring.Join(context.Background(), b.Self)
	require.NoError(t, err)

	// Now 3 joins via A.
	assigned, err := a.Ring.Join(context.Background(), j.Self)
	require.NoError(t, err)

	require.Equal(t, 1, assigned.Prev.Value.ID)
	require.Equal(t, 2, assigned.Next.Value.ID)

	aSnap := a.State.Snapshot()
	require.Equal(t, 3, aSnap.Next.ID)
	require.Equal(t, 2, aSnap.NextNext.ID)

	bSnap := b.State.Snapshot()
	require.Equal(t, 3, bSnap.Prev.ID)
}

func TestRing_Leave(t *testing.T) {
	client := &fakeControlClient{nodes: map[int]*Node{}}
	a := newTestRing(t, 1, client)
	b := newTestRing(t, 2, client)
	c := newTestRing(t, 3, client)

	joinAndApply(t, a, b)
	joinAndApply(t, a, c)

	// Ring is now 1 -> 3 -> 2 -> 1 (c joined after a, inserted right after a).
	require.NoError(t, c.Ring.Leave(context.Background()))

	aSnap := a.State.Snapshot()
	require.Equal(t, 2, aSnap.Next.ID)

	bSnap := b.State.Snapshot()
	require.Equal(t, 1, bSnap.Prev.ID)
}

func TestRing_RepairUsesNextNext(t *testing.T) {
	client := &fakeControlClient{nodes: map[int]*Node{}}
	a := newTestRing(t, 1, client)
	b := newTestRing(t, 2, client)
	c := newTestRing(t, 3, client)

	joinAndApply(t, a, b)
	joinAndApply(t, a, c)

	// Ring: 1 -> 3 -> 2 -> 1. A's next is 3, next_next should be 2.
	aSnap := a.State.Snapshot()
	require.Equal(t, 3, aSnap.Next.ID)
	require.Equal(t, 2, aSnap.NextNext.ID)

	newNext, err := a.Ring.Repair(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 2, newNext.ID)

	aSnap = a.State.Snapshot()
	require.Equal(t, 2, aSnap.Next.ID)
}

func TestRing_RepairFallsBackToRegistry(t *testing.T) {
	client := &fakeControlClient{nodes: map[int]*Node{}}

	reg := registry.NewStatic([]registry.Entry{
		{NodeID: 1, Host: "http://127.0.0.1:8001", SocketPort: 9001},
		{NodeID: 2, Host: "http://127.0.0.1:8002", SocketPort: 9002},
		{NodeID: 4, Host: "http://127.0.0.1:8004", SocketPort: 9004},
	})

	a := New(nodeInfo(1), reg, client, nil, nil)
	client.nodes[1] = a
	n4 := New(nodeInfo(4), reg, client, nil, nil)
	client.nodes[4] = n4

	// A believes its next is node 2, which does not exist in client.nodes
	// (simulating a dead node with no reachable next_next either).
	a.Ring.UpdateNeighbors(NeighborUpdate{Next: SetNode(nodeInfo(2)), Prev: SetNode(nodeInfo(2))})

	newNext, err := a.Ring.Repair(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 4, newNext.ID)
}
