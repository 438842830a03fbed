package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
	"github.com/loopvia/ringd/internal/registry"
)

// listenAndServe starts a PeerServer on a loopback port, registers the
// listener's close with t.Cleanup, and returns its identity.NodeInfo,
// mirroring the teacher's own real-socket test style (node/client_test.go).
func listenAndServe(t *testing.T, n *node.Node, id int) identity.NodeInfo {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	go NewPeerServer(n, nil).Serve(lis)

	port := lis.Addr().(*net.TCPAddr).Port
	return identity.NodeInfo{ID: id, Host: "http://127.0.0.1:0", SocketPort: port}
}

func TestPeerServer_ElectionSelfMatch(t *testing.T) {
	n := node.New(identity.NodeInfo{ID: 3, Host: "http://127.0.0.1:8003", SocketPort: 0}, registry.NewStatic(nil), nil, nil, nil)
	target := listenAndServe(t, n, 3)

	client := NewPeerClient(2 * time.Second)
	reply, err := client.Election(context.Background(), identity.NodeInfo{ID: 3, Host: "http://127.0.0.1", SocketPort: target.SocketPort}, 3, 0)
	require.NoError(t, err)
	require.Equal(t, "LEADER", reply.Status)

	snap := n.State.Snapshot()
	require.NotNil(t, snap.LeaderID)
	require.Equal(t, 3, *snap.LeaderID)
}

func TestPeerServer_Ping(t *testing.T) {
	n := node.New(identity.NodeInfo{ID: 1, Host: "http://127.0.0.1:8001", SocketPort: 0}, registry.NewStatic(nil), nil, nil, nil)
	target := listenAndServe(t, n, 1)

	client := NewPeerClient(2 * time.Second)
	err := client.Ping(context.Background(), identity.NodeInfo{ID: 1, Host: "http://127.0.0.1", SocketPort: target.SocketPort}, 0)
	require.NoError(t, err)
}

func TestPeerServer_GetSetVar(t *testing.T) {
	n := node.New(identity.NodeInfo{ID: 1, Host: "http://127.0.0.1:8001", SocketPort: 0}, registry.NewStatic(nil), nil, nil, nil)
	require.NoError(t, n.Election.Start(context.Background())) // singleton; self becomes leader

	target := listenAndServe(t, n, 1)
	peerAddr := identity.NodeInfo{ID: 1, Host: "http://127.0.0.1", SocketPort: target.SocketPort}

	client := NewPeerClient(2 * time.Second)

	setReply, err := client.SetVar(context.Background(), peerAddr, 99, 0)
	require.NoError(t, err)
	require.Equal(t, "OK", setReply.Status)
	require.Equal(t, 99, setReply.Value)

	getReply, err := client.GetVar(context.Background(), peerAddr, 0)
	require.NoError(t, err)
	require.NotNil(t, getReply.Value)
	require.Equal(t, 99, *getReply.Value)
}

func TestPeerServer_GetVarNotLeader(t *testing.T) {
	n := node.New(identity.NodeInfo{ID: 1, Host: "http://127.0.0.1:8001", SocketPort: 0}, registry.NewStatic(nil), nil, nil, nil)
	target := listenAndServe(t, n, 1)
	peerAddr := identity.NodeInfo{ID: 1, Host: "http://127.0.0.1", SocketPort: target.SocketPort}

	client := NewPeerClient(2 * time.Second)
	reply, err := client.GetVar(context.Background(), peerAddr, 0)
	require.NoError(t, err)
	require.Equal(t, "NOT_LEADER", reply.Error)
}
