package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/loopvia/ringd/internal/node"
)

// maxFrameBytes is the largest single-recv frame the peer channel accepts
// when a message arrives without a newline terminator, per §6.2.
const maxFrameBytes = 4096

// PeerServer listens for peer TCP connections and dispatches each decoded
// message to the owning Node's Election/SharedVar handlers. One connection
// carries exactly one request and one reply, then closes — mirroring the
// teacher's per-connection-goroutine accept loop (cmd/logaggregator,
// node/client.go).
type PeerServer struct {
	node *node.Node
	log  log.Logger
}

// NewPeerServer constructs a PeerServer bound to n.
func NewPeerServer(n *node.Node, l log.Logger) *PeerServer {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &PeerServer{node: n, log: log.With(l, "component", "peer_server")}
}

// Serve accepts connections on lis until it returns an error (typically
// because lis was closed).
func (s *PeerServer) Serve(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *PeerServer) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	req, err := readPeerRequest(conn)
	if err != nil {
		level.Warn(s.log).Log("msg", "failed to read peer request", "err", err)
		return
	}

	resp := s.dispatch(context.Background(), req)

	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		level.Warn(s.log).Log("msg", "failed to write peer response", "err", err)
	}
}

// readPeerRequest accepts either a newline-terminated JSON object or, for a
// peer that sends without a trailing newline, a single read up to
// maxFrameBytes, per §6.2.
func readPeerRequest(conn net.Conn) (peerRequest, error) {
	buf := make([]byte, 0, maxFrameBytes)
	for {
		n, err := conn.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[:i+1]
			break
		}
		// A complete JSON object without a newline is a whole frame.
		if json.Valid(buf) || len(buf) == cap(buf) {
			break
		}
		if err != nil {
			if len(buf) == 0 {
				return peerRequest{}, err
			}
			break
		}
	}
	var req peerRequest
	if jsonErr := json.Unmarshal(trimNewline(buf), &req); jsonErr != nil {
		return peerRequest{}, jsonErr
	}
	return req, nil
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}

func (s *PeerServer) dispatch(ctx context.Context, req peerRequest) peerResponse {
	switch req.Type {
	case msgElection:
		reply, err := s.node.Election.HandleElection(ctx, req.CandidateID)
		if err != nil {
			return errSocketCommError(err.Error())
		}
		return peerResponse{Status: reply.Status, Error: reply.Error}

	case msgLeader:
		reply, err := s.node.Election.HandleLeader(ctx, req.LeaderID, req.LeaderHost, req.LeaderSocketPort)
		if err != nil {
			return errSocketCommError(err.Error())
		}
		return peerResponse{Status: reply.Status}

	case msgGetVar:
		reply, err := s.node.SharedVar.HandleGetVar(ctx)
		if err != nil {
			return errSocketCommError(err.Error())
		}
		return peerResponse{Value: reply.Value, LeaderID: reply.LeaderID, Error: reply.Error}

	case msgSetVar:
		reply, err := s.node.SharedVar.HandleSetVar(ctx, req.Value)
		if err != nil {
			return errSocketCommError(err.Error())
		}
		resp := peerResponse{Status: reply.Status, LeaderID: reply.LeaderID, Error: reply.Error}
		if reply.Error == "" {
			v := reply.Value
			resp.Value = &v
		}
		return resp

	case msgPing:
		return peerResponse{Status: "OK"}

	default:
		return peerResponse{Error: "UNKNOWN_MESSAGE_TYPE"}
	}
}
