// Package identity holds the immutable coordinates of a ring node.
package identity

import (
	"fmt"
	"net/url"
	"strings"
)

// NodeInfo is the immutable address triple of a ring participant: its
// totally-ordered id, its HTTP control-plane URL, and the TCP port its
// peer channel listens on. NodeInfo is always passed and stored by value;
// a pointer to NodeInfo only ever means "optional", never "shared mutable
// object".
type NodeInfo struct {
	ID         int    `json:"node_id"`
	Host       string `json:"host"`
	SocketPort int    `json:"socket_port"`
}

// SocketAddr derives the peer TCP address for n by stripping the scheme and
// port from Host and pairing the resulting hostname with SocketPort.
func (n NodeInfo) SocketAddr() (string, int, error) {
	var host string
	if u, err := url.Parse(n.Host); err == nil {
		host = u.Hostname()
	}
	if host == "" {
		// Host without a scheme, e.g. "127.0.0.1:8000".
		host = strings.SplitN(n.Host, ":", 2)[0]
	}
	if host == "" {
		return "", 0, fmt.Errorf("identity: could not derive hostname from %q", n.Host)
	}
	return host, n.SocketPort, nil
}

// DialAddr returns the "host:port" form of SocketAddr, ready for net.Dial.
func (n NodeInfo) DialAddr() (string, error) {
	host, port, err := n.SocketAddr()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

// String implements fmt.Stringer for logging.
func (n NodeInfo) String() string {
	return fmt.Sprintf("node(%d)@%s", n.ID, n.Host)
}

// Ptr returns a pointer to a copy of n, used to populate optional NodeInfo
// fields in State without aliasing the caller's value.
func (n NodeInfo) Ptr() *NodeInfo {
	cp := n
	return &cp
}

// ClonePtr returns a value copy of *n, or nil if n is nil.
func ClonePtr(n *NodeInfo) *NodeInfo {
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}

// Equal reports whether two optional NodeInfo pointers refer to the same
// node id and host triple.
func Equal(a, b *NodeInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
