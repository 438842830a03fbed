// Package registry provides the static directory of known ring peers that
// the repair algorithm consults when a neighbor becomes unreachable. It is
// deliberately read-only at runtime: joins and leaves only ever change live
// topology pointers (see internal/node), never the registry itself.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/loopvia/ringd/internal/identity"
)

// Entry is one static registry record, keyed by node id.
type Entry struct {
	NodeID     int    `yaml:"node_id"`
	Host       string `yaml:"host"`
	SocketPort int    `yaml:"socket_port"`
}

func (e Entry) toNodeInfo() identity.NodeInfo {
	return identity.NodeInfo{ID: e.NodeID, Host: e.Host, SocketPort: e.SocketPort}
}

// Resolver returns the current set of known peers. Implementations may hit
// disk, DNS, or a fixed in-memory list; Entries is always safe to call from
// multiple goroutines.
type Resolver interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// file is the on-disk shape of the YAML registry, e.g.:
//
//	nodes:
//	  - node_id: 1
//	    host: http://127.0.0.1:8001
//	    socket_port: 9001
type file struct {
	Nodes []Entry `yaml:"nodes"`
}

// StaticResolver serves entries parsed once from a YAML file at construction
// time. This is the default and only resolver required by the coordination
// core's testable properties.
type StaticResolver struct {
	entries []Entry
}

// LoadStatic reads and parses the registry file at path.
func LoadStatic(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: failed to parse %s: %w", path, err)
	}
	return &StaticResolver{entries: f.Nodes}, nil
}

// NewStatic builds a StaticResolver directly from entries, useful for tests
// and for callers that already have a registry in memory.
func NewStatic(entries []Entry) *StaticResolver {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &StaticResolver{entries: cp}
}

func (r *StaticResolver) Entries(_ context.Context) ([]Entry, error) {
	cp := make([]Entry, len(r.entries))
	copy(cp, r.entries)
	return cp, nil
}

// Lookup returns the entry for id, if known.
func Lookup(ctx context.Context, r Resolver, id int) (Entry, bool, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.NodeID == id {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// RepairCandidates returns the known peers other than self and failed,
// ordered starting just after self's id and wrapping around — the order
// the repair algorithm (internal/node) walks while probing for a live
// replacement successor.
func RepairCandidates(ctx context.Context, r Resolver, self, failed int) ([]identity.NodeInfo, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeID < entries[j].NodeID })

	var (
		out   []identity.NodeInfo
		after []Entry
		wrap  []Entry
	)
	for _, e := range entries {
		if e.NodeID == self || e.NodeID == failed {
			continue
		}
		if e.NodeID > self {
			after = append(after, e)
		} else {
			wrap = append(wrap, e)
		}
	}
	for _, e := range after {
		out = append(out, e.toNodeInfo())
	}
	for _, e := range wrap {
		out = append(out, e.toNodeInfo())
	}
	return out, nil
}
