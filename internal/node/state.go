package node

import (
	"sync"
	"time"

	"github.com/loopvia/ringd/internal/identity"
)

// State is the mutex-protected mutable record for one node process. Every
// field mutation is serialized by mut; callers that need to perform network
// I/O must take a Snapshot first and never hold mut across a send.
type State struct {
	mut sync.Mutex

	self identity.NodeInfo

	next, prev, nextNext *identity.NodeInfo
	leaderID             *int
	leader               *identity.NodeInfo
	inElection           bool
	alive                bool
	delay                time.Duration
	sharedValue          *int
}

// Snapshot is an immutable point-in-time copy of State, safe to read from
// multiple goroutines and safe to pass across a network call boundary.
type Snapshot struct {
	Self        identity.NodeInfo
	Next        *identity.NodeInfo
	Prev        *identity.NodeInfo
	NextNext    *identity.NodeInfo
	LeaderID    *int
	Leader      *identity.NodeInfo
	InElection  bool
	Alive       bool
	Delay       time.Duration
	SharedValue *int
}

// NewState constructs state for self with no neighbors and no leader. The
// node starts alive with zero delay, matching the process-start lifecycle
// in the data model.
func NewState(self identity.NodeInfo) *State {
	return &State{self: self, alive: true}
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Snapshot returns a consistent copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mut.Lock()
	defer s.mut.Unlock()

	return Snapshot{
		Self:        s.self,
		Next:        identity.ClonePtr(s.next),
		Prev:        identity.ClonePtr(s.prev),
		NextNext:    identity.ClonePtr(s.nextNext),
		LeaderID:    cloneIntPtr(s.leaderID),
		Leader:      identity.ClonePtr(s.leader),
		InElection:  s.inElection,
		Alive:       s.alive,
		Delay:       s.delay,
		SharedValue: cloneIntPtr(s.sharedValue),
	}
}

// ApplyNeighbors performs a partial update of prev/next/next_next. Fields
// left untouched (OptionalNode zero value) are not modified.
func (s *State) ApplyNeighbors(u NeighborUpdate) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if u.Prev.Set {
		s.prev = identity.ClonePtr(u.Prev.Value)
	}
	if u.Next.Set {
		s.next = identity.ClonePtr(u.Next.Value)
	}
	if u.NextNext.Set {
		s.nextNext = identity.ClonePtr(u.NextNext.Value)
	}
}

// ClearNeighbors drops all neighbor pointers and leader/election fields, as
// happens on a graceful leave.
func (s *State) ClearNeighbors() {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.prev, s.next, s.nextNext = nil, nil, nil
	s.leaderID, s.leader, s.inElection = nil, nil, false
}

// IsSingleton reports whether the ring currently consists of only self: no
// next is known, or next refers to self.
func (s *State) IsSingleton() bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.next == nil || s.next.ID == s.self.ID
}

// TryStartElection atomically transitions into the in-election state,
// clearing any previously-known leader. Returns false if an election was
// already in progress, in which case the caller must not send a new token.
func (s *State) TryStartElection() bool {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.inElection {
		return false
	}
	s.inElection = true
	s.leaderID = nil
	s.leader = nil
	return true
}

// ClearElection clears the in-election flag without touching leader fields.
func (s *State) ClearElection() {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.inElection = false
}

// ClearLeader drops the currently-known leader, used when a leader-directed
// call fails and re-election must be triggered.
func (s *State) ClearLeader() {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.leaderID = nil
	s.leader = nil
}

// SetLeader records the winning leader and clears in-election.
func (s *State) SetLeader(id int, info identity.NodeInfo) {
	s.mut.Lock()
	defer s.mut.Unlock()

	cp := id
	s.leaderID = &cp
	leaderCp := info
	s.leader = &leaderCp
	s.inElection = false
}

// SetAlive toggles the administrative liveness flag. Per §4.5, both kill
// and revive clear leader/election fields, forcing the next operation to
// re-elect rather than trust stale state.
func (s *State) SetAlive(alive bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.alive = alive
	s.leaderID = nil
	s.leader = nil
	s.inElection = false
}

// SetDelay sets the per-send artificial delay.
func (s *State) SetDelay(d time.Duration) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.delay = d
}

// SetSharedValue assigns the shared integer. Meaningful only while this
// node believes itself the leader; callers are responsible for that check.
func (s *State) SetSharedValue(v int) {
	s.mut.Lock()
	defer s.mut.Unlock()
	cp := v
	s.sharedValue = &cp
}
