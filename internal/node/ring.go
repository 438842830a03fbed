package node

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"go.uber.org/atomic"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/registry"
)

// ControlClient is the outbound side of the HTTP control plane: the calls
// Ring needs to make against other nodes to propagate topology changes and
// to probe liveness. Implemented by internal/transport.
type ControlClient interface {
	UpdateNeighbors(ctx context.Context, target identity.NodeInfo, update NeighborUpdate) error
	Health(ctx context.Context, target identity.NodeInfo) (HealthSnapshot, error)
}

// Ring owns topology mutations: join insertion, graceful leave, and
// reactive repair when a successor becomes unreachable (§4.1).
type Ring struct {
	state    *State
	registry registry.Resolver
	client   ControlClient
	log      log.Logger

	// reshaping guards Join and Leave against running concurrently: both
	// mutate neighbor pointers and notify the same two peers, and an
	// overlapping pair could leave the ring in an inconsistent shape.
	reshaping *atomic.Bool
}

// NewRing constructs a Ring manager.
func NewRing(state *State, reg registry.Resolver, client ControlClient, l log.Logger) *Ring {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &Ring{state: state, registry: reg, client: client, log: log.With(l, "component", "ring"), reshaping: atomic.NewBool(false)}
}

// Join inserts joiner into the ring immediately after self, returning the
// neighbor triple joiner should adopt.
func (r *Ring) Join(ctx context.Context, joiner identity.NodeInfo) (NeighborUpdate, error) {
	if !r.reshaping.CAS(false, true) {
		return NeighborUpdate{}, fmt.Errorf("node: ring: a join or leave is already in progress")
	}
	defer r.reshaping.Store(false)

	snap := r.state.Snapshot()
	self := snap.Self

	if snap.Next == nil || snap.Next.ID == self.ID {
		r.state.ApplyNeighbors(NeighborUpdate{
			Prev:     SetNode(joiner),
			Next:     SetNode(joiner),
			NextNext: SetNode(self),
		})
		return NeighborUpdate{Prev: SetNode(self), Next: SetNode(self), NextNext: SetNode(self)}, nil
	}

	b := *snap.Next

	var bNext *identity.NodeInfo
	if h, err := r.client.Health(ctx, b); err == nil {
		bNext = h.Next
	} else {
		level.Warn(r.log).Log("msg", "could not probe old successor for its next pointer", "peer", b.ID, "err", err)
	}

	r.state.ApplyNeighbors(NeighborUpdate{Next: SetNode(joiner), NextNext: SetNode(b)})

	if err := r.client.UpdateNeighbors(ctx, b, NeighborUpdate{Prev: SetNode(joiner)}); err != nil {
		level.Warn(r.log).Log("msg", "failed to inform old successor of new predecessor", "peer", b.ID, "err", err)
	}
	if snap.Prev != nil && snap.Prev.ID != self.ID {
		if err := r.client.UpdateNeighbors(ctx, *snap.Prev, NeighborUpdate{NextNext: SetNode(joiner)}); err != nil {
			level.Warn(r.log).Log("msg", "failed to refresh predecessor's shortcut", "peer", snap.Prev.ID, "err", err)
		}
	}

	assigned := NeighborUpdate{Prev: SetNode(self), Next: SetNode(b)}
	if bNext != nil {
		assigned.NextNext = SetNode(*bNext)
	} else {
		assigned.NextNext = SetNode(b)
	}
	return assigned, nil
}

// Leave gracefully detaches self from the ring, informing prev and next,
// then clears local topology and leader state.
func (r *Ring) Leave(ctx context.Context) error {
	if !r.reshaping.CAS(false, true) {
		return fmt.Errorf("node: ring: a join or leave is already in progress")
	}
	defer r.reshaping.Store(false)

	snap := r.state.Snapshot()
	self := snap.Self

	if snap.Next == nil || snap.Next.ID == self.ID {
		r.state.ClearNeighbors()
		return nil
	}

	var firstErr error
	if snap.Prev != nil {
		if err := r.client.UpdateNeighbors(ctx, *snap.Prev, nodeUpdate(nextOf, snap.Next)); err != nil {
			firstErr = fmt.Errorf("node: leave: informing prev failed: %w", err)
		}
	}
	if snap.Next != nil {
		if err := r.client.UpdateNeighbors(ctx, *snap.Next, nodeUpdate(prevOf, snap.Prev)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("node: leave: informing next failed: %w", err)
		}
	}

	r.state.ClearNeighbors()
	return firstErr
}

type neighborSlot int

const (
	prevOf neighborSlot = iota
	nextOf
)

func nodeUpdate(slot neighborSlot, v *identity.NodeInfo) NeighborUpdate {
	switch slot {
	case prevOf:
		return NeighborUpdate{Prev: nodeOrClear(v)}
	default:
		return NeighborUpdate{Next: nodeOrClear(v)}
	}
}

// UpdateNeighbors applies an arbitrary partial neighbor update received over
// the HTTP control surface.
func (r *Ring) UpdateNeighbors(update NeighborUpdate) {
	r.state.ApplyNeighbors(update)
}

// Repair replaces a dead next with a live candidate, per §4.1: prefer the
// next_next shortcut, otherwise walk the static registry in ring order
// starting just after self, skipping self and failedID, probing each
// candidate's health until a live one is found.
func (r *Ring) Repair(ctx context.Context, failedID int) (identity.NodeInfo, error) {
	snap := r.state.Snapshot()
	self := snap.Self

	var candidate *identity.NodeInfo
	if snap.NextNext != nil && snap.NextNext.ID != self.ID && snap.NextNext.ID != failedID {
		if h, err := r.client.Health(ctx, *snap.NextNext); err == nil && h.Alive {
			cp := *snap.NextNext
			candidate = &cp
		}
	}

	if candidate == nil {
		entries, err := registry.RepairCandidates(ctx, r.registry, self.ID, failedID)
		if err != nil {
			return identity.NodeInfo{}, fmt.Errorf("node: repair: registry lookup failed: %w", err)
		}
		for _, e := range entries {
			h, err := r.client.Health(ctx, e)
			if err != nil || !h.Alive {
				continue
			}
			cp := e
			candidate = &cp
			break
		}
	}

	if candidate == nil {
		return identity.NodeInfo{}, fmt.Errorf("node: repair: no live candidate available to replace node %d", failedID)
	}

	var newNextNext *identity.NodeInfo
	if h, err := r.client.Health(ctx, *candidate); err == nil {
		newNextNext = h.Next
	}

	update := NeighborUpdate{Next: SetNode(*candidate)}
	if newNextNext != nil {
		update.NextNext = SetNode(*newNextNext)
	}
	r.state.ApplyNeighbors(update)

	if err := r.client.UpdateNeighbors(ctx, *candidate, NeighborUpdate{Prev: SetNode(self)}); err != nil {
		level.Warn(r.log).Log("msg", "failed to inform new successor of new predecessor", "peer", candidate.ID, "err", err)
	}
	if snap.Prev != nil && snap.Prev.ID != self.ID {
		if err := r.client.UpdateNeighbors(ctx, *snap.Prev, NeighborUpdate{NextNext: SetNode(*candidate)}); err != nil {
			level.Warn(r.log).Log("msg", "failed to refresh predecessor's shortcut after repair", "peer", snap.Prev.ID, "err", err)
		}
	}

	level.Info(r.log).Log("msg", "repaired ring after successor failure", "failed", failedID, "new_next", candidate.ID)
	return *candidate, nil
}
