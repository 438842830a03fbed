package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharedVar_SetThenGetThroughFollower(t *testing.T) {
	// S4: leader = 3 after election, SET on 1, GET on 2 returns the value.
	nodes := buildRing(t, []int{1, 2, 3})
	require.NoError(t, nodes[1].Election.Start(context.Background()))

	servedBy, err := nodes[1].SharedVar.Set(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 3, servedBy)

	value, servedBy, err := nodes[2].SharedVar.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, value)
	require.Equal(t, 3, servedBy)
}

func TestSharedVar_NoLeaderKnown(t *testing.T) {
	nodes := buildRing(t, []int{1, 2, 3})

	_, _, err := nodes[1].SharedVar.Get(context.Background())
	require.ErrorIs(t, err, ErrNoLeader)
}

func TestSharedVar_KilledLeaderTriggersReElection(t *testing.T) {
	// S2: leader kill triggers re-election; GET on a follower fails and
	// re-election eventually converges on the next-highest id.
	nodes := buildRing(t, []int{1, 2, 3})
	require.NoError(t, nodes[1].Election.Start(context.Background()))
	require.Equal(t, 3, *nodes[1].State.Snapshot().LeaderID)

	nodes[3].Kill()

	_, _, err := nodes[1].SharedVar.Get(context.Background())
	require.Error(t, err)

	// recoverFromLeaderFailure should have kicked off a fresh election that
	// elects the next-highest alive node, 2.
	snap1 := nodes[1].State.Snapshot()
	require.NotNil(t, snap1.LeaderID)
	require.Equal(t, 2, *snap1.LeaderID)
}

func TestSharedVar_KilledNodeRejectsDataPath(t *testing.T) {
	nodes := buildRing(t, []int{1, 2, 3})
	require.NoError(t, nodes[1].Election.Start(context.Background()))
	nodes[1].Kill()

	_, _, err := nodes[1].SharedVar.Get(context.Background())
	require.ErrorIs(t, err, ErrKilled)

	_, err = nodes[1].SharedVar.Set(context.Background(), 1)
	require.ErrorIs(t, err, ErrKilled)
}
