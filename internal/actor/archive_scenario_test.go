package actor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/counter"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/observer"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/stores/mem"
)

// TestArchivePromotionAndEventClearing covers scenario 3: with
// MaxSnapshotArchiveRecords=2, every promotion that leaves two non-cleared
// briefs clears the oldest of them once every observer has caught up to its
// EndVersion, and the previously cleared brief is pruned.
func TestArchivePromotionAndEventClearing(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	el := mem.NewEventLog(logger)
	ss := mem.NewSnapshotStore()
	as := mem.NewArchiveStore()

	obs := observer.NewUnit("read-model", nil)

	opts := actor.DefaultOptions()
	opts.Archive.On = true
	opts.Archive.MaxSnapshotArchiveRecords = 2
	opts.Archive.Policy.MinVersionSpan = 2
	opts.Archive.Policy.MinWallTime = 0

	deps := actor.Deps{
		Applier:       counter.Applier{},
		EventLog:      el,
		SnapshotStore: ss,
		ArchiveStore:  as,
		Observers:     []actor.ObserverUnit{obs},
		Logger:        logger,
	}

	a, err := actor.New(actor.NewStringID("arc1"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	// Events 1-2 promote B0 on span. With MinWallTime=0 the wall-time rule
	// holds for every later brief, so events 3-6 each promote one brief
	// (B1..B4); from B1 on, each promotion clears the older non-cleared
	// brief and prunes the cleared one before it.
	for i := 0; i < 6; i++ {
		ok, err := a.Raise(ctx, counter.Deposited{Delta: 1}, nil)
		require.NoError(t, err)
		require.True(t, ok)

		// Let the observer catch up to the version just committed so the
		// clearing check (allObserversAtLeast) can pass once a brief is old
		// enough to be considered for clearing.
		_, err = obs.SyncTo(ctx, actor.NewStringID("arc1"), a.Version())
		require.NoError(t, err)
	}

	briefs, err := as.GetBriefs(ctx, actor.NewStringID("arc1"))
	require.NoError(t, err)
	require.Len(t, briefs, 2, "older cleared briefs are pruned, leaving the cleared cursor (B3) and the newest brief (B4)")

	var clearedCount int
	for _, b := range briefs {
		if b.EventIsCleared {
			clearedCount++
		}
	}
	require.Equal(t, 1, clearedCount, "exactly one brief (the cleared cursor) should remain marked")
}

// TestRoundTripDeactivateReactivate exercises the idempotence property: the
// same event sequence applied, then deactivated and reactivated, folds to
// the same payload and version.
func TestRoundTripDeactivateReactivate(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	el := mem.NewEventLog(logger)
	ss := mem.NewSnapshotStore()
	as := mem.NewArchiveStore()

	deps := actor.Deps{
		Applier:       counter.Applier{},
		EventLog:      el,
		SnapshotStore: ss,
		ArchiveStore:  as,
		Logger:        logger,
	}

	a, err := actor.New(actor.NewStringID("rt1"), "counter", actor.DefaultOptions(), deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	deltas := []int64{3, -1, 7, 2}
	var want int64
	for _, d := range deltas {
		want += d
		ok, err := a.Raise(ctx, counter.Deposited{Delta: d}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, a.Deactivate(ctx))

	b, err := actor.New(actor.NewStringID("rt1"), "counter", actor.DefaultOptions(), deps)
	require.NoError(t, err)
	require.NoError(t, b.Activate(ctx))

	require.Equal(t, int64(len(deltas)), b.Version())
	require.Equal(t, want, b.Payload().(int64))
}

// TestResetReplaysUnderNewIdentity covers Reset(): after tearing down under
// the old id, the actor is fresh under the new one (version 0, not over), and
// a raise there folds from the empty payload rather than the old total.
func TestResetReplaysUnderNewIdentity(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	el := mem.NewEventLog(logger)
	ss := mem.NewSnapshotStore()
	as := mem.NewArchiveStore()
	obs := observer.NewUnit("read-model", nil)

	deps := actor.Deps{
		Applier:       counter.Applier{},
		EventLog:      el,
		SnapshotStore: ss,
		ArchiveStore:  as,
		Observers:     []actor.ObserverUnit{obs},
		Logger:        logger,
	}

	oldID := actor.NewStringID("reset-old")
	a, err := actor.New(oldID, "counter", actor.DefaultOptions(), deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	ok, err := a.Raise(ctx, counter.Deposited{Delta: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	newID := actor.NewStringID("reset-new")
	require.NoError(t, a.Reset(ctx, newID))
	require.Equal(t, newID, a.ID())
	require.Equal(t, int64(0), a.Version())
	require.False(t, a.IsOver())

	ok, err = a.Raise(ctx, counter.Deposited{Delta: 9}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(9), a.Payload().(int64))
}
