package actor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/counter"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/stores/mem"
)

func newDeps(t *testing.T) (actor.Deps, *mem.EventLog, *mem.SnapshotStore, *mem.ArchiveStore) {
	t.Helper()
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
	return deps, el, ss, as
}

func newClock(start int64) (actor.Clock, *int64) {
	t := start
	return func() int64 { return t }, &t
}

// Scenario 1: a fresh actor raising five events reaches Version=5, and a
// deactivate+reactivate with no new events recovers with zero log reads.
func TestRaiseFiveEventsThenReactivate(t *testing.T) {
	ctx := context.Background()
	deps, el, _, _ := newDeps(t)
	clock, clockVal := newClock(1000)
	deps.Clock = clock

	opts := actor.DefaultOptions()
	opts.SnapshotVersionInterval = 5

	a, err := actor.New(actor.NewStringID("c1"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	for i := 0; i < 5; i++ {
		*clockVal++
		ok, err := a.Raise(ctx, counter.Deposited{Delta: 1}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, int64(5), a.Version())
	require.Equal(t, int64(5), a.Payload().(int64))

	require.NoError(t, a.Deactivate(ctx))

	spy := &countingEventLog{EventLog: el}
	deps.EventLog = spy
	b, err := actor.New(actor.NewStringID("c1"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, b.Activate(ctx))
	require.Equal(t, int64(5), b.Version())
	require.Equal(t, int64(5), b.Payload().(int64))

	// The snapshot flushed at version 5 is stored with IsLatest=true, so
	// recovery replays nothing; any GetRange call that did occur must have
	// found nothing to replay.
	for _, n := range spy.rangeLens {
		require.Zero(t, n)
	}
}

// countingEventLog wraps a real EventLog so tests can inspect how many
// events GetRange actually returned on each call during recovery.
type countingEventLog struct {
	*mem.EventLog
	rangeLens []int
}

func (c *countingEventLog) GetRange(ctx context.Context, id actor.ID, fromTimestamp int64, fromVersion, toVersion int64) ([]actor.StoredEvent, error) {
	out, err := c.EventLog.GetRange(ctx, id, fromTimestamp, fromVersion, toVersion)
	c.rangeLens = append(c.rangeLens, len(out))
	return out, err
}

// Scenario 2: a retro-dated second event pulls StartTimestamp and
// LatestMinEventTimestamp down to the earlier timestamp.
func TestRetroDatedEventUpdatesTimestamps(t *testing.T) {
	ctx := context.Background()
	deps, _, ss, _ := newDeps(t)

	// Flush after every raise so the snapshot row exists in the store; the
	// timestamp updates are no-ops against a row that was never inserted.
	opts := actor.DefaultOptions()
	opts.SnapshotVersionInterval = 1

	a, err := actor.New(actor.NewStringID("c2"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	ok, err := a.Raise(ctx, counter.Deposited{Delta: 1}, &actor.EventUID{Timestamp: 100})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Raise(ctx, counter.Deposited{Delta: 1}, &actor.EventUID{Timestamp: 50})
	require.NoError(t, err)
	require.True(t, ok)

	snap, found, err := ss.Get(ctx, actor.NewStringID("c2"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(50), snap.StartTimestamp)
	require.Equal(t, int64(50), snap.LatestMinEventTimestamp)
}

// Scenario 4: raising an event whose timestamp is earlier than a cleared
// archive's StartTimestamp is rejected, leaving state unchanged.
func TestRetroEventInsideClearedArchiveIsRejected(t *testing.T) {
	ctx := context.Background()
	deps, _, _, as := newDeps(t)

	opts := actor.DefaultOptions()
	opts.Archive.On = true

	a, err := actor.New(actor.NewStringID("c4"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	ok, err := a.Raise(ctx, counter.Deposited{Delta: 1}, &actor.EventUID{Timestamp: 2000})
	require.NoError(t, err)
	require.True(t, ok)
	// Force the snapshot to persist so the next activation recovers from the
	// snapshot store directly rather than falling back to an archive body.
	require.NoError(t, a.Deactivate(ctx))

	insertClearedBrief(ctx, t, as, actor.NewStringID("c4"))

	b, err := actor.New(actor.NewStringID("c4"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, b.Activate(ctx))

	before := b.Version()
	_, err = b.Raise(ctx, counter.Deposited{Delta: 1}, &actor.EventUID{Timestamp: 500})
	require.Error(t, err)
	var actorErr *actor.Error
	require.ErrorAs(t, err, &actorErr)
	require.Equal(t, actor.CodeEventIsCleared, actorErr.Code)
	require.Equal(t, before, b.Version())
}

// insertClearedBrief inserts a cleared brief whose window runs from t=1000 to
// the already-raised event's timestamp (t=2000), so a later retro-dated raise
// at t=500 falls before StartTimestamp and trips the cleared guard.
func insertClearedBrief(ctx context.Context, t *testing.T, as *mem.ArchiveStore, id actor.ID) {
	t.Helper()
	brief := actor.ArchiveBrief{
		StartVersion:   1,
		EndVersion:     1,
		StartTimestamp: 1000,
		EndTimestamp:   2000,
		EventIsCleared: true,
	}
	require.NoError(t, as.Insert(ctx, id, brief, actor.Snapshot{StateID: id}))
}

// Scenario 5: a duplicate uid is rejected by Append; DoingVersion is
// restored and a subsequent raise with a fresh event succeeds at the same
// version.
func TestDuplicateRaiseThenFreshRaiseSucceeds(t *testing.T) {
	ctx := context.Background()
	deps, _, _, _ := newDeps(t)

	a, err := actor.New(actor.NewStringID("c5"), "counter", actor.DefaultOptions(), deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	uid := &actor.EventUID{Key: "fixed-key", Timestamp: 10}
	ok, err := a.Raise(ctx, counter.Deposited{Delta: 1}, uid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), a.Version())

	ok, err = a.Raise(ctx, counter.Deposited{Delta: 1}, uid)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(1), a.Version())

	ok, err = a.Raise(ctx, counter.Deposited{Delta: 1}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), a.Version())
}

// Scenario 6: Over(DeleteAll) wipes snapshot, events and archives, marks the
// aggregate terminal, and rejects any further raise.
func TestOverDeleteAllTearsDownEverything(t *testing.T) {
	ctx := context.Background()
	deps, _, ss, as := newDeps(t)

	opts := actor.DefaultOptions()
	opts.Archive.On = true

	a, err := actor.New(actor.NewStringID("c6"), "counter", opts, deps)
	require.NoError(t, err)
	require.NoError(t, a.Activate(ctx))

	ok, err := a.Raise(ctx, counter.Deposited{Delta: 1}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Over(ctx, actor.OverDeleteAll))
	require.True(t, a.IsOver())

	_, found, err := ss.Get(ctx, actor.NewStringID("c6"))
	require.NoError(t, err)
	require.False(t, found)

	briefs, err := as.GetBriefs(ctx, actor.NewStringID("c6"))
	require.NoError(t, err)
	require.Empty(t, briefs)

	_, err = a.Raise(ctx, counter.Deposited{Delta: 1}, nil)
	require.Error(t, err)
	var actorErr *actor.Error
	require.ErrorAs(t, err, &actorErr)
	require.Equal(t, actor.CodeStateIsOver, actorErr.Code)
}
