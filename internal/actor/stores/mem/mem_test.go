package mem_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/stores/mem"
)

func TestEventLogAppendRejectsDuplicateUniqueKey(t *testing.T) {
	ctx := context.Background()
	el := mem.NewEventLog(nil)
	id := actor.NewStringID("e1")

	fe := actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 1, Timestamp: 100}}
	ok, err := el.Append(ctx, fe, []byte(`{}`), "key-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = el.Append(ctx, fe, []byte(`{}`), "key-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventLogAppendRejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	el := mem.NewEventLog(nil)
	id := actor.NewStringID("e2")

	fe := actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 1, Timestamp: 100}}
	ok, err := el.Append(ctx, fe, []byte(`{}`), "key-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = el.Append(ctx, fe, []byte(`{}`), "key-b")
	require.NoError(t, err)
	require.False(t, ok, "same (StateId, Version) pair must be rejected even with a distinct unique_key")
}

func TestEventLogGetRangeOrdersAscendingAndFilters(t *testing.T) {
	ctx := context.Background()
	el := mem.NewEventLog(nil)
	id := actor.NewStringID("e3")

	for _, v := range []int64{3, 1, 2} {
		fe := actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: v, Timestamp: v * 10}}
		ok, err := el.Append(ctx, fe, []byte(`{}`), fmt.Sprintf("key-%d", v))
		require.NoError(t, err)
		require.True(t, ok)
	}

	out, err := el.GetRange(ctx, id, 0, 2, 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(2), out[0].BasicInfo.Version)
	require.Equal(t, int64(3), out[1].BasicInfo.Version)
}

func TestEventLogDeletePreviousPrunesAndFreesUniqueKeys(t *testing.T) {
	ctx := context.Background()
	el := mem.NewEventLog(nil)
	id := actor.NewStringID("e4")

	fe1 := actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 1, Timestamp: 100}}
	fe2 := actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 2, Timestamp: 200}}
	_, err := el.Append(ctx, fe1, []byte(`{}`), "k1")
	require.NoError(t, err)
	_, err = el.Append(ctx, fe2, []byte(`{}`), "k2")
	require.NoError(t, err)

	require.NoError(t, el.DeletePrevious(ctx, id, 1, 0))

	out, err := el.GetRange(ctx, id, 0, 1, 2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(2), out[0].BasicInfo.Version)

	// k1 was freed by the prune; re-appending a version-1 event under the
	// same unique key must succeed again.
	ok, err := el.Append(ctx, fe1, []byte(`{}`), "k1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSnapshotStoreInsertThenMutateThenGet(t *testing.T) {
	ctx := context.Background()
	ss := mem.NewSnapshotStore()
	id := actor.NewStringID("s1")

	_, found, err := ss.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, ss.Insert(ctx, actor.Snapshot{StateID: id, Version: 0}))
	require.Error(t, ss.Insert(ctx, actor.Snapshot{StateID: id, Version: 0}), "a second insert for the same id must fail")

	require.NoError(t, ss.UpdateIsLatest(ctx, id, true))
	require.NoError(t, ss.UpdateStartTimestamp(ctx, id, 42))
	require.NoError(t, ss.UpdateLatestMinEventTimestamp(ctx, id, 42))

	snap, found, err := ss.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, snap.IsLatest)
	require.Equal(t, int64(42), snap.StartTimestamp)
	require.Equal(t, int64(42), snap.LatestMinEventTimestamp)

	require.NoError(t, ss.Delete(ctx, id))
	_, found, err = ss.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSnapshotStoreMutateBeforeInsertIsBestEffort(t *testing.T) {
	ctx := context.Background()
	ss := mem.NewSnapshotStore()
	id := actor.NewStringID("s2")

	// A bookkeeping update that races ahead of the first Insert must not
	// error; it's simply a no-op until the row exists.
	require.NoError(t, ss.UpdateIsLatest(ctx, id, false))
	_, found, err := ss.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, found)
}

func TestArchiveStoreInsertGetDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	as := mem.NewArchiveStore()
	id := actor.NewStringID("a1")

	brief := actor.ArchiveBrief{ID: uuid.New(), StartVersion: 1, EndVersion: 5}
	require.NoError(t, as.Insert(ctx, id, brief, actor.Snapshot{StateID: id, Version: 5}))

	briefs, err := as.GetBriefs(ctx, id)
	require.NoError(t, err)
	require.Len(t, briefs, 1)
	require.False(t, briefs[0].EventIsCleared)

	body, err := as.GetByID(ctx, id, brief.ID)
	require.NoError(t, err)
	require.NotNil(t, body)
	require.Equal(t, int64(5), body.Version)

	require.NoError(t, as.EventIsClear(ctx, id, brief.ID))
	briefs, err = as.GetBriefs(ctx, id)
	require.NoError(t, err)
	require.True(t, briefs[0].EventIsCleared)

	require.NoError(t, as.Delete(ctx, id, brief.ID))
	briefs, err = as.GetBriefs(ctx, id)
	require.NoError(t, err)
	require.Empty(t, briefs)
}

func TestArchiveStoreDeleteAllClearsEverything(t *testing.T) {
	ctx := context.Background()
	as := mem.NewArchiveStore()
	id := actor.NewStringID("a2")

	b1 := actor.ArchiveBrief{ID: uuid.New(), StartVersion: 1, EndVersion: 2}
	b2 := actor.ArchiveBrief{ID: uuid.New(), StartVersion: 3, EndVersion: 4}
	require.NoError(t, as.Insert(ctx, id, b1, actor.Snapshot{StateID: id}))
	require.NoError(t, as.Insert(ctx, id, b2, actor.Snapshot{StateID: id}))

	require.NoError(t, as.DeleteAll(ctx, id))

	briefs, err := as.GetBriefs(ctx, id)
	require.NoError(t, err)
	require.Empty(t, briefs)

	body, err := as.GetByID(ctx, id, b1.ID)
	require.NoError(t, err)
	require.Nil(t, body)
}
