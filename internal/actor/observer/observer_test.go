package observer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/observer"
)

func TestUnitTracksCommittedVersionAndRunsHandler(t *testing.T) {
	ctx := context.Background()
	id := actor.NewStringID("o1")

	var seen int64
	u := observer.NewUnit("probe", func(ctx context.Context, event actor.FullyEvent, payload []byte) error {
		seen = event.BasicInfo.Version
		return nil
	})

	v, err := u.CommittedVersion(ctx, id)
	require.NoError(t, err)
	require.Zero(t, v)

	err = u.HandleEvent(ctx, actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 3}}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), seen)

	v, err = u.CommittedVersion(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
}

func TestUnitHandleEventWrapsHandlerError(t *testing.T) {
	ctx := context.Background()
	id := actor.NewStringID("o2")
	u := observer.NewUnit("failing", func(ctx context.Context, event actor.FullyEvent, payload []byte) error {
		return errors.New("boom")
	})

	err := u.HandleEvent(ctx, actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 1}}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failing")
}

func TestUnitResetToMovesCursorAcrossIdentities(t *testing.T) {
	ctx := context.Background()
	oldID := actor.NewStringID("o3-old")
	newID := actor.NewStringID("o3-new")
	u := observer.NewUnit("probe", nil)

	_, err := u.SyncTo(ctx, oldID, 7)
	require.NoError(t, err)

	require.NoError(t, u.ResetTo(ctx, oldID, newID))

	v, err := u.CommittedVersion(ctx, oldID)
	require.NoError(t, err)
	require.Zero(t, v)

	v, err = u.CommittedVersion(ctx, newID)
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
}

func TestGroupCommittedVersionIsMinimumAcrossMembers(t *testing.T) {
	ctx := context.Background()
	id := actor.NewStringID("g1")

	fast := observer.NewUnit("fast", nil)
	slow := observer.NewUnit("slow", nil)
	_, err := fast.SyncTo(ctx, id, 10)
	require.NoError(t, err)
	_, err = slow.SyncTo(ctx, id, 4)
	require.NoError(t, err)

	group, err := observer.NewGroup("g", 4, []actor.ObserverUnit{fast, slow}, zap.NewNop())
	require.NoError(t, err)
	defer group.Release()

	v, err := group.CommittedVersion(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(4), v, "group cursor must trail the slowest member")
}

func TestGroupHandleEventFansOutToEveryMember(t *testing.T) {
	ctx := context.Background()
	id := actor.NewStringID("g2")

	seenA := make(chan int64, 1)
	seenB := make(chan int64, 1)
	a := observer.NewUnit("a", func(ctx context.Context, event actor.FullyEvent, payload []byte) error {
		seenA <- event.BasicInfo.Version
		return nil
	})
	b := observer.NewUnit("b", func(ctx context.Context, event actor.FullyEvent, payload []byte) error {
		seenB <- event.BasicInfo.Version
		return nil
	})

	group, err := observer.NewGroup("fanout", 4, []actor.ObserverUnit{a, b}, zap.NewNop())
	require.NoError(t, err)
	defer group.Release()

	err = group.HandleEvent(ctx, actor.FullyEvent{StateID: id, BasicInfo: actor.BasicInfo{Version: 9}}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9), <-seenA)
	require.Equal(t, int64(9), <-seenB)
}

func TestGroupSyncToFailsIfAnyMemberDeclines(t *testing.T) {
	ctx := context.Background()
	id := actor.NewStringID("g3")

	ok := observer.NewUnit("ok", nil)
	declining := declineSync{}

	group, err := observer.NewGroup("mixed", 4, []actor.ObserverUnit{ok, declining}, zap.NewNop())
	require.NoError(t, err)
	defer group.Release()

	synced, err := group.SyncTo(ctx, id, 1)
	require.NoError(t, err)
	require.False(t, synced)
}

// declineSync is a minimal actor.ObserverUnit whose SyncTo always declines,
// used to exercise the group's all-must-succeed fan-out contract.
type declineSync struct{}

func (declineSync) Name() string { return "decline" }
func (declineSync) CommittedVersion(ctx context.Context, id actor.ID) (int64, error) {
	return 0, nil
}
func (declineSync) SyncTo(ctx context.Context, id actor.ID, version int64) (bool, error) {
	return false, nil
}
func (declineSync) HandleEvent(ctx context.Context, event actor.FullyEvent, payload []byte) error {
	return nil
}
func (declineSync) ResetTo(ctx context.Context, oldID, newID actor.ID) error { return nil }
