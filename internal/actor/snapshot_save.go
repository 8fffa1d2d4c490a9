package actor

import (
	"context"

	"go.uber.org/zap"
)

// saveSnapshotImpl flushes the in-memory snapshot to the snapshot store iff
// force is set or enough versions have accumulated since the last flush. It
// is the single call site that tracks whether the row already exists
// (Insert vs Update, per the snapshot store gateway contract).
//
// A flush always brings the stored row fully current with Version, so it
// always persists IsLatest=true; onRaiseStart is the only place that ever
// flips it back to false, right before the next event is applied.
func (a *Actor) saveSnapshotImpl(ctx context.Context, force bool) error {
	if !force && a.snap.Version-a.snapshotEventVersion < a.opts.SnapshotVersionInterval {
		return nil
	}

	a.snap.IsLatest = true
	toSave := a.snap

	var err error
	if a.persisted {
		err = a.snapStore.Update(ctx, toSave)
	} else {
		err = a.snapStore.Insert(ctx, toSave)
	}
	if err != nil {
		return a.errStorage("save_snapshot", err)
	}

	a.persisted = true
	a.snapshotEventVersion = a.snap.Version

	a.logger.Debug("snapshot flushed",
		zap.Int64("version", a.snap.Version),
		zap.Bool("forced", force))

	return nil
}
