package actor

import (
	"context"

	"go.uber.org/zap"
)

// OverType selects what Over does to durable state once the aggregate
// reaches its terminal transition.
type OverType uint8

const (
	OverNone OverType = iota
	OverArchivingEvent
	OverDeleteEvent
	OverDeleteAll
)

// Activate resolves brief-list bookkeeping (when archives are enabled) and
// then recovers the in-memory snapshot. A half-promoted archive found at
// the tail of the brief list — one that wouldn't itself satisfy the
// completion policy — is treated as pending rather than permanent, and any
// events committed since the last real archive boundary are folded back
// through the archive engine so NewArchive is reconstructed instead of
// silently dropped.
func (a *Actor) Activate(ctx context.Context) error {
	if a.opts.Archive.On && a.archiveStore != nil {
		briefs, err := a.archiveStore.GetBriefs(ctx, a.id)
		if err != nil {
			return a.errStorage("activate: archive_store.get_briefs", err)
		}
		a.briefs = briefs
		a.refreshLastArchive()
		for i := range a.briefs {
			if a.briefs[i].EventIsCleared {
				cleared := a.briefs[i]
				a.clearedArchive = &cleared
			}
		}

		if n := len(a.briefs); n > 0 {
			last := a.briefs[n-1]
			var prev *ArchiveBrief
			if n > 1 {
				p := a.briefs[n-2]
				prev = &p
			}
			if !last.EventIsCleared && !isCompleted(last, prev, a.opts.Archive.Policy) {
				if err := a.archiveStore.Delete(ctx, a.id, last.ID); err != nil {
					return a.errStorage("activate: archive_store.delete (partial brief)", err)
				}
				a.briefs = a.briefs[:n-1]
				a.newArchive = &last
				a.refreshLastArchive()
			}
		}
	}

	if err := a.recover(ctx); err != nil {
		return err
	}

	if a.opts.Archive.On && a.snap.Version > 0 {
		floor := int64(0)
		if a.lastArchive != nil && a.lastArchive.EndVersion > floor {
			floor = a.lastArchive.EndVersion
		}
		if a.newArchive != nil && a.newArchive.EndVersion > floor {
			floor = a.newArchive.EndVersion
		}
		if a.snap.Version > floor {
			if err := a.reconstructPendingArchive(ctx, floor); err != nil {
				return err
			}
		}
	}

	if a.opts.SyncAllObserversOnActivate {
		for _, obs := range a.observers {
			ok, err := obs.SyncTo(ctx, a.id, a.snap.Version)
			if err != nil {
				return a.errStorage("activate: observer sync failed: "+obs.Name(), err)
			}
			if !ok {
				return a.errSyncAllObserversFailed()
			}
		}
	}

	return nil
}

// reconstructPendingArchive replays events above floor through the archive
// engine (without re-applying them to the payload, which recover already
// did) so a crash between append and archive promotion doesn't lose the
// pending brief.
func (a *Actor) reconstructPendingArchive(ctx context.Context, floor int64) error {
	from := floor + 1
	for from <= a.snap.Version {
		to := from + a.opts.NumberOfEventsPerRead - 1
		if to > a.snap.Version {
			to = a.snap.Version
		}
		page, err := a.eventLog.GetRange(ctx, a.id, 0, from, to)
		if err != nil {
			return a.errStorage("activate: event_log.get_range (archive reconstruction)", err)
		}
		for _, se := range page {
			a.eventArchive(se.BasicInfo)
		}
		if len(page) == 0 {
			break
		}
		from = to + 1
	}
	return nil
}

// Deactivate force-saves the snapshot if there is unpersisted progress,
// fires the deactivated hook, and force-promotes the pending archive if it
// has grown past MinVersionIntervalAtDeactivate.
func (a *Actor) Deactivate(ctx context.Context) error {
	didWork := false

	if a.snap.Version > a.snapshotEventVersion {
		if err := a.saveSnapshotImpl(ctx, true); err != nil {
			return err
		}
		didWork = true
	}

	if didWork {
		a.onDeactivated()
	}

	if a.opts.Archive.On && a.newArchive != nil {
		span := a.newArchive.EndVersion - a.newArchive.StartVersion + 1
		if span >= a.opts.Archive.MinVersionIntervalAtDeactivate {
			if err := a.archive(ctx, true); err != nil {
				return err
			}
		}
	}

	return nil
}

// onDeactivated fires only when deactivation actually persisted something;
// a deactivate call with nothing to flush is a no-op and shouldn't log one.
func (a *Actor) onDeactivated() {
	a.logger.Info("actor deactivated with unpersisted progress flushed", zap.Int64("version", a.snap.Version))
}

// Over transitions the aggregate to its terminal state and disposes of
// durable history according to overType.
func (a *Actor) Over(ctx context.Context, overType OverType) error {
	if a.snap.IsOver {
		return a.errStateIsOver()
	}
	if a.snap.Version != a.snap.DoingVersion {
		return a.errStateInsecurity("over: Version != DoingVersion")
	}

	if overType != OverNone {
		caughtUp, err := a.allObserversAtLeast(ctx, a.snap.Version)
		if err != nil {
			return err
		}
		if !caughtUp {
			return a.errObserverNotCompleted()
		}
	}

	a.snap.IsOver = true
	a.snap.IsLatest = true

	if a.snap.Version == a.snapshotEventVersion && a.persisted {
		if err := a.snapStore.Over(ctx, a.id, true); err != nil {
			return a.errStorage("over: snapshot_store.over", err)
		}
	} else {
		if err := a.saveSnapshotImpl(ctx, true); err != nil {
			return err
		}
	}

	switch overType {
	case OverArchivingEvent:
		if a.archiveStore != nil {
			if err := a.archiveStore.DeleteAll(ctx, a.id); err != nil {
				return a.errStorage("over: archive_store.delete_all", err)
			}
			if err := a.archiveStore.EventArchive(ctx, a.id, a.snap.Version, 0); err != nil {
				return a.errStorage("over: archive_store.event_archive", err)
			}
		}
	case OverDeleteEvent:
		if a.archiveStore != nil {
			if err := a.archiveStore.DeleteAll(ctx, a.id); err != nil {
				return a.errStorage("over: archive_store.delete_all", err)
			}
		}
		if err := a.eventLog.DeletePrevious(ctx, a.id, a.snap.Version, 0); err != nil {
			return a.errStorage("over: event_log.delete_previous", err)
		}
	case OverDeleteAll:
		if a.archiveStore != nil {
			if err := a.archiveStore.DeleteAll(ctx, a.id); err != nil {
				return a.errStorage("over: archive_store.delete_all", err)
			}
		}
		if err := a.eventLog.DeletePrevious(ctx, a.id, a.snap.Version, 0); err != nil {
			return a.errStorage("over: event_log.delete_previous", err)
		}
		if err := a.snapStore.Delete(ctx, a.id); err != nil {
			return a.errStorage("over: snapshot_store.delete", err)
		}
	case OverNone:
		if a.opts.Archive.On && a.archiveStore != nil {
			if err := a.archiveStore.Over(ctx, a.id, true); err != nil {
				return a.errStorage("over: archive_store.over", err)
			}
		}
	}

	return nil
}

// Reset tears the aggregate down completely (Over(DeleteAll)), re-recovers
// under a new identity, and instructs every observer to move its tracked
// cursor from the old identity to the new one.
func (a *Actor) Reset(ctx context.Context, newID ID) error {
	if err := a.Over(ctx, OverDeleteAll); err != nil {
		return err
	}

	oldID := a.id
	a.id = newID
	a.logger = a.logger.With(zap.String("state_id", newID.String()))
	a.briefs = nil
	a.lastArchive = nil
	a.newArchive = nil
	a.clearedArchive = nil
	a.snap = Snapshot{}
	a.persisted = false
	a.snapshotEventVersion = 0

	if err := a.recover(ctx); err != nil {
		return err
	}

	for _, obs := range a.observers {
		if err := obs.ResetTo(ctx, oldID, newID); err != nil {
			return a.errStorage("reset: observer reset failed: "+obs.Name(), err)
		}
	}

	return nil
}

// Publish fire-and-forgets a bare message to the bus; it never touches the
// snapshot.
func (a *Actor) Publish(ctx context.Context, event interface{}) error {
	payload, err := a.codec.Encode(event)
	if err != nil {
		return a.errSerialization("publish: encode", err)
	}
	if a.bus == nil {
		return nil
	}
	if err := a.bus.Publish(ctx, a.id, a.typeCode, payload); err != nil {
		a.logger.Warn("publish failed", zap.Error(err))
	}
	return nil
}
