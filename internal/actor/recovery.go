package actor

import (
	"context"

	"go.uber.org/zap"
)

// recover rebuilds the in-memory snapshot from storage: snapshot store,
// falling back to the last archive body, falling back to a fresh payload,
// then replays events in bounded pages until the snapshot is latest. It is
// safe to call after a crash mid-replay because replay is deterministic and
// every step is version-gated.
func (a *Actor) recover(ctx context.Context) error {
	snap, foundInStore, err := a.snapStore.Get(ctx, a.id)
	if err != nil {
		return a.errStorage("recover: snapshot_store.get", err)
	}
	found := foundInStore

	if !found && a.opts.Archive.On && a.lastArchive != nil {
		archived, err := a.archiveStore.GetByID(ctx, a.id, a.lastArchive.ID)
		if err != nil {
			return a.errStorage("recover: archive_store.get_by_id", err)
		}
		if archived != nil {
			snap = archived
			found = true
		}
	}

	if !found {
		snap = &Snapshot{
			StateID:  a.id,
			Payload:  a.applier.New(),
			Version:  0,
			IsLatest: true,
		}
	}
	snap.DoingVersion = snap.Version
	a.snap = *snap
	a.snapshotEventVersion = a.snap.Version
	a.persisted = foundInStore

	for !a.snap.IsLatest {
		toVersion := a.snap.Version + a.opts.NumberOfEventsPerRead
		page, err := a.eventLog.GetRange(ctx, a.id, a.snap.LatestMinEventTimestamp, a.snap.Version+1, toVersion)
		if err != nil {
			return a.errStorage("recover: event_log.get_range", err)
		}

		for _, se := range page {
			if err := a.replayOne(se); err != nil {
				return err
			}
		}

		if int64(len(page)) < a.opts.NumberOfEventsPerRead {
			a.snap.IsLatest = true
		}
	}

	if a.snap.Version-a.snapshotEventVersion >= a.opts.MinSnapshotVersionInterval {
		if err := a.saveSnapshotImpl(ctx, true); err != nil {
			return err
		}
	}

	a.logger.Debug("recovered actor",
		zap.Int64("version", a.snap.Version),
		zap.Int64("snapshot_event_version", a.snapshotEventVersion))

	return nil
}

// replayOne advances DoingVersion, applies a stored event and commits. It
// does not decode the payload: decoding a []byte payload back into the user event type is the
// applier's job via FullyEvent.Event holding the raw bytes; concrete
// appliers type-assert or unmarshal as appropriate for their event schema.
func (a *Actor) replayOne(se StoredEvent) error {
	if err := a.incrementDoingVersion(); err != nil {
		return err
	}

	fe := FullyEvent{StateID: se.StateID, BasicInfo: se.BasicInfo, Event: se.Payload}
	payload, err := a.applier.Apply(a.snap.Payload, fe)
	if err != nil {
		return a.errSerialization("recover: apply failed", err)
	}
	a.snap.Payload = payload

	if err := a.updateVersion(se.BasicInfo.Version); err != nil {
		return err
	}

	if se.BasicInfo.Timestamp < a.snap.LatestMinEventTimestamp || a.snap.LatestMinEventTimestamp == 0 {
		a.snap.LatestMinEventTimestamp = se.BasicInfo.Timestamp
	}
	if a.snap.StartTimestamp == 0 || se.BasicInfo.Timestamp < a.snap.StartTimestamp {
		a.snap.StartTimestamp = se.BasicInfo.Timestamp
	}

	return nil
}
