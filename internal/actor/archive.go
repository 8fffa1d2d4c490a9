package actor

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// onRaised implements spec §4.7 step 7: extend the pending archive with the
// just-committed event, then see if it has earned promotion.
func (a *Actor) onRaised(ctx context.Context, fe FullyEvent) error {
	if !a.opts.Archive.On {
		return nil
	}
	a.eventArchive(fe.BasicInfo)
	return a.archive(ctx, false)
}

// onRaiseFailed runs when event_log.append rejected a duplicate. The
// pending archive may still be eligible for promotion even though this
// particular raise produced no new event.
func (a *Actor) onRaiseFailed(ctx context.Context) {
	if !a.opts.Archive.On || a.newArchive == nil {
		return
	}
	if err := a.archive(ctx, false); err != nil {
		a.logger.Warn("archive promotion after failed raise errored", zap.Error(err))
	}
}

// eventArchive widens NewArchive to cover the given event, creating it if
// this is the first event since the last promotion.
func (a *Actor) eventArchive(info BasicInfo) {
	if a.newArchive == nil {
		idx := 0
		if a.lastArchive != nil {
			idx = a.lastArchive.Index + 1
		}
		a.newArchive = &ArchiveBrief{
			Index:          idx,
			StartVersion:   info.Version,
			EndVersion:     info.Version,
			StartTimestamp: info.Timestamp,
			EndTimestamp:   info.Timestamp,
		}
		return
	}
	if info.Timestamp < a.newArchive.StartTimestamp {
		a.newArchive.StartTimestamp = info.Timestamp
	}
	if info.Timestamp > a.newArchive.EndTimestamp {
		a.newArchive.EndTimestamp = info.Timestamp
	}
	a.newArchive.EndVersion = info.Version
}

// archive promotes the pending archive to the brief list when it has earned
// promotion (or unconditionally when force is set). It asserts the
// two-phase version invariant first: promoting a torn commit would bake a
// bad EndVersion into durable archive metadata.
func (a *Actor) archive(ctx context.Context, force bool) error {
	if a.newArchive == nil {
		return nil
	}
	if a.snap.Version != a.snap.DoingVersion {
		return a.errStateInsecurity("archive: Version != DoingVersion at checkpoint")
	}

	if !force && !isCompleted(*a.newArchive, a.lastArchive, a.opts.Archive.Policy) {
		return nil
	}

	pending := *a.newArchive
	pending.ID = newArchiveID()

	a.logger.Debug("promoting archive",
		zap.Int("index", pending.Index),
		zap.Int64("start_version", pending.StartVersion),
		zap.Int64("end_version", pending.EndVersion))

	if err := a.archiveStore.Insert(ctx, a.id, pending, a.snap); err != nil {
		return a.errStorage("archive: archive_store.insert", err)
	}

	a.briefs = append(a.briefs, pending)
	a.lastArchive = &pending
	a.newArchive = nil
	a.metrics.IncArchivePromoted()

	return a.onArchiveCompleted(ctx)
}

// onArchiveCompleted is the event-cleaning step (spec §4.8): once enough
// non-cleared briefs have piled up and every observer has caught up past
// the oldest one's EndVersion, that brief's events are pruned (deleted or
// moved, per EventArchiveType) and it becomes the new ClearedArchive.
func (a *Actor) onArchiveCompleted(ctx context.Context) error {
	nonCleared := make([]ArchiveBrief, 0, len(a.briefs))
	for _, b := range a.briefs {
		if !b.EventIsCleared {
			nonCleared = append(nonCleared, b)
		}
	}
	if len(nonCleared) < a.opts.Archive.MaxSnapshotArchiveRecords {
		return nil
	}

	oldest := nonCleared[0]

	allCaughtUp, err := a.allObserversAtLeast(ctx, oldest.EndVersion)
	if err != nil {
		return err
	}
	if !allCaughtUp {
		return nil
	}

	if err := a.archiveStore.EventIsClear(ctx, a.id, oldest.ID); err != nil {
		return a.errStorage("on_archive_completed: archive_store.event_is_clear", err)
	}
	for i := range a.briefs {
		if a.briefs[i].ID == oldest.ID {
			a.briefs[i].EventIsCleared = true
			oldest = a.briefs[i]
			break
		}
	}

	if a.snapshotEventVersion < oldest.EndVersion {
		if err := a.saveSnapshotImpl(ctx, true); err != nil {
			return err
		}
	}

	switch a.opts.Archive.EventArchiveType {
	case EventArchiveMove:
		if err := a.archiveStore.EventArchive(ctx, a.id, oldest.EndVersion, oldest.StartTimestamp); err != nil {
			return a.errStorage("on_archive_completed: archive_store.event_archive", err)
		}
	default:
		if err := a.eventLog.DeletePrevious(ctx, a.id, oldest.EndVersion, oldest.StartTimestamp); err != nil {
			return a.errStorage("on_archive_completed: event_log.delete_previous", err)
		}
	}

	cleared := oldest
	a.clearedArchive = &cleared
	a.metrics.IncEventsCleared(int(oldest.EndVersion - oldest.StartVersion + 1))

	return a.pruneOlderClearedBriefs(ctx, oldest.ID)
}

// pruneOlderClearedBriefs keeps only the newest cleared brief (the
// ClearedArchive cursor); any cleared brief older than it is now
// redundant and is deleted from both the in-memory list and the store.
func (a *Actor) pruneOlderClearedBriefs(ctx context.Context, keepID uuid.UUID) error {
	kept := make([]ArchiveBrief, 0, len(a.briefs))
	for _, b := range a.briefs {
		if b.EventIsCleared && b.ID != keepID {
			if err := a.archiveStore.Delete(ctx, a.id, b.ID); err != nil {
				return a.errStorage("prune_older_cleared_briefs: archive_store.delete", err)
			}
			continue
		}
		kept = append(kept, b)
	}
	a.briefs = kept
	return nil
}

func (a *Actor) allObserversAtLeast(ctx context.Context, version int64) (bool, error) {
	for _, obs := range a.observers {
		v, err := obs.CommittedVersion(ctx, a.id)
		if err != nil {
			return false, a.errStorage("observer committed_version query failed: "+obs.Name(), err)
		}
		if v < version {
			return false, nil
		}
	}
	return true, nil
}

func (a *Actor) fanOutToObservers(ctx context.Context, info BasicInfo, payload []byte) error {
	fe := FullyEvent{StateID: a.id, BasicInfo: info}
	for _, obs := range a.observers {
		if err := obs.HandleEvent(ctx, fe, payload); err != nil {
			return err
		}
	}
	return nil
}
