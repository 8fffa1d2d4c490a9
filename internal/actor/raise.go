package actor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// Raise authors a new event against this actor's current version, appends
// it durably, applies it to the in-memory payload, opportunistically
// persists the snapshot and publishes to the bus. It returns false (with a
// nil error) when the append was rejected as a duplicate of a prior call
// with the same EventUID.
func (a *Actor) Raise(ctx context.Context, event interface{}, uid *EventUID) (ok bool, err error) {
	started := a.clock()

	ok, err = a.raise(ctx, event, uid)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if !ok {
		outcome = "duplicate"
	}
	a.metrics.ObserveRaise(outcome, float64(a.clock()-started)/1000.0)

	if err == nil {
		return ok, nil
	}

	if isInvariantError(err) {
		return false, err
	}

	a.logger.Error("raise failed, rebuilding from storage", zap.Error(err),
		zap.Int64("version", a.snap.Version), zap.Int64("doing_version", a.snap.DoingVersion))
	if rerr := a.recover(ctx); rerr != nil {
		return false, fmt.Errorf("raise failed (%w) and recovery failed: %v", err, rerr)
	}
	if serr := a.saveSnapshotImpl(ctx, true); serr != nil {
		return false, fmt.Errorf("raise failed (%w) and forced snapshot save failed: %v", err, serr)
	}
	return false, err
}

func isInvariantError(err error) bool {
	var ae *Error
	if ok := asActorError(err, &ae); ok {
		switch ae.Code {
		case CodeStateIsOver, CodeStateInsecurity, CodeEventIsCleared:
			return true
		}
	}
	return false
}

func asActorError(err error, target **Error) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (a *Actor) raise(ctx context.Context, event interface{}, uid *EventUID) (bool, error) {
	if a.snap.IsOver {
		return false, a.errStateIsOver()
	}

	ts := a.clock()
	if uid != nil && uid.Timestamp != 0 {
		ts = uid.Timestamp
	}
	fe := FullyEvent{
		StateID:   a.id,
		BasicInfo: BasicInfo{Version: a.snap.Version + 1, Timestamp: ts},
		Event:     event,
	}

	payload, err := a.codec.Encode(event)
	if err != nil {
		return false, a.errSerialization("raise: encode event", err)
	}

	uniqueKey := ""
	if uid != nil && uid.Key != "" {
		uniqueKey = uid.Key
	} else {
		uniqueKey = deriveUniqueKey(a.id, fe.BasicInfo.Version, payload)
	}

	if err := a.onRaiseStart(ctx, fe); err != nil {
		return false, err
	}

	if err := a.incrementDoingVersion(); err != nil {
		return false, err
	}

	appended, err := a.eventLog.Append(ctx, fe, payload, uniqueKey)
	if err != nil {
		return false, a.errStorage("raise: event_log.append", err)
	}
	if !appended {
		a.decrementDoingVersion()
		a.onRaiseFailed(ctx)
		return false, nil
	}

	newPayload, err := a.applier.Apply(a.snap.Payload, fe)
	if err != nil {
		return false, a.errSerialization("raise: apply", err)
	}
	a.snap.Payload = newPayload

	if err := a.updateVersion(fe.BasicInfo.Version); err != nil {
		return false, err
	}

	if err := a.onRaised(ctx, fe); err != nil {
		return false, err
	}

	// A flush here brings the stored snapshot fully current with Version;
	// only onRaiseStart's flip, at the top of the next raise, should mark it
	// stale again.
	if err := a.saveSnapshotImpl(ctx, false); err != nil {
		return false, err
	}

	a.publishToBus(ctx, fe.BasicInfo, payload)

	return true, nil
}

// onRaiseStart implements spec §4.7 step 3: flip IsLatest off on the first
// event since a flush, enforce the cleared-archive guard ahead of any brief
// walk, widen the retro-dated bounds, and fold overlapping briefs back into
// the pending archive.
func (a *Actor) onRaiseStart(ctx context.Context, fe FullyEvent) error {
	if a.snap.Version > 0 && a.snap.IsLatest {
		if err := a.snapStore.UpdateIsLatest(ctx, a.id, false); err != nil {
			return a.errStorage("on_raise_start: update_is_latest", err)
		}
		a.snap.IsLatest = false
	}

	// The cleared-archive guard must run before the brief walk below: a
	// retro-event that lands inside cleared history is rejected outright,
	// never used to select a brief for deletion.
	if a.clearedArchive != nil && fe.BasicInfo.Timestamp < a.clearedArchive.StartTimestamp {
		return a.errEventIsCleared()
	}

	if a.snap.LatestMinEventTimestamp == 0 || fe.BasicInfo.Timestamp < a.snap.LatestMinEventTimestamp {
		if err := a.snapStore.UpdateLatestMinEventTimestamp(ctx, a.id, fe.BasicInfo.Timestamp); err != nil {
			return a.errStorage("on_raise_start: update_latest_min_event_timestamp", err)
		}
		a.snap.LatestMinEventTimestamp = fe.BasicInfo.Timestamp
	}
	if a.snap.StartTimestamp == 0 || fe.BasicInfo.Timestamp < a.snap.StartTimestamp {
		if err := a.snapStore.UpdateStartTimestamp(ctx, a.id, fe.BasicInfo.Timestamp); err != nil {
			return a.errStorage("on_raise_start: update_start_timestamp", err)
		}
		a.snap.StartTimestamp = fe.BasicInfo.Timestamp
	}

	if a.opts.Archive.On && a.lastArchive != nil && fe.BasicInfo.Timestamp < a.lastArchive.EndTimestamp {
		if err := a.foldBackBriefs(ctx, fe.BasicInfo.Timestamp); err != nil {
			return err
		}
	}

	return nil
}

// foldBackBriefs walks the brief list from the highest index down, folding
// every non-cleared brief whose EndTimestamp exceeds the given timestamp
// into NewArchive, deleting it from the archive store and the in-memory
// list. A cleared brief among the candidates is a guard failure that should
// never be reached because onRaiseStart already checked clearedArchive, but
// is re-asserted here defensively since brief state can only be trusted
// within this call.
func (a *Actor) foldBackBriefs(ctx context.Context, eventTimestamp int64) error {
	for i := len(a.briefs) - 1; i >= 0; i-- {
		b := a.briefs[i]
		if b.EndTimestamp <= eventTimestamp {
			break
		}
		if b.EventIsCleared {
			return a.errEventIsCleared()
		}

		if err := a.archiveStore.Delete(ctx, a.id, b.ID); err != nil {
			return a.errStorage("on_raise_start: archive_store.delete during fold-back", err)
		}

		if a.newArchive == nil {
			merged := b
			a.newArchive = &merged
		} else {
			merged := combineArchive(*a.newArchive, b)
			a.newArchive = &merged
		}

		a.briefs = append(a.briefs[:i], a.briefs[i+1:]...)
	}

	a.refreshLastArchive()
	return nil
}

func (a *Actor) refreshLastArchive() {
	if len(a.briefs) == 0 {
		a.lastArchive = nil
		return
	}
	last := a.briefs[len(a.briefs)-1]
	a.lastArchive = &last
}

func (a *Actor) publishToBus(ctx context.Context, info BasicInfo, payload []byte) {
	if a.bus == nil && len(a.observers) == 0 {
		return
	}

	publishBus := func() error {
		if a.bus == nil {
			return fmt.Errorf("no bus configured")
		}
		return a.bus.Publish(ctx, a.id, a.typeCode, payload)
	}
	fanOut := func() error {
		return a.fanOutToObservers(ctx, BasicInfo{Version: info.Version, Timestamp: info.Timestamp}, payload)
	}

	var err error
	if a.opts.PriorityAsyncEventBus {
		err = publishBus()
		if err != nil {
			a.logger.Warn("bus publish failed, falling back to synchronous observer fan-out", zap.Error(err))
			a.metrics.IncBusFallback()
			err = fanOut()
		}
	} else {
		err = fanOut()
		if err != nil {
			a.logger.Warn("observer fan-out failed, falling back to bus", zap.Error(err))
			a.metrics.IncBusFallback()
			err = publishBus()
		}
	}
	if err != nil {
		a.logger.Error("publish_to_bus: both paths failed, event remains durable in the log", zap.Error(err))
	}
}

func deriveUniqueKey(id ID, version int64, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(id.String()))
	h.Write([]byte{':'})
	h.Write([]byte(fmt.Sprintf("%d", version)))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
