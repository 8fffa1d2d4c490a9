// Package mem provides in-memory implementations of the actor core's event
// log, snapshot store and archive store gateways. They back the package's
// tests and are a drop-in for local development against cmd/actorsim.
package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
)

type storedRecord struct {
	event     actor.FullyEvent
	payload   []byte
	uniqueKey string
}

// EventLog is an in-memory actor.EventLog.
type EventLog struct {
	mu       sync.RWMutex
	byActor  map[string][]storedRecord
	keys     map[string]map[string]struct{} // actorID -> uniqueKey -> present
	logger   *zap.Logger
}

func NewEventLog(logger *zap.Logger) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{
		byActor: make(map[string][]storedRecord),
		keys:    make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

func (l *EventLog) Append(ctx context.Context, event actor.FullyEvent, payload []byte, uniqueKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := event.StateID.String()
	if l.keys[id] == nil {
		l.keys[id] = make(map[string]struct{})
	}
	if _, exists := l.keys[id][uniqueKey]; exists {
		return false, nil
	}
	for _, r := range l.byActor[id] {
		if r.event.BasicInfo.Version == event.BasicInfo.Version {
			return false, nil
		}
	}

	l.keys[id][uniqueKey] = struct{}{}
	l.byActor[id] = append(l.byActor[id], storedRecord{event: event, payload: payload, uniqueKey: uniqueKey})
	return true, nil
}

func (l *EventLog) GetRange(ctx context.Context, id actor.ID, fromTimestamp int64, fromVersion, toVersion int64) ([]actor.StoredEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs := l.byActor[id.String()]
	out := make([]actor.StoredEvent, 0, len(recs))
	for _, r := range recs {
		v := r.event.BasicInfo.Version
		if v >= fromVersion && v <= toVersion {
			out = append(out, actor.StoredEvent{
				StateID:   r.event.StateID,
				BasicInfo: r.event.BasicInfo,
				Payload:   r.payload,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BasicInfo.Version < out[j].BasicInfo.Version })
	return out, nil
}

func (l *EventLog) DeletePrevious(ctx context.Context, id actor.ID, upToVersion int64, fromTimestamp int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := id.String()
	kept := l.byActor[key][:0]
	for _, r := range l.byActor[key] {
		if r.event.BasicInfo.Version <= upToVersion && r.event.BasicInfo.Timestamp >= fromTimestamp {
			delete(l.keys[key], r.uniqueKey)
			continue
		}
		kept = append(kept, r)
	}
	l.byActor[key] = kept
	return nil
}

// SnapshotStore is an in-memory actor.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	rows map[string]actor.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{rows: make(map[string]actor.Snapshot)}
}

func (s *SnapshotStore) Get(ctx context.Context, id actor.ID) (*actor.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id.String()]
	if !ok {
		return nil, false, nil
	}
	cp := row
	return &cp, true, nil
}

func (s *SnapshotStore) Insert(ctx context.Context, snap actor.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snap.StateID.String()
	if _, exists := s.rows[key]; exists {
		return fmt.Errorf("mem snapshot store: snapshot for %s already exists", key)
	}
	s.rows[key] = snap
	return nil
}

func (s *SnapshotStore) Update(ctx context.Context, snap actor.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[snap.StateID.String()] = snap
	return nil
}

func (s *SnapshotStore) UpdateIsLatest(ctx context.Context, id actor.ID, isLatest bool) error {
	return s.mutate(id, func(snap *actor.Snapshot) { snap.IsLatest = isLatest })
}

func (s *SnapshotStore) UpdateLatestMinEventTimestamp(ctx context.Context, id actor.ID, ts int64) error {
	return s.mutate(id, func(snap *actor.Snapshot) { snap.LatestMinEventTimestamp = ts })
}

func (s *SnapshotStore) UpdateStartTimestamp(ctx context.Context, id actor.ID, ts int64) error {
	return s.mutate(id, func(snap *actor.Snapshot) { snap.StartTimestamp = ts })
}

func (s *SnapshotStore) Over(ctx context.Context, id actor.ID, over bool) error {
	return s.mutate(id, func(snap *actor.Snapshot) { snap.IsOver = over })
}

func (s *SnapshotStore) Delete(ctx context.Context, id actor.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id.String())
	return nil
}

func (s *SnapshotStore) mutate(id actor.ID, fn func(*actor.Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	row, ok := s.rows[key]
	if !ok {
		// The row may not have been inserted yet if the caller is still
		// mid-recovery; these bookkeeping updates are best-effort until
		// the first Insert.
		return nil
	}
	fn(&row)
	s.rows[key] = row
	return nil
}

// ArchiveStore is an in-memory actor.ArchiveStore.
type ArchiveStore struct {
	mu       sync.RWMutex
	briefs   map[string][]actor.ArchiveBrief
	bodies   map[string]map[uuid.UUID]actor.Snapshot
	archived map[string][]actor.StoredEvent
	over     map[string]bool
}

func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		briefs:   make(map[string][]actor.ArchiveBrief),
		bodies:   make(map[string]map[uuid.UUID]actor.Snapshot),
		archived: make(map[string][]actor.StoredEvent),
		over:     make(map[string]bool),
	}
}

func (s *ArchiveStore) GetBriefs(ctx context.Context, id actor.ID) ([]actor.ArchiveBrief, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]actor.ArchiveBrief, len(s.briefs[id.String()]))
	copy(out, s.briefs[id.String()])
	return out, nil
}

func (s *ArchiveStore) GetByID(ctx context.Context, id actor.ID, briefID uuid.UUID) (*actor.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bodies, ok := s.bodies[id.String()]
	if !ok {
		return nil, nil
	}
	snap, ok := bodies[briefID]
	if !ok {
		return nil, nil
	}
	cp := snap
	return &cp, nil
}

func (s *ArchiveStore) Insert(ctx context.Context, id actor.ID, brief actor.ArchiveBrief, snap actor.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	s.briefs[key] = append(s.briefs[key], brief)
	if s.bodies[key] == nil {
		s.bodies[key] = make(map[uuid.UUID]actor.Snapshot)
	}
	s.bodies[key][brief.ID] = snap
	return nil
}

func (s *ArchiveStore) Delete(ctx context.Context, id actor.ID, briefID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	kept := s.briefs[key][:0]
	for _, b := range s.briefs[key] {
		if b.ID != briefID {
			kept = append(kept, b)
		}
	}
	s.briefs[key] = kept
	delete(s.bodies[key], briefID)
	return nil
}

func (s *ArchiveStore) DeleteAll(ctx context.Context, id actor.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	delete(s.briefs, key)
	delete(s.bodies, key)
	return nil
}

func (s *ArchiveStore) EventIsClear(ctx context.Context, id actor.ID, briefID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	for i := range s.briefs[key] {
		if s.briefs[key][i].ID == briefID {
			s.briefs[key][i].EventIsCleared = true
			return nil
		}
	}
	return fmt.Errorf("mem archive store: brief %s not found for %s", briefID, key)
}

func (s *ArchiveStore) EventArchive(ctx context.Context, id actor.ID, endVersion int64, fromTimestamp int64) error {
	// EventArchive is a no-op here: it records nothing and copies no events,
	// and the events stay in the mem EventLog, which this store cannot
	// reach.
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = id
	_ = endVersion
	_ = fromTimestamp
	return nil
}

func (s *ArchiveStore) Over(ctx context.Context, id actor.ID, over bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.over[id.String()] = over
	return nil
}
