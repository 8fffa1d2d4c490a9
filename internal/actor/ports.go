package actor

import (
	"context"

	"github.com/google/uuid"
)

// EventApplier is the pure, user-supplied function that folds a FullyEvent
// into the aggregate payload. It must not perform I/O and must be
// deterministic: recovery replays the same event through it more than once
// and relies on version gating, not applier idempotence, for correctness.
type EventApplier interface {
	Apply(payload interface{}, event FullyEvent) (interface{}, error)
	// New constructs the zero-value payload for a brand-new aggregate.
	New() interface{}
}

// EventLog is the durable append-only event log gateway (C3).
type EventLog interface {
	// Append persists the event atomically keyed by (StateID, Version) and
	// by uniqueKey for de-duplication. It returns false if a duplicate
	// uniqueKey or (StateID, Version) already exists.
	Append(ctx context.Context, event FullyEvent, payload []byte, uniqueKey string) (bool, error)

	// GetRange returns events with Version in [fromVersion, toVersion] in
	// ascending Version order. fromTimestamp is a read hint only.
	GetRange(ctx context.Context, id ID, fromTimestamp int64, fromVersion, toVersion int64) ([]StoredEvent, error)

	// DeletePrevious removes events with Version <= upToVersion, scoped to
	// fromTimestamp onward.
	DeletePrevious(ctx context.Context, id ID, upToVersion int64, fromTimestamp int64) error
}

// StoredEvent is what EventLog.GetRange hands back: the envelope plus the
// serialized payload bytes for the applier's caller to decode.
type StoredEvent struct {
	StateID   ID
	BasicInfo BasicInfo
	Payload   []byte
}

// SnapshotStore is the snapshot persistence gateway (C4).
type SnapshotStore interface {
	Get(ctx context.Context, id ID) (*Snapshot, bool, error)
	Insert(ctx context.Context, snap Snapshot) error
	Update(ctx context.Context, snap Snapshot) error
	UpdateIsLatest(ctx context.Context, id ID, isLatest bool) error
	UpdateLatestMinEventTimestamp(ctx context.Context, id ID, ts int64) error
	UpdateStartTimestamp(ctx context.Context, id ID, ts int64) error
	Over(ctx context.Context, id ID, over bool) error
	Delete(ctx context.Context, id ID) error
}

// ArchiveStore is the archive persistence gateway (C5).
type ArchiveStore interface {
	GetBriefs(ctx context.Context, id ID) ([]ArchiveBrief, error)
	GetByID(ctx context.Context, id ID, briefID uuid.UUID) (*Snapshot, error)
	Insert(ctx context.Context, id ID, brief ArchiveBrief, snap Snapshot) error
	Delete(ctx context.Context, id ID, briefID uuid.UUID) error
	DeleteAll(ctx context.Context, id ID) error
	EventIsClear(ctx context.Context, id ID, briefID uuid.UUID) error
	EventArchive(ctx context.Context, id ID, endVersion int64, fromTimestamp int64) error
	Over(ctx context.Context, id ID, over bool) error
}

// ObserverUnit is a downstream consumer that tracks a committed version per
// aggregate. The core resolves one ObserverUnit handle per observer at
// activation and never re-resolves it mid-activation, breaking the cyclic
// actor -> observer-container -> actor reference called out in the design
// notes.
type ObserverUnit interface {
	Name() string
	CommittedVersion(ctx context.Context, id ID) (int64, error)
	SyncTo(ctx context.Context, id ID, version int64) (bool, error)
	HandleEvent(ctx context.Context, event FullyEvent, payload []byte) error
	ResetTo(ctx context.Context, oldID, newID ID) error
}

// Bus is the event-bus producer the core publishes serialized events to.
type Bus interface {
	Publish(ctx context.Context, id ID, typeCode uint32, payload []byte) error
}

// Codec encodes/decodes user event payloads. The concrete serializer
// (JSON, protobuf, ...) is a host concern; the core only needs bytes to
// append and publish. Decode is part of the port for hosts that want it,
// but the core itself never calls it: replay passes StoredEvent.Payload to
// the applier as raw bytes rather than round-tripping it through Codec.
type Codec interface {
	Encode(event interface{}) ([]byte, error)
	Decode(payload []byte) (interface{}, error)
}
