package actor

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock returns the current time in milliseconds since epoch. Tests supply
// a deterministic clock; production wiring defaults to time.Now().
type Clock func() int64

// MetricsRecorder is the narrow surface the core reports to; a concrete
// Prometheus-backed implementation lives in internal/actor/metrics and is
// injected by the host so this package stays free of a vendor-specific
// dependency.
type MetricsRecorder interface {
	ObserveRaise(outcome string, durationSeconds float64)
	IncArchivePromoted()
	IncEventsCleared(count int)
	IncBusFallback()
}

type nopMetrics struct{}

func (nopMetrics) ObserveRaise(string, float64) {}
func (nopMetrics) IncArchivePromoted()           {}
func (nopMetrics) IncEventsCleared(int)          {}
func (nopMetrics) IncBusFallback()               {}

// Deps bundles the external collaborators the host wires at activation
// time. All fields except Applier, EventLog and SnapshotStore are optional.
type Deps struct {
	Applier       EventApplier
	EventLog      EventLog
	SnapshotStore SnapshotStore
	ArchiveStore  ArchiveStore
	Bus           Bus
	Codec         Codec
	Observers     []ObserverUnit
	Logger        *zap.Logger
	Metrics       MetricsRecorder
	Clock         Clock
	TypeCode      uint32
}

// Actor is the per-actor runtime core: it owns the in-memory Snapshot,
// archive bookkeeping and the raise/recovery/lifecycle pipelines. The host
// guarantees non-reentrant, single-threaded-per-actor invocation; Actor
// itself takes no locks.
type Actor struct {
	id       ID
	typeName string
	typeCode uint32

	applier      EventApplier
	eventLog     EventLog
	snapStore    SnapshotStore
	archiveStore ArchiveStore
	bus          Bus
	codec        Codec
	observers    []ObserverUnit

	opts    Options
	logger  *zap.Logger
	metrics MetricsRecorder
	clock   Clock

	snap                 Snapshot
	snapshotEventVersion int64
	persisted            bool

	briefs         []ArchiveBrief
	lastArchive    *ArchiveBrief
	clearedArchive *ArchiveBrief
	newArchive     *ArchiveBrief
}

// New constructs an Actor for the given identity and type name. It performs
// no I/O; call Activate to recover state from storage.
func New(id ID, typeName string, opts Options, deps Deps) (*Actor, error) {
	if deps.Applier == nil {
		return nil, newError(id.String(), CodeUnfindSnapshotHandler, "no event applier wired for this actor type", nil)
	}
	if deps.EventLog == nil || deps.SnapshotStore == nil {
		return nil, fmt.Errorf("actor: Deps.EventLog and Deps.SnapshotStore are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = defaultClock
	}
	codec := deps.Codec
	if codec == nil {
		codec = jsonCodec{}
	}
	return &Actor{
		id:           id,
		typeName:     typeName,
		typeCode:     deps.TypeCode,
		applier:      deps.Applier,
		eventLog:     deps.EventLog,
		snapStore:    deps.SnapshotStore,
		archiveStore: deps.ArchiveStore,
		bus:          deps.Bus,
		codec:        codec,
		observers:    deps.Observers,
		opts:         opts,
		logger:       logger.With(zap.String("actor_type", typeName), zap.String("state_id", id.String())),
		metrics:      metrics,
		clock:        clock,
	}, nil
}

// ID returns the actor's identity.
func (a *Actor) ID() ID { return a.id }

// Version returns the committed version of the in-memory snapshot.
func (a *Actor) Version() int64 { return a.snap.Version }

// Payload returns the current aggregate payload. Callers must treat it as
// read-only; mutation must go through Raise.
func (a *Actor) Payload() interface{} { return a.snap.Payload }

// IsOver reports whether the aggregate has reached its terminal state.
func (a *Actor) IsOver() bool { return a.snap.IsOver }

func defaultClock() int64 {
	return nowMillis()
}

// newArchiveID is split out so tests can stub archive ID generation
// deterministically without reaching into uuid internals.
var newArchiveID = uuid.New
