package actor

// EventArchiveType selects how on_archive_completed disposes of events
// older than the newly-cleared brief.
type EventArchiveType uint8

const (
	// EventArchiveDelete removes the events from the event log outright.
	EventArchiveDelete EventArchiveType = iota
	// EventArchiveMove copies them into archive-event storage first.
	EventArchiveMove
)

// ArchiveOptions configures the archive subsystem (C8).
type ArchiveOptions struct {
	On                          bool
	MaxSnapshotArchiveRecords   int
	MinVersionIntervalAtDeactivate int64
	EventArchiveType            EventArchiveType
	Policy                      ArchivePolicy
}

// Options configures an Actor instance. Every field is a direct carry of a
// spec-enumerated configuration option.
type Options struct {
	NumberOfEventsPerRead       int64
	SnapshotVersionInterval     int64
	MinSnapshotVersionInterval  int64
	PriorityAsyncEventBus       bool
	SyncAllObserversOnActivate  bool
	Archive                     ArchiveOptions
}

// DefaultOptions mirrors the conservative defaults a fresh actor type would
// be configured with before an operator tunes it.
func DefaultOptions() Options {
	return Options{
		NumberOfEventsPerRead:      200,
		SnapshotVersionInterval:    50,
		MinSnapshotVersionInterval: 10,
		PriorityAsyncEventBus:      false,
		SyncAllObserversOnActivate: false,
		Archive: ArchiveOptions{
			On:                             false,
			MaxSnapshotArchiveRecords:      3,
			MinVersionIntervalAtDeactivate: 0,
			EventArchiveType:               EventArchiveDelete,
			Policy: ArchivePolicy{
				MinVersionSpan: 1000,
				MinWallTime:    int64((24 * 60 * 60 * 1000)), // 24h in ms
			},
		},
	}
}
