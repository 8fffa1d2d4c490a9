package actor

import (
	"github.com/google/uuid"
)

// Snapshot is the in-memory aggregate: user payload plus the bookkeeping
// header the core needs to drive recovery, raise and archiving.
//
// DoingVersion must always be either Version or Version+1; it is the
// two-phase commit discipline that lets the core detect a torn append after
// a crash instead of silently re-raising or silently skipping an event.
type Snapshot struct {
	StateID ID
	Payload interface{}

	Version      int64
	DoingVersion int64

	StartTimestamp          int64
	LatestMinEventTimestamp int64

	IsLatest bool
	IsOver   bool
}

// assertQuiescent reports whether DoingVersion equals Version. A false result
// means a previous commit never completed cleanly; incrementDoingVersion
// turns it into a StateInsecurity error.
func (s *Snapshot) assertQuiescent() bool {
	return s.DoingVersion == s.Version
}

// FullyEvent is the envelope around a user event payload as it travels
// through append, apply and publish.
type FullyEvent struct {
	StateID ID
	BasicInfo
	Event interface{}
}

// BasicInfo is the version/timestamp pair carried alongside an event. It is
// passed to observers with each event; the bus message carries only the
// encoded event payload, not the BasicInfo.
type BasicInfo struct {
	Version   int64
	Timestamp int64
}

// EventUID is the caller-supplied idempotency token for a raise call. When
// absent the core derives a unique_key deterministically from the event's
// own identity.
type EventUID struct {
	Key       string
	Timestamp int64
}

// ArchiveBrief is archive metadata without the snapshot body: the covered
// version/timestamp range, plus the event-cleared flag that gates pruning.
type ArchiveBrief struct {
	ID             uuid.UUID
	Index          int
	StartVersion   int64
	EndVersion     int64
	StartTimestamp int64
	EndTimestamp   int64
	EventIsCleared bool
}

func (b ArchiveBrief) span() int64 { return b.EndVersion - b.StartVersion + 1 }

// combineArchive merges an older, retro-overlapping brief into the pending
// one. Per spec §4.7: StartTimestamp/StartVersion take the min, End* take
// the max.
func combineArchive(main, merge ArchiveBrief) ArchiveBrief {
	out := main
	if merge.StartTimestamp < out.StartTimestamp {
		out.StartTimestamp = merge.StartTimestamp
	}
	if merge.StartVersion < out.StartVersion {
		out.StartVersion = merge.StartVersion
	}
	if merge.EndTimestamp > out.EndTimestamp {
		out.EndTimestamp = merge.EndTimestamp
	}
	if merge.EndVersion > out.EndVersion {
		out.EndVersion = merge.EndVersion
	}
	return out
}

// ArchivePolicy is the operator-tunable threshold isCompleted
// consumes to decide whether a pending archive should be promoted.
type ArchivePolicy struct {
	MinVersionSpan int64
	MinWallTime    int64 // milliseconds since LastArchive.EndTimestamp
}

// isCompleted reports whether a pending brief has accumulated enough to be
// promoted, given the previous archive (nil if this is the first one ever).
func isCompleted(pending ArchiveBrief, last *ArchiveBrief, policy ArchivePolicy) bool {
	if pending.span() >= policy.MinVersionSpan {
		return true
	}
	if last == nil {
		return false
	}
	return pending.EndTimestamp-last.EndTimestamp >= policy.MinWallTime
}
