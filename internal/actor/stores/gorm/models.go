package gorm

import "time"

// EventRow is the durable row shape for a single appended event. Payload is
// stored as raw bytes; the codec that produced them lives in the host, not
// in this package.
type EventRow struct {
	ID         uint `gorm:"primaryKey"`
	ActorID    string `gorm:"index:idx_event_actor_version,unique"`
	Version    int64  `gorm:"index:idx_event_actor_version,unique"`
	Timestamp  int64  `gorm:"index"`
	UniqueKey  string `gorm:"index:idx_event_unique_key,unique"`
	Payload    []byte
	CreatedAt  time.Time
}

func (EventRow) TableName() string { return "actor_events" }

// SnapshotRow is the durable row shape for the per-actor snapshot header plus
// its serialized payload.
type SnapshotRow struct {
	ActorID                 string `gorm:"primaryKey"`
	Payload                 []byte
	Version                 int64
	DoingVersion            int64
	StartTimestamp          int64
	LatestMinEventTimestamp int64
	IsLatest                bool
	IsOver                  bool
	UpdatedAt               time.Time
}

func (SnapshotRow) TableName() string { return "actor_snapshots" }

// ArchiveBriefRow is the durable row shape for archive metadata, without the
// snapshot body (that lives in ArchiveBodyRow, compressed).
type ArchiveBriefRow struct {
	ID             string `gorm:"primaryKey;type:uuid"`
	ActorID        string `gorm:"index"`
	Idx            int
	StartVersion   int64
	EndVersion     int64
	StartTimestamp int64
	EndTimestamp   int64
	EventIsCleared bool
	CreatedAt      time.Time
}

func (ArchiveBriefRow) TableName() string { return "actor_archive_briefs" }

// ArchiveBodyRow stores the zstd-compressed snapshot body captured at the
// moment a brief was promoted, so recovery can rebuild state from an
// archive when no live snapshot row exists.
type ArchiveBodyRow struct {
	BriefID              string `gorm:"primaryKey;type:uuid"`
	ActorID              string `gorm:"index"`
	CompressedPayload    []byte
	Version              int64
	DoingVersion          int64
	StartTimestamp        int64
	LatestMinEventTimestamp int64
	IsLatest              bool
	IsOver                bool
}

func (ArchiveBodyRow) TableName() string { return "actor_archive_bodies" }

// ArchivedEventRow holds events moved out of the live log by EventArchiveMove
// rather than deleted outright.
type ArchivedEventRow struct {
	ID        uint `gorm:"primaryKey"`
	ActorID   string `gorm:"index"`
	Version   int64
	Timestamp int64
	Payload   []byte
}

func (ArchivedEventRow) TableName() string { return "actor_archived_events" }
