// Package gorm provides Postgres-backed implementations of the actor core's
// event log, snapshot store and archive store gateways, built on GORM. Every
// gateway call is routed through a per-instance circuit breaker so a flaky
// database degrades call latency instead of hanging every actor that shares
// the connection pool; archive bodies are zstd-compressed before being
// written since they carry a full snapshot payload rather than a single
// event.
package gorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
)

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// EventLog is a GORM-backed actor.EventLog.
type EventLog struct {
	db      *gorm.DB
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

func NewEventLog(db *gorm.DB, logger *zap.Logger) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{db: db, logger: logger, breaker: newBreaker("event_log", logger)}
}

func (l *EventLog) Append(ctx context.Context, event actor.FullyEvent, payload []byte, uniqueKey string) (bool, error) {
	_, err := l.breaker.Execute(func() (interface{}, error) {
		row := EventRow{
			ActorID:   event.StateID.String(),
			Version:   event.BasicInfo.Version,
			Timestamp: event.BasicInfo.Timestamp,
			UniqueKey: uniqueKey,
			Payload:   payload,
		}
		result := l.db.WithContext(ctx).Create(&row)
		return nil, result.Error
	})
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	l.logger.Error("event_log append failed", zap.Error(err), zap.String("actor_id", event.StateID.String()))
	return false, err
}

func (l *EventLog) GetRange(ctx context.Context, id actor.ID, fromTimestamp int64, fromVersion, toVersion int64) ([]actor.StoredEvent, error) {
	res, err := l.breaker.Execute(func() (interface{}, error) {
		var rows []EventRow
		err := l.db.WithContext(ctx).
			Where("actor_id = ? AND version >= ? AND version <= ?", id.String(), fromVersion, toVersion).
			Order("version ASC").
			Find(&rows).Error
		return rows, err
	})
	if err != nil {
		l.logger.Error("event_log get_range failed", zap.Error(err), zap.String("actor_id", id.String()))
		return nil, err
	}
	rows := res.([]EventRow)
	out := make([]actor.StoredEvent, len(rows))
	for i, r := range rows {
		out[i] = actor.StoredEvent{
			StateID:   id,
			BasicInfo: actor.BasicInfo{Version: r.Version, Timestamp: r.Timestamp},
			Payload:   r.Payload,
		}
	}
	return out, nil
}

func (l *EventLog) DeletePrevious(ctx context.Context, id actor.ID, upToVersion int64, fromTimestamp int64) error {
	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.db.WithContext(ctx).
			Where("actor_id = ? AND version <= ? AND timestamp >= ?", id.String(), upToVersion, fromTimestamp).
			Delete(&EventRow{}).Error
	})
	if err != nil {
		l.logger.Error("event_log delete_previous failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

// SnapshotStore is a GORM-backed actor.SnapshotStore.
type SnapshotStore struct {
	db      *gorm.DB
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

func NewSnapshotStore(db *gorm.DB, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{db: db, logger: logger, breaker: newBreaker("snapshot_store", logger)}
}

func (s *SnapshotStore) Get(ctx context.Context, id actor.ID) (*actor.Snapshot, bool, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		var row SnapshotRow
		err := s.db.WithContext(ctx).Where("actor_id = ?", id.String()).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return &row, err
	})
	if err != nil {
		s.logger.Error("snapshot_store get failed", zap.Error(err), zap.String("actor_id", id.String()))
		return nil, false, err
	}
	if res == nil {
		return nil, false, nil
	}
	row := res.(*SnapshotRow)
	var payload interface{}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, false, fmt.Errorf("snapshot_store: decode payload: %w", err)
		}
	}
	return &actor.Snapshot{
		StateID:                 id,
		Payload:                 payload,
		Version:                 row.Version,
		DoingVersion:            row.DoingVersion,
		StartTimestamp:          row.StartTimestamp,
		LatestMinEventTimestamp: row.LatestMinEventTimestamp,
		IsLatest:                row.IsLatest,
		IsOver:                  row.IsOver,
	}, true, nil
}

func (s *SnapshotStore) toRow(snap actor.Snapshot) (SnapshotRow, error) {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return SnapshotRow{}, fmt.Errorf("snapshot_store: encode payload: %w", err)
	}
	return SnapshotRow{
		ActorID:                 snap.StateID.String(),
		Payload:                 payload,
		Version:                 snap.Version,
		DoingVersion:            snap.DoingVersion,
		StartTimestamp:          snap.StartTimestamp,
		LatestMinEventTimestamp: snap.LatestMinEventTimestamp,
		IsLatest:                snap.IsLatest,
		IsOver:                  snap.IsOver,
	}, nil
}

func (s *SnapshotStore) Insert(ctx context.Context, snap actor.Snapshot) error {
	row, err := s.toRow(snap)
	if err != nil {
		return err
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Create(&row).Error
	})
	if err != nil {
		s.logger.Error("snapshot_store insert failed", zap.Error(err), zap.String("actor_id", row.ActorID))
	}
	return err
}

func (s *SnapshotStore) Update(ctx context.Context, snap actor.Snapshot) error {
	row, err := s.toRow(snap)
	if err != nil {
		return err
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Save(&row).Error
	})
	if err != nil {
		s.logger.Error("snapshot_store update failed", zap.Error(err), zap.String("actor_id", row.ActorID))
	}
	return err
}

func (s *SnapshotStore) UpdateIsLatest(ctx context.Context, id actor.ID, isLatest bool) error {
	return s.patch(ctx, id, map[string]interface{}{"is_latest": isLatest})
}

func (s *SnapshotStore) UpdateLatestMinEventTimestamp(ctx context.Context, id actor.ID, ts int64) error {
	return s.patch(ctx, id, map[string]interface{}{"latest_min_event_timestamp": ts})
}

func (s *SnapshotStore) UpdateStartTimestamp(ctx context.Context, id actor.ID, ts int64) error {
	return s.patch(ctx, id, map[string]interface{}{"start_timestamp": ts})
}

func (s *SnapshotStore) Over(ctx context.Context, id actor.ID, over bool) error {
	return s.patch(ctx, id, map[string]interface{}{"is_over": over})
}

func (s *SnapshotStore) patch(ctx context.Context, id actor.ID, fields map[string]interface{}) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Model(&SnapshotRow{}).
			Where("actor_id = ?", id.String()).Updates(fields).Error
	})
	if err != nil {
		s.logger.Error("snapshot_store patch failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

func (s *SnapshotStore) Delete(ctx context.Context, id actor.ID) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Where("actor_id = ?", id.String()).Delete(&SnapshotRow{}).Error
	})
	if err != nil {
		s.logger.Error("snapshot_store delete failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

// ArchiveStore is a GORM-backed actor.ArchiveStore with zstd-compressed
// archive bodies.
type ArchiveStore struct {
	db      *gorm.DB
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func NewArchiveStore(db *gorm.DB, logger *zap.Logger) (*ArchiveStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("archive_store: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("archive_store: new zstd decoder: %w", err)
	}
	return &ArchiveStore{db: db, logger: logger, breaker: newBreaker("archive_store", logger), enc: enc, dec: dec}, nil
}

func (s *ArchiveStore) GetBriefs(ctx context.Context, id actor.ID) ([]actor.ArchiveBrief, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		var rows []ArchiveBriefRow
		err := s.db.WithContext(ctx).Where("actor_id = ?", id.String()).Order("idx ASC").Find(&rows).Error
		return rows, err
	})
	if err != nil {
		s.logger.Error("archive_store get_briefs failed", zap.Error(err), zap.String("actor_id", id.String()))
		return nil, err
	}
	rows := res.([]ArchiveBriefRow)
	out := make([]actor.ArchiveBrief, len(rows))
	for i, r := range rows {
		briefID, perr := uuid.Parse(r.ID)
		if perr != nil {
			return nil, fmt.Errorf("archive_store: malformed brief id %q: %w", r.ID, perr)
		}
		out[i] = actor.ArchiveBrief{
			ID:             briefID,
			Index:          r.Idx,
			StartVersion:   r.StartVersion,
			EndVersion:     r.EndVersion,
			StartTimestamp: r.StartTimestamp,
			EndTimestamp:   r.EndTimestamp,
			EventIsCleared: r.EventIsCleared,
		}
	}
	return out, nil
}

func (s *ArchiveStore) GetByID(ctx context.Context, id actor.ID, briefID uuid.UUID) (*actor.Snapshot, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		var row ArchiveBodyRow
		err := s.db.WithContext(ctx).Where("brief_id = ?", briefID.String()).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return &row, err
	})
	if err != nil {
		s.logger.Error("archive_store get_by_id failed", zap.Error(err), zap.String("brief_id", briefID.String()))
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	row := res.(*ArchiveBodyRow)
	decompressed, err := s.dec.DecodeAll(row.CompressedPayload, nil)
	if err != nil {
		return nil, fmt.Errorf("archive_store: decompress body: %w", err)
	}
	var payload interface{}
	if len(decompressed) > 0 {
		if err := json.Unmarshal(decompressed, &payload); err != nil {
			return nil, fmt.Errorf("archive_store: decode body: %w", err)
		}
	}
	return &actor.Snapshot{
		StateID:                 id,
		Payload:                 payload,
		Version:                 row.Version,
		DoingVersion:            row.DoingVersion,
		StartTimestamp:          row.StartTimestamp,
		LatestMinEventTimestamp: row.LatestMinEventTimestamp,
		IsLatest:                row.IsLatest,
		IsOver:                  row.IsOver,
	}, nil
}

func (s *ArchiveStore) Insert(ctx context.Context, id actor.ID, brief actor.ArchiveBrief, snap actor.Snapshot) error {
	plain, err := json.Marshal(snap.Payload)
	if err != nil {
		return fmt.Errorf("archive_store: encode body: %w", err)
	}
	compressed := s.enc.EncodeAll(plain, nil)

	briefRow := ArchiveBriefRow{
		ID:             brief.ID.String(),
		ActorID:        id.String(),
		Idx:            brief.Index,
		StartVersion:   brief.StartVersion,
		EndVersion:     brief.EndVersion,
		StartTimestamp: brief.StartTimestamp,
		EndTimestamp:   brief.EndTimestamp,
		EventIsCleared: brief.EventIsCleared,
	}
	bodyRow := ArchiveBodyRow{
		BriefID:                 brief.ID.String(),
		ActorID:                 id.String(),
		CompressedPayload:       compressed,
		Version:                 snap.Version,
		DoingVersion:            snap.DoingVersion,
		StartTimestamp:          snap.StartTimestamp,
		LatestMinEventTimestamp: snap.LatestMinEventTimestamp,
		IsLatest:                snap.IsLatest,
		IsOver:                  snap.IsOver,
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&briefRow).Error; err != nil {
				return err
			}
			return tx.Create(&bodyRow).Error
		})
	})
	if err != nil {
		s.logger.Error("archive_store insert failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

func (s *ArchiveStore) Delete(ctx context.Context, id actor.ID, briefID uuid.UUID) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", briefID.String()).Delete(&ArchiveBriefRow{}).Error; err != nil {
				return err
			}
			return tx.Where("brief_id = ?", briefID.String()).Delete(&ArchiveBodyRow{}).Error
		})
	})
	if err != nil {
		s.logger.Error("archive_store delete failed", zap.Error(err), zap.String("brief_id", briefID.String()))
	}
	return err
}

func (s *ArchiveStore) DeleteAll(ctx context.Context, id actor.ID) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("actor_id = ?", id.String()).Delete(&ArchiveBriefRow{}).Error; err != nil {
				return err
			}
			return tx.Where("actor_id = ?", id.String()).Delete(&ArchiveBodyRow{}).Error
		})
	})
	if err != nil {
		s.logger.Error("archive_store delete_all failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

func (s *ArchiveStore) EventIsClear(ctx context.Context, id actor.ID, briefID uuid.UUID) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Model(&ArchiveBriefRow{}).
			Where("id = ?", briefID.String()).Update("event_is_cleared", true).Error
	})
	if err != nil {
		s.logger.Error("archive_store event_is_clear failed", zap.Error(err), zap.String("brief_id", briefID.String()))
	}
	return err
}

func (s *ArchiveStore) EventArchive(ctx context.Context, id actor.ID, endVersion int64, fromTimestamp int64) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var rows []EventRow
			if err := tx.Where("actor_id = ? AND version <= ? AND timestamp >= ?", id.String(), endVersion, fromTimestamp).
				Find(&rows).Error; err != nil {
				return err
			}
			moved := make([]ArchivedEventRow, len(rows))
			for i, r := range rows {
				moved[i] = ArchivedEventRow{ActorID: r.ActorID, Version: r.Version, Timestamp: r.Timestamp, Payload: r.Payload}
			}
			if len(moved) > 0 {
				if err := tx.Create(&moved).Error; err != nil {
					return err
				}
			}
			return tx.Where("actor_id = ? AND version <= ? AND timestamp >= ?", id.String(), endVersion, fromTimestamp).
				Delete(&EventRow{}).Error
		})
	})
	if err != nil {
		s.logger.Error("archive_store event_archive failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

func (s *ArchiveStore) Over(ctx context.Context, id actor.ID, over bool) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.WithContext(ctx).Model(&ArchiveBriefRow{}).
			Where("actor_id = ?", id.String()).Update("event_is_cleared", over).Error
	})
	if err != nil {
		s.logger.Error("archive_store over failed", zap.Error(err), zap.String("actor_id", id.String()))
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "unique constraint")
}
