package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"schedulr/internal/model"
)

// syncedNamespace seeds deterministic synced-event IDs so that re-syncing
// an unchanged calendar yields the same IDs.
var syncedNamespace = uuid.MustParse("6f1c2b8e-3d4a-4e5f-9a0b-1c2d3e4f5a6b")

// SyncedEventID derives the stable ID of a synced occurrence.
func SyncedEventID(userID, sourceID, uid, instanceKey string) string {
	key := userID + "\x00" + sourceID + "\x00" + uid + "\x00" + instanceKey
	return uuid.NewSHA1(syncedNamespace, []byte(key)).String()
}

// ListSyncedEvents returns the user's synced events whose start lies in
// [from, to] (inclusive) and whose busy flag equals busy, ordered by start.
func (s *Store) ListSyncedEvents(ctx context.Context, userID string, from, to time.Time, busy bool) ([]model.SyncedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source_id, uid, instance_key, title, start_ms, end_ms, busy, all_day
		 FROM synced_events
		 WHERE user_id = ? AND start_ms >= ? AND start_ms <= ? AND busy = ?
		 ORDER BY start_ms, id`,
		userID, toMillis(from), toMillis(to), boolInt(busy),
	)
	if err != nil {
		return nil, fmt.Errorf("list synced events: %w", err)
	}
	defer rows.Close()

	out := make([]model.SyncedEvent, 0)
	for rows.Next() {
		var (
			ev             model.SyncedEvent
			startMs, endMs int64
			busyI, allDayI int
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SourceID, &ev.UID, &ev.InstanceKey, &ev.Title,
			&startMs, &endMs, &busyI, &allDayI); err != nil {
			return nil, err
		}
		ev.Start = fromMillis(startMs)
		ev.End = fromMillis(endMs)
		ev.Busy = busyI != 0
		ev.AllDay = allDayI != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReplaceSyncedEvents atomically replaces every synced event of one
// (user, source) pair with events. Events with End <= Start are skipped.
// It returns the number of rows written.
func (s *Store) ReplaceSyncedEvents(ctx context.Context, userID, sourceID string, events []model.SyncedEvent) (int, error) {
	if userID == "" || sourceID == "" {
		return 0, errors.New("store: user_id and source_id are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM synced_events WHERE user_id = ? AND source_id = ?`, userID, sourceID); err != nil {
		return 0, fmt.Errorf("clear synced events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO synced_events(id, user_id, source_id, uid, instance_key, title, start_ms, end_ms, busy, all_day)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, ev := range events {
		if !ev.End.After(ev.Start) {
			continue
		}
		id := ev.ID
		if id == "" {
			id = SyncedEventID(userID, sourceID, ev.UID, ev.InstanceKey)
		}
		if _, err := stmt.ExecContext(ctx, id, userID, sourceID, ev.UID, ev.InstanceKey, ev.Title,
			toMillis(ev.Start), toMillis(ev.End), boolInt(ev.Busy), boolInt(ev.AllDay)); err != nil {
			return 0, fmt.Errorf("insert synced event: %w", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// DeleteSyncedSourcesExcept removes the synced events of every
// (user, source) pair not listed in keep, such as calendars dropped from the
// config. It returns the number of rows deleted.
func (s *Store) DeleteSyncedSourcesExcept(ctx context.Context, keep []model.SyncSource) (int, error) {
	kept := make(map[model.SyncSource]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT user_id, source_id FROM synced_events`)
	if err != nil {
		return 0, fmt.Errorf("list synced sources: %w", err)
	}
	var stale []model.SyncSource
	for rows.Next() {
		var src model.SyncSource
		if err := rows.Scan(&src.UserID, &src.SourceID); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := kept[src]; !ok {
			stale = append(stale, src)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, src := range stale {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM synced_events WHERE user_id = ? AND source_id = ?`, src.UserID, src.SourceID)
		if err != nil {
			return 0, fmt.Errorf("delete synced source %s: %w", src.SourceID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}
