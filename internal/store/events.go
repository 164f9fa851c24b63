package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"schedulr/internal/model"
)

// CreateEvent inserts a first-party event. ID and CreatedAt are assigned
// when empty.
func (s *Store) CreateEvent(ctx context.Context, ev model.FirstPartyEvent) (model.FirstPartyEvent, error) {
	if strings.TrimSpace(ev.UserID) == "" {
		return model.FirstPartyEvent{}, errors.New("store: event user_id is required")
	}
	if ev.Start.IsZero() {
		return model.FirstPartyEvent{}, errors.New("store: event start is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	ev.Start = fromMillis(toMillis(ev.Start))
	ev.CreatedAt = fromMillis(toMillis(ev.CreatedAt))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, user_id, title, start_ms, completed, created_ms) VALUES(?,?,?,?,?,?)`,
		ev.ID, ev.UserID, ev.Title, toMillis(ev.Start), boolInt(ev.Completed), toMillis(ev.CreatedAt),
	)
	if err != nil {
		return model.FirstPartyEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// GetEvent returns a single first-party event owned by userID.
func (s *Store) GetEvent(ctx context.Context, userID, id string) (model.FirstPartyEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, start_ms, completed, created_ms FROM events WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FirstPartyEvent{}, ErrNotFound
	}
	return ev, err
}

// CompleteEvent marks a first-party event completed. Completed events are no
// longer considered busy.
func (s *Store) CompleteEvent(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET completed = 1 WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("complete event: %w", err)
	}
	return requireAffected(res)
}

// DeleteEvent removes a first-party event.
func (s *Store) DeleteEvent(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireAffected(res)
}

// ListFirstPartyEvents returns the user's first-party events whose start lies
// in [from, to] (inclusive) and whose completed flag equals completed,
// ordered by start.
func (s *Store) ListFirstPartyEvents(ctx context.Context, userID string, from, to time.Time, completed bool) ([]model.FirstPartyEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, start_ms, completed, created_ms FROM events
		 WHERE user_id = ? AND start_ms >= ? AND start_ms <= ? AND completed = ?
		 ORDER BY start_ms, id`,
		userID, toMillis(from), toMillis(to), boolInt(completed),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]model.FirstPartyEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(r scanner) (model.FirstPartyEvent, error) {
	var (
		ev        model.FirstPartyEvent
		startMs   int64
		createdMs int64
		completed int
	)
	if err := r.Scan(&ev.ID, &ev.UserID, &ev.Title, &startMs, &completed, &createdMs); err != nil {
		return model.FirstPartyEvent{}, err
	}
	ev.Start = fromMillis(startMs)
	ev.CreatedAt = fromMillis(createdMs)
	ev.Completed = completed != 0
	return ev, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
