package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"schedulr/internal/model"
)

// ErrSlugTaken is returned when a booking link slug already exists.
var ErrSlugTaken = errors.New("store: slug already taken")

// CreateBookingLink inserts a booking link. ID and CreatedAt are assigned
// when empty.
func (s *Store) CreateBookingLink(ctx context.Context, l model.BookingLink) (model.BookingLink, error) {
	if l.UserID == "" || l.Slug == "" {
		return model.BookingLink{}, errors.New("store: link user_id and slug are required")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.CreatedAt = fromMillis(toMillis(l.CreatedAt))

	prefs, err := json.Marshal(l.Preferences)
	if err != nil {
		return model.BookingLink{}, fmt.Errorf("encode preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO booking_links(id, slug, user_id, title, duration_minutes, preferences, active, created_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		l.ID, l.Slug, l.UserID, l.Title, l.DurationMinutes, string(prefs), boolInt(l.Active), toMillis(l.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: booking_links.slug") {
			return model.BookingLink{}, ErrSlugTaken
		}
		return model.BookingLink{}, fmt.Errorf("insert booking link: %w", err)
	}
	return l, nil
}

// GetBookingLinkBySlug looks up a booking link by its public slug.
func (s *Store) GetBookingLinkBySlug(ctx context.Context, slug string) (model.BookingLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, user_id, title, duration_minutes, preferences, active, created_ms
		 FROM booking_links WHERE slug = ?`, slug)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BookingLink{}, ErrNotFound
	}
	return l, err
}

// ListBookingLinks returns all links owned by userID, newest first.
func (s *Store) ListBookingLinks(ctx context.Context, userID string) ([]model.BookingLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, user_id, title, duration_minutes, preferences, active, created_ms
		 FROM booking_links WHERE user_id = ? ORDER BY created_ms DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list booking links: %w", err)
	}
	defer rows.Close()

	out := make([]model.BookingLink, 0)
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetBookingLinkActive enables or disables a link.
func (s *Store) SetBookingLinkActive(ctx context.Context, userID, slug string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE booking_links SET active = ? WHERE user_id = ? AND slug = ?`, boolInt(active), userID, slug)
	if err != nil {
		return fmt.Errorf("update booking link: %w", err)
	}
	return requireAffected(res)
}

func scanLink(r scanner) (model.BookingLink, error) {
	var (
		l         model.BookingLink
		prefs     string
		active    int
		createdMs int64
	)
	if err := r.Scan(&l.ID, &l.Slug, &l.UserID, &l.Title, &l.DurationMinutes, &prefs, &active, &createdMs); err != nil {
		return model.BookingLink{}, err
	}
	if prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &l.Preferences); err != nil {
			return model.BookingLink{}, fmt.Errorf("decode preferences: %w", err)
		}
	}
	l.Active = active != 0
	l.CreatedAt = fromMillis(createdMs)
	return l, nil
}
