// Package booking implements public booking links: guests see a user's
// best free slots for a day and book one of them.
package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	appLog "schedulr/internal/log"
	"schedulr/internal/model"
	"schedulr/internal/scheduling"
	"schedulr/internal/store"
)

var (
	// ErrSlotTaken is returned when the requested start conflicts with an
	// existing event.
	ErrSlotTaken = errors.New("booking: slot is no longer available")
	// ErrLinkInactive is returned for disabled links.
	ErrLinkInactive = errors.New("booking: link is inactive")
	// ErrInvalidRequest wraps validation failures.
	ErrInvalidRequest = errors.New("booking: invalid request")
)

const (
	minDurationMinutes = 5
	maxDurationMinutes = 8 * 60
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,62}$`)

// Repository is the persistence used by the service.
type Repository interface {
	CreateBookingLink(ctx context.Context, l model.BookingLink) (model.BookingLink, error)
	GetBookingLinkBySlug(ctx context.Context, slug string) (model.BookingLink, error)
	ListBookingLinks(ctx context.Context, userID string) ([]model.BookingLink, error)
	CreateEvent(ctx context.Context, ev model.FirstPartyEvent) (model.FirstPartyEvent, error)
}

// ConflictChecker is satisfied by *scheduling.Detector.
type ConflictChecker interface {
	CheckForConflicts(ctx context.Context, q scheduling.ConflictQuery) model.ConflictResult
}

// SlotFinder is satisfied by *scheduling.Scorer.
type SlotFinder interface {
	FindBestTimeSlots(ctx context.Context, q scheduling.SlotQuery) []model.TimeSlotSuggestion
}

// Service manages booking links.
type Service struct {
	repo      Repository
	conflicts ConflictChecker
	slots     SlotFinder
	opts      scheduling.Options
}

// NewService wires a booking Service. opts supplies the location, default
// preferences and clock used to validate booking requests; pass the same
// options the detector and scorer were built with.
func NewService(repo Repository, conflicts ConflictChecker, slots SlotFinder, opts scheduling.Options) *Service {
	return &Service{repo: repo, conflicts: conflicts, slots: slots, opts: opts.WithDefaults()}
}

// CreateLinkRequest describes a new booking link. An empty Slug gets a
// random one.
type CreateLinkRequest struct {
	Slug            string                    `json:"slug"`
	Title           string                    `json:"title"`
	DurationMinutes int                       `json:"duration_minutes"`
	Preferences     model.PreferenceOverrides `json:"preferences"`
}

// CreateLink stores an active link for userID.
func (s *Service) CreateLink(ctx context.Context, userID string, req CreateLinkRequest) (model.BookingLink, error) {
	if strings.TrimSpace(userID) == "" {
		return model.BookingLink{}, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	if req.DurationMinutes < minDurationMinutes || req.DurationMinutes > maxDurationMinutes {
		return model.BookingLink{}, fmt.Errorf("%w: duration_minutes must be between %d and %d",
			ErrInvalidRequest, minDurationMinutes, maxDurationMinutes)
	}

	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		var err error
		if slug, err = randomSlug(); err != nil {
			return model.BookingLink{}, err
		}
	}
	if !slugPattern.MatchString(slug) {
		return model.BookingLink{}, fmt.Errorf("%w: slug must be 3-63 lowercase letters, digits or dashes", ErrInvalidRequest)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Meeting"
	}

	link, err := s.repo.CreateBookingLink(ctx, model.BookingLink{
		Slug:            slug,
		UserID:          userID,
		Title:           title,
		DurationMinutes: req.DurationMinutes,
		Preferences:     req.Preferences,
		Active:          true,
	})
	if err != nil {
		return model.BookingLink{}, err
	}
	appLog.Info("booking link created", "user_id", userID, "slug", slug)
	return link, nil
}

// ListLinks returns userID's links.
func (s *Service) ListLinks(ctx context.Context, userID string) ([]model.BookingLink, error) {
	return s.repo.ListBookingLinks(ctx, userID)
}

// Availability returns the ranked slots of the link owner on date.
func (s *Service) Availability(ctx context.Context, slug string, date time.Time) (model.BookingLink, []model.TimeSlotSuggestion, error) {
	link, err := s.activeLink(ctx, slug)
	if err != nil {
		return model.BookingLink{}, nil, err
	}
	suggestions := s.slots.FindBestTimeSlots(ctx, scheduling.SlotQuery{
		UserID:          link.UserID,
		Date:            date,
		DurationMinutes: link.DurationMinutes,
		Preferences:     link.Preferences,
	})
	return link, suggestions, nil
}

// BookRequest is a guest booking.
type BookRequest struct {
	Start     time.Time `json:"start"`
	GuestName string    `json:"guest_name"`
}

// Book creates a first-party event for the link owner unless the window
// conflicts. Two simultaneous bookings of the same slot are not arbitrated.
func (s *Service) Book(ctx context.Context, slug string, req BookRequest) (model.FirstPartyEvent, error) {
	if req.Start.IsZero() {
		return model.FirstPartyEvent{}, fmt.Errorf("%w: start is required", ErrInvalidRequest)
	}
	link, err := s.activeLink(ctx, slug)
	if err != nil {
		return model.FirstPartyEvent{}, err
	}
	if err := s.checkBookable(link, req.Start); err != nil {
		return model.FirstPartyEvent{}, err
	}

	res := s.conflicts.CheckForConflicts(ctx, scheduling.ConflictQuery{
		UserID:          link.UserID,
		Start:           req.Start,
		DurationMinutes: link.DurationMinutes,
	})
	if res.HasConflict {
		appLog.Info("booking rejected: conflict", "slug", slug, "start", req.Start, "conflicts", len(res.Conflicts))
		return model.FirstPartyEvent{}, ErrSlotTaken
	}

	title := link.Title
	if guest := strings.TrimSpace(req.GuestName); guest != "" {
		title = link.Title + " with " + guest
	}
	ev, err := s.repo.CreateEvent(ctx, model.FirstPartyEvent{
		UserID: link.UserID,
		Title:  title,
		Start:  req.Start,
	})
	if err != nil {
		return model.FirstPartyEvent{}, err
	}
	appLog.Info("booking created", "slug", slug, "event_id", ev.ID, "start", ev.Start)
	return ev, nil
}

// checkBookable accepts only starts the link could have offered: not in the
// past, on the slot grid, and fully inside the owner's working hours.
func (s *Service) checkBookable(link model.BookingLink, start time.Time) error {
	if start.Before(s.opts.Now()) {
		return fmt.Errorf("%w: start is in the past", ErrInvalidRequest)
	}
	prefs := link.Preferences.Merge(s.opts.Defaults)
	local := start.In(s.opts.Location)
	y, m, d := local.Date()
	workStart := time.Date(y, m, d, prefs.StartHour, 0, 0, 0, s.opts.Location)
	workEnd := time.Date(y, m, d, prefs.EndHour, 0, 0, 0, s.opts.Location)
	end := start.Add(time.Duration(link.DurationMinutes) * time.Minute)

	if start.Before(workStart) || end.After(workEnd) {
		return fmt.Errorf("%w: start must fall within %02d:00-%02d:00", ErrInvalidRequest, prefs.StartHour, prefs.EndHour)
	}
	if start.Sub(workStart)%scheduling.SlotStride != 0 {
		return fmt.Errorf("%w: start must be on a %s boundary", ErrInvalidRequest, scheduling.SlotStride)
	}
	return nil
}

func (s *Service) activeLink(ctx context.Context, slug string) (model.BookingLink, error) {
	link, err := s.repo.GetBookingLinkBySlug(ctx, slug)
	if err != nil {
		return model.BookingLink{}, err
	}
	if !link.Active {
		return model.BookingLink{}, ErrLinkInactive
	}
	return link, nil
}

func randomSlug() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate slug: %w", err)
	}
	return "meet-" + hex.EncodeToString(b), nil
}

var _ Repository = (*store.Store)(nil)
