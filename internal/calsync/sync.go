// Package calsync mirrors subscribed ICS calendars into the store's synced
// events, on demand or on a cron schedule.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schedulr/internal/config"
	"schedulr/internal/ics"
	appLog "schedulr/internal/log"
	"schedulr/internal/model"
)

// ErrSyncInProgress is returned when SyncAll is called while a sync is
// already running.
var ErrSyncInProgress = errors.New("calsync: sync already in progress")

// Writer persists the expanded events of one source and drops the events
// of sources that are no longer configured.
type Writer interface {
	ReplaceSyncedEvents(ctx context.Context, userID, sourceID string, events []model.SyncedEvent) (int, error)
	DeleteSyncedSourcesExcept(ctx context.Context, keep []model.SyncSource) (int, error)
}

// Fetcher is satisfied by *ics.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Report summarizes one SyncAll run.
type Report struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Sources  int           `json:"sources"`
	Synced   int           `json:"synced"`
	Events   int           `json:"events"`
	Pruned   int           `json:"pruned"`
	Errors   []string      `json:"errors,omitempty"`
}

// Syncer runs fetch, parse, expand and store for every configured calendar.
type Syncer struct {
	fetcher Fetcher
	writer  Writer

	mu        sync.Mutex
	calendars []config.CalendarConfig
	loc       *time.Location
	horizon   int
	now       func() time.Time

	running sync.Mutex
}

// NewSyncer builds a Syncer from cfg.
func NewSyncer(cfg *config.Config, fetcher Fetcher, writer Writer) *Syncer {
	s := &Syncer{fetcher: fetcher, writer: writer, now: time.Now}
	s.Apply(cfg)
	return s
}

// Apply swaps in new calendar settings; a running sync keeps the old ones.
func (s *Syncer) Apply(cfg *config.Config) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.Error("calsync: failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		loc = time.Local
	}
	s.mu.Lock()
	s.calendars = append([]config.CalendarConfig(nil), cfg.Calendars...)
	s.loc = loc
	s.horizon = cfg.HorizonDays
	s.mu.Unlock()
}

// SyncAll mirrors every calendar. Per-source failures are collected in the
// report and leave that source's previously stored events untouched.
func (s *Syncer) SyncAll(ctx context.Context) (Report, error) {
	if !s.running.TryLock() {
		return Report{}, ErrSyncInProgress
	}
	defer s.running.Unlock()

	s.mu.Lock()
	calendars := s.calendars
	loc := s.loc
	horizon := s.horizon
	s.mu.Unlock()

	started := s.now()
	report := Report{Started: started}

	sources := make([]ics.Source, 0, len(calendars))
	for _, c := range calendars {
		if c.URL == "" || c.UserID == "" {
			appLog.Warn("calsync: skipping calendar without url or user_id", "id", c.SourceID())
			continue
		}
		sources = append(sources, ics.Source{ID: c.SourceID(), UserID: c.UserID, URL: c.URL})
	}
	report.Sources = len(sources)

	// Sources whose fetch fails below stay in keep so their last good
	// events survive.
	keep := make([]model.SyncSource, 0, len(sources))
	for _, src := range sources {
		keep = append(keep, model.SyncSource{UserID: src.UserID, SourceID: src.ID})
	}
	pruned, err := s.writer.DeleteSyncedSourcesExcept(ctx, keep)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("prune removed calendars: %v", err))
	} else if pruned > 0 {
		report.Pruned = pruned
		appLog.Info("calendar sync: pruned events of removed calendars", "rows", pruned)
	}

	if len(sources) == 0 {
		return report, nil
	}

	// Keep yesterday so events running across midnight stay visible.
	local := started.In(loc)
	rangeStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	rangeEnd := rangeStart.AddDate(0, 0, horizon+1)

	results, fetchErrs := s.fetcher.FetchAll(ctx, sources)
	for _, err := range fetchErrs {
		report.Errors = append(report.Errors, err.Error())
	}

	for _, res := range results {
		parsed, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("source %s: parse: %v", res.Source.ID, err))
			continue
		}
		expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
			Location:   loc,
			RangeStart: rangeStart,
			RangeEnd:   rangeEnd,
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("source %s: expand: %v", res.Source.ID, err))
			continue
		}
		n, err := s.writer.ReplaceSyncedEvents(ctx, res.Source.UserID, res.Source.ID, expanded.Events)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("source %s: store: %v", res.Source.ID, err))
			continue
		}
		report.Synced++
		report.Events += n
	}

	report.Duration = s.now().Sub(started)
	appLog.Info("calendar sync finished",
		"sources", report.Sources,
		"synced", report.Synced,
		"events", report.Events,
		"errors", len(report.Errors),
		"took", report.Duration,
	)
	return report, nil
}
