// Package scheduling answers two read-only questions over a user's calendar:
// does a proposed event conflict with anything, and which windows of a day
// are the best fit for a new event.
//
// Both computations are request scoped. They read first-party and synced
// events from an EventSource, never write, and degrade to partial data when
// a source fails.
package scheduling

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"schedulr/internal/model"
)

// EventSource is the persistence collaborator. Both methods return rows
// whose start lies in [from, to] inclusive.
type EventSource interface {
	ListFirstPartyEvents(ctx context.Context, userID string, from, to time.Time, completed bool) ([]model.FirstPartyEvent, error)
	ListSyncedEvents(ctx context.Context, userID string, from, to time.Time, busy bool) ([]model.SyncedEvent, error)
}

// Options configures Detector and Scorer.
type Options struct {
	// Location defines the calendar day and hour-of-day used for scoring.
	// Defaults to time.Local.
	Location *time.Location

	// FirstPartyDuration is the implicit length of first-party events.
	// Defaults to model.DefaultFirstPartyDuration.
	FirstPartyDuration time.Duration

	// Defaults are the preferences request overrides merge over.
	// A zero value means model.DefaultPreferences().
	Defaults model.Preferences

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// WithDefaults fills unset fields with their documented defaults.
func (o Options) WithDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.FirstPartyDuration <= 0 {
		o.FirstPartyDuration = model.DefaultFirstPartyDuration
	}
	if o.Defaults == (model.Preferences{}) {
		o.Defaults = model.DefaultPreferences()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// fetchResult holds both sources' rows for a window. A failed source leaves
// its slice empty and records the error.
type fetchResult struct {
	firstParty []model.CommittedEvent
	synced     []model.CommittedEvent

	firstPartyErr error
	syncedErr     error
}

func (r fetchResult) err() error {
	if r.firstPartyErr != nil {
		return r.firstPartyErr
	}
	return r.syncedErr
}

// fetchCommitted reads not-completed first-party events and busy synced
// events concurrently. A failure in one source does not cancel the other.
func fetchCommitted(ctx context.Context, src EventSource, userID string, from, to time.Time, fpDur time.Duration) fetchResult {
	var (
		res fetchResult
		g   errgroup.Group
	)

	g.Go(func() error {
		rows, err := src.ListFirstPartyEvents(ctx, userID, from, to, false)
		if err != nil {
			res.firstPartyErr = err
			return nil
		}
		res.firstParty = make([]model.CommittedEvent, 0, len(rows))
		for _, row := range rows {
			res.firstParty = append(res.firstParty, model.FromFirstParty(row, fpDur))
		}
		return nil
	})
	g.Go(func() error {
		rows, err := src.ListSyncedEvents(ctx, userID, from, to, true)
		if err != nil {
			res.syncedErr = err
			return nil
		}
		res.synced = make([]model.CommittedEvent, 0, len(rows))
		for _, row := range rows {
			res.synced = append(res.synced, model.FromSynced(row))
		}
		return nil
	})
	_ = g.Wait()

	return res
}
