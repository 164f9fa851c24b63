package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"schedulr/internal/model"
)

// fakeSource mimics the store's filtering over in-memory rows.
type fakeSource struct {
	mu sync.Mutex

	firstParty []model.FirstPartyEvent
	synced     []model.SyncedEvent

	firstPartyErr error
	syncedErr     error

	calls []window
}

type window struct {
	from, to time.Time
}

func (f *fakeSource) ListFirstPartyEvents(_ context.Context, userID string, from, to time.Time, completed bool) ([]model.FirstPartyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, window{from, to})
	if f.firstPartyErr != nil {
		return nil, f.firstPartyErr
	}
	out := make([]model.FirstPartyEvent, 0)
	for _, ev := range f.firstParty {
		if ev.UserID != userID || ev.Completed != completed {
			continue
		}
		if ev.Start.Before(from) || ev.Start.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeSource) ListSyncedEvents(_ context.Context, userID string, from, to time.Time, busy bool) ([]model.SyncedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, window{from, to})
	if f.syncedErr != nil {
		return nil, f.syncedErr
	}
	out := make([]model.SyncedEvent, 0)
	for _, ev := range f.synced {
		if ev.UserID != userID || ev.Busy != busy {
			continue
		}
		if ev.Start.Before(from) || ev.Start.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

var errUnavailable = errors.New("source unavailable")

const testUser = "u1"

func at(day, hh, mm int) time.Time {
	return time.Date(2024, 1, day, hh, mm, 0, 0, time.UTC)
}

func fp(id string, start time.Time) model.FirstPartyEvent {
	return model.FirstPartyEvent{ID: id, UserID: testUser, Title: "fp " + id, Start: start}
}

func synced(id string, start, end time.Time) model.SyncedEvent {
	return model.SyncedEvent{ID: id, UserID: testUser, Title: "synced " + id, Start: start, End: end, Busy: true}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
