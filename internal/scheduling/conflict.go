package scheduling

import (
	"context"
	"time"

	appLog "schedulr/internal/log"
	"schedulr/internal/model"
)

// searchPadding bounds the source queries around a proposed window. Overlap
// is still computed exactly afterwards.
const searchPadding = 2 * time.Hour

const defaultDurationMinutes = 60

// MaxDurationMinutes is the longest event either component accepts.
const MaxDurationMinutes = 24 * 60

// ValidDuration reports whether minutes is acceptable as a request
// duration. Zero and negative values select the 60 minute default.
func ValidDuration(minutes int) bool {
	return minutes <= MaxDurationMinutes
}

// ConflictQuery describes a proposed event.
type ConflictQuery struct {
	UserID string
	Start  time.Time
	// DurationMinutes defaults to 60 when <= 0 and is clamped to
	// MaxDurationMinutes.
	DurationMinutes int
	// ExcludeEventID skips the first-party event being edited.
	ExcludeEventID string
}

// Detector decides whether a proposed event overlaps committed events.
type Detector struct {
	src  EventSource
	opts Options
}

// NewDetector constructs a Detector reading from src.
func NewDetector(src EventSource, opts Options) *Detector {
	return &Detector{src: src, opts: opts.WithDefaults()}
}

// CheckForConflicts reports every committed event overlapping the proposed
// window, first-party events before synced ones. A source that fails is
// logged and treated as empty, so the result may under-report conflicts
// during a partial outage; no error is returned.
func (d *Detector) CheckForConflicts(ctx context.Context, q ConflictQuery) model.ConflictResult {
	dur := q.DurationMinutes
	if dur <= 0 {
		dur = defaultDurationMinutes
	}
	if dur > MaxDurationMinutes {
		appLog.Warn("conflict check: duration clamped", "user_id", q.UserID, "duration_min", dur)
		dur = MaxDurationMinutes
	}
	proposed := model.Window{
		Start: q.Start,
		End:   q.Start.Add(time.Duration(dur) * time.Minute),
	}

	res := fetchCommitted(ctx, d.src, q.UserID,
		proposed.Start.Add(-searchPadding), proposed.End.Add(searchPadding),
		d.opts.FirstPartyDuration)
	if res.firstPartyErr != nil {
		appLog.Error("conflict check: first-party events unavailable", res.firstPartyErr, "user_id", q.UserID)
	}
	if res.syncedErr != nil {
		appLog.Error("conflict check: synced events unavailable", res.syncedErr, "user_id", q.UserID)
	}

	result := model.ConflictResult{Conflicts: make([]model.Conflict, 0)}
	for _, ev := range res.firstParty {
		if q.ExcludeEventID != "" && ev.ID == q.ExcludeEventID {
			continue
		}
		if proposed.Overlaps(ev.Window()) {
			result.Conflicts = append(result.Conflicts, toConflict(ev))
		}
	}
	for _, ev := range res.synced {
		if proposed.Overlaps(ev.Window()) {
			result.Conflicts = append(result.Conflicts, toConflict(ev))
		}
	}
	result.HasConflict = len(result.Conflicts) > 0

	appLog.Debug("conflict check done",
		"user_id", q.UserID,
		"start", proposed.Start,
		"duration_min", dur,
		"conflicts", len(result.Conflicts),
	)
	return result
}

func toConflict(ev model.CommittedEvent) model.Conflict {
	return model.Conflict{
		ID:     ev.ID,
		Title:  ev.Title,
		Start:  ev.Start,
		Origin: ev.Origin,
	}
}
