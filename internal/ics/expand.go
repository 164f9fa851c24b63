package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "schedulr/internal/log"
	"schedulr/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the zone all occurrences are converted to.
	// If nil, time.Local is used.
	Location *time.Location

	// RangeStart / RangeEnd bound the occurrences kept. An occurrence is
	// kept when it intersects [RangeStart, RangeEnd].
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps the expansion of a single RRULE.
	// If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and truncation info.
type ExpandResult struct {
	Events []model.SyncedEvent
	// TruncatedUIDs records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedUIDs []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete synced events within
// the configured range. It handles single events, RRULE recurrence, EXDATE
// removal, RECURRENCE-ID overrides and all-day semantics. Overrides for a
// UID are applied to the matching base instance instead of being emitted
// twice.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	order := make([]string, 0)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]model.SyncedEvent, 0)
	for _, uid := range order {
		overrides := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			var occ []model.SyncedEvent
			hitCap := false
			if ev.RawRRule == "" {
				occ = expandSingle(ev, overrides, cfg)
			} else {
				occ, hitCap = expandRecurring(ev, overrides, cfg)
			}
			truncated = truncated || hitCap
			out = append(out, occ...)
		}

		if truncated {
			result.TruncatedUIDs = append(result.TruncatedUIDs, uid)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = out
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.SyncedEvent {
	start, end := ev.Start, ev.End
	if o, ok := findOverride(overrides, start); ok {
		ev, start, end = o, o.Start, o.End
	}
	if !intersects(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.SyncedEvent{makeSynced(ev, start, end, cfg.Location)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.SyncedEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event length so instances that started
	// before RangeStart but are still running are kept.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	times := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.SyncedEvent, 0, len(times))
	for _, occStart := range times {
		var occEnd time.Time
		if ev.AllDay {
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occEnd = occStart.AddDate(0, 0, 1)
		} else {
			occEnd = occStart.Add(dur)
		}

		base := ev
		if o, ok := findOverride(overrides, occStart); ok {
			base, occStart, occEnd = o, o.Start, o.End
		}
		if !intersects(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeSynced(base, occStart, occEnd, cfg.Location))
	}
	return out, hitCap
}

// findOverride finds the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeSynced(ev ParsedEvent, start, end time.Time, loc *time.Location) model.SyncedEvent {
	startLocal := start.In(loc)
	return model.SyncedEvent{
		UserID:   ev.Source.UserID,
		SourceID: ev.Source.ID,
		UID:      ev.UID,
		// The start instant is a stable per-instance key.
		InstanceKey: startLocal.UTC().Format(time.RFC3339),
		Title:       ev.Summary,
		Start:       startLocal,
		End:         end.In(loc),
		Busy:        ev.Busy(),
		AllDay:      ev.AllDay,
	}
}

// intersects is inclusive on both ends of the range.
func intersects(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
