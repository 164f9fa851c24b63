package scheduling

import (
	"context"
	"sort"
	"time"

	appLog "schedulr/internal/log"
	"schedulr/internal/model"
)

// SlotStride is the spacing of candidate starts from the working-day start.
const SlotStride = 30 * time.Minute

const (
	maxSuggestions = 5
	baseScore      = 100
)

// Reasons attached to suggestions. Only the first triggered clause is kept.
const (
	ReasonMorning      = "Morning preference"
	ReasonAfternoon    = "Afternoon preference"
	ReasonTooClose     = "Too close to other events"
	ReasonGoodBuffer   = "Good buffer between events"
	ReasonOptimalFocus = "Optimal focus time"
	ReasonOnTheHour    = "Starts on the hour"
	ReasonEarly        = "Early start"
	ReasonLate         = "Late in the day"
	ReasonAvailable    = "Available"
)

// SlotQuery asks for the best windows on one calendar day.
type SlotQuery struct {
	UserID string
	// Date selects the calendar day in the configured location; the time of
	// day is ignored.
	Date time.Time
	// DurationMinutes defaults to 60 when <= 0. Values above
	// MaxDurationMinutes yield no suggestions.
	DurationMinutes int
	Preferences     model.PreferenceOverrides
}

// Scorer ranks candidate windows of a day.
type Scorer struct {
	src  EventSource
	opts Options
}

// NewScorer constructs a Scorer reading from src.
func NewScorer(src EventSource, opts Options) *Scorer {
	return &Scorer{src: src, opts: opts.WithDefaults()}
}

// FindBestTimeSlots returns up to five conflict-free windows inside the
// day's working hours, ranked by score descending. Equal scores keep
// earlier-in-day candidates first. If either source fails the result is
// empty.
func (s *Scorer) FindBestTimeSlots(ctx context.Context, q SlotQuery) []model.TimeSlotSuggestion {
	prefs := q.Preferences.Merge(s.opts.Defaults)
	loc := s.opts.Location

	dur := q.DurationMinutes
	if dur <= 0 {
		dur = defaultDurationMinutes
	}
	if dur > MaxDurationMinutes {
		appLog.Warn("find best time slots: duration out of range", "user_id", q.UserID, "duration_min", dur)
		return []model.TimeSlotSuggestion{}
	}
	duration := time.Duration(dur) * time.Minute

	local := q.Date.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Millisecond)
	workStart := time.Date(local.Year(), local.Month(), local.Day(), prefs.StartHour, 0, 0, 0, loc)
	workEnd := time.Date(local.Year(), local.Month(), local.Day(), prefs.EndHour, 0, 0, 0, loc)

	res := fetchCommitted(ctx, s.src, q.UserID, dayStart, dayEnd, s.opts.FirstPartyDuration)
	if err := res.err(); err != nil {
		appLog.Error("find best time slots: event retrieval failed", err,
			"user_id", q.UserID,
			"date", dayStart.Format(time.DateOnly),
		)
		return []model.TimeSlotSuggestion{}
	}

	busy := make([]model.Window, 0, len(res.firstParty)+len(res.synced))
	for _, ev := range res.firstParty {
		busy = append(busy, ev.Window())
	}
	for _, ev := range res.synced {
		busy = append(busy, ev.Window())
	}
	sort.SliceStable(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	now := s.opts.Now()
	suggestions := make([]model.TimeSlotSuggestion, 0)

	for cand := workStart; !cand.Add(duration).After(workEnd); cand = cand.Add(SlotStride) {
		if cand.Before(now) {
			continue
		}
		w := model.Window{Start: cand, End: cand.Add(duration)}
		if overlapsAny(w, busy) {
			continue
		}
		score, reason := scoreCandidate(w, busy, prefs, loc)
		suggestions = append(suggestions, model.TimeSlotSuggestion{
			Start:  w.Start,
			End:    w.End,
			Score:  score,
			Reason: reason,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	appLog.Debug("slot suggestions computed",
		"user_id", q.UserID,
		"date", dayStart.Format(time.DateOnly),
		"busy", len(busy),
		"returned", len(suggestions),
	)
	return suggestions
}

func overlapsAny(w model.Window, busy []model.Window) bool {
	for _, b := range busy {
		if w.Overlaps(b) {
			return true
		}
	}
	return false
}

// scoreCandidate applies the additive heuristic. Clauses are independent;
// the reason is the first one that fired, in evaluation order.
func scoreCandidate(w model.Window, busy []model.Window, prefs model.Preferences, loc *time.Location) (int, string) {
	score := baseScore
	reasons := make([]string, 0, 4)

	local := w.Start.In(loc)
	hour := local.Hour()

	if prefs.PreferMorning && hour >= 9 && hour < 12 {
		score += 20
		reasons = append(reasons, ReasonMorning)
	}
	if prefs.PreferAfternoon && hour >= 13 && hour < 17 {
		score += 20
		reasons = append(reasons, ReasonAfternoon)
	}

	if prefs.AvoidBackToBack {
		minGap := time.Duration(prefs.MinGapMinutes) * time.Minute
		if tooClose(w, busy, minGap) {
			score -= 30
			reasons = append(reasons, ReasonTooClose)
		} else if len(busy) > 0 {
			score += 15
			reasons = append(reasons, ReasonGoodBuffer)
		}
	}

	if hour == 10 || hour == 11 || hour == 14 || hour == 15 {
		score += 10
		reasons = append(reasons, ReasonOptimalFocus)
	}
	if local.Minute() == 0 {
		score += 5
		reasons = append(reasons, ReasonOnTheHour)
	}
	if hour < 9 {
		score -= 20
		reasons = append(reasons, ReasonEarly)
	}
	if hour >= 17 {
		score -= 15
		reasons = append(reasons, ReasonLate)
	}

	if len(reasons) == 0 {
		return score, ReasonAvailable
	}
	return score, reasons[0]
}

// tooClose reports whether a busy window ends less than minGap before w
// starts, or starts less than minGap after w ends.
func tooClose(w model.Window, busy []model.Window, minGap time.Duration) bool {
	for _, b := range busy {
		before := w.Start.Sub(b.End)
		after := b.Start.Sub(w.End)
		if (before >= 0 && before < minGap) || (after >= 0 && after < minGap) {
			return true
		}
	}
	return false
}
