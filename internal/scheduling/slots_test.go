package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedulr/internal/model"
)

var testDay = at(15, 0, 0)

func newTestScorer(src EventSource) *Scorer {
	return NewScorer(src, Options{Location: time.UTC, Now: fixedNow(at(1, 0, 0))})
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

type slot struct {
	start  time.Time
	score  int
	reason string
}

func slots(in []model.TimeSlotSuggestion) []slot {
	out := make([]slot, 0, len(in))
	for _, s := range in {
		out = append(out, slot{s.Start, s.Score, s.Reason})
	}
	return out
}

func TestFindBestTimeSlots_LunchMeetingScenario(t *testing.T) {
	src := &fakeSource{firstParty: []model.FirstPartyEvent{fp("lunch", at(15, 13, 0))}}

	got := newTestScorer(src).FindBestTimeSlots(context.Background(), SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: 60,
	})

	assert.Equal(t, []slot{
		{at(15, 10, 0), 130, ReasonGoodBuffer},
		{at(15, 11, 0), 130, ReasonGoodBuffer},
		{at(15, 15, 0), 130, ReasonGoodBuffer},
		{at(15, 10, 30), 125, ReasonGoodBuffer},
		{at(15, 11, 30), 125, ReasonGoodBuffer},
	}, slots(got))
	for _, s := range got {
		assert.Equal(t, time.Hour, s.End.Sub(s.Start))
	}
}

func TestFindBestTimeSlots_RejectsOverlapsButKeepsAdjacentCandidates(t *testing.T) {
	src := &fakeSource{firstParty: []model.FirstPartyEvent{fp("lunch", at(15, 13, 0))}}
	// Only the windows right around the meeting remain in range.
	q := SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: 60,
		Preferences: model.PreferenceOverrides{StartHour: intPtr(12), EndHour: intPtr(15)},
	}

	got := newTestScorer(src).FindBestTimeSlots(context.Background(), q)

	// 12:30, 13:00 and 13:30 overlap 13:00-14:00; 12:00 and 14:00 touch it.
	assert.ElementsMatch(t, []slot{
		{at(15, 12, 0), 75, ReasonTooClose},
		{at(15, 14, 0), 85, ReasonTooClose},
	}, slots(got))
}

func TestFindBestTimeSlots_EmptyDayDefaults(t *testing.T) {
	got := newTestScorer(&fakeSource{}).FindBestTimeSlots(context.Background(), SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: 60,
	})

	// No busy entries: no buffer bonus, so focus hours on the hour lead.
	assert.Equal(t, []slot{
		{at(15, 10, 0), 115, ReasonOptimalFocus},
		{at(15, 11, 0), 115, ReasonOptimalFocus},
		{at(15, 14, 0), 115, ReasonOptimalFocus},
		{at(15, 15, 0), 115, ReasonOptimalFocus},
		{at(15, 10, 30), 110, ReasonOptimalFocus},
	}, slots(got))
}

func TestFindBestTimeSlots_EarlyStartScores(t *testing.T) {
	got := newTestScorer(&fakeSource{}).FindBestTimeSlots(context.Background(), SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: 60,
		Preferences: model.PreferenceOverrides{StartHour: intPtr(8), EndHour: intPtr(10)},
	})

	assert.Equal(t, []slot{
		{at(15, 9, 0), 105, ReasonOnTheHour},
		{at(15, 8, 0), 85, ReasonOnTheHour},
		{at(15, 8, 30), 80, ReasonEarly},
	}, slots(got))
}

func TestFindBestTimeSlots_SkipsPastCandidates(t *testing.T) {
	s := NewScorer(&fakeSource{}, Options{Location: time.UTC, Now: fixedNow(at(15, 16, 10))})

	got := s.FindBestTimeSlots(context.Background(), SlotQuery{UserID: testUser, Date: testDay, DurationMinutes: 60})

	assert.Equal(t, []slot{
		{at(15, 16, 30), 100, ReasonAvailable},
		{at(15, 17, 0), 90, ReasonOnTheHour},
	}, slots(got))
}

func TestFindBestTimeSlots_RetrievalFailureReturnsEmpty(t *testing.T) {
	for name, src := range map[string]*fakeSource{
		"first-party": {firstPartyErr: errUnavailable},
		"synced":      {syncedErr: errUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			got := newTestScorer(src).FindBestTimeSlots(context.Background(), SlotQuery{UserID: testUser, Date: testDay})
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestFindBestTimeSlots_BoundsAndNoOverlap(t *testing.T) {
	src := &fakeSource{
		firstParty: []model.FirstPartyEvent{fp("a", at(15, 9, 30)), fp("b", at(15, 16, 0))},
		synced: []model.SyncedEvent{
			synced("s1", at(15, 11, 15), at(15, 12, 45)),
			synced("s2", at(15, 14, 0), at(15, 14, 20)),
		},
	}
	busy := []model.Window{
		{Start: at(15, 9, 30), End: at(15, 10, 30)},
		{Start: at(15, 16, 0), End: at(15, 17, 0)},
		{Start: at(15, 11, 15), End: at(15, 12, 45)},
		{Start: at(15, 14, 0), End: at(15, 14, 20)},
	}

	for _, dur := range []int{15, 30, 45, 60, 90, 120, 240} {
		got := newTestScorer(src).FindBestTimeSlots(context.Background(), SlotQuery{
			UserID: testUser, Date: testDay, DurationMinutes: dur,
		})
		assert.LessOrEqual(t, len(got), 5, "duration %d", dur)
		for _, s := range got {
			assert.False(t, s.Start.Before(at(15, 9, 0)), "duration %d start %v", dur, s.Start)
			assert.False(t, s.End.After(at(15, 18, 0)), "duration %d end %v", dur, s.End)
			w := model.Window{Start: s.Start, End: s.End}
			for _, b := range busy {
				assert.False(t, w.Overlaps(b), "duration %d window %v overlaps %v", dur, w, b)
			}
		}
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	}
}

func TestFindBestTimeSlots_Deterministic(t *testing.T) {
	src := &fakeSource{
		firstParty: []model.FirstPartyEvent{fp("a", at(15, 10, 0))},
		synced:     []model.SyncedEvent{synced("s1", at(15, 15, 0), at(15, 15, 30))},
	}
	q := SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: 30,
		Preferences: model.PreferenceOverrides{PreferAfternoon: boolPtr(true)},
	}
	s := newTestScorer(src)

	first := s.FindBestTimeSlots(context.Background(), q)
	require.NotEmpty(t, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.FindBestTimeSlots(context.Background(), q))
	}
}

func TestFindBestTimeSlots_UsesConfiguredLocation(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	// 13:00 KST is 04:00 UTC.
	src := &fakeSource{firstParty: []model.FirstPartyEvent{fp("lunch", time.Date(2024, 1, 15, 4, 0, 0, 0, time.UTC))}}
	s := NewScorer(src, Options{Location: kst, Now: fixedNow(at(1, 0, 0))})

	got := s.FindBestTimeSlots(context.Background(), SlotQuery{
		UserID: testUser, Date: time.Date(2024, 1, 15, 12, 0, 0, 0, kst), DurationMinutes: 60,
	})

	require.Len(t, got, 5)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, kst).UTC(), got[0].Start.UTC())
	assert.Equal(t, 130, got[0].Score)
}

func TestFindBestTimeSlots_UsesOptionDefaults(t *testing.T) {
	defaults := model.DefaultPreferences()
	defaults.PreferMorning = true
	s := NewScorer(&fakeSource{}, Options{Location: time.UTC, Now: fixedNow(at(1, 0, 0)), Defaults: defaults})

	got := s.FindBestTimeSlots(context.Background(), SlotQuery{UserID: testUser, Date: testDay})
	require.NotEmpty(t, got)
	assert.Equal(t, at(15, 10, 0), got[0].Start)
	assert.Equal(t, 135, got[0].Score)
	assert.Equal(t, ReasonMorning, got[0].Reason)
}

func TestScoreCandidate_ReasonIsFirstTriggeredClause(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.PreferMorning = true
	prefs.PreferAfternoon = true
	busy := []model.Window{{Start: at(15, 12, 0), End: at(15, 12, 30)}}

	cases := []struct {
		name   string
		start  time.Time
		score  int
		reason string
	}{
		{"morning plus everything", at(15, 10, 0), 100 + 20 + 15 + 10 + 5, ReasonMorning},
		{"morning but too close", at(15, 11, 0), 100 + 20 - 30 + 10 + 5, ReasonMorning},
		{"afternoon focus", at(15, 14, 30), 100 + 20 + 15 + 10, ReasonAfternoon},
		{"close after busy", at(15, 12, 30), 100 - 30 + 0, ReasonTooClose},
		{"late", at(15, 17, 0), 100 + 15 + 5 - 15, ReasonGoodBuffer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := model.Window{Start: tc.start, End: tc.start.Add(time.Hour)}
			score, reason := scoreCandidate(w, busy, prefs, time.UTC)
			assert.Equal(t, tc.score, score)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestScoreCandidate_AvoidBackToBackDisabled(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.AvoidBackToBack = false
	busy := []model.Window{{Start: at(15, 11, 0), End: at(15, 12, 0)}}

	score, reason := scoreCandidate(model.Window{Start: at(15, 9, 30), End: at(15, 11, 0)}, busy, prefs, time.UTC)
	assert.Equal(t, 100, score)
	assert.Equal(t, ReasonAvailable, reason)
}

func TestTooClose_CustomGap(t *testing.T) {
	busy := []model.Window{{Start: at(15, 12, 0), End: at(15, 13, 0)}}
	w := model.Window{Start: at(15, 13, 10), End: at(15, 14, 0)}

	assert.True(t, tooClose(w, busy, 15*time.Minute))
	assert.False(t, tooClose(w, busy, 10*time.Minute))
}

func TestFindBestTimeSlots_DurationAboveOneDayYieldsNothing(t *testing.T) {
	src := &fakeSource{}
	scorer := newTestScorer(src)

	got := scorer.FindBestTimeSlots(context.Background(), SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: 153722868,
	})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, src.calls)

	got = scorer.FindBestTimeSlots(context.Background(), SlotQuery{
		UserID: testUser, Date: testDay, DurationMinutes: MaxDurationMinutes,
	})
	assert.Empty(t, got, "a full day never fits in working hours")
}
