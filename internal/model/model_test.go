package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 1, hh, mm, 0, 0, time.UTC)
}

func TestWindowOverlapsIsSymmetric(t *testing.T) {
	windows := []Window{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(9, 30), End: at(10, 30)},
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(8, 0), End: at(12, 0)},
		{Start: at(11, 0), End: at(11, 15)},
	}
	for _, a := range windows {
		for _, b := range windows {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "a=%v b=%v", a, b)
		}
	}
}

func TestWindowAdjacencyIsNotOverlap(t *testing.T) {
	a := Window{Start: at(9, 0), End: at(10, 0)}
	b := Window{Start: at(10, 0), End: at(11, 0)}
	assert.False(t, a.Overlaps(b))

	b.Start = b.Start.Add(-time.Millisecond)
	assert.True(t, a.Overlaps(b))
}

func TestFromFirstPartyAssignsImplicitEnd(t *testing.T) {
	ev := FirstPartyEvent{ID: "e1", Title: "Standup", Start: at(10, 30)}

	got := FromFirstParty(ev, 0)
	assert.Equal(t, at(11, 30), got.End)
	assert.Equal(t, OriginFirstParty, got.Origin)

	got = FromFirstParty(ev, 15*time.Minute)
	assert.Equal(t, at(10, 45), got.End)
}

func TestPreferenceOverridesMerge(t *testing.T) {
	start := 7
	morning := true
	p := PreferenceOverrides{StartHour: &start, PreferMorning: &morning}.Merge(DefaultPreferences())

	assert.Equal(t, 7, p.StartHour)
	assert.Equal(t, 18, p.EndHour)
	assert.True(t, p.PreferMorning)
	assert.True(t, p.AvoidBackToBack)
	assert.Equal(t, 30, p.MinGapMinutes)
}
