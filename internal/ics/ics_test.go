package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//schedulr//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var testSource = Source{ID: "work", UserID: "u1", URL: "https://calendar.example.com/private/token.ics"}

var sampleICS = calendar(
	"BEGIN:VEVENT",
	"UID:standup@example.com",
	"SUMMARY:Standup",
	"DTSTART:20240115T100000Z",
	"DTEND:20240115T103000Z",
	"RRULE:FREQ=DAILY;COUNT=5",
	"EXDATE:20240117T100000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:standup@example.com",
	"SUMMARY:Standup (moved)",
	"RECURRENCE-ID:20240118T100000Z",
	"DTSTART:20240118T150000Z",
	"DTEND:20240118T153000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:lunch@example.com",
	"SUMMARY:Lunch",
	"DTSTART:20240116T120000Z",
	"DTEND:20240116T130000Z",
	"TRANSP:TRANSPARENT",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:offsite@example.com",
	"SUMMARY:Offsite",
	"DTSTART:20240116T140000Z",
	"DTEND:20240116T150000Z",
	"STATUS:CANCELLED",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"SUMMARY:No UID",
	"DTSTART:20240116T140000Z",
	"END:VEVENT",
)

func TestParseICS(t *testing.T) {
	events, err := ParseICS(testSource, sampleICS)
	require.NoError(t, err)
	require.Len(t, events, 4)

	standup := events[0]
	assert.Equal(t, "standup@example.com", standup.UID)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", standup.RawRRule)
	assert.True(t, standup.Start.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)))
	assert.True(t, standup.End.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
	require.Len(t, standup.ExDates, 1)
	assert.True(t, standup.Busy())

	override := events[1]
	assert.True(t, override.IsOverride)
	require.NotNil(t, override.Recurrence)
	assert.True(t, override.Recurrence.Equal(time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)))

	assert.False(t, events[2].Busy(), "transparent events are free")
	assert.False(t, events[3].Busy(), "cancelled events are free")
}

func TestParseICS_Empty(t *testing.T) {
	_, err := ParseICS(testSource, nil)
	assert.Error(t, err)
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS(testSource, sampleICS)
	require.NoError(t, err)

	res, err := ExpandOccurrences(events, ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedUIDs)

	type occ struct {
		title string
		start time.Time
		busy  bool
	}
	got := make([]occ, 0, len(res.Events))
	for _, ev := range res.Events {
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "work", ev.SourceID)
		assert.True(t, ev.End.After(ev.Start))
		got = append(got, occ{ev.Title, ev.Start, ev.Busy})
	}
	utc := func(d, h int) time.Time { return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, []occ{
		{"Standup", utc(15, 10), true},
		{"Standup", utc(16, 10), true},
		{"Standup (moved)", utc(18, 15), true},
		{"Standup", utc(19, 10), true},
		{"Lunch", utc(16, 12), false},
		{"Offsite", utc(16, 14), false},
	}, got)
}

func TestExpandOccurrences_RangeAndCap(t *testing.T) {
	events := []ParsedEvent{{
		Source:   testSource,
		UID:      "daily",
		Summary:  "Daily",
		Start:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}}

	res, err := ExpandOccurrences(events, ExpandConfig{
		Location:               time.UTC,
		RangeStart:             time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC),
		RangeEnd:               time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, res.TruncatedUIDs)
	require.Len(t, res.Events, 3)
	// The 10th's instance is still running at RangeStart.
	assert.True(t, res.Events[0].Start.Equal(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))
}

func TestExpandOccurrences_InvalidRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{
		RangeStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestFetcher_CachesAndRevalidates(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sampleICS)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "work", UserID: "u1", URL: srv.URL + "/cal.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, sampleICS, first.Body)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, sampleICS, second.Body)
	assert.EqualValues(t, 2, hits.Load())
	assert.EqualValues(t, 1, notModified.Load())
}

func TestFetcher_FallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write(sampleICS)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "work", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	// Without a cache the error surfaces.
	_, err = NewFetcher(t.TempDir(), srv.Client()).FetchOne(context.Background(), src)
	assert.Error(t, err)
}

func TestFetcher_RejectsOversizedFeed(t *testing.T) {
	var grow atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(sampleICS)
		if grow.Load() {
			_, _ = w.Write([]byte("X"))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, srv.Client())
	f.maxBody = int64(len(sampleICS))
	src := Source{ID: "work", URL: srv.URL}

	// Exactly at the limit is fine and gets cached.
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, sampleICS, res.Body)

	// One byte over falls back to the intact cached body.
	grow.Store(true)
	res, err = f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, sampleICS, res.Body)

	res, err = f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, sampleICS, res.Body, "oversized body must not replace the cache")

	// Without a cache the error surfaces.
	fresh := NewFetcher(t.TempDir(), srv.Client())
	fresh.maxBody = int64(len(sampleICS))
	_, err = fresh.FetchOne(context.Background(), src)
	assert.ErrorContains(t, err, "exceeds")
}

func TestFetchAll_ReportsPerSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(sampleICS)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "ok", URL: srv.URL + "/ok.ics"},
		{ID: "missing", URL: srv.URL + "/missing.ics"},
		{ID: "empty"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Source.ID)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL(testSource.URL))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
