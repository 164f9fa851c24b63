package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "schedulr/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT. Recurrence
// expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID     string
	Seq     int
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Transparent is set for TRANSP:TRANSPARENT (shows the user as free).
	Transparent bool
	// Cancelled is set for STATUS:CANCELLED.
	Cancelled bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID in the event's own timezone
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// Busy reports whether the event blocks time on the owner's calendar.
func (e ParsedEvent) Busy() bool {
	return !e.Transparent && !e.Cancelled
}

// ParseICS parses a single ICS payload into a list of ParsedEvent. Broken
// VEVENTs are logged and skipped. RRULE, EXDATE and RECURRENCE-ID are
// recorded but not expanded; see ExpandOccurrences.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil && out.AllDay {
		start, err = ve.GetAllDayStartAt()
	}
	if err != nil {
		return out, err
	}
	out.Start = start

	// A missing DTEND means one day for all-day events and zero length
	// otherwise.
	end, err := ve.GetEndAt()
	if err != nil && out.AllDay {
		end, err = ve.GetAllDayEndAt()
	}
	switch {
	case err == nil && end.After(start):
		out.End = end
	case out.AllDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	if p := ve.GetProperty("TRANSP"); p != nil {
		out.Transparent = strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT")
	}
	if p := ve.GetProperty("STATUS"); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE may appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p.ICalParameters, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		loc := propLocation(p.ICalParameters, start.Location())
		if t, err := parseICSTime(p.Value, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// isDateValue reports VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propLocation resolves a TZID parameter, falling back to def.
func propLocation(params map[string][]string, def *time.Location) *time.Location {
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.Local
	}
	return def
}

// parseICSTime parses a basic DATE or DATE-TIME value. Floating values are
// interpreted in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
