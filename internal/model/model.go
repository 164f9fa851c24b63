package model

import "time"

// Origin tells where a committed event came from.
type Origin string

const (
	OriginFirstParty Origin = "first_party"
	OriginSynced     Origin = "synced"
)

// DefaultFirstPartyDuration is the implicit length of a first-party event.
// First-party rows carry no end time of their own.
const DefaultFirstPartyDuration = 60 * time.Minute

// FirstPartyEvent is an event created directly in Schedulr's own store.
type FirstPartyEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncedEvent is a single occurrence mirrored from an external calendar
// (after recurrence expansion). It carries its own end and busy flag.
type SyncedEvent struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	SourceID string `json:"source_id"` // calendar source ID
	UID      string `json:"uid"`       // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string `json:"instance_key"`

	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Busy   bool      `json:"busy"`
	AllDay bool      `json:"all_day"`
}

// SyncSource identifies the synced events mirrored from one calendar.
type SyncSource struct {
	UserID   string
	SourceID string
}

// CommittedEvent is the normalized view both core components compute on.
// Invariant: Start < End.
type CommittedEvent struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	Origin Origin
	Busy   bool
}

// FromFirstParty assigns the implicit end (start + d) to a first-party row.
func FromFirstParty(ev FirstPartyEvent, d time.Duration) CommittedEvent {
	if d <= 0 {
		d = DefaultFirstPartyDuration
	}
	return CommittedEvent{
		ID:     ev.ID,
		Title:  ev.Title,
		Start:  ev.Start,
		End:    ev.Start.Add(d),
		Origin: OriginFirstParty,
		Busy:   true,
	}
}

// FromSynced converts a synced row, keeping its explicit end.
func FromSynced(ev SyncedEvent) CommittedEvent {
	return CommittedEvent{
		ID:     ev.ID,
		Title:  ev.Title,
		Start:  ev.Start,
		End:    ev.End,
		Origin: OriginSynced,
		Busy:   ev.Busy,
	}
}

// Window returns the event's [Start, End) window.
func (e CommittedEvent) Window() Window {
	return Window{Start: e.Start, End: e.End}
}

// Window is a half-open time window [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether w and o share any instant. Touching windows
// (w.End == o.Start) do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Conflict is a single existing event that overlaps a proposed window.
type Conflict struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	Origin Origin    `json:"origin"`
}

// ConflictResult lists conflicts in discovery order: first-party events
// first, then synced events.
type ConflictResult struct {
	HasConflict bool       `json:"has_conflict"`
	Conflicts   []Conflict `json:"conflicts"`
}

// TimeSlotSuggestion is a ranked candidate window.
type TimeSlotSuggestion struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Score  int       `json:"score"`
	Reason string    `json:"reason"`
}

// BookingLink is a public link that lets guests book time with a user.
type BookingLink struct {
	ID              string              `json:"id"`
	Slug            string              `json:"slug"`
	UserID          string              `json:"user_id"`
	Title           string              `json:"title"`
	DurationMinutes int                 `json:"duration_minutes"`
	Preferences     PreferenceOverrides `json:"preferences"`
	Active          bool                `json:"active"`
	CreatedAt       time.Time           `json:"created_at"`
}
