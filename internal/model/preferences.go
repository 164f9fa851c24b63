package model

// Preferences are fully resolved scheduling preferences.
type Preferences struct {
	StartHour       int  `json:"preferred_start_hour" yaml:"preferred_start_hour"`
	EndHour         int  `json:"preferred_end_hour" yaml:"preferred_end_hour"`
	PreferMorning   bool `json:"prefer_morning" yaml:"prefer_morning"`
	PreferAfternoon bool `json:"prefer_afternoon" yaml:"prefer_afternoon"`
	AvoidBackToBack bool `json:"avoid_back_to_back" yaml:"avoid_back_to_back"`
	MinGapMinutes   int  `json:"min_gap_minutes" yaml:"min_gap_minutes"`
}

// DefaultPreferences returns the built-in defaults: 09:00-18:00, back-to-back
// avoidance on with a 30 minute gap.
func DefaultPreferences() Preferences {
	return Preferences{
		StartHour:       9,
		EndHour:         18,
		PreferMorning:   false,
		PreferAfternoon: false,
		AvoidBackToBack: true,
		MinGapMinutes:   30,
	}
}

// PreferenceOverrides holds caller-supplied preferences. Nil fields keep the
// base value when merged.
type PreferenceOverrides struct {
	StartHour       *int  `json:"preferred_start_hour,omitempty"`
	EndHour         *int  `json:"preferred_end_hour,omitempty"`
	PreferMorning   *bool `json:"prefer_morning,omitempty"`
	PreferAfternoon *bool `json:"prefer_afternoon,omitempty"`
	AvoidBackToBack *bool `json:"avoid_back_to_back,omitempty"`
	MinGapMinutes   *int  `json:"min_gap_minutes,omitempty"`
}

// Merge applies o over base and returns the result.
func (o PreferenceOverrides) Merge(base Preferences) Preferences {
	p := base
	if o.StartHour != nil {
		p.StartHour = *o.StartHour
	}
	if o.EndHour != nil {
		p.EndHour = *o.EndHour
	}
	if o.PreferMorning != nil {
		p.PreferMorning = *o.PreferMorning
	}
	if o.PreferAfternoon != nil {
		p.PreferAfternoon = *o.PreferAfternoon
	}
	if o.AvoidBackToBack != nil {
		p.AvoidBackToBack = *o.AvoidBackToBack
	}
	if o.MinGapMinutes != nil {
		p.MinGapMinutes = *o.MinGapMinutes
	}
	return p
}
