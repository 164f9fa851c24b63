package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"schedulr/internal/model"
	"schedulr/internal/scheduling"
)

type conflictsOptions struct {
	user     string
	start    string
	duration int
	exclude  string
}

func newConflictsCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &conflictsOptions{}
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check a proposed event against a user's calendar",
		Example: `  schedulr conflicts --user alice --start 2024-01-15T10:00:00Z --duration 45
  schedulr conflicts --user alice --start "2024-01-15 10:00" --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflicts(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.user, "user", "", "user ID (required)")
	cmd.Flags().StringVar(&opts.start, "start", "", "proposed start, RFC3339 or \"YYYY-MM-DD HH:MM\" in the configured timezone (required)")
	cmd.Flags().IntVar(&opts.duration, "duration", 60, "proposed duration in minutes")
	cmd.Flags().StringVar(&opts.exclude, "exclude", "", "first-party event ID to ignore (the event being edited)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func runConflicts(cmd *cobra.Command, rootOpts *rootOptions, opts *conflictsOptions) error {
	if !scheduling.ValidDuration(opts.duration) {
		return fmt.Errorf("invalid --duration %d: must not exceed %d minutes", opts.duration, scheduling.MaxDurationMinutes)
	}
	cfg, st, err := openStore(rootOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	so := schedulingOptions(cfg)
	start, err := parseStart(opts.start, so.Location)
	if err != nil {
		return err
	}

	res := scheduling.NewDetector(st, so).CheckForConflicts(cmd.Context(), scheduling.ConflictQuery{
		UserID:          opts.user,
		Start:           start,
		DurationMinutes: opts.duration,
		ExcludeEventID:  opts.exclude,
	})

	out := cmd.OutOrStdout()
	if rootOpts.format == "json" {
		return writeJSON(out, res)
	}
	if !res.HasConflict {
		fmt.Fprintln(out, "no conflicts")
		return nil
	}
	fmt.Fprintf(out, "%d conflict(s):\n", len(res.Conflicts))
	for _, c := range res.Conflicts {
		fmt.Fprintf(out, "  %s  %-11s  %s\n", c.Start.In(so.Location).Format("2006-01-02 15:04"), c.Origin, c.Title)
	}
	return nil
}

type suggestOptions struct {
	user            string
	date            string
	duration        int
	preferMorning   bool
	preferAfternoon bool
	allowBackToBack bool
	startHour       int
	endHour         int
	minGap          int
}

func newSuggestCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &suggestOptions{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest the best time slots for a day",
		Example: `  schedulr suggest --user alice --date 2024-01-15 --duration 30 --prefer-morning`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd, rootOpts, opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func (o *suggestOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.user, "user", "", "user ID (required)")
	cmd.Flags().StringVar(&o.date, "date", "", "day as YYYY-MM-DD in the configured timezone (default today)")
	cmd.Flags().IntVar(&o.duration, "duration", 60, "slot duration in minutes")
	cmd.Flags().BoolVar(&o.preferMorning, "prefer-morning", false, "favor 09:00-12:00")
	cmd.Flags().BoolVar(&o.preferAfternoon, "prefer-afternoon", false, "favor 13:00-17:00")
	cmd.Flags().BoolVar(&o.allowBackToBack, "allow-back-to-back", false, "do not penalize slots adjacent to other events")
	cmd.Flags().IntVar(&o.startHour, "start-hour", -1, "working day start hour (default from config)")
	cmd.Flags().IntVar(&o.endHour, "end-hour", -1, "working day end hour (default from config)")
	cmd.Flags().IntVar(&o.minGap, "min-gap", -1, "minimum gap in minutes between events (default from config)")
	_ = cmd.MarkFlagRequired("user")
}

func runSuggest(cmd *cobra.Command, rootOpts *rootOptions, opts *suggestOptions) error {
	if !scheduling.ValidDuration(opts.duration) {
		return fmt.Errorf("invalid --duration %d: must not exceed %d minutes", opts.duration, scheduling.MaxDurationMinutes)
	}
	cfg, st, err := openStore(rootOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	so := schedulingOptions(cfg)
	date := time.Now().In(so.Location)
	if opts.date != "" {
		if date, err = time.ParseInLocation(time.DateOnly, opts.date, so.Location); err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", opts.date)
		}
	}

	slots := scheduling.NewScorer(st, so).FindBestTimeSlots(cmd.Context(), scheduling.SlotQuery{
		UserID:          opts.user,
		Date:            date,
		DurationMinutes: opts.duration,
		Preferences:     opts.overrides(cmd),
	})

	out := cmd.OutOrStdout()
	if rootOpts.format == "json" {
		return writeJSON(out, slots)
	}
	if len(slots) == 0 {
		fmt.Fprintln(out, "no free slots")
		return nil
	}
	for i, s := range slots {
		fmt.Fprintf(out, "%d. %s-%s  score %3d  %s\n", i+1,
			s.Start.In(so.Location).Format("15:04"), s.End.In(so.Location).Format("15:04"), s.Score, s.Reason)
	}
	return nil
}

// overrides turns explicitly set flags into preference overrides; unset
// flags keep the configured defaults.
func (o *suggestOptions) overrides(cmd *cobra.Command) model.PreferenceOverrides {
	var p model.PreferenceOverrides
	flags := cmd.Flags()
	if flags.Changed("prefer-morning") {
		p.PreferMorning = &o.preferMorning
	}
	if flags.Changed("prefer-afternoon") {
		p.PreferAfternoon = &o.preferAfternoon
	}
	if flags.Changed("allow-back-to-back") {
		avoid := !o.allowBackToBack
		p.AvoidBackToBack = &avoid
	}
	if o.startHour >= 0 {
		p.StartHour = &o.startHour
	}
	if o.endHour >= 0 {
		p.EndHour = &o.endHour
	}
	if o.minGap >= 0 {
		p.MinGapMinutes = &o.minGap
	}
	return p
}

// parseStart accepts RFC3339 or a local "YYYY-MM-DD HH:MM".
func parseStart(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("invalid --start: want RFC3339 or \"YYYY-MM-DD HH:MM\"")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
