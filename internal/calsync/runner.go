package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "schedulr/internal/log"
)

const syncTimeout = 2 * time.Minute

// Runner triggers Syncer.SyncAll on a cron schedule.
type Runner struct {
	syncer *Syncer
	cron   *cron.Cron
}

// NewRunner parses spec (standard 5-field cron or a descriptor such as
// "@every 10m") and registers the sync job in loc.
func NewRunner(syncer *Syncer, spec string, loc *time.Location) (*Runner, error) {
	if loc == nil {
		loc = time.Local
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))

	r := &Runner{syncer: syncer, cron: c}
	if _, err := c.AddFunc(spec, r.runOnce); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

func (r *Runner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if _, err := r.syncer.SyncAll(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			appLog.Debug("scheduled sync skipped; previous run still in progress")
			return
		}
		appLog.Error("scheduled sync failed", err)
	}
}

// Run starts the schedule, optionally syncing immediately, and blocks until
// ctx is canceled. Running jobs are waited for on shutdown.
func (r *Runner) Run(ctx context.Context, syncNow bool) {
	if syncNow {
		r.runOnce()
	}
	r.cron.Start()
	appLog.Info("calendar sync scheduler started", "entries", len(r.cron.Entries()))

	<-ctx.Done()
	<-r.cron.Stop().Done()
	appLog.Info("calendar sync scheduler stopped")
}
