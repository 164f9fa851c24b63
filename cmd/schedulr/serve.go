package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"schedulr/internal/calsync"
	"schedulr/internal/config"
	"schedulr/internal/ics"
	appLog "schedulr/internal/log"
	"schedulr/internal/web"
)

const fetchTimeout = 30 * time.Second

type serveOptions struct {
	listen  string
	noSync  bool
	noWatch bool
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the calendar sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&opts.noSync, "no-sync", false, "disable scheduled calendar sync")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

func runServe(parent context.Context, rootOpts *rootOptions, opts *serveOptions) error {
	cfg, st, err := openStore(rootOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	// CLI --listen overrides config file listen if provided.
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}

	appLog.Info("schedulr starting",
		"version", version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"database", cfg.Database,
		"refresh", cfg.RefreshCron,
		"calendars", len(cfg.Calendars),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := ics.NewFetcher(cfg.CacheDir, &http.Client{Timeout: fetchTimeout})
	syncer := calsync.NewSyncer(cfg, fetcher, st)
	srv := web.NewServer(cfg, st, syncer)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return web.StartServer(ctx, srv)
	})

	if !opts.noSync {
		runner, err := calsync.NewRunner(syncer, cfg.RefreshCron, loadLocation(cfg.Timezone))
		if err != nil {
			return err
		}
		g.Go(func() error {
			runner.Run(ctx, len(cfg.Calendars) > 0)
			return nil
		})
	}

	if !opts.noWatch {
		listen := cfg.Listen
		g.Go(func() error {
			err := config.Watch(ctx, rootOpts.configPath, func(next *config.Config) {
				next.ApplyEnv()
				next.Normalize()
				// The listener is already bound.
				next.Listen = listen
				appLog.SetLevel(appLog.ParseLevel(next.LogLevel))
				srv.Apply(next)
				syncer.Apply(next)
				appLog.Info("config reloaded", "calendars", len(next.Calendars))
			})
			if err != nil {
				appLog.Error("config watcher stopped", err, "path", rootOpts.configPath)
			}
			return nil
		})
	}

	err = g.Wait()
	appLog.Info("schedulr exiting")
	return err
}
