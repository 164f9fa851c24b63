package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"schedulr/internal/calsync"
	"schedulr/internal/ics"
)

func newSyncCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every configured calendar once and mirror it into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			fetcher := ics.NewFetcher(cfg.CacheDir, &http.Client{Timeout: fetchTimeout})
			rep, err := calsync.NewSyncer(cfg, fetcher, st).SyncAll(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.format == "json" {
				return writeJSON(out, rep)
			}
			fmt.Fprintf(out, "synced %d/%d calendars, %d events, %d pruned in %s\n",
				rep.Synced, rep.Sources, rep.Events, rep.Pruned, rep.Duration.Round(time.Millisecond))
			for _, e := range rep.Errors {
				fmt.Fprintln(out, "  error:", e)
			}
			return nil
		},
	}
}
