package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"schedulr/internal/config"
	appLog "schedulr/internal/log"
	"schedulr/internal/scheduling"
	"schedulr/internal/store"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "0.1.0-dev"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
	envFile    string
	format     string // "json" | "text"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "schedulr",
		Short: "Schedulr - conflict detection and slot suggestions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.format)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "./config.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional .env file with SCHEDULR_* overrides")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newConflictsCommand(opts))
	cmd.AddCommand(newSuggestCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig resolves the effective config: .env, YAML file, then
// SCHEDULR_* environment overrides. It also applies the log level.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.configPath, err)
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// schedulingOptions derives the core options from cfg.
func schedulingOptions(cfg *config.Config) scheduling.Options {
	return scheduling.Options{
		Location:           loadLocation(cfg.Timezone),
		FirstPartyDuration: time.Duration(cfg.Scheduling.FirstPartyMinutes) * time.Minute,
		Defaults:           cfg.Scheduling.Defaults,
	}
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

// openStore loads the config and opens its database. The caller closes the
// store.
func openStore(opts *rootOptions) (*config.Config, *store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.Database, err)
	}
	return cfg, st, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "schedulr", version)
		},
	}
}
