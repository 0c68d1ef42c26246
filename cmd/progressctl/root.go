package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/auri-hub/progress-hub/config"
	"github.com/auri-hub/progress-hub/internal/bootstrap"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	phaseFile  string
	snapshotDB string
	logLevel   string
	noRedis    bool
	output     string
	timezone   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "progressctl",
		Short:         "Inspect and operate the progress engine",
		Long:          "progressctl computes learner progress, records snapshots and manages the phase configuration.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputText, outputJSON:
				return nil
			}
			return fmt.Errorf("--output must be %q or %q", outputText, outputJSON)
		},
	}

	bindGlobalFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newComputeCmd(opts),
		newSnapshotCmd(opts),
		newPhasesCmd(opts),
		newLadderCmd(opts),
		newSimulateCmd(opts),
		newOverridesCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func bindGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVar(&opts.phaseFile, "phase-file", "", "Read phases from this YAML/JSON file instead of PHASE_SOURCE")
	fs.StringVar(&opts.snapshotDB, "snapshot-db", "", "SQLite snapshot store used when no DATABASE_URL is set")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level for diagnostics on stderr")
	fs.BoolVar(&opts.noRedis, "no-redis", false, "Do not connect to Redis")
	fs.StringVarP(&opts.output, "output", "o", outputText, "Output format: text or json")
	fs.StringVar(&opts.timezone, "tz", "UTC", "Time zone for date-only flags")
}

// open loads configuration, layers the global flags over it and wires the
// container. Diagnostics go to the command's stderr.
func (o *globalOptions) open(cmd *cobra.Command) (*bootstrap.Container, error) {
	cfg, err := config.LoadWith(func(c *config.Config) {
		if o.phaseFile != "" {
			c.Progress.PhaseSource = config.PhaseSourceFile
			c.Progress.PhaseFile = o.phaseFile
		}
		if o.snapshotDB != "" {
			c.Database.SnapshotDBPath = o.snapshotDB
		}
		if o.noRedis {
			c.Redis.Disabled = true
			if c.Progress.PhaseCacheBackend == config.CacheBackendRedis {
				c.Progress.PhaseCacheBackend = config.CacheBackendMemory
			}
		}
		c.Observability.LogLevel = o.logLevel
		c.Observability.LogFormat = "text"
	})
	if err != nil {
		return nil, err
	}

	log, slogger := bootstrap.NewLoggers(cfg.Observability, cmd.ErrOrStderr())
	return bootstrap.New(cmd.Context(), cfg, log, slogger, bootstrap.Options{SkipRedis: o.noRedis})
}

// parseAt parses an optional reference instant. Empty means now (zero time).
func (o *globalOptions) parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	loc, err := timeutil.LoadLocation(o.timezone)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.ParseDate(s, loc)
}

// render writes v as indented JSON or hands the writer to text.
func (o *globalOptions) render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if o.output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
