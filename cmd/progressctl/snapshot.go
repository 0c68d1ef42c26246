package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/auri-hub/progress-hub/internal/application/command"
	"github.com/auri-hub/progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	var (
		who    learnerFlags
		at     string
		all    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Recompute progress and append a snapshot for one learner or all of them",
		Example: `  progressctl snapshot --id 42
  progressctl snapshot --all --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == who.hasIdentity() {
				return errors.New("pass either --all or a learner (--id / --contact)")
			}
			ref, err := opts.parseAt(at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}

			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if !all {
				l, err := who.resolve(cmd.Context(), c, opts.timezone)
				if err != nil {
					return err
				}
				res, err := c.Recompute.Handle(cmd.Context(), command.RecomputeProgressCommand{
					Learner: l,
					At:      ref,
					DryRun:  dryRun,
				})
				if err != nil {
					return err
				}
				return opts.render(cmd, res, func(w io.Writer) {
					printResult(w, l, res.Result)
					if res.Snapshot != nil {
						fmt.Fprintf(w, "Snapshot:    %s at %s\n", res.Snapshot.ID, res.Snapshot.SnapshotAt.Format("2006-01-02T15:04:05Z07:00"))
					} else {
						fmt.Fprintln(w, "Snapshot:    not written")
					}
				})
			}

			if c.Learners == nil {
				return errors.New("--all needs DATABASE_URL to list learners")
			}

			jobCfg := jobs.DefaultSnapshotProgressConfig()
			jobCfg.Concurrency = c.Config.Worker.Concurrency
			jobCfg.PageSize = c.Config.Worker.PageSize
			jobCfg.Timeout = c.Config.Worker.JobTimeout
			jobCfg.LockTTL = c.Config.Worker.LockTTL
			jobCfg.Owner = "progressctl"
			jobCfg.DryRun = dryRun

			clock := c.Clock
			if !ref.IsZero() {
				clock = timeutil.FixedClock{At: ref}
			}

			var locker jobs.Locker
			if c.Redis != nil {
				locker = c.Redis
			}

			job := jobs.NewSnapshotProgressJob(c.Learners, c.Recompute, locker, clock, c.Slog, jobCfg)
			runErr := job.Run(cmd.Context())

			if stats := job.LastStats(); stats != nil {
				if err := opts.render(cmd, stats, func(w io.Writer) { printStats(w, stats, dryRun) }); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	who.bind(cmd.Flags())
	cmd.Flags().StringVar(&at, "at", "", "Reference instant (YYYY-MM-DD or RFC3339); default now")
	cmd.Flags().BoolVar(&all, "all", false, "Snapshot every learner in the catalog")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute without writing snapshots")
	return cmd
}

func printStats(w io.Writer, s *jobs.SnapshotStats, dryRun bool) {
	fmt.Fprintf(w, "Reference: %s\n", s.ReferenceAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "Learners:  %d (written %d, skipped %d, failed %d)\n", s.Total, s.Written, s.Skipped, s.Failed)
	if dryRun {
		fmt.Fprintln(w, "Dry run:   no snapshots written")
	}
	fmt.Fprintf(w, "Duration:  %s\n", s.Duration)

	levels := make([]int, 0, len(s.Levels))
	for lvl := range s.Levels {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	for _, lvl := range levels {
		fmt.Fprintf(w, "  level %2d: %d\n", lvl, s.Levels[lvl])
	}
	for _, id := range s.FailedIDs {
		fmt.Fprintf(w, "  failed: %s\n", id)
	}
}
