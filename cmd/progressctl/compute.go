package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/bootstrap"
	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// learnerFlags identify a learner either by lookup or inline.
type learnerFlags struct {
	id           string
	contact      string
	enrolled     string
	subscription string
	reactivated  string
}

func (f *learnerFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.id, "id", "", "Learner ID")
	fs.StringVar(&f.contact, "contact", "", "Learner contact key (email)")
	fs.StringVar(&f.enrolled, "enrolled", "", "Enrollment date; skips the catalog lookup")
	fs.StringVar(&f.subscription, "subscription", string(learner.SubscriptionActive), "Subscription state for an inline learner")
	fs.StringVar(&f.reactivated, "reactivated", "", "Last reactivation date for an inline learner")
}

func (f *learnerFlags) hasIdentity() bool {
	return strings.TrimSpace(f.id) != "" || strings.TrimSpace(f.contact) != ""
}

// resolve builds the learner from inline flags or loads it from the catalog.
func (f *learnerFlags) resolve(ctx context.Context, c *bootstrap.Container, tz string) (*learner.Learner, error) {
	if !f.hasIdentity() {
		return nil, errors.New("--id or --contact is required")
	}

	if f.enrolled != "" {
		loc, err := timeutil.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
		enrolled, err := timeutil.ParseDate(f.enrolled, loc)
		if err != nil {
			return nil, fmt.Errorf("--enrolled: %w", err)
		}
		l := &learner.Learner{
			ID:           f.id,
			ContactKey:   f.contact,
			EnrolledAt:   enrolled,
			Subscription: learner.SubscriptionState(strings.ToLower(f.subscription)),
		}
		if f.reactivated != "" {
			at, err := timeutil.ParseDate(f.reactivated, loc)
			if err != nil {
				return nil, fmt.Errorf("--reactivated: %w", err)
			}
			l.ReactivatedAt = &at
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
		return l, nil
	}

	if c.Learners == nil {
		return nil, errors.New("learner lookup needs DATABASE_URL; pass --enrolled to describe the learner inline")
	}
	if f.id != "" {
		return c.Learners.GetByID(ctx, f.id)
	}
	return c.Learners.GetByContactKey(ctx, f.contact)
}

func newComputeCmd(opts *globalOptions) *cobra.Command {
	var (
		who learnerFlags
		at  string
	)

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute a learner's active days, level and phase",
		Example: `  progressctl compute --id 42
  progressctl compute --contact ana@example.com --at 2024-06-01
  progressctl compute --id demo --enrolled 2024-01-01 --phase-file config/phases.yaml -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := opts.parseAt(at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}

			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			l, err := who.resolve(cmd.Context(), c, opts.timezone)
			if err != nil {
				return err
			}

			result := c.Engine.Handle(cmd.Context(), query.ComputeProgressQuery{Learner: l, ReferenceInstant: ref})
			return opts.render(cmd, result, func(w io.Writer) {
				printResult(w, l, result)
			})
		},
	}

	who.bind(cmd.Flags())
	cmd.Flags().StringVar(&at, "at", "", "Reference instant (YYYY-MM-DD or RFC3339); default now")
	return cmd
}

func printResult(w io.Writer, l *learner.Learner, r progress.Result) {
	fmt.Fprintf(w, "Learner:     %s\n", l.Key())
	fmt.Fprintf(w, "Active days: %d (paused %d)\n", r.ActiveDays, r.PausedDays)
	fmt.Fprintf(w, "Base level:  %d\n", r.BaseLevel)
	if len(r.AppliedOverrides) == 0 {
		fmt.Fprintln(w, "Overrides:   none")
	}
	for _, o := range r.AppliedOverrides {
		fmt.Fprintf(w, "Override:    %s %d by %s on %s\n", o.Operator, o.Value, orDash(o.CreatedBy), o.CreatedAt.Format(time.DateOnly))
	}
	fmt.Fprintf(w, "Level:       %d  %s\n", r.EffectiveLevel, r.LevelName)
	fmt.Fprintf(w, "Phase:       %s [%s]\n", r.EffectivePhase.Name, r.EffectivePhase.ID)
	if r.EffectivePhase.Reason != "" {
		fmt.Fprintf(w, "Reason:      %s\n", r.EffectivePhase.Reason)
	}
	fmt.Fprintf(w, "Debug:       %s\n", r.DebugReason)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
