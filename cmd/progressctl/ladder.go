package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/domain/level"
)

func newLadderCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ladder",
		Short: "Print the active-days to level ladder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rungs := level.Ladder()
			return opts.render(cmd, rungs, func(w io.Writer) {
				fmt.Fprintf(w, "%5s  %-11s  %-30s  %s\n", "Level", "Days", "Name", "Category")
				fmt.Fprintln(w, strings.Repeat("─", 70))
				for _, r := range rungs {
					days := fmt.Sprintf("%d-%d", r.MinDays, r.MaxDays)
					if r.MaxDays == level.Unbounded {
						days = fmt.Sprintf("%d+", r.MinDays)
					}
					fmt.Fprintf(w, "%5d  %-11s  %-30s  %s\n", r.Level, days, r.Name, r.Category)
				}
			})
		},
	}
}

func newSimulateCmd(opts *globalOptions) *cobra.Command {
	var (
		days  int
		op    string
		value int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Show the level for a number of active days and an optional override",
		Example: `  progressctl simulate --days 200
  progressctl simulate --days 200 --op ADD --value 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := query.SimulateLevel(query.SimulateLevelQuery{
				ActiveDays: days,
				Operator:   level.ParseOperator(op),
				Value:      value,
			})
			if err != nil {
				return err
			}
			return opts.render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Active days: %d\n", res.ActiveDays)
				fmt.Fprintf(w, "Base level:  %d\n", res.BaseLevel)
				fmt.Fprintf(w, "Level:       %d  %s (%s)\n", res.EffectiveLevel, res.LevelName, res.Category)
				if res.HasNext {
					fmt.Fprintf(w, "Next rung:   in %d days\n", res.DaysToNext)
				} else {
					fmt.Fprintln(w, "Next rung:   top of the ladder")
				}
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Active days")
	cmd.Flags().StringVar(&op, "op", "", "Override operator: ADD, SET or MIN")
	cmd.Flags().IntVar(&value, "value", 0, "Override value")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}
