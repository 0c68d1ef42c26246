package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/domain/level"
)

func newOverridesCmd(opts *globalOptions) *cobra.Command {
	var (
		id             string
		contact        string
		includeRevoked bool
	)

	cmd := &cobra.Command{
		Use:   "overrides",
		Short: "Show a learner's override history and the active override",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.Overrides == nil {
				return errors.New("override history needs DATABASE_URL")
			}

			res, err := query.NewGetOverrideHistoryHandler(c.Overrides).Handle(cmd.Context(), query.GetOverrideHistoryQuery{
				LearnerID:      id,
				ContactKey:     contact,
				IncludeRevoked: includeRevoked,
			})
			if err != nil {
				return err
			}

			return opts.render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Learner: %s\n", res.Key)
				if res.Active != nil {
					fmt.Fprintf(w, "Active:  %s\n", describeOverride(*res.Active))
				} else {
					fmt.Fprintln(w, "Active:  none")
				}
				fmt.Fprintf(w, "History: %d entries, %d revoked\n", len(res.Entries), res.RevokedCount)
				for _, o := range res.Entries {
					fmt.Fprintf(w, "  %s\n", describeOverride(o))
				}
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Learner ID")
	cmd.Flags().StringVar(&contact, "contact", "", "Learner contact key (email)")
	cmd.Flags().BoolVar(&includeRevoked, "include-revoked", false, "List revoked entries too")
	return cmd
}

func describeOverride(o level.Override) string {
	s := fmt.Sprintf("%s %s %d by %s on %s", o.ID, o.Operator, o.Value, orDash(o.CreatedBy), o.CreatedAt.Format(time.DateOnly))
	if o.Reason != "" {
		s += fmt.Sprintf(" (%s)", o.Reason)
	}
	if o.IsRevoked() {
		s += fmt.Sprintf(" revoked %s by %s", o.RevokedAt.Format(time.DateOnly), orDash(o.RevokedBy))
	}
	return s
}
