package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/auri-hub/progress-hub/internal/infrastructure/persistence/postgres"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.DB == nil {
				return errors.New("migrate needs DATABASE_URL")
			}
			migrator := postgres.NewMigrator(c.DB)

			if status {
				migrations, err := migrator.Status(cmd.Context())
				if err != nil {
					return err
				}
				return opts.render(cmd, migrations, func(w io.Writer) {
					for _, m := range migrations {
						state := "pending"
						if m.IsApplied {
							state = "applied " + m.AppliedAt.Format(time.RFC3339)
						}
						fmt.Fprintf(w, "%04d  %-32s  %s\n", m.Version, m.Name, state)
					}
				})
			}

			applied, err := migrator.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			return opts.render(cmd, map[string]int{"applied": applied}, func(w io.Writer) {
				fmt.Fprintf(w, "Applied %d migration(s)\n", applied)
			})
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "List migrations instead of applying them")
	return cmd
}
