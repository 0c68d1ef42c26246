package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auri-hub/progress-hub/internal/application/command"
	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/infrastructure/phasefile"
)

// phaseReport is the printable form of a phase config check.
type phaseReport struct {
	Source       string             `json:"source"`
	Digest       string             `json:"digest,omitempty"`
	Valid        bool               `json:"valid"`
	SchemaErrors []string           `json:"schema_errors,omitempty"`
	Errors       []string           `json:"errors,omitempty"`
	Phases       []phase.Definition `json:"phases,omitempty"`
	CoverageGaps []int              `json:"coverage_gaps,omitempty"`
	HasCatchAll  bool               `json:"has_catch_all"`
	Collisions   []phase.Collision  `json:"collisions,omitempty"`
}

func newPhaseReport(source string, r *query.PhaseConfigReport) *phaseReport {
	return &phaseReport{
		Source:       source,
		Valid:        r.Valid,
		Errors:       r.Errors,
		Phases:       r.Phases,
		CoverageGaps: r.CoverageGaps,
		HasCatchAll:  r.HasCatchAll,
		Collisions:   r.Collisions,
	}
}

func newPhasesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phases",
		Short: "Validate, inspect and publish the phase configuration",
	}
	cmd.AddCommand(
		newPhasesValidateCmd(opts),
		newPhasesCheckCmd(opts),
		newPhasesResolveCmd(opts),
		newPhasesPublishCmd(opts),
	)
	return cmd
}

func newPhasesValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a phase config file without touching any store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := phasefile.Load(args[0])
			if err != nil {
				return err
			}

			report := &phaseReport{Source: doc.Path, Digest: doc.Digest, SchemaErrors: doc.SchemaErrors}
			if doc.Raw != nil && len(doc.SchemaErrors) == 0 {
				report = newPhaseReport(doc.Path, query.CheckPhaseConfig(doc.Raw))
				report.Digest = doc.Digest
			}

			if err := opts.render(cmd, report, func(w io.Writer) { printPhaseReport(w, report) }); err != nil {
				return err
			}
			if !report.Valid {
				return errors.New("phase config is invalid")
			}
			return nil
		},
	}
}

func newPhasesCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the phase config the engine currently reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			r, err := query.NewCheckPhaseConfigHandler(c.Phases).Handle(cmd.Context())
			if err != nil {
				return err
			}
			report := newPhaseReport(c.Config.Progress.PhaseSource, r)
			if err := opts.render(cmd, report, func(w io.Writer) { printPhaseReport(w, report) }); err != nil {
				return err
			}
			if !report.Valid {
				return errors.New("phase config is invalid")
			}
			return nil
		},
	}
}

func newPhasesResolveCmd(opts *globalOptions) *cobra.Command {
	var lvl int

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which phase a level resolves to",
		Example: `  progressctl phases resolve --level 7
  progressctl phases resolve --level 12 --phase-file config/phases.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lvl < level.MinLevel || lvl > level.MaxLevel {
				return fmt.Errorf("--level must be between %d and %d", level.MinLevel, level.MaxLevel)
			}

			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			raw, err := c.Phases.GetRawPhaseConfig(cmd.Context())
			if err != nil {
				return err
			}
			res := phase.ValidateAndNormalize(raw)
			if !res.OK {
				return res.Err()
			}

			resolved := phase.Resolve(res.Normalized, lvl)
			if resolved.IsUnknown() {
				resolved = phase.Default(c.Config.Progress.DefaultPhaseName, resolved.Reason)
			}
			return opts.render(cmd, resolved, func(w io.Writer) {
				fmt.Fprintf(w, "Level %d -> %s [%s]", lvl, resolved.Name, resolved.ID)
				if resolved.Reason != "" {
					fmt.Fprintf(w, " (%s)", resolved.Reason)
				}
				fmt.Fprintln(w)
			})
		},
	}

	cmd.Flags().IntVar(&lvl, "level", 0, "Effective level to resolve")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func newPhasesPublishCmd(opts *globalOptions) *cobra.Command {
	var (
		author string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Validate a phase config file and publish it as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := phasefile.Load(args[0])
			if err != nil {
				return err
			}
			if len(doc.SchemaErrors) > 0 {
				return fmt.Errorf("phase config failed schema check:\n  - %s", strings.Join(doc.SchemaErrors, "\n  - "))
			}

			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.PhaseStore == nil {
				return errors.New("publishing needs DATABASE_URL")
			}

			handler := command.NewPublishPhaseConfigHandler(c.PhaseStore, c.PhaseInvalidator(), c.Log)
			res, err := handler.Handle(cmd.Context(), command.PublishPhaseConfigCommand{
				Raw:    doc.Raw,
				Digest: doc.Digest,
				Author: author,
				Force:  force,
			})
			if err != nil {
				return err
			}

			return opts.render(cmd, res, func(w io.Writer) {
				if res.Unchanged {
					fmt.Fprintf(w, "Unchanged: newest version already has digest %s\n", doc.Digest[:12])
					return
				}
				fmt.Fprintf(w, "Published version %d (%d phases, digest %s)\n", res.Version, len(res.Phases), doc.Digest[:12])
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Who is publishing this version")
	cmd.Flags().BoolVar(&force, "force", false, "Publish even if the newest version has the same content")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func printPhaseReport(w io.Writer, r *phaseReport) {
	fmt.Fprintf(w, "Source: %s\n", r.Source)
	if r.Digest != "" {
		fmt.Fprintf(w, "Digest: %s\n", r.Digest)
	}
	for _, e := range r.SchemaErrors {
		fmt.Fprintf(w, "  schema: %s\n", e)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	if !r.Valid {
		fmt.Fprintln(w, "INVALID")
		return
	}

	for _, d := range r.Phases {
		fmt.Fprintf(w, "  %-24s %-24s %s..%s\n", d.Name, "["+d.ID+"]", boundText(d.LevelMin), boundText(d.LevelMax))
	}
	if len(r.CoverageGaps) > 0 {
		gaps := make([]string, len(r.CoverageGaps))
		for i, g := range r.CoverageGaps {
			gaps[i] = strconv.Itoa(g)
		}
		note := "default phase applies"
		if r.HasCatchAll {
			note = "covered by catch-all"
		}
		fmt.Fprintf(w, "Uncovered levels: %s (%s)\n", strings.Join(gaps, ", "), note)
	}
	for _, col := range r.Collisions {
		fmt.Fprintf(w, "Shared id %q: %s\n", col.ID, strings.Join(col.Names, ", "))
	}
	fmt.Fprintln(w, "OK")
}

func boundText(b *int) string {
	if b == nil {
		return "*"
	}
	return strconv.Itoa(*b)
}
