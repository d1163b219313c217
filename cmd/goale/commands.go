package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goale/domain/core"
	"goale/domain/group"
	"goale/domain/run"
	"goale/internal/config"
)

func newRunCmd() *cobra.Command {
	var planPath, runID, reportDir string
	var noFigure bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export groups, run ALE and subtractions, draw the figure",
		Long: `Run a contrast plan end to end.

Every group is exported in Sleuth format, every group gets a single-group ALE
and every pair a subtraction. Failed units are reported; the others still run.
Without --plan the built-in supplementary plan is used.

Example: goale run --plan plan.yaml --timeout 2h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			e, err := newEnv(ctx, true)
			if err != nil {
				return err
			}
			defer e.Close()

			file, plan, err := e.loadPlan(ctx, planPath)
			if err != nil {
				return err
			}
			svc, err := e.service()
			if err != nil {
				return err
			}

			if reportDir == "" {
				reportDir = file.Report
			}
			req := appRunRequest(file, plan, core.RunID(runID), reportDir, !noFigure)
			report, err := svc.Run(ctx, req)
			if err != nil {
				return err
			}
			printOutcomes(cmd, report.Outcomes)
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file (YAML); built-in plan when empty")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier; generated when empty")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for report.md/html/json; plan setting when empty")
	cmd.Flags().BoolVar(&noFigure, "no-figure", false, "Skip the composite figure")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Wall-clock limit for the whole run (0 = none)")
	return cmd
}

func newGroupsCmd() *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Validate a plan and print group sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, false)
			if err != nil {
				return err
			}
			defer e.Close()

			_, plan, err := e.loadPlan(ctx, planPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tEXPERIMENTS\tPEAKS\tPREDICATE\tOUTPUT")
			for _, s := range plan.Summary() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.Name, s.Experiments, s.Peaks, s.Predicate, s.Output)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "PAIR\tPARTITIONS TABLE")
			for _, p := range plan.Pairs() {
				a, _ := plan.Group(p.Minuend)
				b, _ := plan.Group(p.Subtrahend)
				fmt.Fprintf(w, "%s\t%t\n", p.Name, group.Partitions(plan.Table(), a, b))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file (YAML); built-in plan when empty")
	return cmd
}

func newExportCmd() *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every group's peaks in Sleuth format without running analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, false)
			if err != nil {
				return err
			}
			defer e.Close()

			_, plan, err := e.loadPlan(ctx, planPath)
			if err != nil {
				return err
			}
			svc, err := e.service()
			if err != nil {
				return err
			}
			report, err := svc.Export(ctx, plan)
			if err != nil {
				return err
			}
			printOutcomes(cmd, report.Outcomes)
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file (YAML); built-in plan when empty")
	return cmd
}

func newFigureCmd() *cobra.Command {
	var planPath, out string

	cmd := &cobra.Command{
		Use:   "figure",
		Short: "Draw the plan's figure from z maps written by a previous run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, false)
			if err != nil {
				return err
			}
			defer e.Close()

			file, plan, err := e.loadPlan(ctx, planPath)
			if err != nil {
				return err
			}
			req := figureRequest(file, plan, true)
			if req == nil {
				return fmt.Errorf("plan declares no figure")
			}
			if out != "" {
				req.Path = out
			}
			if err := e.figures().Compose(ctx, *req, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), req.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file (YAML); built-in plan when empty")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Figure path (.pdf or .svg); plan setting when empty")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [plan.yaml]",
		Short: "Write the built-in supplementary plan to a file for editing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "plan.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := config.WritePlan(config.DefaultPlan(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a recorded run from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, true)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.ledger == nil {
				return fmt.Errorf("ledger disabled (GOALE_LEDGER_DSN=none)")
			}

			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			manifest, err := e.ledger.Manifest(ctx, runID)
			if err != nil {
				return err
			}
			outcomes, err := e.ledger.Outcomes(ctx, runID)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run.Report{Manifest: manifest, Outcomes: outcomes})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s  fingerprint %s  seed %d  code %s\n",
				manifest.RunID, manifest.Fingerprint.Short(), manifest.Seed, manifest.CodeVersion)
			printOutcomes(cmd, outcomes)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printOutcomes(cmd *cobra.Command, outcomes []run.Outcome) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tUNIT\tSTATUS\tDURATION\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Kind, o.Unit, o.Status, o.Duration.Round(time.Millisecond), o.Error)
	}
	w.Flush()
}
