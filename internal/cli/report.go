package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/report"
	"github.com/roach88/conform/internal/store"
)

// StoreOptions holds flags for commands that read the run store.
type StoreOptions struct {
	*RootOptions
	Database string
}

func (o *StoreOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to the run store (default store.path)")
}

// open opens the configured run store. It does not create one.
func (o *StoreOptions) open(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, err
	}
	return openExistingStore(stringOption(cmd, "db", o.Database, cfg.Store.Path))
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Re-render a stored run",
		Long: `Render a run saved with "check --save" in any output format.

The run is a full ID, a unique ID prefix, or "latest". The exit code
follows the stored run: 1 when it has violations at or above its fail
level.

Examples:
  conform report latest
  conform report 0199a1b2 --format markdown > report.md`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func runReport(opts *StoreOptions, ref string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.open(cmd)
	if err != nil {
		return formatter.Fail("failed to open run store", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, ref)
	if err != nil {
		return formatter.Fail("failed to read run", err)
	}
	return outputRun(formatter, run)
}

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	StoreOptions
	Standard string
	Limit    int
}

// RunInfo is one row of the runs listing.
type RunInfo struct {
	ID        string `json:"id"`
	Standard  string `json:"standard"`
	FailLevel string `json:"fail_level"`
	CreatedAt string `json:"created_at"`
	Targets   int    `json:"targets"`
	Score     string `json:"score"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Long: `List runs saved with "check --save", newest first.

Examples:
  conform runs
  conform runs --standard security --limit 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Standard, "standard", "", "only runs of this standard")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")
	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.open(cmd)
	if err != nil {
		return formatter.Fail("failed to open run store", err)
	}
	defer st.Close()

	summaries, err := st.ListRuns(ctx, opts.Standard, opts.Limit)
	if err != nil {
		return formatter.Fail("failed to list runs", err)
	}

	runs := make([]RunInfo, 0, len(summaries))
	for _, s := range summaries {
		runs = append(runs, RunInfo{
			ID:        s.ID,
			Standard:  s.Standard,
			FailLevel: string(s.FailLevel),
			CreatedAt: s.CreatedAt,
			Targets:   s.Targets,
			Score:     s.Score.Percent(),
		})
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs stored.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTANDARD\tTARGETS\tSCORE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Standard, r.Targets, r.Score, r.CreatedAt)
	}
	return tw.Flush()
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <base-run> <head-run>",
		Short: "Compare two stored runs",
		Long: `List the findings that are new, resolved or changed between two stored runs.

A finding is open when it is violated or needs review. Findings are matched
on target and rule.

Exit codes:
  0 - No new open findings
  1 - The head run has new open findings
  2 - Command error (store or run not found, etc.)

Examples:
  conform diff 0199a1b2 latest
  conform diff 0199a1b2 0199a1c4 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], args[1], cmd)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func runDiff(opts *StoreOptions, baseRef, headRef string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.open(cmd)
	if err != nil {
		return formatter.Fail("failed to open run store", err)
	}
	defer st.Close()

	base, err := st.ReadRun(ctx, baseRef)
	if err != nil {
		return formatter.Fail("failed to read base run", err)
	}
	head, err := st.ReadRun(ctx, headRef)
	if err != nil {
		return formatter.Fail("failed to read head run", err)
	}

	d := report.Diff(base, head)
	if formatter.JSON() {
		if err := formatter.Success(d); err != nil {
			return err
		}
	} else if err := report.WriteDiff(formatter.Writer, formatter.ReportFormat(), d); err != nil {
		return err
	}

	if d.Summary.NewCount > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d new open finding(s)", d.Summary.NewCount))
	}
	return nil
}
