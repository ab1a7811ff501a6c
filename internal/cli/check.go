package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/evaluator"
	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/metrics"
	"github.com/roach88/conform/internal/publish"
	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/report"
	"github.com/roach88/conform/internal/scanner"
	"github.com/roach88/conform/internal/store"
)

// useConfiguredOutDir is the --out value when the flag is given without a
// directory.
const useConfiguredOutDir = "-"

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Standard    string
	FailLevel   string
	Content     string // inline target content
	ContentName string // name used to detect the inline target's kind
	Packs       []string
	Disable     []string
	Save        bool
	Database    string
	Out         string
	MetricsFile string
	Publish     bool
	NatsURL     string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [target...]",
		Short: "Evaluate targets against a standard",
		Long: `Evaluate files, directories, globs or inline content against the rules of
a standard and print one report per target.

A target is a file, a directory (every file with a known extension below
it), a doublestar glob such as "src/**/*.ts", or "-" for stdin. --content
checks an inline string instead of, or in addition to, the targets.

Exit codes:
  0 - No violated rule at or above the fail level
  1 - One or more violations at or above the fail level
  2 - Configuration or input error (unknown standard, missing target, etc.)

Examples:
  conform check ./src --standard security
  conform check "docs/**/*.md" --standard documentation --fail-level SHOULD
  conform check --standard ux --content '<img src="a.png">' --content-name page.html
  conform check ./src --standard security --save --out --format markdown`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Standard, "standard", "s", "", "standard to check against (default check.standard)")
	cmd.Flags().StringVar(&opts.FailLevel, "fail-level", string(ir.LevelMust), "lowest level whose violations fail the check (MUST|SHOULD|MAY)")
	cmd.Flags().StringVar(&opts.Content, "content", "", "inline content to check")
	cmd.Flags().StringVar(&opts.ContentName, "content-name", "inline", "name of the inline target; its extension selects the target kind")
	cmd.Flags().StringSliceVar(&opts.Packs, "packs", nil, "additional rule pack directories")
	cmd.Flags().StringSliceVar(&opts.Disable, "disable", nil, "rule IDs to skip")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "store the run for report, diff and review")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run store (default store.path)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write one report file per target to this directory (--out alone uses reporting.out_dir)")
	cmd.Flags().Lookup("out").NoOptDefVal = useConfiguredOutDir
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics (default metrics.file)")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "publish the reports to NATS")
	cmd.Flags().StringVar(&opts.NatsURL, "nats-url", "", "NATS server URL (default publish.url)")

	return cmd
}

func (o *CheckOptions) flags() checkFlags {
	return checkFlags{
		standard:    o.Standard,
		failLevel:   o.FailLevel,
		database:    o.Database,
		metricsFile: o.MetricsFile,
		packs:       o.Packs,
		disable:     o.Disable,
	}
}

// checkSetup is the resolved state shared by check and watch.
type checkSetup struct {
	standard    string
	level       ir.Level
	registry    *registry.Registry
	dbPath      string
	metricsFile string
}

// checkFlags are the flags check and watch share.
type checkFlags struct {
	standard    string
	failLevel   string
	database    string
	metricsFile string
	packs       []string
	disable     []string
}

func resolveCheckSetup(cmd *cobra.Command, opts *RootOptions, flags checkFlags) (*checkSetup, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, err
	}

	standard := stringOption(cmd, "standard", flags.standard, cfg.Check.Standard)
	if standard == "" {
		return nil, NewExitError(ExitCommandError, "--standard is required (or set check.standard)")
	}
	level, err := ir.ParseLevel(stringOption(cmd, "fail-level", flags.failLevel, cfg.Check.FailLevel))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid fail level", err)
	}

	reg, err := loadRegistry(
		append(append([]string{}, cfg.Check.Packs...), flags.packs...),
		append(append([]string{}, cfg.Check.Disable...), flags.disable...),
	)
	if err != nil {
		return nil, err
	}

	return &checkSetup{
		standard:    standard,
		level:       level,
		registry:    reg,
		dbPath:      stringOption(cmd, "db", flags.database, cfg.Store.Path),
		metricsFile: stringOption(cmd, "metrics-file", flags.metricsFile, cfg.Metrics.File),
	}, nil
}

// newEngine builds an engine that applies stored review decisions and, when
// st is not nil, saves runs to st.
func (s *checkSetup) newEngine(ctx context.Context, st *store.Store) (*engine.Engine, error) {
	engOpts := []engine.Option{engine.WithFailLevel(s.level)}

	reviewer, err := loadReviewer(ctx, s.dbPath)
	if err != nil {
		return nil, err
	}
	if reviewer != nil {
		engOpts = append(engOpts, engine.WithEvaluator(evaluator.New(evaluator.WithReviewer(reviewer))))
	}
	if st != nil {
		engOpts = append(engOpts, engine.WithStore(st))
	}
	return engine.New(s.registry, engOpts...), nil
}

func runCheck(opts *CheckOptions, args []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	hasContent := cmd.Flags().Changed("content")
	if len(args) == 0 && !hasContent {
		return formatter.Fail("no targets", NewExitError(ExitCommandError, "no targets: pass a path, a glob, - or --content"))
	}

	setup, err := resolveCheckSetup(cmd, opts.RootOptions, opts.flags())
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	var targets []*scanner.Target
	if len(args) > 0 {
		targets, err = engine.ResolveTargets(args, cmd.InOrStdin())
		if err != nil {
			return formatter.Fail("invalid targets", err)
		}
	}
	if hasContent {
		targets = append(targets, scanner.FromString(opts.ContentName, opts.Content))
	}
	formatter.VerboseLog("Checking %d target(s) against %s", len(targets), setup.standard)

	var st *store.Store
	if opts.Save {
		st, err = openStore(setup.dbPath)
		if err != nil {
			return formatter.Fail("failed to open run store", err)
		}
		defer st.Close()
	}

	eng, err := setup.newEngine(ctx, st)
	if err != nil {
		return formatter.Fail("failed to load review decisions", err)
	}
	run, err := eng.Check(ctx, setup.standard, targets)
	if err != nil {
		return formatter.Fail("check failed", err)
	}

	if opts.Save {
		if err := eng.Save(ctx, run); err != nil {
			return formatter.Fail("failed to save run", err)
		}
		formatter.VerboseLog("Saved run %s to %s", run.ID, setup.dbPath)
	}

	if opts.Out != "" {
		dir := opts.Out
		if dir == useConfiguredOutDir {
			cfg, _ := opts.LoadConfig()
			dir = cfg.Reporting.OutDir
		}
		paths, err := writeReportFiles(dir, formatter.ReportFormat(), run)
		if err != nil {
			return formatter.Fail("failed to write reports", err)
		}
		for _, p := range paths {
			formatter.VerboseLog("Wrote %s", p)
		}
	}

	if setup.metricsFile != "" {
		m := metrics.New()
		m.Observe(run)
		if err := m.WriteTextfile(setup.metricsFile); err != nil {
			return formatter.Fail("failed to write metrics", err)
		}
	}

	if opts.Publish {
		if err := publishRun(ctx, cmd, opts, run); err != nil {
			return formatter.Fail("failed to publish run", err)
		}
		formatter.VerboseLog("Published %d report(s)", len(run.Reports))
	}

	return outputRun(formatter, run)
}

func publishRun(ctx context.Context, cmd *cobra.Command, opts *CheckOptions, run *ir.Run) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	url := stringOption(cmd, "nats-url", opts.NatsURL, cfg.Publish.URL)
	if url == "" {
		return NewExitError(ExitCommandError, "--publish needs a NATS URL (--nats-url or publish.url)")
	}
	p, err := publish.Connect(url, cfg.Publish.Subject)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.PublishRun(ctx, run)
}

// outputRun renders run and returns an ExitFailure error when it has
// violations at or above its fail level.
func outputRun(formatter *OutputFormatter, run *ir.Run) error {
	violations := 0
	for i := range run.Reports {
		violations += run.Reports[i].ViolatedAtOrAbove(run.FailLevel)
	}
	msg := fmt.Sprintf("%d violation(s) at or above %s", violations, run.FailLevel)

	if formatter.JSON() {
		var err error
		if violations > 0 {
			err = formatter.Failure(ErrCodeViolations, msg, run)
		} else {
			err = formatter.Success(run)
		}
		if err != nil {
			return err
		}
	} else if err := report.WriteRun(formatter.Writer, formatter.ReportFormat(), run); err != nil {
		return err
	}

	if violations > 0 {
		return NewExitError(ExitFailure, msg)
	}
	return nil
}

// writeReportFiles writes one report per target into dir and returns the
// paths written.
func writeReportFiles(dir string, format report.Format, run *ir.Run) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	paths := make([]string, 0, len(run.Reports))
	for i := range run.Reports {
		rep := &run.Reports[i]
		path := filepath.Join(dir, reportFileName(rep)+format.Extension())
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("create report file: %w", err)
		}
		err = report.WriteReport(f, format, rep)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, fmt.Errorf("write report %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// reportFileName is "<target base name>-<report ID>", with characters that
// are awkward in file names replaced.
func reportFileName(rep *ir.Report) string {
	base := filepath.Base(filepath.FromSlash(rep.Target.Name))
	base = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	return base + "-" + rep.ID
}
