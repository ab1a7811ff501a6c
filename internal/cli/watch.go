package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/metrics"
	"github.com/roach88/conform/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Standard    string
	FailLevel   string
	Packs       []string
	Disable     []string
	Debounce    time.Duration
	Save        bool
	Database    string
	MetricsFile string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <target...>",
		Short: "Re-check targets when they change",
		Long: `Check the targets, then check them again whenever a watched file changes.

Changes are debounced so a burst of saves triggers one check. Directories
are watched recursively. Stop with Ctrl-C.

Examples:
  conform watch ./src --standard security
  conform watch ./docs --standard documentation --metrics-file /var/lib/node_exporter/conform.prom`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Standard, "standard", "s", "", "standard to check against (default check.standard)")
	cmd.Flags().StringVar(&opts.FailLevel, "fail-level", string(ir.LevelMust), "lowest level whose violations count as failures")
	cmd.Flags().StringSliceVar(&opts.Packs, "packs", nil, "additional rule pack directories")
	cmd.Flags().StringSliceVar(&opts.Disable, "disable", nil, "rule IDs to skip")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "wait this long after a change before re-checking (default watch.debounce)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "store every run")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run store (default store.path)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "rewrite Prometheus textfile metrics after every run (default metrics.file)")

	return cmd
}

func runWatch(opts *WatchOptions, args []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	setup, err := resolveCheckSetup(cmd, opts.RootOptions, checkFlags{
		standard:    opts.Standard,
		failLevel:   opts.FailLevel,
		database:    opts.Database,
		metricsFile: opts.MetricsFile,
		packs:       opts.Packs,
		disable:     opts.Disable,
	})
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	debounce := opts.Debounce
	if !cmd.Flags().Changed("debounce") {
		cfg, _ := opts.LoadConfig()
		debounce = cfg.Watch.Debounce
	}

	var st *store.Store
	if opts.Save {
		st, err = openStore(setup.dbPath)
		if err != nil {
			return formatter.Fail("failed to open run store", err)
		}
		defer st.Close()
	}

	var m *metrics.Metrics
	if setup.metricsFile != "" {
		m = metrics.New()
	}

	check := func(ctx context.Context) error {
		targets, err := engine.ResolveTargets(args, nil)
		if err != nil {
			return err
		}
		// A fresh engine picks up decisions recorded since the last run.
		eng, err := setup.newEngine(ctx, st)
		if err != nil {
			return err
		}
		run, err := eng.Check(ctx, setup.standard, targets)
		if err != nil {
			return err
		}
		if st != nil {
			if err := eng.Save(ctx, run); err != nil {
				return err
			}
		}
		if m != nil {
			m.Observe(run)
			if err := m.WriteTextfile(setup.metricsFile); err != nil {
				return err
			}
		}
		if err := outputRun(formatter, run); err != nil && GetExitCode(err) != ExitFailure {
			return err
		}
		return nil
	}

	if err := check(ctx); err != nil {
		return formatter.Fail("check failed", err)
	}

	w, err := engine.NewWatcher(args, debounce)
	if err != nil {
		return formatter.Fail("failed to watch targets", err)
	}
	defer w.Close()

	formatter.VerboseLog("Watching %d target(s) for changes", len(args))
	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		fmt.Fprintf(formatter.GetErrWriter(), "\n%d file(s) changed, re-checking\n", len(changed))
		return check(ctx)
	})
}
