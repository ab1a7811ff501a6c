package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "markdown"
	ConfigPath string

	// Config is loaded on first use from ConfigPath. Tests may set it
	// directly.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "markdown"}

// LoadConfig returns the configuration, reading it on first call.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	if o.Config != nil {
		return o.Config, nil
	}
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = &cfg
	return o.Config, nil
}

// NewRootCommand creates the root command for the conform CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "conform",
		Short: "conform - standards compliance checker",
		Long: `Evaluate source files and documents against rule packs of MUST/SHOULD/MAY
requirements and report per-rule findings with evidence and a compliance score.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("format") && cfg.Reporting.Format != "" {
				opts.Format = cfg.Reporting.Format
			}
			if opts.Format == "md" {
				opts.Format = "markdown"
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			level := cfg.Logging.Level
			if opts.Verbose {
				level = "debug"
			}
			config.InitLogger(cmd.ErrOrStderr(), cfg.Logging.Format, level)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|markdown)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default "+config.DefaultPath+")")

	// Add subcommands
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewStandardsCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewReviewCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
