package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/ir"
)

// CatalogOptions holds flags for the standards and rules commands.
type CatalogOptions struct {
	*RootOptions
	Packs []string
}

// StandardInfo is one row of the standards listing.
type StandardInfo struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Rules       int            `json:"rules"`
	Levels      map[string]int `json:"levels"`
}

// RuleInfo is one row of the rules listing.
type RuleInfo struct {
	ID          string           `json:"id"`
	Level       ir.Level         `json:"level"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Automated   bool             `json:"automated"`
	AppliesTo   ir.Applicability `json:"applies_to"`
}

// NewStandardsCommand creates the standards command.
func NewStandardsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "standards",
		Short: "List known standards",
		Long: `List the built-in standards and those added by rule packs, with their
rule counts per level.

Examples:
  conform standards
  conform standards --packs ./rules --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStandards(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Packs, "packs", nil, "additional rule pack directories")
	return cmd
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules <standard>",
		Short: "List the rules of a standard",
		Long: `List every rule of a standard in evaluation order.

Examples:
  conform rules security
  conform rules ux --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Packs, "packs", nil, "additional rule pack directories")
	return cmd
}

func (o *CatalogOptions) packs() ([]string, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, err
	}
	return append(append([]string{}, cfg.Check.Packs...), o.Packs...), nil
}

func runStandards(opts *CatalogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	packs, err := opts.packs()
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	reg, err := loadRegistry(packs, nil)
	if err != nil {
		return formatter.Fail("failed to load rule packs", err)
	}
	formatter.VerboseLog("Rule sources: %s", strings.Join(reg.Sources(), ", "))

	stds := reg.Standards()
	infos := make([]StandardInfo, 0, len(stds))
	for _, std := range stds {
		info := StandardInfo{
			Name:        std.Name,
			Title:       std.Title,
			Description: std.Description,
			Rules:       len(std.Rules),
			Levels:      map[string]int{},
		}
		for _, r := range std.Rules {
			info.Levels[string(r.Level)]++
		}
		infos = append(infos, info)
	}

	if formatter.JSON() {
		return formatter.Success(infos)
	}

	if formatter.Format == "markdown" {
		fmt.Fprintln(formatter.Writer, "| Standard | Title | Rules | MUST | SHOULD | MAY |")
		fmt.Fprintln(formatter.Writer, "|---|---|---|---|---|---|")
		for _, s := range infos {
			fmt.Fprintf(formatter.Writer, "| %s | %s | %d | %d | %d | %d |\n",
				s.Name, s.Title, s.Rules, s.Levels["MUST"], s.Levels["SHOULD"], s.Levels["MAY"])
		}
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STANDARD\tRULES\tMUST\tSHOULD\tMAY\tTITLE")
	for _, s := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Name, s.Rules, s.Levels["MUST"], s.Levels["SHOULD"], s.Levels["MAY"], s.Title)
	}
	return tw.Flush()
}

func runRules(opts *CatalogOptions, standard string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	packs, err := opts.packs()
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	reg, err := loadRegistry(packs, nil)
	if err != nil {
		return formatter.Fail("failed to load rule packs", err)
	}
	std, err := reg.Standard(standard)
	if err != nil {
		return formatter.Fail("unknown standard", err)
	}

	rules := make([]RuleInfo, 0, len(std.Rules))
	for _, r := range std.Rules {
		rules = append(rules, RuleInfo{
			ID:          r.ID,
			Level:       r.Level,
			Category:    r.Category,
			Description: r.Description,
			Automated:   r.Automated(),
			AppliesTo:   r.AppliesTo,
		})
	}

	if formatter.JSON() {
		return formatter.Success(rules)
	}

	if formatter.Format == "markdown" {
		fmt.Fprintf(formatter.Writer, "# %s\n\n", std.Title)
		fmt.Fprintln(formatter.Writer, "| Rule | Level | Category | Description |")
		fmt.Fprintln(formatter.Writer, "|---|---|---|---|")
		for _, r := range rules {
			fmt.Fprintf(formatter.Writer, "| %s | %s | %s | %s |\n", r.ID, r.Level, r.Category, r.Description)
		}
		return nil
	}

	fmt.Fprintf(formatter.Writer, "%s (%d rules)\n\n", std.Title, len(rules))
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tLEVEL\tCATEGORY\tDESCRIPTION")
	for _, r := range rules {
		desc := r.Description
		if !r.Automated {
			desc += " (manual)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Level, r.Category, desc)
	}
	return tw.Flush()
}
