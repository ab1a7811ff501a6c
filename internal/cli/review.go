package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/store"
)

// ReviewOptions holds flags for the review command.
type ReviewOptions struct {
	*RootOptions
	Database string
	Status   string
	Reason   string
	Reviewer string
	Delete   bool
	List     bool
}

// DecisionInfo is a stored decision as printed by the review command.
type DecisionInfo struct {
	RuleID     string    `json:"rule_id"`
	TargetGlob string    `json:"target_glob"`
	Status     ir.Status `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Reviewer   string    `json:"reviewer,omitempty"`
	CreatedAt  string    `json:"created_at,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// NewReviewCommand creates the review command.
func NewReviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "review <rule-id> <target-glob>",
		Short: "Record a manual review decision",
		Long: `Record the outcome of a manual review for one rule on every target matching
a doublestar glob. Later checks use the decision to resolve findings of that
rule that need review; the finding's reason starts with "reviewed:".

A decision never overrides a finding the scanner decided.

Examples:
  conform review UX-005 "web/**/*.html" --status passed --reason "labels checked in QA"
  conform review SEC-003 src/db.js --delete
  conform review --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.List {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.List {
				return runListDecisions(opts, cmd)
			}
			return runReview(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run store (default store.path)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "review outcome (passed|violated)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the rule passes or fails")
	cmd.Flags().StringVar(&opts.Reviewer, "reviewer", "", "who reviewed (default $USER)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "remove the decision instead of recording one")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list stored decisions")

	return cmd
}

func (o *ReviewOptions) storePath(cmd *cobra.Command) (string, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return "", err
	}
	return stringOption(cmd, "db", o.Database, cfg.Store.Path), nil
}

func runReview(opts *ReviewOptions, ruleID, glob string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	path, err := opts.storePath(cmd)
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	if opts.Delete {
		st, err := openExistingStore(path)
		if err != nil {
			return formatter.Fail("failed to open run store", err)
		}
		defer st.Close()

		removed, err := st.DeleteDecision(ctx, ruleID, glob)
		if err != nil {
			return formatter.Fail("failed to delete decision", err)
		}
		if !removed {
			return formatter.Fail("failed to delete decision",
				NewExitError(ExitCommandError, fmt.Sprintf("no decision for %s on %s", ruleID, glob)))
		}
		info := DecisionInfo{RuleID: strings.ToUpper(ruleID), TargetGlob: glob, Deleted: true}
		if formatter.JSON() {
			return formatter.Success(info)
		}
		fmt.Fprintf(formatter.Writer, "\u2713 Deleted decision for %s on %s\n", info.RuleID, glob)
		return nil
	}

	if err := checkRuleKnown(opts.RootOptions, ruleID); err != nil {
		return formatter.Fail("unknown rule", err)
	}
	status, err := ir.ParseStatus(opts.Status)
	if err != nil || (status != ir.StatusPassed && status != ir.StatusViolated) {
		return formatter.Fail("invalid decision",
			NewExitError(ExitCommandError, "--status must be passed or violated"))
	}
	if strings.TrimSpace(opts.Reason) == "" {
		return formatter.Fail("invalid decision", NewExitError(ExitCommandError, "--reason is required"))
	}

	reviewer := opts.Reviewer
	if reviewer == "" {
		reviewer = os.Getenv("USER")
	}
	d := store.Decision{
		RuleID:     ruleID,
		TargetGlob: glob,
		Status:     status,
		Reason:     opts.Reason,
		Reviewer:   reviewer,
		CreatedAt:  time.Now().UTC(),
	}

	st, err := openStore(path)
	if err != nil {
		return formatter.Fail("failed to open run store", err)
	}
	defer st.Close()

	if err := st.SaveDecision(ctx, d); err != nil {
		return formatter.Fail("failed to save decision", err)
	}

	info := decisionInfo(d)
	info.RuleID = strings.ToUpper(info.RuleID)
	if formatter.JSON() {
		return formatter.Success(info)
	}
	fmt.Fprintf(formatter.Writer, "\u2713 Recorded %s for %s on %s\n", status, info.RuleID, glob)
	return nil
}

// checkRuleKnown fails with an E009 ConfigurationError when no loaded
// standard has ruleID.
func checkRuleKnown(opts *RootOptions, ruleID string) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cfg.Check.Packs, nil)
	if err != nil {
		return err
	}
	if _, ok := reg.Get(ruleID); !ok {
		return &registry.ConfigurationError{
			Code:    registry.ErrCodeUnknownRule,
			Message: fmt.Sprintf("unknown rule %q", ruleID),
		}
	}
	return nil
}

func runListDecisions(opts *ReviewOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	path, err := opts.storePath(cmd)
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	var decisions []store.Decision
	if _, statErr := os.Stat(path); statErr == nil {
		st, err := store.Open(path)
		if err != nil {
			return formatter.Fail("failed to open run store", err)
		}
		defer st.Close()
		decisions, err = st.Decisions(ctx)
		if err != nil {
			return formatter.Fail("failed to list decisions", err)
		}
	}

	infos := make([]DecisionInfo, 0, len(decisions))
	for _, d := range decisions {
		infos = append(infos, decisionInfo(d))
	}

	if formatter.JSON() {
		return formatter.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No review decisions.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tTARGETS\tSTATUS\tREVIEWER\tREASON")
	for _, d := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.RuleID, d.TargetGlob, d.Status, d.Reviewer, d.Reason)
	}
	return tw.Flush()
}

func decisionInfo(d store.Decision) DecisionInfo {
	info := DecisionInfo{
		RuleID:     d.RuleID,
		TargetGlob: d.TargetGlob,
		Status:     d.Status,
		Reason:     d.Reason,
		Reviewer:   d.Reviewer,
	}
	if !d.CreatedAt.IsZero() {
		info.CreatedAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	return info
}
