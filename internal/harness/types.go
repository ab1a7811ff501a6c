package harness

import (
	"path/filepath"
	"strings"

	"github.com/roach88/conform/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Run is the run produced by the scenario, read back from the store.
	// Nil when the scenario expected a configuration or input error.
	Run *ir.Run `json:"run,omitempty"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// baseDir is trimmed from file target names in snapshots.
	baseDir string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Report finds the report for target. A target matches by full name, by
// name relative to the scenario directory, or by base name.
func (r *Result) Report(target string) (*ir.Report, bool) {
	if r.Run == nil {
		return nil, false
	}
	for i := range r.Run.Reports {
		rep := &r.Run.Reports[i]
		if r.displayName(rep.Target.Name) == target || rep.Target.Name == target {
			return rep, true
		}
	}
	for i := range r.Run.Reports {
		rep := &r.Run.Reports[i]
		if filepath.Base(rep.Target.Name) == target {
			return rep, true
		}
	}
	return nil, false
}

// displayName returns name relative to the scenario directory, with
// forward slashes, so snapshots do not depend on where the tree lives.
func (r *Result) displayName(name string) string {
	if r.baseDir != "" {
		if rel, err := filepath.Rel(r.baseDir, name); err == nil && !strings.HasPrefix(rel, "..") {
			name = rel
		}
	}
	return filepath.ToSlash(name)
}
