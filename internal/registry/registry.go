package registry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/conform/internal/compiler"
	"github.com/roach88/conform/internal/ir"
)

//go:embed standards/*.cue
var builtinPacks embed.FS

// Registry holds the compiled standards. Rules returned from a Registry are
// copies; callers can never mutate the registry through them.
type Registry struct {
	mu        sync.RWMutex
	standards map[string]*ir.Standard
	byID      map[string]ir.Rule
	disabled  map[string]bool
	sources   []string
}

// New returns a registry holding only the built-in standards.
func New() (*Registry, error) {
	r := &Registry{
		standards: make(map[string]*ir.Standard),
		byID:      make(map[string]ir.Rule),
		disabled:  make(map[string]bool),
	}

	stds, err := compileEmbedded(builtinPacks)
	if err != nil {
		return nil, err
	}
	if err := r.merge(stds, "builtin"); err != nil {
		return nil, err
	}
	return r, nil
}

// NewEmpty returns a registry with no standards. Useful when only user packs
// should be consulted.
func NewEmpty() *Registry {
	return &Registry{
		standards: make(map[string]*ir.Standard),
		byID:      make(map[string]ir.Rule),
		disabled:  make(map[string]bool),
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the process-wide registry of built-in standards.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = New()
	})
	return defaultReg, defaultErr
}

// LoadRules returns the rules of a built-in standard.
func LoadRules(standard string) ([]ir.Rule, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	return r.LoadRules(standard)
}

// LoadRules returns the ordered rules of the named standard, minus disabled
// rules. The name is matched case-insensitively.
func (r *Registry) LoadRules(standard string) ([]ir.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	std, ok := r.standards[strings.ToLower(strings.TrimSpace(standard))]
	if !ok {
		return nil, &ConfigurationError{
			Code:    ErrCodeUnknownStandard,
			Message: fmt.Sprintf("unknown standard %q (known: %s)", standard, strings.Join(r.namesLocked(), ", ")),
		}
	}

	rules := make([]ir.Rule, 0, len(std.Rules))
	for _, rule := range std.Rules {
		if r.disabled[strings.ToUpper(rule.ID)] {
			continue
		}
		rules = append(rules, cloneRule(rule))
	}
	return rules, nil
}

// Standard returns a copy of the named standard including disabled rules.
func (r *Registry) Standard(name string) (ir.Standard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	std, ok := r.standards[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ir.Standard{}, &ConfigurationError{
			Code:    ErrCodeUnknownStandard,
			Message: fmt.Sprintf("unknown standard %q", name),
		}
	}
	return cloneStandard(*std), nil
}

// Standards lists every known standard sorted by name.
func (r *Registry) Standards() []ir.Standard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ir.Standard, 0, len(r.standards))
	for _, name := range r.namesLocked() {
		out = append(out, cloneStandard(*r.standards[name]))
	}
	return out
}

// Get looks up a rule by ID across all standards.
func (r *Registry) Get(id string) (ir.Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.byID[strings.ToUpper(id)]
	if !ok {
		return ir.Rule{}, false
	}
	return cloneRule(rule), true
}

// Disable excludes rules from LoadRules. Unknown IDs are reported so a typo
// in configuration does not silently keep a rule active.
func (r *Registry) Disable(ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unknown []string
	for _, id := range ids {
		key := strings.ToUpper(strings.TrimSpace(id))
		if _, ok := r.byID[key]; !ok {
			unknown = append(unknown, id)
			continue
		}
		r.disabled[key] = true
	}
	if len(unknown) > 0 {
		return &ConfigurationError{
			Code:    ErrCodeUnknownRule,
			Message: fmt.Sprintf("cannot disable unknown rule(s): %s", strings.Join(unknown, ", ")),
		}
	}
	return nil
}

// Sources lists where the loaded standards came from ("builtin" or a
// directory path), in load order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sources)
}

// AddDir loads every rule pack in dir. A pack may add rules to an existing
// standard or declare a new one; a rule ID already known is an error and
// leaves the registry unchanged.
func (r *Registry) AddDir(dir string) error {
	stds, err := CompileDir(dir)
	if err != nil {
		return err
	}
	return r.merge(stds, dir)
}

// CompileDir compiles and validates the rule packs in dir without
// registering them.
func CompileDir(dir string) ([]ir.Standard, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("rule pack directory: %v", err),
			Err:     err,
		}
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("not a directory: %s", dir),
		}
	}

	files, err := FindPackFiles(dir)
	if err != nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeScanError,
			Message: fmt.Sprintf("error scanning directory: %v", err),
			Err:     err,
		}
	}
	if len(files) == 0 {
		return nil, &ConfigurationError{
			Code:    ErrCodeNoFiles,
			Message: fmt.Sprintf("no CUE files found in %s", dir),
		}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &ConfigurationError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeLoadFailed,
			Message: fmt.Sprintf("loading CUE files: %v", inst.Err),
			Err:     inst.Err,
		}
	}

	value := ctx.BuildInstance(inst)
	return compileValue(value)
}

// FindPackFiles walks dir and returns all .cue file paths.
func FindPackFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".cue" {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// compileEmbedded compiles each embedded pack on its own and returns the
// standards of all of them.
func compileEmbedded(fsys fs.FS) ([]ir.Standard, error) {
	names, err := fs.Glob(fsys, "standards/*.cue")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	ctx := cuecontext.New()
	var all []ir.Standard
	for _, name := range names {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		value := ctx.CompileBytes(src, cue.Filename(path.Base(name)))
		stds, err := compileValue(value)
		if err != nil {
			return nil, fmt.Errorf("builtin pack %s: %w", name, err)
		}
		all = append(all, stds...)
	}
	return all, nil
}

func compileValue(value cue.Value) ([]ir.Standard, error) {
	if err := value.Err(); err != nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeBuildFailed,
			Message: fmt.Sprintf("building CUE value: %v", err),
			Err:     err,
		}
	}

	stds, err := compiler.CompileStandards(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if verrs := compiler.ValidateStandards(stds); len(verrs) > 0 {
		return nil, validationFailure(verrs)
	}
	return stds, nil
}

// merge folds stds into the registry atomically.
func (r *Registry) merge(stds []ir.Standard, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate the combined view before touching state.
	combined := make(map[string]*ir.Standard, len(r.standards))
	for name, std := range r.standards {
		cp := cloneStandard(*std)
		combined[name] = &cp
	}
	for _, std := range stds {
		key := strings.ToLower(std.Name)
		existing, ok := combined[key]
		if !ok {
			cp := cloneStandard(std)
			combined[key] = &cp
			continue
		}
		for cat, app := range std.Categories {
			if _, ok := existing.Categories[cat]; !ok {
				existing.Categories[cat] = app
			}
		}
		// Rules of an extending pack inherit the extended standard's
		// category defaults.
		for _, rule := range std.Rules {
			rule.AppliesTo = rule.AppliesTo.Inherit(existing.Categories[rule.Category])
			existing.Rules = append(existing.Rules, rule)
		}
		sort.Slice(existing.Rules, func(i, j int) bool { return existing.Rules[i].ID < existing.Rules[j].ID })
	}

	list := make([]ir.Standard, 0, len(combined))
	for _, name := range sortedKeys(combined) {
		list = append(list, *combined[name])
	}
	if verrs := compiler.ValidateStandards(list); len(verrs) > 0 {
		return validationFailure(verrs)
	}

	byID := make(map[string]ir.Rule)
	for _, std := range list {
		for _, rule := range std.Rules {
			byID[strings.ToUpper(rule.ID)] = rule
		}
	}

	r.standards = combined
	r.byID = byID
	r.sources = append(r.sources, source)
	return nil
}

func (r *Registry) namesLocked() []string {
	return sortedKeys(r.standards)
}

func sortedKeys(m map[string]*ir.Standard) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneStandard(s ir.Standard) ir.Standard {
	out := s
	out.Categories = make(map[string]ir.Applicability, len(s.Categories))
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	out.Rules = make([]ir.Rule, len(s.Rules))
	for i, rule := range s.Rules {
		out.Rules[i] = cloneRule(rule)
	}
	return out
}

func cloneRule(r ir.Rule) ir.Rule {
	out := r
	out.Forbid = slices.Clone(r.Forbid)
	out.Require = slices.Clone(r.Require)
	out.Review = slices.Clone(r.Review)
	out.AppliesTo.Kinds = slices.Clone(r.AppliesTo.Kinds)
	out.AppliesTo.Languages = slices.Clone(r.AppliesTo.Languages)
	out.AppliesTo.Paths = slices.Clone(r.AppliesTo.Paths)
	return out
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
