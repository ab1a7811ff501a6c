package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/store"
)

// loadRegistry builds the registry from the built-in standards, then the
// pack directories in order, then disables rules.
func loadRegistry(packs, disable []string) (*registry.Registry, error) {
	reg, err := registry.New()
	if err != nil {
		return nil, err
	}
	for _, dir := range packs {
		if err := reg.AddDir(dir); err != nil {
			return nil, err
		}
	}
	if len(disable) > 0 {
		if err := reg.Disable(disable...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// openStore opens the run store at path, creating its directory.
func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return store.Open(path)
}

// openExistingStore opens the store at path only if the file exists.
// Commands that read runs fail early instead of creating an empty database.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no run store at %s: %w", path, err)
	}
	return store.Open(path)
}

// loadReviewer opens the store at path, if there is one, and returns a
// reviewer over its decisions. A missing store means no decisions.
func loadReviewer(ctx context.Context, path string) (*store.DecisionReviewer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return store.NewDecisionReviewer(ctx, st)
}

// stringOption returns the flag value when the flag was set, else the
// configured value.
func stringOption(cmd *cobra.Command, name, flagValue, configured string) string {
	if cmd.Flags().Changed(name) || configured == "" {
		return flagValue
	}
	return configured
}

// commandContext returns the command's context, falling back to Background
// when the command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
