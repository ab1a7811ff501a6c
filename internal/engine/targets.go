package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/conform/internal/scanner"
)

// Stdin is the target argument that reads content from standard input.
const Stdin = "-"

// excludedDirs are never descended into when a directory is a target.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
}

// ResolveTargets expands target arguments into targets, in argument order
// with duplicates removed. An argument is:
//   - "-": content read from stdin
//   - a file path
//   - a directory: every file with a known extension below it, skipping
//     hidden and dependency directories
//   - a doublestar glob such as "src/**/*.ts"
//
// A missing path, an invalid glob or a glob without matches is an
// InputError.
func ResolveTargets(args []string, stdin io.Reader) ([]*scanner.Target, error) {
	var targets []*scanner.Target
	seen := make(map[string]bool)

	add := func(path string) error {
		clean := filepath.Clean(path)
		if seen[clean] {
			return nil
		}
		seen[clean] = true
		t, err := scanner.FromFile(clean)
		if err != nil {
			return newInputError(ErrCodeUnreadable, clean, "cannot read target", err)
		}
		targets = append(targets, t)
		return nil
	}

	for _, arg := range args {
		if arg == Stdin {
			if seen[Stdin] {
				continue
			}
			seen[Stdin] = true
			if stdin == nil {
				return nil, newInputError(ErrCodeUnreadable, scanner.StdinName, "no standard input", nil)
			}
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, newInputError(ErrCodeUnreadable, scanner.StdinName, "cannot read standard input", err)
			}
			targets = append(targets, scanner.FromBytes(scanner.StdinName, data))
			continue
		}

		paths, err := expand(arg)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if err := add(p); err != nil {
				return nil, err
			}
		}
	}

	if len(targets) == 0 {
		return nil, newInputError(ErrCodeNoTargets, "", "no targets given", nil)
	}
	return targets, nil
}

// expand turns one argument into a sorted list of file paths.
func expand(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	switch {
	case err == nil && info.IsDir():
		files, err := walkDir(arg)
		if err != nil {
			return nil, newInputError(ErrCodeUnreadable, arg, "cannot walk directory", err)
		}
		if len(files) == 0 {
			return nil, newInputError(ErrCodeNoTargets, arg, "directory contains no checkable files", nil)
		}
		return files, nil

	case err == nil:
		return []string{arg}, nil

	case !containsGlob(arg):
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newInputError(ErrCodeTargetNotFound, arg, "no such file or directory", err)
		}
		return nil, newInputError(ErrCodeUnreadable, arg, "cannot stat target", err)
	}

	pattern := filepath.ToSlash(arg)
	if !doublestar.ValidatePattern(pattern) {
		return nil, newInputError(ErrCodeBadGlob, arg, "invalid glob pattern", nil)
	}
	matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
	if err != nil {
		return nil, newInputError(ErrCodeBadGlob, arg, fmt.Sprintf("glob error: %v", err), err)
	}
	if len(matches) == 0 {
		return nil, newInputError(ErrCodeNoTargets, arg, "pattern matches no files", nil)
	}
	sort.Strings(matches)
	return matches, nil
}

func walkDir(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := d.Name()
			if path != root && (excludedDirs[base] || strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && scanner.KnownExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// containsGlob checks if a pattern contains glob characters.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
