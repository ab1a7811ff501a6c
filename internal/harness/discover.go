package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ScenarioDirNotFoundError is returned when the scenarios directory is missing.
type ScenarioDirNotFoundError struct {
	Dir string
}

// Error implements the error interface.
func (e *ScenarioDirNotFoundError) Error() string {
	return fmt.Sprintf("scenarios directory %q does not exist", e.Dir)
}

// FindScenarios lists the YAML scenario files below dir, sorted. filter, if
// set, is a glob matched against the file name without extension. The
// golden/ directory and hidden directories are skipped.
func FindScenarios(dir, filter string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, &ScenarioDirNotFoundError{Dir: dir}
	}
	if filter != "" && !doublestar.ValidatePattern(filter) {
		return nil, fmt.Errorf("invalid filter pattern %q", filter)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (d.Name() == "golden" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(d.Name(), ext)
			if ok, _ := doublestar.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// GoldenPath returns the golden file for a scenario file: golden/<name>.golden
// next to it.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
