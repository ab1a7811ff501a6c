// Package config loads conform settings from a YAML file with CONFORM_*
// environment overrides. Command-line flags override both.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/conform/internal/ir"
)

// DefaultPath is read when no --config flag is given. A missing default
// file is not an error.
const DefaultPath = ".conform.yaml"

type Config struct {
	Check struct {
		Standard  string   `yaml:"standard"`   // default for check and watch
		FailLevel string   `yaml:"fail_level"` // "MUST" (default)
		Packs     []string `yaml:"packs"`      // extra rule pack directories
		Disable   []string `yaml:"disable"`    // rule IDs to skip
	} `yaml:"check"`

	Store struct {
		Path string `yaml:"path"` // "./.conform/conform.db"
	} `yaml:"store"`

	Reporting struct {
		Format string `yaml:"format"`  // "text"|"json"|"markdown"
		OutDir string `yaml:"out_dir"` // written by check --out
	} `yaml:"reporting"`

	Watch struct {
		Debounce time.Duration `yaml:"debounce"` // 300ms
	} `yaml:"watch"`

	Publish struct {
		URL     string `yaml:"url"`     // NATS server, e.g. nats://localhost:4222
		Subject string `yaml:"subject"` // "conform.reports"
	} `yaml:"publish"`

	Metrics struct {
		File string `yaml:"file"` // Prometheus textfile path
	} `yaml:"metrics"`

	Logging struct {
		Format string `yaml:"format"` // "json"|"text"
		Level  string `yaml:"level"`  // "info"|"debug"|"warn"|"error"
	} `yaml:"logging"`
}

func DefaultConfig() Config {
	var c Config
	c.Check.FailLevel = string(ir.LevelMust)
	c.Store.Path = filepath.Join(".conform", "conform.db")
	c.Reporting.Format = "text"
	c.Reporting.OutDir = "./reports"
	c.Watch.Debounce = 300 * time.Millisecond
	c.Publish.Subject = "conform.reports"
	c.Logging.Format = "text"
	c.Logging.Level = "warn"
	return c
}

// LoadConfig reads path over the defaults and applies environment
// overrides. An empty path reads DefaultPath if it exists. Relative pack
// directories resolve against the config file's directory.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
		base := filepath.Dir(path)
		for i, p := range c.Check.Packs {
			if !filepath.IsAbs(p) {
				c.Check.Packs[i] = filepath.Join(base, p)
			}
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return c, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func decode(b []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Env overrides (simple, explicit)
func applyEnv(c *Config) error {
	if v := os.Getenv("CONFORM_STANDARD"); v != "" {
		c.Check.Standard = v
	}
	if v := os.Getenv("CONFORM_FAIL_LEVEL"); v != "" {
		c.Check.FailLevel = v
	}
	if v := os.Getenv("CONFORM_PACKS"); v != "" {
		c.Check.Packs = filepath.SplitList(v)
	}
	if v := os.Getenv("CONFORM_DISABLE"); v != "" {
		c.Check.Disable = splitComma(v)
	}
	if v := os.Getenv("CONFORM_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CONFORM_FORMAT"); v != "" {
		c.Reporting.Format = v
	}
	if v := os.Getenv("CONFORM_OUT_DIR"); v != "" {
		c.Reporting.OutDir = v
	}
	if v := os.Getenv("CONFORM_WATCH_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CONFORM_WATCH_DEBOUNCE: %w", err)
		}
		c.Watch.Debounce = d
	}
	if v := os.Getenv("CONFORM_NATS_URL"); v != "" {
		c.Publish.URL = v
	}
	if v := os.Getenv("CONFORM_NATS_SUBJECT"); v != "" {
		c.Publish.Subject = v
	}
	if v := os.Getenv("CONFORM_METRICS_FILE"); v != "" {
		c.Metrics.File = v
	}
	if v := os.Getenv("CONFORM_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CONFORM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the values a command cannot run without.
func (c Config) Validate() error {
	if _, err := ir.ParseLevel(c.Check.FailLevel); err != nil {
		return fmt.Errorf("check.fail_level: %w", err)
	}
	switch strings.ToLower(c.Reporting.Format) {
	case "text", "json", "markdown", "md":
	default:
		return fmt.Errorf("reporting.format: unknown format %q", c.Reporting.Format)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}
