package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, "MUST", c.Check.FailLevel)
	assert.Equal(t, filepath.Join(".conform", "conform.db"), c.Store.Path)
	assert.Equal(t, 300*time.Millisecond, c.Watch.Debounce)
	assert.Equal(t, "conform.reports", c.Publish.Subject)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
check:
  standard: security
  fail_level: should
  packs: [packs, /abs/packs]
  disable: [SEC-004]
store:
  path: /tmp/c.db
reporting:
  format: markdown
watch:
  debounce: 1s
publish:
  url: nats://localhost:4222
logging:
  level: debug
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "security", c.Check.Standard)
	assert.Equal(t, "should", c.Check.FailLevel)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(path), "packs"), "/abs/packs"}, c.Check.Packs)
	assert.Equal(t, []string{"SEC-004"}, c.Check.Disable)
	assert.Equal(t, "/tmp/c.db", c.Store.Path)
	assert.Equal(t, "markdown", c.Reporting.Format)
	assert.Equal(t, time.Second, c.Watch.Debounce)
	assert.Equal(t, "nats://localhost:4222", c.Publish.URL)
	assert.Equal(t, "conform.reports", c.Publish.Subject, "unset keys keep defaults")
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "text", c.Logging.Format)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "check:\n  standard: ux\n")
	t.Setenv("CONFORM_STANDARD", "naming")
	t.Setenv("CONFORM_FAIL_LEVEL", "MAY")
	t.Setenv("CONFORM_DISABLE", "SEC-001, SEC-002,")
	t.Setenv("CONFORM_PACKS", strings.Join([]string{"a", "b"}, string(os.PathListSeparator)))
	t.Setenv("CONFORM_DB", "env.db")
	t.Setenv("CONFORM_WATCH_DEBOUNCE", "50ms")
	t.Setenv("CONFORM_NATS_URL", "nats://n:4222")
	t.Setenv("CONFORM_NATS_SUBJECT", "ci.reports")
	t.Setenv("CONFORM_METRICS_FILE", "m.prom")
	t.Setenv("CONFORM_LOG_FORMAT", "json")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "naming", c.Check.Standard)
	assert.Equal(t, "MAY", c.Check.FailLevel)
	assert.Equal(t, []string{"SEC-001", "SEC-002"}, c.Check.Disable)
	assert.Equal(t, []string{"a", "b"}, c.Check.Packs)
	assert.Equal(t, "env.db", c.Store.Path)
	assert.Equal(t, 50*time.Millisecond, c.Watch.Debounce)
	assert.Equal(t, "nats://n:4222", c.Publish.URL)
	assert.Equal(t, "ci.reports", c.Publish.Subject)
	assert.Equal(t, "m.prom", c.Metrics.File)
	assert.Equal(t, "json", c.Logging.Format)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{"unknown field", "check:\n  standrd: ux\n", nil, "field standrd not found"},
		{"malformed", "check: [\n", nil, "parse config"},
		{"bad level", "check:\n  fail_level: ALWAYS\n", nil, "check.fail_level"},
		{"bad format", "reporting:\n  format: pdf\n", nil, "reporting.format"},
		{"bad debounce env", "", map[string]string{"CONFORM_WATCH_DEBOUNCE": "soon"}, "CONFORM_WATCH_DEBOUNCE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_NoDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := InitLogger(&buf, "json", "warn")
	logger.Info("hidden")
	slog.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	InitLogger(&buf, "text", "debug")
	slog.Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}
