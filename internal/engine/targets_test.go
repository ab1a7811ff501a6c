package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/scanner"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setupTree creates:
//
//	src/app.js
//	src/lib/util.ts
//	src/lib/notes.bin
//	src/node_modules/dep/index.js
//	src/.git/config.js
//	README.md
func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "app.js"), "eval(x)\n")
	writeFile(t, filepath.Join(root, "src", "lib", "util.ts"), "export const a = 1;\n")
	writeFile(t, filepath.Join(root, "src", "lib", "notes.bin"), "raw")
	writeFile(t, filepath.Join(root, "src", "node_modules", "dep", "index.js"), "eval(y)\n")
	writeFile(t, filepath.Join(root, "src", ".git", "config.js"), "x\n")
	writeFile(t, filepath.Join(root, "README.md"), "# Readme\n")
	return root
}

func names(targets []*scanner.Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = filepath.ToSlash(t.Name)
	}
	return out
}

func requireInputError(t *testing.T, err error, code InputErrorCode) *InputError {
	t.Helper()
	require.Error(t, err)
	var ie *InputError
	require.True(t, errors.As(err, &ie), "expected InputError, got %T: %v", err, err)
	assert.Equal(t, code, ie.Code)
	return ie
}

func TestResolveTargets_File(t *testing.T) {
	root := setupTree(t)
	path := filepath.Join(root, "src", "app.js")

	targets, err := ResolveTargets([]string{path}, nil)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, path, targets[0].Name)
	assert.Equal(t, "eval(x)\n", targets[0].Content)
	assert.Equal(t, ir.KindCode, targets[0].Kind)
}

func TestResolveTargets_Directory(t *testing.T) {
	root := setupTree(t)

	targets, err := ResolveTargets([]string{filepath.Join(root, "src")}, nil)
	require.NoError(t, err)

	got := names(targets)
	assert.Len(t, got, 2)
	assert.True(t, strings.HasSuffix(got[0], "src/app.js"))
	assert.True(t, strings.HasSuffix(got[1], "src/lib/util.ts"))
}

func TestResolveTargets_Glob(t *testing.T) {
	root := setupTree(t)

	targets, err := ResolveTargets([]string{filepath.Join(root, "src", "**", "*.ts")}, nil)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, strings.HasSuffix(names(targets)[0], "src/lib/util.ts"))
}

func TestResolveTargets_Dedupe(t *testing.T) {
	root := setupTree(t)
	app := filepath.Join(root, "src", "app.js")

	targets, err := ResolveTargets([]string{app, filepath.Join(root, "src"), app}, nil)
	require.NoError(t, err)
	assert.Len(t, targets, 2)
	assert.Equal(t, app, targets[0].Name, "argument order is kept")
}

func TestResolveTargets_Stdin(t *testing.T) {
	root := setupTree(t)

	targets, err := ResolveTargets([]string{Stdin, filepath.Join(root, "README.md"), Stdin}, strings.NewReader("<img src=x>"))
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, scanner.StdinName, targets[0].Name)
	assert.Equal(t, "<img src=x>", targets[0].Content)
}

func TestResolveTargets_Errors(t *testing.T) {
	root := setupTree(t)

	tests := []struct {
		name string
		args []string
		code InputErrorCode
	}{
		{"missing file", []string{filepath.Join(root, "nope.js")}, ErrCodeTargetNotFound},
		{"invalid glob", []string{filepath.Join(root, "src", "[a-")}, ErrCodeBadGlob},
		{"glob without matches", []string{filepath.Join(root, "**", "*.rs")}, ErrCodeNoTargets},
		{"empty directory", []string{t.TempDir()}, ErrCodeNoTargets},
		{"no arguments", nil, ErrCodeNoTargets},
		{"stdin without reader", []string{Stdin}, ErrCodeUnreadable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := ResolveTargets(tt.args, nil)
			assert.Nil(t, targets)
			requireInputError(t, err, tt.code)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestInputError_Format(t *testing.T) {
	err := newInputError(ErrCodeTargetNotFound, "a.js", "no such file or directory", os.ErrNotExist)
	assert.Equal(t, "[E010] a.js: no such file or directory", err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bare := newInputError(ErrCodeNoTargets, "", "no targets given", nil)
	assert.Equal(t, "[E012] no targets given", bare.Error())
}

func TestContainsGlob(t *testing.T) {
	assert.True(t, containsGlob("src/**/*.go"))
	assert.True(t, containsGlob("file?.txt"))
	assert.True(t, containsGlob("{a,b}.js"))
	assert.False(t, containsGlob("src/app.js"))
}
