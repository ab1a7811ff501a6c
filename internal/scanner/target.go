package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/conform/internal/ir"
)

// StdinName is the display name of a target read from standard input.
const StdinName = "<stdin>"

// Target is an artifact to check: a source file, markup, a prose document or
// an inline string.
type Target struct {
	Name     string
	Path     string // empty for inline content
	Content  string
	Kind     ir.TargetKind
	Language string

	invalid *ScanError
}

// ScanError reports target content the scanner cannot read meaningfully.
// It never aborts a run: the target yields no evidence and the report
// carries a warning.
type ScanError struct {
	Target string
	Reason string
	Offset int
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %s at byte %d", e.Target, e.Reason, e.Offset)
}

type kindLang struct {
	kind ir.TargetKind
	lang string
}

var extensions = map[string]kindLang{
	".go":         {ir.KindCode, "go"},
	".js":         {ir.KindCode, "javascript"},
	".mjs":        {ir.KindCode, "javascript"},
	".cjs":        {ir.KindCode, "javascript"},
	".jsx":        {ir.KindCode, "javascript"},
	".ts":         {ir.KindCode, "typescript"},
	".mts":        {ir.KindCode, "typescript"},
	".tsx":        {ir.KindCode, "typescript"},
	".py":         {ir.KindCode, "python"},
	".java":       {ir.KindCode, "java"},
	".kt":         {ir.KindCode, "kotlin"},
	".rb":         {ir.KindCode, "ruby"},
	".php":        {ir.KindCode, "php"},
	".c":          {ir.KindCode, "c"},
	".h":          {ir.KindCode, "c"},
	".cc":         {ir.KindCode, "cpp"},
	".cpp":        {ir.KindCode, "cpp"},
	".hpp":        {ir.KindCode, "cpp"},
	".cs":         {ir.KindCode, "csharp"},
	".rs":         {ir.KindCode, "rust"},
	".swift":      {ir.KindCode, "swift"},
	".sh":         {ir.KindCode, "shell"},
	".bash":       {ir.KindCode, "shell"},
	".html":       {ir.KindMarkup, "html"},
	".htm":        {ir.KindMarkup, "html"},
	".xhtml":      {ir.KindMarkup, "html"},
	".vue":        {ir.KindMarkup, "vue"},
	".svelte":     {ir.KindMarkup, "svelte"},
	".css":        {ir.KindMarkup, "css"},
	".scss":       {ir.KindMarkup, "css"},
	".md":         {ir.KindDocument, "markdown"},
	".mdx":        {ir.KindDocument, "markdown"},
	".markdown":   {ir.KindDocument, "markdown"},
	".txt":        {ir.KindDocument, "text"},
	".rst":        {ir.KindDocument, "rst"},
	".adoc":       {ir.KindDocument, "asciidoc"},
	".prompt":     {ir.KindDocument, "text"},
	".yaml":       {ir.KindConfig, "yaml"},
	".yml":        {ir.KindConfig, "yaml"},
	".json":       {ir.KindConfig, "json"},
	".toml":       {ir.KindConfig, "toml"},
	".ini":        {ir.KindConfig, "ini"},
	".env":        {ir.KindConfig, "dotenv"},
	".conf":       {ir.KindConfig, "conf"},
	".properties": {ir.KindConfig, "properties"},
}

var (
	markupSniff   = regexp.MustCompile(`(?i)<(!doctype\s+html|html|head|body|div|p|img|a|span|section|main|nav|form|input|button|table|ul|li)[\s>/]`)
	markdownSniff = regexp.MustCompile(`(?m)^(#{1,6}\s+\S|[-*]\s+\S|\d+\.\s+\S|>\s)`)
	codeSniff     = regexp.MustCompile(`(?m)([;{}]\s*$|^\s*(func|function|def|class|import|package|return|var|let|const|if|for|while)\b|\w+\s*\([^)]*\)\s*;?\s*$)`)
	pythonSniff   = regexp.MustCompile(`(?m)^\s*(def\s+\w+\s*\(.*\)\s*:|import\s+\w+\s*$|from\s+[\w.]+\s+import\s)`)
	jsSniff       = regexp.MustCompile(`(?m)(\b(const|let|var)\s+\w+\s*=|\bfunction\s*\w*\s*\(|=>|\brequire\(|\bconsole\.\w+\()`)
)

// FromFile reads a target from disk. A missing or unreadable file is an
// input error; malformed content is not (see Validate).
func FromFile(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}
	return newTarget(path, path, data), nil
}

// FromString builds an inline target. name is used for display and for
// kind detection when it has a known extension.
func FromString(name, content string) *Target {
	if name == "" {
		name = "<string>"
	}
	return newTarget(name, "", []byte(content))
}

// FromBytes builds a target from content read elsewhere (e.g. stdin).
func FromBytes(name string, data []byte) *Target {
	return newTarget(name, "", data)
}

func newTarget(name, path string, data []byte) *Target {
	t := &Target{Name: name, Path: path}
	t.invalid = validate(name, data)
	if t.invalid == nil {
		t.Content = norm.NFC.String(string(data))
	} else {
		t.Content = string(data)
	}
	t.Kind, t.Language = Detect(name, t.Content)
	return t
}

// WithKind overrides detection, e.g. when the caller knows the content type.
func (t *Target) WithKind(kind ir.TargetKind, language string) *Target {
	t.Kind = kind
	if language != "" {
		t.Language = strings.ToLower(language)
	}
	return t
}

// Validate returns a *ScanError when the content is not scannable text.
func (t *Target) Validate() error {
	if t.invalid != nil {
		return t.invalid
	}
	return nil
}

// Info returns the content-free description used in reports.
func (t *Target) Info() ir.TargetInfo {
	return ir.TargetInfo{
		Name:     t.Name,
		Path:     t.Path,
		Kind:     t.Kind,
		Language: t.Language,
	}
}

// location formats a line reference for evidence.
func (t *Target) location(line int) string {
	if t.Path != "" {
		return fmt.Sprintf("%s:%d", t.Path, line)
	}
	return fmt.Sprintf("line %d", line)
}

func validate(name string, data []byte) *ScanError {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return &ScanError{Target: name, Reason: "NUL byte in content (binary file?)", Offset: i}
	}
	if !utf8.Valid(data) {
		off := 0
		for off < len(data) {
			r, size := utf8.DecodeRune(data[off:])
			if r == utf8.RuneError && size <= 1 {
				break
			}
			off += size
		}
		return &ScanError{Target: name, Reason: "invalid UTF-8", Offset: off}
	}
	return nil
}

// KnownExtension reports whether name has an extension the scanner
// classifies without sniffing. Directory walks only pick up such files.
func KnownExtension(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Detect classifies content by file extension, falling back to sniffing the
// content itself. Empty content without an extension is a document.
func Detect(name, content string) (ir.TargetKind, string) {
	ext := strings.ToLower(filepath.Ext(name))
	if kl, ok := extensions[ext]; ok {
		return kl.kind, kl.lang
	}
	switch strings.ToLower(filepath.Base(name)) {
	case "dockerfile":
		return ir.KindConfig, "dockerfile"
	case "makefile":
		return ir.KindCode, "make"
	}

	switch {
	case strings.TrimSpace(content) == "":
		return ir.KindDocument, "text"
	case markupSniff.MatchString(content):
		return ir.KindMarkup, "html"
	case pythonSniff.MatchString(content):
		return ir.KindCode, "python"
	case jsSniff.MatchString(content):
		return ir.KindCode, "javascript"
	case codeSniff.MatchString(content):
		return ir.KindCode, ""
	case markdownSniff.MatchString(content):
		return ir.KindDocument, "markdown"
	default:
		return ir.KindDocument, "text"
	}
}
