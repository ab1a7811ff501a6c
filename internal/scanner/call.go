package scanner

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammar returns the tree-sitter language for a target, or nil when calls
// must be found textually.
func grammar(t *Target) *sitter.Language {
	switch t.Language {
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		if strings.EqualFold(filepath.Ext(t.Name), ".tsx") {
			return tsx.GetLanguage()
		}
		return typescript.GetLanguage()
	case "python":
		return python.GetLanguage()
	default:
		return nil
	}
}

// literalNodes are argument node types that carry no runtime data.
var literalNodes = map[string]bool{
	"string":          true,
	"number":          true,
	"integer":         true,
	"float":           true,
	"true":            true,
	"false":           true,
	"null":            true,
	"none":            true,
	"comment":         true,
	"template_string": true, // checked for substitutions separately
}

// matchCall finds calls to name. With untrusted set, calls whose arguments
// are all literals are ignored.
func matchCall(ctx context.Context, t *Target, name string, untrusted bool) []hit {
	if lang := grammar(t); lang != nil {
		if hits, ok := matchCallTree(ctx, lang, t.Content, name, untrusted); ok {
			return hits
		}
	}
	return matchCallText(t.Content, name, untrusted)
}

func matchCallTree(ctx context.Context, lang *sitter.Language, content, name string, untrusted bool) ([]hit, bool) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	src := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return nil, false
	}
	defer tree.Close()

	var hits []hit
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" || n.Type() == "call" {
			if calleeName(n.ChildByFieldName("function"), src) == name {
				args := n.ChildByFieldName("arguments")
				if !untrusted || !literalArgs(args) {
					hits = append(hits, hit{
						line:     int(n.StartPoint().Row) + 1,
						fragment: clip(firstLine(n.Content(src))),
					})
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return hits, true
}

// calleeName returns the called identifier: the bare name for f(x), the
// property for obj.f(x) and the attribute for obj.f(x) in Python.
func calleeName(fn *sitter.Node, src []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return fn.Content(src)
	case "member_expression":
		if p := fn.ChildByFieldName("property"); p != nil {
			return p.Content(src)
		}
	case "attribute":
		if a := fn.ChildByFieldName("attribute"); a != nil {
			return a.Content(src)
		}
	case "parenthesized_expression":
		// (0, eval)(x) and similar indirections
		if fn.NamedChildCount() > 0 {
			last := fn.NamedChild(int(fn.NamedChildCount()) - 1)
			if last.Type() == "sequence_expression" && last.NamedChildCount() > 0 {
				last = last.NamedChild(int(last.NamedChildCount()) - 1)
			}
			return calleeName(last, src)
		}
	}
	return ""
}

// literalArgs reports whether every argument is a literal.
func literalArgs(args *sitter.Node) bool {
	if args == nil {
		return true
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		if !literalNodes[a.Type()] {
			return false
		}
		if hasSubstitution(a) {
			return false
		}
	}
	return true
}

// hasSubstitution detects `${x}` in template strings and {x} in f-strings.
func hasSubstitution(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		switch n.NamedChild(i).Type() {
		case "template_substitution", "interpolation":
			return true
		}
	}
	return false
}

var literalArgList = regexp.MustCompile(`^\s*(("([^"\\]|\\.)*"|'([^'\\]|\\.)*'|-?\d+(\.\d+)?|true|false|null|nil|None)\s*(,\s*|$))*$`)

// matchCallText is the grammar-free fallback: name( ... ) on a single line.
func matchCallText(content, name string, untrusted bool) []hit {
	re := compiled(`(^|[^\w.$])(?:[\w$]+\.)*` + regexp.QuoteMeta(name) + `\s*\(([^()]*(\([^()]*\))*[^()]*)\)`)
	if re == nil {
		return nil
	}

	var hits []hit
	for i, line := range splitLines(content) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, m := range re.FindAllStringSubmatchIndex(line, -1) {
			args := line[m[4]:m[5]]
			if untrusted && literalArgList.MatchString(args) {
				continue
			}
			start := m[0]
			if m[3] > m[2] {
				start = m[3]
			}
			hits = append(hits, hit{line: i + 1, fragment: clip(line[start:m[1]])})
		}
	}
	return hits
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
