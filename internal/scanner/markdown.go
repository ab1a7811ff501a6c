package scanner

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/roach88/conform/internal/ir"
)

var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
)

// toMarkdown renders markup as GitHub-flavoured Markdown so prose rules can
// run against the text a reader sees. On conversion failure the source is
// returned unchanged.
func toMarkdown(content string) string {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	cleaned := scriptRe.ReplaceAllString(content, "")
	cleaned = styleRe.ReplaceAllString(cleaned, "")

	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return content
	}
	out = excessiveLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// markdownView returns the Markdown view of the target: converted markup for
// markup targets, the content itself otherwise.
func (s *Scanner) markdownView() string {
	s.textLines(ir.ViewMarkdown)
	if s.target.Kind == ir.KindMarkup {
		return s.markdown
	}
	return s.target.Content
}
