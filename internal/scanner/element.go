package scanner

import (
	"strings"

	"golang.org/x/net/html"
)

// matchElement finds start tags named element. withoutAttr keeps only tags
// lacking that attribute; withAttr keeps only tags carrying it.
func matchElement(content, element, withoutAttr, withAttr string) []hit {
	element = strings.ToLower(element)
	withoutAttr = strings.ToLower(withoutAttr)
	withAttr = strings.ToLower(withAttr)

	var hits []hit
	z := html.NewTokenizer(strings.NewReader(content))
	line := 1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a tokenizer failure; what was found so far stands.
			return hits
		}

		raw := string(z.Raw())
		start := line
		line += strings.Count(raw, "\n")

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		if string(name) != element {
			continue
		}

		attrs := make(map[string]bool)
		for hasAttr {
			var key []byte
			key, _, hasAttr = z.TagAttr()
			attrs[string(key)] = true
		}

		if withoutAttr != "" && attrs[withoutAttr] {
			continue
		}
		if withAttr != "" && !attrs[withAttr] {
			continue
		}
		hits = append(hits, hit{line: start, fragment: clip(collapseSpace(raw))})
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
