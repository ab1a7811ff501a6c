package scanner

import (
	"regexp"
	"sync"
)

var (
	patternMu    sync.Mutex
	patternCache = make(map[string]*regexp.Regexp)
)

// compiled returns a cached compiled pattern, or nil when it does not
// compile. Rule packs are validated at load time, so nil only happens for
// hand-built rules.
func compiled(pattern string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()

	if re, ok := patternCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	patternCache[pattern] = re
	return re
}

// matchRegex matches pattern against each line; every match is a hit.
func matchRegex(lines []string, pattern string) []hit {
	re := compiled(pattern)
	if re == nil {
		return nil
	}

	var hits []hit
	for i, line := range lines {
		for _, m := range re.FindAllString(line, -1) {
			frag := m
			if len(frag) == 0 {
				frag = line
			}
			hits = append(hits, hit{line: i + 1, fragment: clip(frag)})
		}
	}
	return hits
}
