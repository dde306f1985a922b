package contextengine

import (
	"path/filepath"
	"strings"
)

// matchGlob reports whether relPath (slash-separated, relative to root)
// matches pattern. "**" matches zero or more whole path segments; any
// other segment is matched with path/filepath.Match, so "*"/"?"/"[...]"
// work within a single segment.
func matchGlob(pattern, relPath string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

func matchSegments(pat, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	if pat[0] == "**" {
		if matchSegments(pat[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pat, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	ok, _ := filepath.Match(pat[0], path[0])
	if !ok {
		return false
	}
	return matchSegments(pat[1:], path[1:])
}

func matchAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if matchGlob(p, relPath) {
			return true
		}
	}
	return false
}

// canDescend reports whether dirRelPath could plausibly contain a file
// matched by includes: true when includes is empty, when an include
// pattern starts with "**", or when the first-segment-by-first-segment
// prefix comparison against some include pattern has not yet been
// falsified.
func canDescend(dirRelPath string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	if dirRelPath == "" {
		return true
	}
	dirSegs := strings.Split(dirRelPath, "/")
	for _, inc := range includes {
		if strings.HasPrefix(inc, "**") {
			return true
		}
		incSegs := strings.Split(inc, "/")
		falsified := false
		for i := range dirSegs {
			if i >= len(incSegs) {
				falsified = true
				break
			}
			if incSegs[i] == "**" {
				break
			}
			if ok, _ := filepath.Match(incSegs[i], dirSegs[i]); !ok {
				falsified = true
				break
			}
		}
		if !falsified {
			return true
		}
	}
	return false
}
