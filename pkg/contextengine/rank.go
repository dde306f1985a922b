package contextengine

import (
	"sort"
	"strings"
)

// keywords extracts the query's ranking terms: lowercased whitespace-split
// tokens longer than two characters.
func keywords(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

var entrypointNames = map[string]bool{
	"index.ts": true, "index.js": true, "main.ts": true, "main.js": true,
}

// score rates a file's relevance to a query: 10 points per keyword found
// as a substring of the lowercased relative path, plus a flat bonus for
// well-known entrypoint and manifest filenames.
func score(f fileEntry, kws []string) int {
	lower := strings.ToLower(f.RelPath)
	s := 0
	for _, kw := range kws {
		if strings.Contains(lower, kw) {
			s += 10
		}
	}
	base := baseName(f.RelPath)
	if entrypointNames[base] {
		s += 5
	}
	if base == "package.json" {
		s += 3
	}
	return s
}

func baseName(relPath string) string {
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		return relPath[i+1:]
	}
	return relPath
}

// rankFiles orders files by descending score, breaking ties by ascending
// relative path for a deterministic order.
func rankFiles(files []fileEntry, query string) []fileEntry {
	kws := keywords(query)
	ranked := make([]fileEntry, len(files))
	copy(ranked, files)
	scores := make(map[string]int, len(files))
	for _, f := range ranked {
		scores[f.RelPath] = score(f, kws)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].RelPath], scores[ranked[j].RelPath]
		if si != sj {
			return si > sj
		}
		return ranked[i].RelPath < ranked[j].RelPath
	})
	return ranked
}
