package contextengine

import "testing"

func TestRankFilesOrdersByKeywordScore(t *testing.T) {
	files := []fileEntry{
		{RelPath: "src/auth/login.go"},
		{RelPath: "src/widgets/button.go"},
		{RelPath: "src/auth/index.ts"},
	}
	ranked := rankFiles(files, "auth login")

	if ranked[0].RelPath != "src/auth/login.go" {
		t.Fatalf("expected src/auth/login.go to rank first, got %+v", ranked)
	}
}

func TestRankFilesBonusesEntrypointsAndManifest(t *testing.T) {
	files := []fileEntry{
		{RelPath: "src/widgets/button.go"},
		{RelPath: "package.json"},
		{RelPath: "src/index.js"},
	}
	ranked := rankFiles(files, "nonsense query that matches nothing")

	if ranked[0].RelPath != "src/index.js" {
		t.Fatalf("expected index.js (entrypoint bonus) first, got %+v", ranked)
	}
	if ranked[1].RelPath != "package.json" {
		t.Fatalf("expected package.json second, got %+v", ranked)
	}
}

func TestRankFilesTiesBreakByPath(t *testing.T) {
	files := []fileEntry{
		{RelPath: "z.go"},
		{RelPath: "a.go"},
	}
	ranked := rankFiles(files, "")
	if ranked[0].RelPath != "a.go" || ranked[1].RelPath != "z.go" {
		t.Fatalf("expected alphabetical tiebreak, got %+v", ranked)
	}
}

func TestKeywordsDropsShortTokens(t *testing.T) {
	kws := keywords("Go is a fast language")
	for _, kw := range kws {
		if len(kw) <= 2 {
			t.Fatalf("expected only tokens longer than 2 chars, got %q", kw)
		}
	}
}
