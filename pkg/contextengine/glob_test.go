package contextengine

import "testing"

func TestMatchGlobDoublestarSpansSegments(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"**/*.go", "main.go", true},
		{"**/*.go", "pkg/router/router.go", true},
		{"**/*.go", "pkg/router/router.go.bak", false},
		{"src/**/test.js", "src/a/b/test.js", true},
		{"src/**/test.js", "src/test.js", true},
		{"src/**/test.js", "other/test.js", false},
		{"*.md", "README.md", true},
		{"*.md", "docs/README.md", false},
	}
	for _, tc := range cases {
		if got := matchGlob(tc.pattern, tc.path); got != tc.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestCanDescendEmptyIncludesAllowsEverything(t *testing.T) {
	if !canDescend("any/nested/dir", nil) {
		t.Fatal("empty includes should allow descending anywhere")
	}
}

func TestCanDescendDoublestarPrefixAlwaysAllows(t *testing.T) {
	if !canDescend("totally/unrelated", []string{"**/*.go"}) {
		t.Fatal("a ** include should allow descending into any directory")
	}
}

func TestCanDescendFalsifiesOnMismatchedPrefix(t *testing.T) {
	if canDescend("vendor", []string{"src/**/*.go"}) {
		t.Fatal("vendor should not plausibly contain src/**/*.go matches")
	}
}

func TestCanDescendAllowsMatchingPrefix(t *testing.T) {
	if !canDescend("src/components", []string{"src/**/*.tsx"}) {
		t.Fatal("src/components is a plausible prefix of src/**/*.tsx")
	}
}
