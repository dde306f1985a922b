package contextengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBuildTreeFiltersByIncludeAndExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package a")
	writeFile(t, root, "src/a_test.go", "package a")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = {}")
	writeFile(t, root, "README.md", "# hi")

	cfg := Config{
		RootPath:        root,
		IncludePatterns: []string{"**/*.go"},
		ExcludePatterns: []string{"node_modules/**", "**/*_test.go"},
		MaxDepth:        10,
	}

	_, files, err := buildTree(cfg)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "src/a.go" {
		t.Fatalf("expected only src/a.go, got %+v", files)
	}
}

func TestBuildTreeOrdersDirectoriesBeforeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "z.go", "package root")
	writeFile(t, root, "a/inner.go", "package a")

	cfg := Config{RootPath: root, MaxDepth: 10}
	tree, _, err := buildTree(cfg)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(tree.Children))
	}
	if tree.Children[0].Name != "a" || tree.Children[0].Type != "directory" {
		t.Fatalf("expected directory 'a' first, got %+v", tree.Children[0])
	}
	if tree.Children[1].Name != "z.go" {
		t.Fatalf("expected z.go second, got %+v", tree.Children[1])
	}
}

func TestBuildTreeRespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/c/deep.go", "package c")

	cfg := Config{RootPath: root, MaxDepth: 1}
	_, files, err := buildTree(cfg)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected maxDepth 1 to exclude a/b/c/deep.go, got %+v", files)
	}
}

func TestBuildTreeSkipsBrokenSymlink(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.go", "package real")
	if err := os.Symlink(filepath.Join(root, "does-not-exist"), filepath.Join(root, "broken")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	cfg := Config{RootPath: root, MaxDepth: 10}
	_, files, err := buildTree(cfg)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "real.go" {
		t.Fatalf("expected only real.go, got %+v", files)
	}
}

func TestBuildTreeCycleSafeOnSymlinkLoop(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, root, "sub/file.go", "package sub")
	if err := os.Symlink(root, filepath.Join(sub, "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	cfg := Config{RootPath: root, MaxDepth: 10}
	done := make(chan struct{})
	go func() {
		buildTree(cfg)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("buildTree did not terminate, likely stuck in a symlink cycle")
	}
}
