package contextengine

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/urands/bridge/pkg/protocol"
)

// fileEntry is one matched file discovered by the walk, along with the
// filesystem metadata needed for ranking, chunk assembly, and snapshots.
type fileEntry struct {
	RelPath string
	AbsPath string
	Size    int64
	ModTime time.Time
}

type walker struct {
	cfg     Config
	visited map[string]bool
	files   []fileEntry
}

// buildTree walks cfg.RootPath depth-first, applying include/exclude
// filtering and maxDepth, and returns both the filtered directory tree and
// the flat list of matched files.
func buildTree(cfg Config) (*protocol.DirectoryTree, []fileEntry, error) {
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, nil, err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}

	w := &walker{cfg: cfg, visited: map[string]bool{realRoot: true}}
	tree := &protocol.DirectoryTree{Name: filepath.Base(root), Type: "directory"}
	w.walkDir(root, "", 0, tree)
	return tree, w.files, nil
}

func (w *walker) walkDir(absDir, relDir string, depth int, node *protocol.DirectoryTree) {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return
	}
	sortEntries(entries)

	if depth >= w.cfg.MaxDepth {
		return
	}

	for _, de := range entries {
		name := de.Name()
		absPath := filepath.Join(absDir, name)
		relPath := name
		if relDir != "" {
			relPath = relDir + "/" + name
		}

		info, err := os.Lstat(absPath)
		if err != nil {
			continue
		}

		isDir := de.IsDir()
		targetAbs := absPath
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(absPath)
			if err != nil {
				continue // broken symlink, skip silently
			}
			targetInfo, err := os.Stat(resolved)
			if err != nil {
				continue
			}
			isDir = targetInfo.IsDir()
			targetAbs = resolved
		}

		if isDir {
			if matchAny(w.cfg.ExcludePatterns, relPath) {
				continue
			}
			if !canDescend(relPath, w.cfg.IncludePatterns) {
				continue
			}
			if w.visited[targetAbs] {
				continue
			}
			w.visited[targetAbs] = true

			child := &protocol.DirectoryTree{Name: name, Type: "directory"}
			node.Children = append(node.Children, child)
			w.walkDir(targetAbs, relPath, depth+1, child)
			continue
		}

		fi, err := os.Stat(targetAbs)
		if err != nil {
			continue
		}

		if matchAny(w.cfg.ExcludePatterns, relPath) {
			continue
		}
		if len(w.cfg.IncludePatterns) > 0 && !matchAny(w.cfg.IncludePatterns, relPath) {
			continue
		}

		node.Children = append(node.Children, &protocol.DirectoryTree{Name: name, Type: "file"})
		w.files = append(w.files, fileEntry{
			RelPath: relPath,
			AbsPath: targetAbs,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
}

// sortEntries orders directories before files, then by name, matching the
// spec's tree-ordering rule.
func sortEntries(entries []os.DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return entries[i].Name() < entries[j].Name()
	})
}
