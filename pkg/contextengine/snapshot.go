package contextengine

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urands/bridge/internal/bridgeerr"
	"github.com/urands/bridge/pkg/protocol"
)

// Snapshot is a point-in-time capture of the project tree returned to
// callers and later diffed against by GetDelta.
type Snapshot struct {
	ID        string
	Timestamp time.Time
	Tree      *protocol.DirectoryTree
	Summary   string
	KeyFiles  []string
}

type fileStat struct {
	ModTimeMS int64
	Size      int64
}

// FileDelta describes one file's change between two snapshots.
type FileDelta struct {
	Path   string
	Action protocol.ArtifactAction
	Diff   string
}

type storedSnapshot struct {
	Snapshot Snapshot
	Files    map[string]fileStat
	Root     string
}

// TakeSnapshot walks cfg's root and records the resulting tree, file list,
// and per-file stat table under a fresh id.
func (e *Engine) TakeSnapshot() (Snapshot, error) {
	tree, files, err := buildTree(e.cfg)
	if err != nil {
		return Snapshot{}, err
	}

	stats := make(map[string]fileStat, len(files))
	var keyFiles []string
	for _, f := range files {
		stats[f.RelPath] = fileStat{ModTimeMS: f.ModTime.UnixMilli(), Size: f.Size}
		base := baseName(f.RelPath)
		if entrypointNames[base] || base == "package.json" {
			keyFiles = append(keyFiles, f.RelPath)
		}
	}

	snap := Snapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Tree:      tree,
		Summary:   fmt.Sprintf("%d files under %s", len(files), e.cfg.RootPath),
		KeyFiles:  keyFiles,
	}

	e.snapshots.put(&storedSnapshot{Snapshot: snap, Files: stats, Root: e.cfg.RootPath})
	return snap, nil
}

// GetDelta computes the set of added, modified, and deleted files between
// the snapshot identified by fromID and the current filesystem state.
func (e *Engine) GetDelta(fromID string) ([]FileDelta, error) {
	prior, ok := e.snapshots.get(fromID)
	if !ok {
		return nil, bridgeerr.New(bridgeerr.Context, bridgeerr.CodeSnapshotNotFound,
			"snapshot not found", bridgeerr.Ctx("id", fromID))
	}

	_, files, err := buildTree(e.cfg)
	if err != nil {
		return nil, err
	}

	current := make(map[string]fileEntry, len(files))
	for _, f := range files {
		current[f.RelPath] = f
	}

	var deltas []FileDelta
	for path, f := range current {
		prev, existed := prior.Files[path]
		if !existed {
			deltas = append(deltas, FileDelta{Path: path, Action: protocol.ArtifactCreated, Diff: diffPreview(f.AbsPath)})
			continue
		}
		if prev.Size != f.Size || prev.ModTimeMS != f.ModTime.UnixMilli() {
			deltas = append(deltas, FileDelta{Path: path, Action: protocol.ArtifactModified, Diff: diffPreview(f.AbsPath)})
		}
	}
	for path := range prior.Files {
		if _, stillExists := current[path]; !stillExists {
			deltas = append(deltas, FileDelta{Path: path, Action: protocol.ArtifactDeleted})
		}
	}

	return deltas, nil
}

const diffPreviewBytes = 1000

func diffPreview(absPath string) string {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return ""
	}
	if len(raw) <= diffPreviewBytes {
		return string(raw)
	}
	return string(raw[:diffPreviewBytes]) + "..."
}
