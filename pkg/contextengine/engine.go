// Package contextengine implements ContextEngine from spec.md §4.8: a
// filtered directory walk, keyword ranking, token-budgeted chunk assembly,
// and snapshot/delta computation over a project tree.
package contextengine

import (
	"context"
	"time"

	"github.com/urands/bridge/pkg/config"
	"github.com/urands/bridge/pkg/protocol"
)

// Config is the set of options a walk is performed against.
type Config = config.ContextEngineConfig

// Engine answers context queries and tracks snapshots for a single root
// directory, per the Config it was built with.
type Engine struct {
	cfg       Config
	snapshots *snapshotStore
}

// New builds an Engine over cfg. MaxDepth and TokenBudget fall back to
// sane defaults when left unset.
func New(cfg Config) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 8000
	}
	maxAge := time.Duration(cfg.SnapshotMaxAgeMS) * time.Millisecond
	return &Engine{cfg: cfg, snapshots: newSnapshotStore(maxAge)}
}

// Close releases the engine's snapshot store.
func (e *Engine) Close() {
	e.snapshots.close()
}

// RequestContext ranks the project's files against query and assembles as
// many whole or truncated file chunks as fit the engine's token budget.
// Its signature matches router.ContextHandler so it wires directly into
// Router.SetContextHandler.
func (e *Engine) RequestContext(ctx context.Context, query string) ([]protocol.FileChunk, error) {
	_, files, err := buildTree(e.cfg)
	if err != nil {
		return nil, err
	}
	return AssembleChunks(files, query, e.cfg.TokenBudget)
}

// Tree returns the current filtered directory tree without assembling any
// file content, used by AutoSync's context_sync broadcasts.
func (e *Engine) Tree() (*protocol.DirectoryTree, error) {
	tree, _, err := buildTree(e.cfg)
	return tree, err
}
