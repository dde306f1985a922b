// Package contextwatch supplements AutoSync's periodic timer (spec.md
// §4.7) with an event-driven alternative: it watches a root directory with
// fsnotify and signals whenever the tree changes, debounced so a burst of
// writes produces a single signal. Grounded on fsnotify, present in both
// mraakashshah-oro and theRebelliousNerd-codenerd's dependency sets.
package contextwatch

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a directory tree and emits a debounced signal on Changed
// whenever any file under it is created, written, removed, or renamed.
type Watcher struct {
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	changed   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New starts watching root (recursively) and returns a Watcher whose
// Changed channel fires at most once per debounce window.
func New(logger *zap.Logger, root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fw, root); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		logger:   logger,
		watcher:  fw,
		debounce: debounce,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(dir string) error {
		return fw.Add(dir)
	})
}

// Changed signals once per debounce window after a filesystem change.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

func (w *Watcher) loop() {
	defer close(w.done)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if isDir(ev.Name) {
					_ = w.watcher.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			select {
			case w.changed <- struct{}{}:
			default:
			}
			timerC = nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("contextwatch: watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
