package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for writes to settle
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a Store whenever its rules file changes
type Watcher struct {
	path     string
	store    *Store
	logger   *zap.SugaredLogger
	debounce time.Duration
	onReload func(*File)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher for path. onReload, if non-nil, runs after every successful reload.
func NewWatcher(path string, store *Store, logger *zap.SugaredLogger, onReload func(*File)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	// Watch the directory: editors often replace the file instead of writing it
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		store:    store,
		logger:   logger,
		debounce: DefaultDebounce,
		onReload: onReload,
		watcher:  fw,
	}, nil
}

// Run processes file events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	w.logger.Infof("✓ Watching rules file %s", w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			w.logger.Info("✓ Rules file watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("⚠️  Rules file watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload keeps the previous rule set when the file is invalid or empty
func (w *Watcher) reload() {
	f, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warnf("⚠️  Rules file reload failed, keeping previous rules: %v", err)
		return
	}
	// A truncated file mid-write parses as empty
	if len(f.Rules) == 0 {
		w.logger.Warnf("⚠️  Rules file %s has no rules, keeping previous rules", w.path)
		return
	}
	if err := w.store.ApplyFile(f); err != nil {
		w.logger.Warnf("⚠️  Rules file rejected, keeping previous rules: %v", err)
		return
	}
	w.logger.Infof("✓ Rules reloaded from %s: %d rules, %d policies", w.path, len(f.Rules), len(f.Policies))
	if w.onReload != nil {
		w.onReload(f)
	}
}
