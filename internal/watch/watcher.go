// Package watch reports batches of changed scenario files below a root
// directory.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more changes before
// emitting a batch.
const DefaultDebounce = 200 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Root is the directory to watch recursively.
	Root string

	// Match selects the files of interest. Nil matches every file.
	Match func(path string) bool

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Batch is the set of files that changed during one debounce window.
type Batch struct {
	Changed []string // created or written, sorted
	Removed []string // removed or renamed away, sorted
}

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	config  Config
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	batches chan Batch

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
}

// New creates a watcher and registers every directory under cfg.Root.
// Hidden directories are skipped.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch root is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Match == nil {
		cfg.Match = func(string) bool { return true }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:  cfg,
		fsw:     fsw,
		logger:  logger,
		batches: make(chan Batch, 16),
		pending: make(map[string]fsnotify.Op),
	}
	if err := w.addRecursive(cfg.Root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Batches returns the channel of debounced batches. It is closed when Run returns.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Run processes file system events until ctx is done, then closes the
// underlying watcher and the Batches channel.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.batches)
	defer w.fsw.Close()

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	w.logger.Debug("watching for scenario changes", "root", w.config.Root, "debounce", w.config.Debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			if b, ok := w.flush(); ok {
				select {
				case w.batches <- b:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.config.Match(event.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("scenario change detected", "path", event.Name, "op", event.Op.String())
}

// flush drains pending changes into a batch.
func (w *Watcher) flush() (Batch, bool) {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	if len(pending) == 0 {
		return Batch{}, false
	}

	var b Batch
	for path := range pending {
		if _, err := os.Stat(path); err != nil {
			b.Removed = append(b.Removed, path)
			continue
		}
		b.Changed = append(b.Changed, path)
	}
	slices.Sort(b.Changed)
	slices.Sort(b.Removed)
	return b, true
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
