package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/user/gridsync/internal/storage"
)

// DefaultDebounceInterval is the wait after the last change before a
// dataset is refreshed.
const DefaultDebounceInterval = 500 * time.Millisecond

// RebuildFunc is called when a dataset's operation log changed.
type RebuildFunc func(dataset string) error

// ReloadFunc is called when a dataset's config.json changed.
type ReloadFunc func(dataset string) error

// pending is the work collected for one dataset during a debounce window.
type pending struct {
	timer   *time.Timer
	rebuild bool
	reload  bool
}

// Watcher monitors dataset directories for changes and triggers cache
// rebuilds and config reloads.
type Watcher struct {
	baseDir          string
	rebuildFn        RebuildFunc
	reloadFn         ReloadFunc
	logger           *slog.Logger
	debounceInterval time.Duration

	watcher   *fsnotify.Watcher
	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]*pending
}

// NewWatcher creates a watcher for the data directory baseDir. reloadFn may
// be nil, in which case config changes only trigger a rebuild.
func NewWatcher(baseDir string, rebuildFn RebuildFunc, reloadFn ReloadFunc, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		baseDir:          baseDir,
		rebuildFn:        rebuildFn,
		reloadFn:         reloadFn,
		logger:           logger,
		debounceInterval: DefaultDebounceInterval,
		watcher:          fsWatcher,
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
		pending:          make(map[string]*pending),
	}, nil
}

// SetDebounce changes the debounce interval. Non-positive values are ignored.
// Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounceInterval = d
	}
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	if err := w.addWatchIfExists(w.baseDir); err != nil {
		w.logger.Warn("could not watch data directory", "dir", w.baseDir, "error", err)
	}
	if err := w.watchExistingDatasets(); err != nil {
		w.logger.Warn("could not watch existing datasets", "error", err)
	}

	go w.processEvents()
	return nil
}

// Close stops the watcher and cancels pending work.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()

		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = nil
		w.mu.Unlock()

		<-w.doneChan
	})
}

func (w *Watcher) watchExistingDatasets() error {
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() && !isHidden(entry.Name()) {
			w.watchDataset(filepath.Join(w.baseDir, entry.Name()))
		}
	}
	return nil
}

func (w *Watcher) watchDataset(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("could not watch dataset directory", "dir", dir, "error", err)
		return
	}
	w.logger.Info("watching dataset directory", "dir", dir)
}

func (w *Watcher) addWatchIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return w.watcher.Add(path)
}

func (w *Watcher) processEvents() {
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	filename := filepath.Base(path)

	// New dataset directory.
	if event.Has(fsnotify.Create) && filepath.Dir(path) == w.baseDir {
		if info, err := os.Stat(path); err == nil && info.IsDir() && !isHidden(filename) {
			w.watchDataset(path)
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	dataset := w.datasetOf(path)
	if dataset == "" {
		return
	}

	switch filename {
	case storage.RecordsFile:
		w.logger.Debug("operation log changed", "dataset", dataset)
		w.schedule(dataset, func(p *pending) { p.rebuild = true })
	case storage.ConfigFile:
		w.logger.Debug("config changed", "dataset", dataset)
		w.schedule(dataset, func(p *pending) { p.reload = true })
	}
}

// datasetOf returns the dataset a file belongs to, or empty string if path
// is not directly inside a dataset directory.
func (w *Watcher) datasetOf(path string) string {
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 || parts[0] == ".." || isHidden(parts[0]) {
		return ""
	}
	return parts[0]
}

// schedule marks work for dataset and restarts its debounce timer.
func (w *Watcher) schedule(dataset string, mark func(*pending)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return
	}

	p, ok := w.pending[dataset]
	if ok {
		p.timer.Stop()
	} else {
		p = &pending{}
		w.pending[dataset] = p
	}
	mark(p)
	p.timer = time.AfterFunc(w.debounceInterval, func() { w.flush(dataset) })
}

func (w *Watcher) flush(dataset string) {
	w.mu.Lock()
	p, ok := w.pending[dataset]
	if ok {
		delete(w.pending, dataset)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	if p.reload && w.reloadFn != nil {
		if err := w.reloadFn(dataset); err != nil {
			w.logger.Error("config reload failed", "dataset", dataset, "error", err)
		} else {
			w.logger.Info("config reloaded", "dataset", dataset)
		}
	}
	if p.rebuild || (p.reload && w.reloadFn == nil) {
		if err := w.rebuildFn(dataset); err != nil {
			w.logger.Error("cache rebuild failed", "dataset", dataset, "error", err)
		} else {
			w.logger.Info("cache rebuilt", "dataset", dataset)
		}
	}
}

// DatasetCount returns the number of dataset directories under the data
// directory.
func (w *Watcher) DatasetCount() int {
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() && !isHidden(entry.Name()) {
			count++
		}
	}
	return count
}

func isHidden(name string) bool {
	return name == "" || name[0] == '.' || name[0] == '_'
}
