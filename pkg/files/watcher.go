package files

import (
	"context"
	"os"
	"sync"
	"time"

	"appcrane/pkg/log"
)

const defaultInterval = 5 * time.Second

// FileWatcher watches a file for changes and calls a callback when modified
type FileWatcher struct {
	filePath string
	lastMod  time.Time
	interval time.Duration
	onChange func(string)
	stopCh   chan struct{}
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(filePath string, onChange func(string)) *FileWatcher {
	return &FileWatcher{
		filePath: filePath,
		interval: defaultInterval,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching the file for changes
func (w *FileWatcher) Start(ctx context.Context) error {
	// Get initial file info
	info, err := os.Stat(w.filePath)
	if err != nil {
		return log.Errorf("failed to stat file %s: %w", w.filePath, err)
	}
	w.mu.Lock()
	w.lastMod = info.ModTime()
	interval := w.interval
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(ctx, interval)
	log.Debug("[Files] watcher started", "path", w.filePath, "interval", interval)
	return nil
}

// Stop stops watching the file
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// watchLoop periodically checks the file for changes
func (w *FileWatcher) watchLoop(ctx context.Context, interval time.Duration) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkForChanges()
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

// checkForChanges checks if the file has been modified
func (w *FileWatcher) checkForChanges() {
	info, err := os.Stat(w.filePath)
	if err != nil {
		log.Warn("[Files] failed to stat watched file", "path", w.filePath, "error", err)
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastMod)
	if changed {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()

	if changed && w.onChange != nil {
		w.onChange(w.filePath)
	}
}

// SetInterval sets the interval for checking file changes. It only applies
// to watchers started afterwards.
func (w *FileWatcher) SetInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = interval
}

// GetFilePath returns the path of the file being watched
func (w *FileWatcher) GetFilePath() string {
	return w.filePath
}
