package config

import (
	"context"
	"time"

	"appcrane/pkg/files"
	"appcrane/pkg/log"
)

// Watcher reloads the configuration file whenever it changes
type Watcher struct {
	fileWatcher *files.FileWatcher
	onChange    func(*Config)
}

func NewWatcher(configPath string, onChange func(*Config)) *Watcher {
	w := &Watcher{onChange: onChange}
	w.fileWatcher = files.NewFileWatcher(configPath, w.handleFileChange)
	return w
}

func (w *Watcher) Start(ctx context.Context) error {
	return w.fileWatcher.Start(ctx)
}

func (w *Watcher) Stop() {
	w.fileWatcher.Stop()
}

func (w *Watcher) SetInterval(interval time.Duration) {
	w.fileWatcher.SetInterval(interval)
}

func (w *Watcher) handleFileChange(filePath string) {
	log.Info("[Config] configuration file changed, reloading", "path", filePath)
	cfg, err := LoadConfig(filePath)
	if err != nil {
		log.Error("[Config] failed to reload configuration", "path", filePath, "error", err)
		return
	}
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
