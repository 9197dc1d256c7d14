package config

import (
	"chat-gateway/internal/logger"
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// PromptWatcher reloads the prompt section whenever the config file changes on disk
type PromptWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(PromptConfig)
}

// NewPromptWatcher watches the directory containing path, so editors that replace
// the file through a rename are still observed.
func NewPromptWatcher(path string, onChange func(PromptConfig)) (*PromptWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	return &PromptWatcher{
		path:     filepath.Clean(path),
		watcher:  fsWatcher,
		onChange: onChange,
	}, nil
}

// Run blocks until ctx is done
func (w *PromptWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.WithError(err).Warn("Config watcher error")
		}
	}
}

func (w *PromptWatcher) reload() {
	prompt, err := LoadPrompt(w.path)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"path": w.path, "error": err}).Warn("Ignoring config change, keeping previous prompt")
		return
	}
	logger.Log.WithField("path", w.path).Info("Prompt configuration reloaded")
	w.onChange(prompt)
}
