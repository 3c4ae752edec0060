// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ferret

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settingsReloadDelay coalesces the burst of filesystem events an editor or
// config management tool produces while rewriting the settings file
const settingsReloadDelay = 250 * time.Millisecond

// SettingsChangedFunc receives the new settings after a successful reload
type SettingsChangedFunc func(*Settings)

// SettingsWatcher reloads the settings file when it changes on disk and hands
// validated settings to a callback. Reloads that fail to parse or validate
// are logged and dropped, keeping the previous settings active
type SettingsWatcher struct {
	path        string
	logger      *slog.Logger
	changedFunc SettingsChangedFunc
	watcher     *fsnotify.Watcher
	timerMutex  sync.Mutex
	reloadTimer *time.Timer
	doneChan    chan struct{}
	onceStop    sync.Once
}

// NewSettingsWatcher watches the settings file at the given path. The parent
// directory is watched rather than the file itself so the common
// write-rename dance used for atomic replacement is still observed
func NewSettingsWatcher(
	path string,
	logger *slog.Logger,
	changedFunc SettingsChangedFunc,
) (*SettingsWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}
	w := &SettingsWatcher{
		path:        absPath,
		logger:      logger,
		changedFunc: changedFunc,
		watcher:     watcher,
		doneChan:    make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Stop stops watching the settings file
func (w *SettingsWatcher) Stop() {
	w.onceStop.Do(func() {
		close(w.doneChan)
		w.timerMutex.Lock()
		if w.reloadTimer != nil {
			w.reloadTimer.Stop()
		}
		w.timerMutex.Unlock()
		w.watcher.Close()
	})
}

func (w *SettingsWatcher) watchLoop() {
	for {
		select {
		case <-w.doneChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(
				"settings watch error",
				"component", "settings",
				"error", err,
			)
		}
	}
}

func (w *SettingsWatcher) scheduleReload() {
	w.timerMutex.Lock()
	defer w.timerMutex.Unlock()
	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
	}
	w.reloadTimer = time.AfterFunc(settingsReloadDelay, w.reload)
}

func (w *SettingsWatcher) reload() {
	select {
	case <-w.doneChan:
		return
	default:
	}
	settings, err := NewSettingsFromFile(w.path)
	if err != nil {
		w.logger.Warn(
			"settings reload failed",
			"component", "settings",
			"error", err,
		)
		return
	}
	if err := settings.Validate(); err != nil {
		w.logger.Warn(
			"settings reload rejected",
			"component", "settings",
			"error", err,
		)
		return
	}
	w.logger.Info(
		"settings reloaded",
		"component", "settings",
		"path", w.path,
	)
	w.changedFunc(settings)
}
