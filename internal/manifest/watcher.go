// Copyright 2025 Tom Barlow
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

package manifest

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits a reload signal when the manifest file changes on disk.
// Writes are debounced: editors tend to produce bursts of events per save.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	Reload chan *SystemManifest
}

// NewWatcher creates a watcher for the given manifest path.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		debounce: 200 * time.Millisecond,
		logger:   logger.With(slog.String("component", "manifest_watcher")),
		Reload:   make(chan *SystemManifest, 1),
	}
}

// Run watches until the context is cancelled. Reload events carry the
// freshly parsed manifest; parse failures are logged and skipped so a
// half-written file never tears down the running configuration.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory: renames over the file (atomic saves) would
	// otherwise drop the watch.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("manifest watch error", slog.Any("error", err))
		case <-fire:
			m, err := Load(w.path)
			if err != nil {
				w.logger.Warn("manifest reload skipped", slog.Any("error", err))
				continue
			}
			w.logger.Info("manifest reloaded", slog.String("path", w.path))
			select {
			case w.Reload <- m:
			default:
				// A pending reload is superseded by the newer one.
				select {
				case <-w.Reload:
				default:
				}
				w.Reload <- m
			}
		}
	}
}
