package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for the tree to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watch runs a build, then rebuilds whenever the shared tree changes, until
// ctx is done. Bursts of events within debounce trigger a single rebuild.
// Changes inside skipped directories, the output base among them, are
// ignored. Every run's outcome is passed to report.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, report func(*Summary, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := e.watchDirRecursive(watcher, e.sharedRoot); err != nil {
		return fmt.Errorf("failed to watch shared root: %w", err)
	}

	report(e.Run(ctx))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if e.watchSkipped(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := e.watchDirRecursive(watcher, event.Name); err != nil {
						e.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			e.logger.Debug("shared tree changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			report(e.Run(ctx))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher,
// leaving out skipped ones.
func (e *Engine) watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if e.watchSkipped(p) {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func (e *Engine) watchSkipped(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, s := range e.discover.Skip {
		dir, err := filepath.Abs(s)
		if err != nil {
			continue
		}
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
