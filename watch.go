package main

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const watchSettleDelay = 500 * time.Millisecond

// WatchSnapshot refreshes storage whenever the CSV at path is written or
// replaced. Bursts of events are coalesced into one refresh.
func WatchSnapshot(path string, storage *ResolverStorage, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create watcher")
	}
	// Watch the directory: editors and downloaders replace the file by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "unable to watch %s", filepath.Dir(path))
	}

	go func() {
		defer watcher.Close()

		target := filepath.Clean(path)
		settle := time.NewTimer(watchSettleDelay)
		settle.Stop()

		for {
			select {
			case <-stop:
				settle.Stop()
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !settle.Stop() {
					select {
					case <-settle.C:
					default:
					}
				}
				settle.Reset(watchSettleDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Warnf("snapshot watcher error: %v", err)
			case <-settle.C:
				logrus.Infof("%s changed, reloading", target)
				if err := storage.Refresh(); err != nil {
					logrus.Warnf("reload after change failed: %v", err)
				}
			}
		}
	}()

	return nil
}
