package schema

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// WatchDir reloads every template in dir into store whenever a template file changes.
// A reload that fails to parse keeps the previous templates. The returned channel is
// closed once ctx is done and the watcher has stopped.
func WatchDir(ctx context.Context, dir string, store *MemoryStore) (<-chan struct{}, error) {
	log := logging.NewLogger(ctx).WithField("templates_dir", dir)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, failure.New(failure.KindConfiguration, "schema.WatchDir", err)
	}
	err = w.Add(dir)
	if err != nil {
		_ = w.Close()
		log.Errorf("error: %v", err)
		return nil, failure.New(failure.KindConfiguration, "schema.WatchDir", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			_ = w.Close()
		}()

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if isTemplateFile(e.Name) && e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
					reload = time.After(reloadDebounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher error: %v", err)
			case <-reload:
				reload = nil
				loaded, err := LoadDir(ctx, dir)
				if err != nil {
					log.Warnf("template reload failed, keeping previous templates: %v", err)
					continue
				}
				store.Replace(loaded)
				log.Infof("reloaded %d templates", len(loaded.IDs()))
			}
		}
	}()
	return done, nil
}

func isTemplateFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
