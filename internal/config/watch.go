package config

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the use-case config file whenever it changes on disk
// and hands the parsed result to a callback. Parse failures keep the
// previous configuration in effect.
type Watcher struct {
	path     string
	onChange func(*UseCase)
	fw       *fsnotify.Watcher
}

// NewWatcher starts watching the directory containing path. Watching
// the directory instead of the file itself survives editors and config
// mounts that replace the file atomically.
func NewWatcher(path string, onChange func(*UseCase)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, onChange: onChange, fw: fw}, nil
}

// Run consumes filesystem events until the context is canceled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logWatch("usecase_watch_error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) reload() {
	uc, err := LoadUseCaseFile(w.path)
	if err != nil {
		logWatch("usecase_reload_failed", map[string]any{"path": w.path, "error": err.Error()})
		return
	}
	logWatch("usecase_reloaded", map[string]any{"path": w.path, "logic": uc.Params.Logic})
	w.onChange(uc)
}

func logWatch(event string, fields map[string]any) {
	entry := map[string]any{
		"ts":        time.Now().Format(time.RFC3339Nano),
		"component": "config",
		"event":     event,
	}
	if _, ok := fields["error"]; ok {
		entry["level"] = "error"
	} else {
		entry["level"] = "info"
	}
	for k, v := range fields {
		entry[k] = v
	}
	if b, err := json.Marshal(entry); err == nil {
		log.SetFlags(0)
		log.Println(string(b))
	}
}
