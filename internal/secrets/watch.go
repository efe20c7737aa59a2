package secrets

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the secrets file whenever it changes, until ctx is cancelled.
// The parent directory is watched so editors that replace the file are handled.
func (r *Resolver) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return err
	}
	go r.watchLoop(ctx, w)
	return nil
}

func (r *Resolver) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	target := filepath.Clean(r.path)
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			r.logger.Debug("secrets file event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := r.Reload(); err != nil {
					r.logger.Warn("secrets reload failed", zap.Error(err))
					return
				}
				r.logger.Info("secrets reloaded", zap.String("path", r.path))
			})
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Debug("secrets watcher error", zap.Error(err))
		}
	}
}
