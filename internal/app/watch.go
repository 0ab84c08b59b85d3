package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/session"
	"go.uber.org/zap"
)

// LoadFile opens a session on a backtest file
func (a *App) LoadFile(path string) (*session.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.ErrFileRead, err)
	}
	defer f.Close()
	return a.Load(f)
}

// ReplaceFile swaps a backtest file into an existing session
func (a *App) ReplaceFile(id, path string) (*session.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.ErrFileRead, err)
	}
	defer f.Close()
	return a.Replace(id, f)
}

// Watch reloads path into session id every time the file is written, until
// ctx is done. A rejected file leaves the session on its previous dataset.
func (a *App) Watch(ctx context.Context, id, path string) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// watch the directory so files replaced by rename are still seen
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	a.logger.Info("watching dataset", zap.String("session", id), zap.String("path", target))

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			reload = time.After(a.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("dataset watcher error", zap.Error(err))
		case <-reload:
			reload = nil
			if _, err := a.ReplaceFile(id, target); err != nil {
				if _, gone := a.sessions.Get(id); gone != nil {
					return err
				}
				continue
			}
			a.logger.Info("dataset reloaded", zap.String("session", id), zap.String("path", target))
		}
	}
}
