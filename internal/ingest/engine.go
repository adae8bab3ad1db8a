// Package ingest feeds spooled event files into the log manager.
// Producers must write spool entries atomically: write to a temp name,
// then rename to *.json inside the spool directory.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmellis/chatlog/internal/bus"
	"github.com/dmellis/chatlog/internal/manager"
	"github.com/dmellis/chatlog/internal/store"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const spoolExt = ".json"

// Engine watches the spool directory and persists dropped events.
type Engine struct {
	dir    string
	mgr    *manager.Manager
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a spool ingestion engine.
func NewEngine(dir string, mgr *manager.Manager, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		dir:    dir,
		mgr:    mgr,
		bus:    b,
		logger: logger,
	}
}

// Start begins watching the spool directory. Files already present are
// processed first.
func (e *Engine) Start(ctx context.Context) error {
	if err := os.MkdirAll(e.dir, 0700); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(e.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch spool dir: %w", err)
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.loop(ctx, watcher)
	return nil
}

// Stop stops the engine and waits for the loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(e.done)
	defer func() { _ = watcher.Close() }()

	// Catch up on files spooled while the daemon was down. The watch is
	// already armed, so nothing slips between scan and watch.
	e.scan()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(evt.Name, spoolExt) {
				e.processFile(evt.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Error("spool watcher error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) scan() {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		e.logger.Error("spool scan failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), spoolExt) {
			e.processFile(filepath.Join(e.dir, entry.Name()))
		}
	}
}

func (e *Engine) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Already consumed by an earlier pass.
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		e.logger.Error("cannot read spool file", zap.String("path", path), zap.Error(err))
		return
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		e.reject(path, err)
		return
	}
	ev, err := rec.Event()
	if err != nil {
		e.reject(path, err)
		return
	}

	// A duplicate log id means the event is already stored; the file is
	// consumed like any other success.
	err = e.mgr.AddEvent(ev)
	if err != nil && !errors.Is(err, store.ErrPresent) {
		if errors.Is(err, manager.ErrDisabled) {
			// Leave the file for a later run with logging enabled.
			e.logger.Warn("logging disabled, spool entry kept", zap.String("path", path))
			return
		}
		e.logger.Error("failed to store spooled event",
			zap.String("path", path),
			zap.String("log_id", ev.Info().LogID),
			zap.Error(err))
		e.publish("ingest.failed", map[string]string{"path": path, "log_id": ev.Info().LogID})
		return
	}

	if err := os.Remove(path); err != nil {
		e.logger.Warn("cannot remove consumed spool file", zap.String("path", path), zap.Error(err))
	}
	e.publish("ingest.stored", map[string]string{"path": path, "log_id": ev.Info().LogID})
}

// reject renames a malformed spool file out of the way so it is never
// retried, keeping it around for inspection.
func (e *Engine) reject(path string, cause error) {
	e.logger.Warn("rejecting malformed spool file", zap.String("path", path), zap.Error(cause))
	if err := os.Rename(path, path+".rej"); err != nil {
		e.logger.Error("cannot quarantine spool file", zap.String("path", path), zap.Error(err))
	}
	e.publish("ingest.rejected", map[string]string{"path": path})
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
