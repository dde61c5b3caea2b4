// Package watch triggers an immediate pass for file sources when their
// directory changes, so edits show up without waiting for the next tick.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasksync/internal/reconcile"
	"github.com/mschirtzinger/tasksync/internal/sources/filesrc"
)

// DefaultDebounce is how long a directory must stay quiet before its source
// is synced.
const DefaultDebounce = 500 * time.Millisecond

// Trigger runs a pass for one source account.
type Trigger interface {
	SyncNow(ctx context.Context, sourceID string) (*reconcile.Run, error)
}

// Config holds watcher settings.
type Config struct {
	// Debounce batches bursts of events into one pass.
	Debounce time.Duration

	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Debounce: DefaultDebounce, Logger: zerolog.Nop()}
}

// Watcher maps watched directories to file source accounts.
type Watcher struct {
	trigger Trigger
	config  Config
	logger  zerolog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	dirs    map[string][]string  // abs dir -> source ids
	pending map[string]time.Time // source id -> last event
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher. Start must be called before events are handled.
func New(trigger Trigger, cfg Config) (*Watcher, error) {
	if trigger == nil {
		return nil, errors.New("trigger cannot be nil")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		trigger: trigger,
		config:  cfg,
		logger:  cfg.Logger.With().Str("component", "watch").Logger(),
		watcher: fw,
		dirs:    make(map[string][]string),
		pending: make(map[string]time.Time),
	}, nil
}

// Add watches dir on behalf of sourceID. Several sources may share a dir.
func (w *Watcher) Add(sourceID, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ids, watched := w.dirs[abs]
	for _, id := range ids {
		if id == sourceID {
			return nil
		}
	}
	if !watched {
		if err := w.watcher.Add(abs); err != nil {
			return fmt.Errorf("failed to watch %s: %w", abs, err)
		}
	}
	w.dirs[abs] = append(ids, sourceID)
	w.logger.Debug().Str("dir", abs).Str("source", sourceID).Msg("watching")
	return nil
}

// Remove stops watching on behalf of sourceID.
func (w *Watcher) Remove(sourceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for dir, ids := range w.dirs {
		kept := ids[:0]
		for _, id := range ids {
			if id != sourceID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			_ = w.watcher.Remove(dir)
			delete(w.dirs, dir)
			continue
		}
		w.dirs[dir] = kept
	}
	delete(w.pending, sourceID)
}

// Start begins handling events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}
	w.running = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.processPending(ctx)
	return nil
}

// Stop ends event handling and releases the fsnotify watcher. A pass already
// triggered runs to completion first.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.running = false
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Running reports whether Start has been called without Stop.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !filesrc.IsAssignmentFile(event.Name) {
				continue
			}
			w.queue(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// queue marks every source watching path's directory as pending.
func (w *Watcher) queue(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for _, id := range w.dirs[filepath.Dir(abs)] {
		w.pending[id] = now
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range w.due(time.Now()) {
				w.sync(ctx, id)
			}
		}
	}
}

// due removes and returns the sources that have been quiet for the debounce
// interval.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []string
	for id, at := range w.pending {
		if now.Sub(at) >= w.config.Debounce {
			ids = append(ids, id)
			delete(w.pending, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (w *Watcher) sync(ctx context.Context, sourceID string) {
	run, err := w.trigger.SyncNow(ctx, sourceID)
	if err != nil {
		w.logger.Error().Err(err).Str("source", sourceID).Msg("file change sync failed")
		return
	}
	sum := run.Summary()
	w.logger.Info().
		Str("source", sourceID).
		Int("new", sum.New).
		Int("updated", sum.Updated).
		Int("failed", sum.Failed).
		Msg("file change synced")
}
