package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"calmchat/internal/logger"
	"calmchat/internal/util"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

type documentSink interface {
	IngestDocument(ctx context.Context, path string) (FileReport, error)
	Remove(ctx context.Context, filename string) (int, error)
}

// Watcher ingests PDFs as they appear in a directory and removes the chunks of PDFs that
// disappear. Writes are debounced so a file still being copied is ingested once.
type Watcher struct {
	dir      string
	sink     documentSink
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	// OnReport, when set, receives the outcome of every ingestion the watcher triggers.
	OnReport func(FileReport, error)
}

func NewWatcher(dir string, sink documentSink, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dir: dir, sink: sink, debounce: debounce, pending: make(map[string]time.Time)}
}

type watchAction int

const (
	actionNone watchAction = iota
	actionIngest
	actionRemove
)

func classifyEvent(ev fsnotify.Event) watchAction {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !util.IsPDF(name) {
		return actionNone
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return actionRemove
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		return actionIngest
	default:
		return actionNone
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("watching %s for PDFs", w.dir)

	ticker := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev, time.Now())
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch %s: %v", w.dir, err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event, now time.Time) {
	switch classifyEvent(ev) {
	case actionIngest:
		w.mu.Lock()
		w.pending[ev.Name] = now
		w.mu.Unlock()
	case actionRemove:
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
		name := filepath.Base(ev.Name)
		n, err := w.sink.Remove(ctx, name)
		switch {
		case errors.Is(err, util.ErrNotFound):
		case err != nil:
			logger.Warn("remove %s: %v", name, err)
		default:
			logger.Info("removed %s: %d chunks", name, n)
		}
	}
}

// flush ingests every pending file that has been quiet for the debounce interval.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	due := make([]string, 0)
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(due)
	for _, path := range due {
		rep, err := w.sink.IngestDocument(ctx, path)
		if err != nil {
			logger.Warn("ingest %s failed (%s): %v", filepath.Base(path), rep.ErrorKind, err)
		} else {
			logger.Info("ingested %s: %d chunks", rep.Filename, rep.Chunks)
		}
		if w.OnReport != nil {
			w.OnReport(rep, err)
		}
	}
}
