// Package watch sorts every PDF dropped into an inbox directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// SortFunc sorts the document at path into outDir.
type SortFunc func(ctx context.Context, path, outDir string) error

type Config struct {
	Dir       string
	OutputDir string
	// Settle is how long a file must go without writes before it is picked up.
	Settle time.Duration
}

type Watcher struct {
	cfg  Config
	sort SortFunc

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(cfg Config, sort SortFunc) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	return &Watcher{cfg: cfg, sort: sort, pending: map[string]*time.Timer{}}
}

// Run sorts the PDFs already in the inbox, then each new or rewritten one,
// until ctx is cancelled. Jobs run one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	ready := make(chan string, 16)
	existing, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if !e.IsDir() && isPDF(e.Name()) {
			w.schedule(ctx, filepath.Join(w.cfg.Dir, e.Name()), ready)
		}
	}
	log.Info().Str("dir", w.cfg.Dir).Dur("settle", w.cfg.Settle).Msg("watching inbox")

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && isPDF(ev.Name) {
				w.schedule(ctx, ev.Name, ready)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Warn().Err(err).Msg("watcher error")
		case path := <-ready:
			w.process(ctx, path)
		}
	}
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.Settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		log.Debug().Str("file", path).Msg("inbox file gone before sorting")
		return
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outDir := filepath.Join(w.cfg.OutputDir, name)

	start := time.Now()
	if err := w.sort(ctx, path, outDir); err != nil {
		log.Error().Err(err).Str("file", path).Msg("inbox document failed")
		return
	}
	log.Info().Str("file", path).Str("output", outDir).Dur("duration", time.Since(start)).Msg("inbox document sorted")
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
