// Package watcher re-evaluates local agenda files when they change.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/boblangley/meeting-optimizer/internal/agenda"
	"github.com/boblangley/meeting-optimizer/internal/document"
)

// Verdict is the evaluation of one agenda file.
type Verdict struct {
	Path   string
	Day    time.Time
	Result agenda.Result
}

// Watcher watches an agenda directory for file changes.
type Watcher struct {
	dir       string
	evaluator *agenda.Evaluator
	onVerdict func(Verdict)
	now       func() time.Time
	logger    *slog.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  map[string]time.Time
	mu       sync.Mutex

	// Last evaluated content key per file, see contentKey.
	fileHashes map[string]string
	hashMu     sync.RWMutex
}

// Config holds watcher configuration.
type Config struct {
	Dir       string
	Evaluator *agenda.Evaluator

	// OnVerdict receives every evaluation. Nil only logs.
	OnVerdict func(Verdict)

	// Now is the clock used to pick today's section; nil uses time.Now.
	Now func() time.Time

	Debounce time.Duration
	Logger   *slog.Logger
}

// New creates a new agenda watcher.
func New(cfg Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = agenda.NewEvaluator(agenda.Config{Logger: logger})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Watcher{
		dir:        cfg.Dir,
		evaluator:  evaluator,
		onVerdict:  cfg.OnVerdict,
		now:        now,
		logger:     logger,
		watcher:    fsWatcher,
		debounce:   debounce,
		pending:    make(map[string]time.Time),
		fileHashes: make(map[string]string),
	}, nil
}

// Start begins watching the agenda directory.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("started watching agendas", "path", w.dir)

	go w.processEvents(ctx)
	go w.processDebounced(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Scan evaluates every agenda file under the directory once, in path order.
func (w *Watcher) Scan(ctx context.Context) ([]Verdict, error) {
	var paths []string
	err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if document.IsAgendaFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	verdicts := make([]Verdict, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return verdicts, err
		}
		if v, ok := w.evaluate(path); ok {
			verdicts = append(verdicts, v)
		}
	}
	return verdicts, nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !document.IsAgendaFile(event.Name) {
				// Handle new directories
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
						_ = w.watcher.Add(event.Name)
					}
				}
				continue
			}

			// Queue for debounced processing
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			now := time.Now()
			var ready []string

			for path, queueTime := range w.pending {
				if now.Sub(queueTime) >= w.debounce {
					ready = append(ready, path)
				}
			}

			for _, path := range ready {
				delete(w.pending, path)
			}
			w.mu.Unlock()

			for _, path := range ready {
				w.handleFileChange(path)
			}
		}
	}
}

// computeFileHash computes the SHA-256 of file contents.
func computeFileHash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// contentKey ties a content hash to the day it was evaluated for, so an
// unchanged agenda is evaluated again once the day rolls over.
func contentKey(day time.Time, hash string) string {
	return agenda.DatePrefix(day) + "|" + hash
}

// hasContentChanged reports whether key differs from the last evaluated one.
func (w *Watcher) hasContentChanged(filePath, key string) bool {
	w.hashMu.RLock()
	stored, exists := w.fileHashes[filePath]
	w.hashMu.RUnlock()

	return !exists || key != stored
}

func (w *Watcher) handleFileChange(filePath string) {
	hash, err := computeFileHash(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			w.hashMu.Lock()
			delete(w.fileHashes, filePath)
			w.hashMu.Unlock()
			w.logger.Info("agenda removed", "path", filePath)
			return
		}
		w.logger.Error("failed to read agenda", "path", filePath, "error", err)
		return
	}

	if !w.hasContentChanged(filePath, contentKey(w.now(), hash)) {
		w.logger.Debug("agenda unchanged, skipping", "path", filePath)
		return
	}

	w.evaluate(filePath)
}

// evaluate parses and evaluates one file for today and records its hash.
func (w *Watcher) evaluate(filePath string) (Verdict, bool) {
	blocks, err := document.ParseFile(filePath)
	if err != nil {
		w.logger.Error("failed to parse agenda", "path", filePath, "error", err)
		return Verdict{}, false
	}

	today := w.now()
	if hash, err := computeFileHash(filePath); err == nil {
		w.hashMu.Lock()
		w.fileHashes[filePath] = contentKey(today, hash)
		w.hashMu.Unlock()
	}

	v := Verdict{Path: filePath, Day: today, Result: w.evaluator.Evaluate(blocks, today)}

	w.logger.Info("agenda evaluated",
		"path", filePath,
		"verdict", v.Result.Verdict(),
		"outcome", v.Result.Outcome)

	if w.onVerdict != nil {
		w.onVerdict(v)
	}
	return v, true
}
