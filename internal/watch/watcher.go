package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sublingo/internal/config"
	"sublingo/internal/logging"
	"sublingo/internal/task"
)

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
}

// Planner turns a settled video file into chunk tasks. Satisfied by the
// orchestrator.
type Planner interface {
	PlanVideo(ctx context.Context, userRef, videoPath string) ([]*task.Task, error)
}

// Watcher monitors the ingest directory and plans chunk tasks for new video
// files. Files are only planned once their size has been stable across
// consecutive polls, so partially copied videos are left alone. Videos in a
// per-user subdirectory are attributed to that user; files at the ingest
// root belong to the default user.
type Watcher struct {
	dir          string
	defaultUser  string
	planner      Planner
	logger       *slog.Logger
	pollInterval time.Duration
	stablePolls  int

	newFSWatcher func() (*fsnotify.Watcher, error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]*pendingFile
}

type pendingFile struct {
	lastSize int64
	stable   int
}

// Option customizes watcher construction.
type Option func(*Watcher)

// WithPollInterval overrides the size-stability poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// NewWatcher constructs an ingest watcher. Returns nil when no ingest
// directory is configured; callers treat a nil watcher as disabled.
func NewWatcher(cfg *config.Config, planner Planner, logger *slog.Logger, opts ...Option) *Watcher {
	dir := strings.TrimSpace(cfg.Paths.IngestDir)
	if dir == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Watcher{
		dir:          dir,
		defaultUser:  cfg.Paths.DefaultUser,
		planner:      planner,
		logger:       logging.NewComponentLogger(logger, "ingest-watcher"),
		pollInterval: 2 * time.Second,
		stablePolls:  2,
		newFSWatcher: fsnotify.NewWatcher,
		pending:      make(map[string]*pendingFile),
	}
	if w.defaultUser == "" {
		w.defaultUser = "default"
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the ingest directory. Existing files are swept on
// startup so videos dropped while the daemon was down still get planned.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fsw, err := w.newFSWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	// User subdirectories need their own watches.
	entries, _ := os.ReadDir(w.dir)
	for _, entry := range entries {
		if entry.IsDir() {
			if err := fsw.Add(filepath.Join(w.dir, entry.Name())); err != nil {
				w.logger.Warn("failed to watch user directory",
					logging.String("dir", entry.Name()), logging.Error(err))
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(2)
	go w.runEvents(runCtx, fsw)
	go w.runPoll(runCtx)

	w.sweepExisting()
	w.logger.Info("ingest watcher started", logging.String("dir", w.dir))
	return nil
}

// Stop terminates watching and waits for in-flight planning to finish.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("ingest watcher stopped")
}

func (w *Watcher) runEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-fsw.Events:
			if !ok {
				return
			}
			if evt.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					if err := fsw.Add(evt.Name); err != nil {
						w.logger.Warn("failed to watch new directory",
							logging.String("dir", evt.Name), logging.Error(err))
					}
					continue
				}
			}
			if evt.Op.Has(fsnotify.Create) || evt.Op.Has(fsnotify.Write) {
				w.track(evt.Name)
			}
			if evt.Op.Has(fsnotify.Remove) || evt.Op.Has(fsnotify.Rename) {
				w.forget(evt.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) runPoll(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.settled() {
				w.plan(ctx, path)
			}
		}
	}
}

func (w *Watcher) sweepExisting() {
	_ = filepath.WalkDir(w.dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		w.track(path)
		return nil
	})
}

func (w *Watcher) track(path string) {
	if _, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
		return
	}
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if _, exists := w.pending[path]; !exists {
		w.pending[path] = &pendingFile{lastSize: -1}
	}
}

func (w *Watcher) forget(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	delete(w.pending, path)
}

// settled returns pending files whose size held steady long enough, and
// removes them from the pending set.
func (w *Watcher) settled() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	var ready []string
	for path, state := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != state.lastSize {
			state.lastSize = info.Size()
			state.stable = 0
			continue
		}
		state.stable++
		if state.stable >= w.stablePolls {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) plan(ctx context.Context, path string) {
	userRef := w.userFor(path)
	tasks, err := w.planner.PlanVideo(ctx, userRef, path)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("failed to plan video",
				logging.String(logging.FieldVideoRef, filepath.Base(path)),
				logging.Error(err))
		}
		return
	}
	w.logger.Info("video planned",
		logging.String(logging.FieldVideoRef, filepath.Base(path)),
		logging.String(logging.FieldUserRef, userRef),
		logging.Int("chunks", len(tasks)))
}

// userFor attributes a file to the owner of its first-level subdirectory,
// or to the default user for files at the ingest root.
func (w *Watcher) userFor(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return w.defaultUser
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 && parts[0] != "" && parts[0] != "." {
		return parts[0]
	}
	return w.defaultUser
}
