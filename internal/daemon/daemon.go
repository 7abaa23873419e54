package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"sublingo/internal/config"
	"sublingo/internal/logging"
	"sublingo/internal/models"
	"sublingo/internal/notifications"
	"sublingo/internal/orchestrator"
	"sublingo/internal/progress"
	"sublingo/internal/srs"
	"sublingo/internal/task"
	"sublingo/internal/watch"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *task.Store
	registry  *models.Registry
	orch      *orchestrator.Orchestrator
	hub       *progress.Hub
	scheduler *srs.Scheduler
	watcher   *watch.Watcher
	api       *apiServer

	lockPath string
	lock     *flock.Flock
	logPath  string

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Deps bundles the collaborators a daemon wires together. Watcher may be
// nil when no ingest directory is configured.
type Deps struct {
	Store     *task.Store
	Registry  *models.Registry
	Orch      *orchestrator.Orchestrator
	Hub       *progress.Hub
	Scheduler *srs.Scheduler
	Watcher   *watch.Watcher
	Logger    *slog.Logger
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	PID         int
	DBPath      string
	LockPath    string
	TaskStats   task.Stats
	Subscribers int
	Backends    []models.Descriptor
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Orch == nil || deps.Hub == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and hub")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "sublingod.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		registry:  deps.Registry,
		orch:      deps.Orch,
		hub:       deps.Hub,
		scheduler: deps.Scheduler,
		watcher:   deps.Watcher,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		logPath:   filepath.Join(cfg.Paths.LogDir, "sublingod.log"),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the orchestrator, progress
// hub, ingest watcher, and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("another sublingo daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.hub.Run(runCtx)
	}()

	if err := d.orch.Start(runCtx); err != nil {
		d.teardown()
		return err
	}
	if err := d.watcher.Start(runCtx); err != nil {
		d.orch.Stop()
		d.teardown()
		return err
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.watcher.Stop()
			d.orch.Stop()
			d.teardown()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("sublingo daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	d.watcher.Stop()
	d.orch.Stop()
	d.teardown()
	d.running.Store(false)
	d.logger.Info("sublingo daemon stopped")
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.registry != nil {
		errs = append(errs, d.registry.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Status returns current runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		DBPath:      d.store.Path(),
		LockPath:    d.lockPath,
		Subscribers: d.hub.Subscribers(),
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.TaskStats = stats
	}
	if d.registry != nil {
		status.Backends = d.registry.Descriptors()
	}
	return status
}

// ListTasks returns tasks filtered by optional stage names. Unknown stage
// names are ignored.
func (d *Daemon) ListTasks(ctx context.Context, stages []string) ([]*task.Task, error) {
	parsed := make([]task.Stage, 0, len(stages))
	for _, raw := range stages {
		stage, ok := task.ParseStage(raw)
		if !ok {
			continue
		}
		parsed = append(parsed, stage)
	}
	return d.store.List(ctx, parsed...)
}

// GetTask returns one task by id.
func (d *Daemon) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return d.store.GetByID(ctx, id)
}

// CreateTask enqueues a chunk task.
func (d *Daemon) CreateTask(ctx context.Context, req orchestrator.CreateRequest) (*task.Task, error) {
	return d.orch.CreateTask(ctx, req)
}

// PlanVideo enqueues one task per chunk of the given video.
func (d *Daemon) PlanVideo(ctx context.Context, userRef, videoPath string) ([]*task.Task, error) {
	return d.orch.PlanVideo(ctx, userRef, videoPath)
}

// RetryTask requeues a stalled or failed task.
func (d *Daemon) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	return d.orch.RetryTask(ctx, id)
}

// CancelTask requests cooperative cancellation.
func (d *Daemon) CancelTask(ctx context.Context, id string) error {
	return d.orch.CancelTask(ctx, id)
}

// ClearCompleted removes completed tasks.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.DeleteCompleted(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (task.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification sends a test push notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the bound HTTP API address, or empty when the API is
// disabled or not started.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}
