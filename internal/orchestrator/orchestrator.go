package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sublingo/internal/config"
	"sublingo/internal/logging"
	"sublingo/internal/media"
	"sublingo/internal/models"
	"sublingo/internal/notifications"
	"sublingo/internal/progress"
	"sublingo/internal/retry"
	"sublingo/internal/srs"
	"sublingo/internal/task"
	"sublingo/internal/vocab"
)

// Orchestrator owns task state: it is the only component that drives stage
// transitions. A bounded worker pool claims queued tasks and runs each
// task's stages strictly sequentially; a watchdog stalls tasks whose
// workers stop reporting.
type Orchestrator struct {
	cfg       *config.Config
	store     *task.Store
	registry  *models.Registry
	hub       *progress.Hub
	notifier  notifications.Service
	logger    *slog.Logger
	prober    *media.Prober
	filter    *vocab.Filter
	scheduler *srs.Scheduler
	policy    retry.Policy

	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Deps bundles the collaborators an orchestrator needs.
type Deps struct {
	Store     *task.Store
	Registry  *models.Registry
	Hub       *progress.Hub
	Notifier  notifications.Service
	Logger    *slog.Logger
	Prober    *media.Prober
	Filter    *vocab.Filter
	Scheduler *srs.Scheduler
}

// New constructs an orchestrator from configuration and collaborators.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	prober := deps.Prober
	if prober == nil {
		prober = media.NewProber(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	}
	pollInterval := time.Duration(cfg.Pipeline.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     deps.Store,
		registry:  deps.Registry,
		hub:       deps.Hub,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "orchestrator"),
		prober:    prober,
		filter:    deps.Filter,
		scheduler: deps.Scheduler,
		policy: retry.NewPolicy(
			cfg.Pipeline.MaxAttempts,
			time.Duration(cfg.Pipeline.RetryBaseDelayMS)*time.Millisecond,
			time.Duration(cfg.Pipeline.RetryMaxDelayMS)*time.Millisecond,
		),
		pollInterval: pollInterval,
	}
}

// Start launches the worker pool, watchdog, and retention sweeper.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true

	workers := o.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}
	o.wg.Add(workers + 2)
	for i := 0; i < workers; i++ {
		go o.runWorker(runCtx, i)
	}
	go o.runWatchdog(runCtx)
	go o.runRetention(runCtx)

	o.logger.Info("orchestrator started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for in-flight stage
// boundaries to be reached.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) runWorker(ctx context.Context, index int) {
	defer o.wg.Done()
	logger := o.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := o.store.ClaimQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim queued task", logging.Error(err))
			o.sleep(ctx, o.pollInterval)
			continue
		}
		if claimed == nil {
			o.sleep(ctx, o.pollInterval)
			continue
		}

		o.processTask(ctx, logger, claimed)
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (o *Orchestrator) publish(evt *task.StageEvent) {
	if evt == nil {
		return
	}
	o.hub.Publish(evt)
}
