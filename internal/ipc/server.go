package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"sublingo/internal/api"
	"sublingo/internal/daemon"
	"sublingo/internal/logging"
	"sublingo/internal/logs"
	"sublingo/internal/orchestrator"
	"sublingo/internal/task"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server
	stopCh    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	stopCh := make(chan struct{}, 1)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx, stopCh: stopCh}
	if err := rpcServer.RegisterName("Sublingo", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		stopCh:    stopCh,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// StopRequests signals once when a client asked the daemon to shut down.
func (s *Server) StopRequests() <-chan struct{} {
	return s.stopCh
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun sublingo stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	stopCh chan struct{}
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockPath
	resp.Subscribers = status.Subscribers
	resp.TaskStats = make(map[string]int, len(status.TaskStats))
	for stage, count := range status.TaskStats {
		resp.TaskStats[string(stage)] = count
	}
	for _, desc := range status.Backends {
		resp.Backends = append(resp.Backends, BackendView{
			Name:             desc.Name,
			Capability:       string(desc.Capability),
			ConcurrencyLimit: desc.ConcurrencyLimit,
		})
	}
	return nil
}

func (s *service) TaskList(req TaskListRequest, resp *TaskListResponse) error {
	tasks, err := s.daemon.ListTasks(s.ctx, req.Stages)
	if err != nil {
		return err
	}
	resp.Tasks = api.FromTasks(tasks)
	return nil
}

func (s *service) TaskDescribe(req TaskDescribeRequest, resp *TaskDescribeResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("task describe requires an id")
	}
	t, err := s.daemon.GetTask(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(t)
	return nil
}

func (s *service) TaskAdd(req TaskAddRequest, resp *TaskAddResponse) error {
	s.log().Debug("task add requested",
		logging.String("video", req.VideoRef),
		logging.String("user", req.UserRef))
	t, err := s.daemon.CreateTask(s.ctx, orchestrator.CreateRequest{
		UserRef:  req.UserRef,
		VideoRef: req.VideoRef,
		StartSec: req.StartSec,
		EndSec:   req.EndSec,
		Prefs: task.ModelPreferences{
			Transcription: req.Transcription,
			Translation:   req.Translation,
		},
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	})
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(t)
	s.log().Info("task added via IPC",
		logging.String(logging.FieldEventType, "task_add"),
		logging.String(logging.FieldTaskID, t.ID))
	return nil
}

func (s *service) VideoPlan(req VideoPlanRequest, resp *VideoPlanResponse) error {
	s.log().Debug("video plan requested", logging.String("video", req.VideoPath))
	tasks, err := s.daemon.PlanVideo(s.ctx, req.UserRef, req.VideoPath)
	if err != nil {
		return err
	}
	resp.Tasks = api.FromTasks(tasks)
	s.log().Info("video planned via IPC",
		logging.String(logging.FieldEventType, "video_plan"),
		logging.Int("task_count", len(tasks)))
	return nil
}

func (s *service) TaskRetry(req TaskRetryRequest, resp *TaskRetryResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("task retry requires an id")
	}
	t, err := s.daemon.RetryTask(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(t)
	s.log().Info("task retried via IPC",
		logging.String(logging.FieldEventType, "task_retry"),
		logging.String(logging.FieldTaskID, t.ID))
	return nil
}

func (s *service) TaskCancel(req TaskCancelRequest, resp *TaskCancelResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("task cancel requires an id")
	}
	if err := s.daemon.CancelTask(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Requested = true
	s.log().Info("task cancel requested via IPC",
		logging.String(logging.FieldEventType, "task_cancel"),
		logging.String(logging.FieldTaskID, req.ID))
	return nil
}

func (s *service) TaskClearCompleted(_ TaskClearCompletedRequest, resp *TaskClearCompletedResponse) error {
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed tasks cleared",
		logging.String(logging.FieldEventType, "task_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalTasks = health.TotalTasks
	resp.Error = health.Error
	return err
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
