package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"sublingo/internal/api"
	"sublingo/internal/config"
	"sublingo/internal/logging"
	"sublingo/internal/orchestrator"
	"sublingo/internal/progress"
	"sublingo/internal/services"
	"sublingo/internal/srs"
	"sublingo/internal/task"
)

// userHeader carries the identity asserted by the upstream auth layer.
// The daemon treats it as an opaque reference.
const userHeader = "X-User"

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", withBearerToken(token, srv.handleStatus))
	mux.HandleFunc("/api/tasks", withBearerToken(token, srv.handleTasks))
	mux.HandleFunc("/api/tasks/", withBearerToken(token, srv.handleTask))
	mux.HandleFunc("/api/events", withBearerToken(token, srv.handleEvents))
	mux.HandleFunc("/api/reviews", withBearerToken(token, srv.handleReviews))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long-poll responses must outlive the heartbeat window.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, empty until started.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.StatusResponse{
		Running:     status.Running,
		PID:         status.PID,
		DBPath:      status.DBPath,
		LockPath:    status.LockPath,
		TaskStats:   make(map[string]int, len(status.TaskStats)),
		Subscribers: status.Subscribers,
	}
	for stage, count := range status.TaskStats {
		payload.TaskStats[string(stage)] = count
	}
	for _, desc := range status.Backends {
		payload.Backends = append(payload.Backends, api.BackendView{
			Name:             desc.Name,
			Capability:       string(desc.Capability),
			ConcurrencyLimit: desc.ConcurrencyLimit,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTasks(w, r)
	case http.MethodPost:
		s.createTask(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listTasks(w http.ResponseWriter, r *http.Request) {
	userRef := s.user(r)
	tasks, err := s.daemon.store.ListByUser(r.Context(), userRef)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: api.FromTasks(tasks)})
}

func (s *apiServer) createTask(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.daemon.CreateTask(r.Context(), orchestrator.CreateRequest{
		UserRef:    s.user(r),
		VideoRef:   req.VideoRef,
		StartSec:   req.StartSec,
		EndSec:     req.EndSec,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Prefs: task.ModelPreferences{
			Transcription: req.ModelPreferences.Transcription,
			Translation:   req.ModelPreferences.Translation,
		},
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.CreateTaskResponse{TaskID: created.ID})
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id, found := strings.CutSuffix(rest, "/review"); found {
		s.taskReview(w, r, id)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	t, err := s.daemon.GetTask(r.Context(), rest)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTask(t))
}

func (s *apiServer) taskReview(w http.ResponseWriter, r *http.Request, id string) {
	if s.daemon.scheduler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "review scheduling unavailable")
		return
	}
	t, err := s.daemon.GetTask(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	blocking, err := s.daemon.scheduler.BlockingWords(r.Context(), t.UserRef, t.Results.VocabularyIDs, chunkComplexity(t))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	complete, err := s.daemon.scheduler.ChunkReviewComplete(r.Context(), t.UserRef, t.Results.VocabularyIDs, chunkComplexity(t))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := api.ReviewResponse{TaskID: t.ID, Complete: complete, Blocking: make([]api.WordView, 0, len(blocking))}
	for _, word := range blocking {
		schedule, _ := s.daemon.scheduler.Schedule(r.Context(), word.Word.ID)
		resp.Blocking = append(resp.Blocking, api.FromBlockingWord(word, schedule))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userRef := s.user(r)
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	// A fresh subscription replays the latest persisted event per task so
	// terminal transitions broadcast while the client was away are never
	// missed. The client resumes live fetching from cursor zero and drops
	// duplicates by per-task sequence number.
	if since == 0 {
		snapshot, err := progress.Replay(r.Context(), s.daemon.store, userRef)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if len(snapshot) > 0 {
			s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: api.FromEvents(snapshot), Next: 0})
			return
		}
	}

	ctx := r.Context()
	if follow {
		heartbeat := time.Duration(s.daemon.cfg.Progress.HeartbeatInterval) * time.Second
		if heartbeat <= 0 {
			heartbeat = 15 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, heartbeat)
		defer cancel()
	}

	events, next, err := s.daemon.hub.Fetch(ctx, userRef, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: api.FromEvents(events), Next: next})
}

func (s *apiServer) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.scheduler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "review scheduling unavailable")
		return
	}

	var req api.GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	grade, ok := srs.ParseGrade(req.Grade)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown grade %q", req.Grade))
		return
	}

	schedule, err := s.daemon.scheduler.SubmitGrade(r.Context(), s.user(r), req.WordID, grade)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSchedule(schedule, grade))
}

func (s *apiServer) user(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
		return user
	}
	return s.daemon.cfg.Paths.DefaultUser
}

func chunkComplexity(t *task.Task) float64 {
	// Filtering records the hardest segment's complexity on the task. Tasks
	// that never reached filtering gate on difficulty alone.
	if t.Results.ChunkComplexity > 0 {
		return t.Results.ChunkComplexity
	}
	return 0.5
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrResourceExhausted):
		status = http.StatusTooManyRequests
	}
	s.writeError(w, status, services.Details(err).Message)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
