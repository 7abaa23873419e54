package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"sublingo/internal/api"
	"sublingo/internal/daemon"
)

func startDaemon(t *testing.T, token string) *daemon.Daemon {
	t.Helper()
	d, _ := newTestDaemon(t, token)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func doRequest(t *testing.T, d *daemon.Daemon, method, path, user, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, "http://"+d.APIAddr()+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createChunk(t *testing.T, d *daemon.Daemon, user string, startSec float64) string {
	t.Helper()
	resp := doRequest(t, d, http.MethodPost, "/api/tasks", user, "", api.CreateTaskRequest{
		VideoRef: "lesson.mp4",
		StartSec: startSec,
		EndSec:   startSec + 300,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	created := decodeBody[api.CreateTaskResponse](t, resp)
	if created.TaskID == "" {
		t.Fatal("expected task id")
	}
	return created.TaskID
}

func waitForStage(t *testing.T, d *daemon.Daemon, user, id, stage string) api.TaskView {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for {
		resp := doRequest(t, d, http.MethodGet, "/api/tasks/"+id, user, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get task: status %d", resp.StatusCode)
		}
		view := decodeBody[api.TaskView](t, resp)
		if view.Stage == stage {
			return view
		}
		if view.Stage == "error" && stage != "error" {
			t.Fatalf("task failed in stage %s: %s", view.ErrorStage, view.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never reached stage %s, stuck at %s", stage, view.Stage)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestAPIRejectsMissingBearerToken(t *testing.T) {
	d := startDaemon(t, "sekrit")

	resp := doRequest(t, d, http.MethodGet, "/api/status", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = doRequest(t, d, http.MethodGet, "/api/status", "", "sekrit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	status := decodeBody[api.StatusResponse](t, resp)
	if !status.Running {
		t.Fatal("expected running daemon in status payload")
	}
}

func TestAPITaskCreateListAndIsolation(t *testing.T) {
	d := startDaemon(t, "")

	id := createChunk(t, d, "alice", 0)

	resp := doRequest(t, d, http.MethodGet, "/api/tasks/"+id, "alice", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get task: status %d", resp.StatusCode)
	}
	view := decodeBody[api.TaskView](t, resp)
	if view.UserRef != "alice" || view.VideoRef != "lesson.mp4" {
		t.Fatalf("unexpected task payload %+v", view)
	}

	resp = doRequest(t, d, http.MethodGet, "/api/tasks", "alice", "", nil)
	list := decodeBody[api.TaskListResponse](t, resp)
	if len(list.Tasks) != 1 {
		t.Fatalf("expected 1 task for alice, got %d", len(list.Tasks))
	}

	resp = doRequest(t, d, http.MethodGet, "/api/tasks", "bob", "", nil)
	list = decodeBody[api.TaskListResponse](t, resp)
	if len(list.Tasks) != 0 {
		t.Fatalf("expected no tasks for bob, got %d", len(list.Tasks))
	}
}

func TestAPICreateTaskValidation(t *testing.T) {
	d := startDaemon(t, "")

	resp := doRequest(t, d, http.MethodPost, "/api/tasks", "alice", "", api.CreateTaskRequest{
		VideoRef: "lesson.mp4",
		StartSec: 300,
		EndSec:   300,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty bounds, got %d", resp.StatusCode)
	}

	resp = doRequest(t, d, http.MethodPost, "/api/tasks", "alice", "", api.CreateTaskRequest{
		VideoRef: "lesson.mp4",
		StartSec: 0,
		EndSec:   300,
		ModelPreferences: api.ModelPreferences{
			Transcription: "no-such-model",
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown backend, got %d", resp.StatusCode)
	}
}

func TestAPIDuplicateLiveChunkConflicts(t *testing.T) {
	d := startDaemon(t, "")

	createChunk(t, d, "alice", 600)
	resp := doRequest(t, d, http.MethodPost, "/api/tasks", "alice", "", api.CreateTaskRequest{
		VideoRef: "lesson.mp4",
		StartSec: 600,
		EndSec:   900,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate live chunk, got %d", resp.StatusCode)
	}
}

func TestAPIPipelineCompletionAndReviewFlow(t *testing.T) {
	d := startDaemon(t, "")

	id := createChunk(t, d, "alice", 0)
	completed := waitForStage(t, d, "alice", id, "completed")
	if completed.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %v", completed.ProgressPercent)
	}
	if len(completed.VocabularyIDs) == 0 {
		t.Fatal("expected surfaced vocabulary")
	}

	resp := doRequest(t, d, http.MethodGet, "/api/tasks/"+id+"/review", "alice", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: status %d", resp.StatusCode)
	}
	review := decodeBody[api.ReviewResponse](t, resp)
	if review.TaskID != id {
		t.Fatalf("unexpected review task id %q", review.TaskID)
	}
	if review.Complete {
		t.Fatal("review should not be complete before grading")
	}
	if len(review.Blocking) == 0 {
		t.Fatal("expected blocking words for ungraded chunk")
	}

	for _, word := range review.Blocking {
		resp := doRequest(t, d, http.MethodPost, "/api/reviews", "alice", "", api.GradeRequest{
			WordID: word.ID,
			Grade:  "known",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("grade word %d: status %d", word.ID, resp.StatusCode)
		}
		graded := decodeBody[api.GradeResponse](t, resp)
		if graded.Repetitions != 1 || graded.IntervalDays != 1 {
			t.Fatalf("unexpected first-review schedule %+v", graded)
		}
	}

	resp = doRequest(t, d, http.MethodGet, "/api/tasks/"+id+"/review", "alice", "", nil)
	review = decodeBody[api.ReviewResponse](t, resp)
	if !review.Complete {
		t.Fatal("review should be complete after grading every blocking word")
	}
}

func TestAPIReviewRejectsUnknownGrade(t *testing.T) {
	d := startDaemon(t, "")

	resp := doRequest(t, d, http.MethodPost, "/api/reviews", "alice", "", api.GradeRequest{
		WordID: 1,
		Grade:  "perfect",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown grade, got %d", resp.StatusCode)
	}
}

func TestAPIEventsSnapshotReplay(t *testing.T) {
	d := startDaemon(t, "")

	id := createChunk(t, d, "alice", 0)
	waitForStage(t, d, "alice", id, "completed")

	resp := doRequest(t, d, http.MethodGet, "/api/events?since=0", "alice", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events: status %d", resp.StatusCode)
	}
	events := decodeBody[api.EventsResponse](t, resp)
	if len(events.Events) == 0 {
		t.Fatal("expected replayed events for alice")
	}
	for _, evt := range events.Events {
		if evt.TaskID != id {
			t.Fatalf("unexpected task id %q in replay", evt.TaskID)
		}
	}
	// The snapshot keeps only the latest event per task.
	last := events.Events[len(events.Events)-1]
	if last.Stage != "completed" {
		t.Fatalf("expected completed snapshot event, got %q", last.Stage)
	}
}

func TestAPIEventsIsolatedPerUser(t *testing.T) {
	d := startDaemon(t, "")

	id := createChunk(t, d, "alice", 0)
	waitForStage(t, d, "alice", id, "completed")

	resp := doRequest(t, d, http.MethodGet, fmt.Sprintf("/api/events?since=%d&limit=10", 0), "bob", "", nil)
	events := decodeBody[api.EventsResponse](t, resp)
	if len(events.Events) != 0 {
		t.Fatalf("bob should see no events, got %d", len(events.Events))
	}
}
