package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sublingo/internal/config"
)

const userAgent = "Sublingo-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyChunkCompleted(ctx context.Context, videoRef string, chunkIndex int, wordCount int) error
	NotifyTaskFailed(ctx context.Context, videoRef string, chunkIndex int, stage, message string) error
	NotifyTaskStalled(ctx context.Context, videoRef string, chunkIndex int, stage string) error
	NotifyReviewReady(ctx context.Context, videoRef string, chunkIndex int, blockingCount int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
		stalls:     cfg.Notifications.Stalls,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
	stalls     bool
}

func (n *ntfyService) NotifyChunkCompleted(ctx context.Context, videoRef string, chunkIndex, wordCount int) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "Sublingo - Chunk Ready",
		message: fmt.Sprintf("Chunk %d of %s processed (%d new words)", chunkIndex, strings.TrimSpace(videoRef), wordCount),
		tags:    []string{"sublingo", "chunk", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, videoRef string, chunkIndex int, stage, message string) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Sublingo - Task Failed",
		message:  fmt.Sprintf("Chunk %d of %s failed during %s: %s", chunkIndex, strings.TrimSpace(videoRef), stage, strings.TrimSpace(message)),
		tags:     []string{"sublingo", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskStalled(ctx context.Context, videoRef string, chunkIndex int, stage string) error {
	if !n.stalls {
		return nil
	}
	data := payload{
		title:    "Sublingo - Task Stalled",
		message:  fmt.Sprintf("Chunk %d of %s stalled during %s\nManual retry required", chunkIndex, strings.TrimSpace(videoRef), stage),
		tags:     []string{"sublingo", "stalled", "review"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewReady(ctx context.Context, videoRef string, chunkIndex, blockingCount int) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "Sublingo - Review Ready",
		message: fmt.Sprintf("Chunk %d of %s has %d words to review", chunkIndex, strings.TrimSpace(videoRef), blockingCount),
		tags:    []string{"sublingo", "review", "ready"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Sublingo - Test",
		message:  "Notification system test",
		tags:     []string{"sublingo", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyChunkCompleted(context.Context, string, int, int) error        { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, int, string, string) error { return nil }
func (noopService) NotifyTaskStalled(context.Context, string, int, string) error        { return nil }
func (noopService) NotifyReviewReady(context.Context, string, int, int) error           { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
