package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reel/internal/config"
)

const userAgent = "Reel/0.1.0"

// Service defines the notification surface exposed to the daemon and
// CLI.
type Service interface {
	NotifyRecordingStarted(ctx context.Context, project, profile string) error
	NotifyRecordingFinished(ctx context.Context, project string, artifacts int, size int64, duration time.Duration) error
	NotifyTranscriptReady(ctx context.Context, project, transcript string) error
	NotifySyncCompleted(ctx context.Context, project, remote string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when
// configured. When no ntfy topic is configured, a noop implementation
// is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRecordingStarted(ctx context.Context, project, profile string) error {
	project = strings.TrimSpace(project)
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	data := payload{
		title:   "Reel - Recording Started",
		message: fmt.Sprintf("Recording started: %s (%s)", project, profile),
		tags:    []string{"reel", "recording", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecordingFinished(ctx context.Context, project string, artifacts int, size int64, duration time.Duration) error {
	project = strings.TrimSpace(project)
	data := payload{
		title: "Reel - Recording Finished",
		message: fmt.Sprintf("Finished %s: %d file(s), %s in %s",
			project, artifacts, formatBytes(size), duration.Round(time.Second)),
		tags: []string{"reel", "recording", "finished"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptReady(ctx context.Context, project, transcript string) error {
	data := payload{
		title:   "Reel - Transcript Ready",
		message: fmt.Sprintf("Transcript for %s: %s", strings.TrimSpace(project), transcript),
		tags:    []string{"reel", "transcription", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, project, remote string) error {
	data := payload{
		title:   "Reel - Sync Completed",
		message: fmt.Sprintf("Synced %s to %s", strings.TrimSpace(project), strings.TrimSpace(remote)),
		tags:    []string{"reel", "sync", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Reel - Error",
		message:  builder.String(),
		tags:     []string{"reel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reel - Test",
		message:  "Notification system test",
		tags:     []string{"reel", "test"},
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

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

type noopService struct{}

func (noopService) NotifyRecordingStarted(context.Context, string, string) error { return nil }
func (noopService) NotifyRecordingFinished(context.Context, string, int, int64, time.Duration) error {
	return nil
}
func (noopService) NotifyTranscriptReady(context.Context, string, string) error { return nil }
func (noopService) NotifySyncCompleted(context.Context, string, string) error   { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
