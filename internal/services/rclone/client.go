// Package rclone wraps the rclone CLI for pushing finished recordings
// to a remote.
package rclone

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"reel/internal/services"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures rclone transfer progress.
type ProgressUpdate struct {
	Percent     int64
	Transferred int64
	TotalBytes  int64
	Speed       float64
}

// Client defines sync behaviour.
type Client interface {
	Sync(ctx context.Context, localDir, remote, remotePath string, progress func(ProgressUpdate)) error
	Check(ctx context.Context) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithExcludes adds exclude patterns passed to every sync.
func WithExcludes(patterns []string) Option {
	return func(c *CLI) {
		c.excludes = append(c.excludes, patterns...)
	}
}

// CLI wraps the rclone command-line tool.
type CLI struct {
	binary   string
	excludes []string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "rclone"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Check verifies the rclone binary responds.
func (c *CLI) Check(ctx context.Context) error {
	cmd := commandContext(ctx, c.binary, "version")
	if err := cmd.Run(); err != nil {
		return services.Wrap(services.ErrExternalTool, "sync", "rclone", "binary unavailable", err)
	}
	return nil
}

// Sync pushes localDir to remote:remotePath. Progress lines are parsed
// from rclone's JSON log stream; unparseable lines are skipped.
func (c *CLI) Sync(ctx context.Context, localDir, remote, remotePath string, progress func(ProgressUpdate)) error {
	if localDir == "" {
		return services.Wrap(services.ErrValidation, "sync", "rclone", "local directory required", nil)
	}
	if remote == "" {
		return services.Wrap(services.ErrConfiguration, "sync", "rclone", "remote required", nil)
	}

	dest := remote + ":" + strings.TrimPrefix(remotePath, "/")
	args := []string{"sync", localDir, dest, "--use-json-log", "--stats", "1s", "--stats-log-level", "NOTICE"}
	for _, pattern := range c.excludes {
		args = append(args, "--exclude", pattern)
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start rclone: %w", err)
	}

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Bytes()
		var payload struct {
			Stats struct {
				Bytes      int64   `json:"bytes"`
				TotalBytes int64   `json:"totalBytes"`
				Speed      float64 `json:"speed"`
			} `json:"stats"`
		}
		if err := json.Unmarshal(line, &payload); err != nil {
			continue
		}
		if payload.Stats.TotalBytes == 0 {
			continue
		}
		if progress != nil {
			progress(ProgressUpdate{
				Percent:     payload.Stats.Bytes * 100 / payload.Stats.TotalBytes,
				Transferred: payload.Stats.Bytes,
				TotalBytes:  payload.Stats.TotalBytes,
				Speed:       payload.Stats.Speed,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read rclone output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return services.Wrap(services.ErrExternalTool, "sync", "rclone", "sync failed", err)
	}
	return nil
}

var _ Client = (*CLI)(nil)
