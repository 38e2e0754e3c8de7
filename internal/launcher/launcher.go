// Package launcher starts the OBS process when it is not already
// running and waits for its websocket server to accept connections.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/poll"
)

// commandContext allows tests to substitute the spawned process.
var commandContext = exec.CommandContext

// procRoot allows tests to point the process scan at a fixture tree.
var procRoot = "/proc"

const processName = "obs"

// Launcher manages the OBS process lifecycle for one host.
type Launcher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New builds a Launcher. A nil logger disables logging.
func New(cfg *config.Config, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logging.NewComponentLogger(logger, "launcher")}
}

// Running reports whether an OBS process exists, by scanning process
// comm names.
func (l *Launcher) Running() bool {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() || !isNumeric(entry.Name()) {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(procRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == processName {
			return true
		}
	}
	return false
}

// Launch starts OBS detached and returns without waiting for it to
// become ready. Use WaitForServer afterwards.
func (l *Launcher) Launch(ctx context.Context) error {
	path := l.cfg.OBS.LaunchPath
	if path == "" {
		return fmt.Errorf("launcher: no launch path configured")
	}
	// --minimize-to-tray keeps the capture UI out of the way; the
	// websocket server starts regardless.
	cmd := commandContext(ctx, path, "--minimize-to-tray")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launcher: start %s: %w", path, err)
	}
	l.logger.Info("launched capture process",
		logging.String("path", path),
		logging.Int("pid", cmd.Process.Pid))
	go func() {
		// Reap the child so a crashed OBS does not linger as a zombie.
		_ = cmd.Wait()
	}()
	return nil
}

// WaitForServer blocks until the websocket port accepts TCP
// connections or the launch budget runs out.
func (l *Launcher) WaitForServer(ctx context.Context) error {
	addr := net.JoinHostPort(l.cfg.OBS.Host, fmt.Sprintf("%d", l.cfg.OBS.Port))
	interval := time.Duration(l.cfg.OBS.ConnectRetryInterval) * time.Second
	budget := time.Duration(l.cfg.OBS.LaunchWaitSeconds) * time.Second

	err := poll.Until(ctx, poll.Config{Interval: interval, MaxWait: budget}, func() (bool, error) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return false, nil
		}
		conn.Close()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("launcher: websocket server at %s never came up: %w", addr, err)
	}
	l.logger.Info("websocket server reachable", logging.String("addr", addr))
	return nil
}

// EnsureRunning launches OBS when absent and waits for its websocket
// server either way.
func (l *Launcher) EnsureRunning(ctx context.Context) error {
	if !l.Running() {
		if err := l.Launch(ctx); err != nil {
			return err
		}
	} else {
		l.logger.Debug("capture process already running")
	}
	return l.WaitForServer(ctx)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
