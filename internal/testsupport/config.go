package testsupport

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"reel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// External services (sync, transcription, notifications) are disabled and OBS
// connection retries are kept short so failing tests fail fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Recording.StabilityInterval = 1
	cfgVal.Recording.StabilityTimeout = 5
	cfgVal.Recording.ISOEnabled = false
	cfgVal.Sync.Enabled = false
	cfgVal.Transcription.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.OBS.ConnectRetries = 1
	cfgVal.OBS.ConnectRetryInterval = 1
	cfgVal.OBS.LaunchPath = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWebsocketURL points the config at a running obs-websocket endpoint,
// typically an obstest server's URL.
func WithWebsocketURL(url string) ConfigOption {
	return func(b *configBuilder) {
		hostPort := strings.TrimPrefix(url, "ws://")
		host, portStr, err := net.SplitHostPort(hostPort)
		if err != nil {
			b.t.Fatalf("split websocket address %q: %v", hostPort, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			b.t.Fatalf("parse websocket port %q: %v", portStr, err)
		}
		b.cfg.OBS.Host = host
		b.cfg.OBS.Port = port
	}
}

// WithProfile adds or replaces a named capture profile on the test config.
func WithProfile(name string, profile config.Profile) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Profiles == nil {
			b.cfg.Profiles = map[string]config.Profile{}
		}
		b.cfg.Profiles[name] = profile
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the external binaries reel
// shells out to are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"rclone", "whisper"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RecordingsDir)
}
