package launcher

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"reel/internal/config"
)

func fakeProc(t *testing.T, comms map[int]string) {
	t.Helper()
	dir := t.TempDir()
	for pid, comm := range comms {
		pidDir := filepath.Join(dir, strconv.Itoa(pid))
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(pidDir, "comm"), []byte(comm+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Processes live next to non-pid entries in the real tree.
	if err := os.MkdirAll(filepath.Join(dir, "sys"), 0o755); err != nil {
		t.Fatal(err)
	}
	old := procRoot
	procRoot = dir
	t.Cleanup(func() { procRoot = old })
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OBS.Host = "127.0.0.1"
	cfg.OBS.ConnectRetryInterval = 1
	cfg.OBS.LaunchWaitSeconds = 2
	return &cfg
}

func TestRunningDetectsProcess(t *testing.T) {
	fakeProc(t, map[int]string{1: "systemd", 4242: "obs", 4300: "bash"})
	l := New(testConfig(), nil)
	if !l.Running() {
		t.Fatal("Running() = false with an obs process present")
	}
}

func TestRunningNoProcess(t *testing.T) {
	fakeProc(t, map[int]string{1: "systemd", 4300: "obs-browser-helper"})
	l := New(testConfig(), nil)
	if l.Running() {
		t.Fatal("Running() = true without an obs process")
	}
}

func TestLaunchRequiresPath(t *testing.T) {
	cfg := testConfig()
	cfg.OBS.LaunchPath = ""
	l := New(cfg, nil)
	if err := l.Launch(context.Background()); err == nil {
		t.Fatal("Launch without a path succeeded")
	}
}

func TestLaunchStartsCommand(t *testing.T) {
	var gotPath string
	oldCommand := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotPath = name
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { commandContext = oldCommand })

	cfg := testConfig()
	cfg.OBS.LaunchPath = "/usr/bin/obs"
	l := New(cfg, nil)
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if gotPath != "/usr/bin/obs" {
		t.Fatalf("launched %q, want configured path", gotPath)
	}
}

func TestWaitForServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := testConfig()
	_, portStr, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	cfg.OBS.Port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	l := New(cfg, nil)
	if err := l.WaitForServer(context.Background()); err != nil {
		t.Fatalf("WaitForServer failed: %v", err)
	}
}

func TestWaitForServerTimesOut(t *testing.T) {
	cfg := testConfig()
	// A port nothing listens on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, portStr, _ := net.SplitHostPort(listener.Addr().String())
	listener.Close()
	cfg.OBS.Port, _ = strconv.Atoi(portStr)
	cfg.OBS.LaunchWaitSeconds = 1

	l := New(cfg, nil)
	err = l.WaitForServer(context.Background())
	if err == nil {
		t.Fatal("WaitForServer succeeded with no listener")
	}
	if !strings.Contains(err.Error(), "never came up") {
		t.Fatalf("unexpected error: %v", err)
	}
}
