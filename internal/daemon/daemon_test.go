package daemon_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reel/internal/config"
	"reel/internal/daemon"
	"reel/internal/ipc"
	"reel/internal/logging"
	"reel/internal/obs/obstest"
	"reel/internal/testsupport"
)

func succeed(_ json.RawMessage) (any, error) { return nil, nil }

// provisioningHandlers scripts the requests a recording start issues
// before the record output is touched.
func provisioningHandlers() []obstest.Option {
	return []obstest.Option{
		obstest.WithHandler("CreateProfile", succeed),
		obstest.WithHandler("GetProfileList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProfileName": "single"}, nil
		}),
		obstest.WithHandler("CreateScene", succeed),
		obstest.WithHandler("GetSceneList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProgramSceneName": "Tutorial Recording"}, nil
		}),
		obstest.WithHandler("CreateInput", succeed),
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{}}, nil
		}),
		obstest.WithHandler("GetRecordStatus", func(_ json.RawMessage) (any, error) {
			return map[string]any{"outputActive": false}, nil
		}),
		obstest.WithHandler("StartRecord", succeed),
	}
}

// recordDirCapture remembers where SetRecordDirectory pointed OBS so a
// scripted StopRecord can drop an artifact there.
type recordDirCapture struct {
	mu  sync.Mutex
	dir string
}

func (r *recordDirCapture) handler() obstest.Handler {
	return func(data json.RawMessage) (any, error) {
		var req struct {
			RecordDirectory string `json:"recordDirectory"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.dir = req.RecordDirectory
		r.mu.Unlock()
		return nil, nil
	}
}

func (r *recordDirCapture) get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir
}

func testConfig(t *testing.T, server *obstest.Server) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, testsupport.WithWebsocketURL(server.URL()))
}

// startDaemon runs the daemon in the background and returns a connected
// IPC client.
func startDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *ipc.Client) {
	t.Helper()

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run(ctx)
	}()
	t.Cleanup(func() {
		d.Shutdown()
		select {
		case <-runDone:
		case <-time.After(10 * time.Second):
			t.Error("daemon did not exit")
		}
	})

	var client *ipc.Client
	deadline := time.Now().Add(10 * time.Second)
	for {
		client, err = ipc.Dial(d.SocketPath())
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ipc.Dial never succeeded: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return d, client
}

func TestDaemonRecordingLifecycle(t *testing.T) {
	capture := &recordDirCapture{}
	opts := append(provisioningHandlers(),
		obstest.WithHandler("SetRecordDirectory", capture.handler()),
	)
	server := obstest.New(t, opts...)
	server.Handle("StopRecord", func(_ json.RawMessage) (any, error) {
		path := filepath.Join(capture.get(), "2026-08-30 15-00-00 lesson.mkv")
		if err := os.WriteFile(path, []byte("recording bytes"), 0o644); err != nil {
			return nil, err
		}
		return map[string]any{"outputPath": path}, nil
	})

	cfg := testConfig(t, server)
	_, client := startDaemon(t, cfg)

	startResp, err := client.Start("go-basics", "single")
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("start rejected: %s", startResp.Message)
	}
	if startResp.SessionID == "" || startResp.SessionDir == "" {
		t.Fatalf("incomplete start response: %#v", startResp)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.State != "recording" {
		t.Fatalf("state = %q, want recording", status.State)
	}
	if !status.Connected {
		t.Fatal("expected connected status")
	}
	if status.Project != "go-basics" {
		t.Fatalf("status project = %q", status.Project)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatalf("stop rejected: %s", stopResp.Message)
	}
	if len(stopResp.Artifacts) != 1 || stopResp.Artifacts[0] != "lesson.mkv" {
		t.Fatalf("unexpected artifacts: %#v", stopResp.Artifacts)
	}
	if stopResp.Bytes == 0 {
		t.Fatal("expected nonzero bytes")
	}

	sessions, err := client.Sessions("", 0)
	if err != nil {
		t.Fatalf("Sessions RPC failed: %v", err)
	}
	if len(sessions.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions.Sessions))
	}
	entry := sessions.Sessions[0]
	if entry.SessionID != startResp.SessionID {
		t.Fatalf("session id = %q, want %q", entry.SessionID, startResp.SessionID)
	}
	if entry.Status != "completed" || entry.Artifacts != 1 {
		t.Fatalf("unexpected history entry: %#v", entry)
	}
}

func TestDaemonStartValidation(t *testing.T) {
	server := obstest.New(t)
	cfg := testConfig(t, server)
	_, client := startDaemon(t, cfg)

	resp, err := client.Start("", "single")
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if resp.Started {
		t.Fatal("expected start without project to be rejected")
	}
	if !strings.Contains(resp.Message, "project name is required") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	resp, err = client.Start("go-basics", "nope")
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if resp.Started {
		t.Fatal("expected unknown profile to be rejected")
	}
	if !strings.Contains(resp.Message, "unknown profile") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestDaemonStopWithoutSession(t *testing.T) {
	server := obstest.New(t)
	cfg := testConfig(t, server)
	_, client := startDaemon(t, cfg)

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if resp.Stopped {
		t.Fatal("expected stop without session to be rejected")
	}
}

func TestDaemonProvision(t *testing.T) {
	server := obstest.New(t, provisioningHandlers()...)
	cfg := testConfig(t, server)
	_, client := startDaemon(t, cfg)

	resp, err := client.Provision("single")
	if err != nil {
		t.Fatalf("Provision RPC failed: %v", err)
	}
	if !resp.Applied {
		t.Fatalf("provision rejected: %s", resp.Message)
	}
	if got := len(server.Requests("CreateScene")); got != 1 {
		t.Fatalf("CreateScene calls = %d, want 1", got)
	}
	if got := len(server.Requests("CreateInput")); got == 0 {
		t.Fatal("expected CreateInput calls")
	}
	if got := len(server.Requests("GetSceneItemList")); got != 1 {
		t.Fatalf("GetSceneItemList calls = %d, want 1", got)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	server := obstest.New(t)
	cfg := testConfig(t, server)
	startDaemon(t, cfg)

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()

	err = second.Run(context.Background())
	if err == nil {
		t.Fatal("expected second instance to fail")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDaemonTestNotificationUnconfigured(t *testing.T) {
	server := obstest.New(t)
	cfg := testConfig(t, server)
	_, client := startDaemon(t, cfg)

	resp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if resp.Sent {
		t.Fatal("expected notification to be skipped")
	}
	if !strings.Contains(resp.Message, "not configured") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}
