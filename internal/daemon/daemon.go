package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"reel/internal/config"
	"reel/internal/devices"
	"reel/internal/history"
	"reel/internal/ipc"
	"reel/internal/launcher"
	"reel/internal/logging"
	"reel/internal/notifications"
	"reel/internal/obs"
	"reel/internal/provision"
	"reel/internal/recording"
	"reel/internal/services"
	"reel/internal/services/rclone"
	"reel/internal/services/whisper"
	"reel/internal/textutil"
)

// Daemon coordinates the recording services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	history  *history.Store
	notifier notifications.Service
	launcher *launcher.Launcher
	syncer   rclone.Client
	scriber  whisper.Client

	lockPath   string
	lock       *flock.Flock
	socketPath string

	running   atomic.Bool
	connected atomic.Bool
	shutdown  chan struct{}
	stopOnce  sync.Once

	mu         sync.Mutex
	client     *obs.Client
	controller *recording.Controller
	inventory  *devices.Inventory
	monitor    *devices.Monitor
}

// New constructs a daemon with initialized dependencies. Connection to the
// capture application happens in Run.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	var scriber whisper.Client
	if cfg.Transcription.Enabled {
		scriber = whisper.NewCLI(
			whisper.WithBinary(cfg.Transcription.Binary),
			whisper.WithModel(cfg.Transcription.Model),
			whisper.WithLanguage(cfg.Transcription.Language),
		)
	}
	var syncer rclone.Client
	if cfg.Sync.Enabled {
		syncer = rclone.NewCLI(
			rclone.WithBinary(cfg.RcloneBinary()),
			rclone.WithExcludes(cfg.Sync.ExcludePatterns),
		)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "reeld.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		history:    store,
		notifier:   notifications.NewService(cfg),
		launcher:   launcher.New(cfg, logger),
		syncer:     syncer,
		scriber:    scriber,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		socketPath: filepath.Join(cfg.Paths.LogDir, "reeld.sock"),
		shutdown:   make(chan struct{}),
	}, nil
}

// SocketPath returns the IPC socket path the daemon serves on.
func (d *Daemon) SocketPath() string {
	return d.socketPath
}

// SetSocketPath overrides the IPC socket location. Must be called
// before Run.
func (d *Daemon) SetSocketPath(path string) {
	if strings.TrimSpace(path) != "" {
		d.socketPath = path
	}
}

// Run acquires the instance lock, connects to the capture application, and
// serves IPC until the context is canceled or Shutdown is called.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reel daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.connect(runCtx); err != nil {
		d.logger.Warn("capture application unavailable at startup",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Start OBS with obs-websocket enabled, or set obs.launch_path"))
	}

	d.startDeviceMonitor(runCtx)
	defer d.stopDeviceMonitor()

	server, err := ipc.NewServer(runCtx, d.socketPath, d, d.logger)
	if err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	server.Serve()
	defer server.Close()

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("reel daemon started",
		logging.String("lock", d.lockPath),
		logging.String("socket", d.socketPath))

	select {
	case <-runCtx.Done():
	case <-d.shutdown:
	}

	d.logger.Info("reel daemon stopping")
	d.disconnect()
	return nil
}

// Shutdown asks a running daemon to exit. Safe to call multiple times.
func (d *Daemon) Shutdown() {
	d.stopOnce.Do(func() {
		close(d.shutdown)
	})
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Shutdown()
	d.disconnect()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// connect launches the capture application if configured and dials
// obs-websocket, retrying per the configured schedule.
func (d *Daemon) connect(ctx context.Context) error {
	// Process management is opt-in; without a launch path the daemon
	// expects an externally managed OBS.
	if d.cfg.OBS.LaunchPath != "" {
		if err := d.launcher.EnsureRunning(ctx); err != nil {
			return err
		}
	}

	opts := obs.Options{
		URL:              d.cfg.WebSocketURL(),
		Password:         d.cfg.OBS.Password,
		HandshakeTimeout: time.Duration(d.cfg.OBS.HandshakeTimeoutSeconds) * time.Second,
		RequestTimeout:   time.Duration(d.cfg.OBS.RequestTimeoutSeconds) * time.Second,
		Logger:           d.logger,
	}

	retries := d.cfg.OBS.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	interval := time.Duration(d.cfg.OBS.ConnectRetryInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		client, err := obs.Connect(ctx, opts)
		if err == nil {
			d.adoptClient(client)
			return nil
		}
		lastErr = err
		d.logger.Debug("obs connect attempt failed",
			logging.Int("attempt", attempt),
			logging.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("connect to obs-websocket after %d attempts: %w", retries, lastErr)
}

func (d *Daemon) adoptClient(client *obs.Client) {
	d.mu.Lock()
	previous := d.client
	d.client = client
	d.controller = recording.New(client, d.cfg, d.logger)
	d.mu.Unlock()
	if previous != nil {
		// Concurrent reconnects can both dial; only the newest
		// connection survives.
		_ = previous.Close()
	}
	d.connected.Store(true)
	d.logger.Info("connected to obs-websocket", logging.String("url", d.cfg.WebSocketURL()))
}

func (d *Daemon) disconnect() {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.controller = nil
	d.mu.Unlock()
	d.connected.Store(false)
	if client != nil {
		_ = client.Close()
	}
}

// ensureController reconnects on demand when the startup connection failed
// or was lost.
func (d *Daemon) ensureController(ctx context.Context) (*recording.Controller, error) {
	d.mu.Lock()
	controller := d.controller
	d.mu.Unlock()
	if controller != nil {
		return controller, nil
	}
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	controller = d.controller
	d.mu.Unlock()
	if controller == nil {
		return nil, errors.New("capture application not connected")
	}
	return controller, nil
}

func (d *Daemon) startDeviceMonitor(ctx context.Context) {
	inventory, err := devices.Enumerate(ctx)
	if err != nil {
		d.logger.Warn("device enumeration failed",
			logging.Error(err),
			logging.String("impact", "profiles bind cameras and microphones by config order only"))
		inventory = &devices.Inventory{}
	}
	d.mu.Lock()
	d.inventory = inventory
	d.mu.Unlock()
	d.logger.Debug("capture devices enumerated",
		logging.Int("video", len(inventory.Video)),
		logging.Int("audio", len(inventory.Audio)))

	monitor := devices.NewMonitor(d.logger, d.handleDeviceChange)
	if err := monitor.Start(ctx); err != nil {
		d.logger.Warn("device monitor unavailable", logging.Error(err))
		return
	}
	d.mu.Lock()
	d.monitor = monitor
	d.mu.Unlock()
}

func (d *Daemon) stopDeviceMonitor() {
	d.mu.Lock()
	monitor := d.monitor
	d.monitor = nil
	d.mu.Unlock()
	if monitor != nil {
		monitor.Stop()
	}
}

func (d *Daemon) handleDeviceChange(ctx context.Context, device devices.Device, added bool) {
	d.logger.Info("capture hardware changed",
		logging.String("device", device.Name),
		logging.String("subsystem", device.Subsystem),
		logging.Bool("added", added))

	inventory, err := devices.Enumerate(ctx)
	if err != nil {
		d.logger.Warn("device re-enumeration failed", logging.Error(err))
		return
	}
	d.mu.Lock()
	d.inventory = inventory
	d.mu.Unlock()
}

// bindings maps the profile's configured sources onto currently attached
// hardware.
func (d *Daemon) bindings(profile config.Profile) provision.Bindings {
	d.mu.Lock()
	inventory := d.inventory
	d.mu.Unlock()
	if inventory == nil {
		inventory = &devices.Inventory{}
	}
	return inventory.Bind(profile)
}

// resolveProfile applies the default profile rules: an explicit name wins,
// then a profile named "default", then a sole configured profile.
func (d *Daemon) resolveProfile(name string) (string, error) {
	if name != "" {
		if _, ok := d.cfg.Profiles[name]; !ok {
			return "", fmt.Errorf("unknown profile %q", name)
		}
		return name, nil
	}
	if _, ok := d.cfg.Profiles["default"]; ok {
		return "default", nil
	}
	if len(d.cfg.Profiles) == 1 {
		for only := range d.cfg.Profiles {
			return only, nil
		}
	}
	return "", fmt.Errorf("no profile given and no default among %v", d.cfg.ProfileNames())
}

// StartRecording implements ipc.Backend.
func (d *Daemon) StartRecording(ctx context.Context, project, profile string) (ipc.StartResponse, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return ipc.StartResponse{}, errors.New("project name is required")
	}
	resolved, err := d.resolveProfile(strings.TrimSpace(profile))
	if err != nil {
		return ipc.StartResponse{}, err
	}
	controller, err := d.ensureController(ctx)
	if err != nil {
		return ipc.StartResponse{}, err
	}

	session, err := controller.Start(ctx, recording.StartOptions{
		Project:  project,
		Profile:  resolved,
		Bindings: d.bindings(d.cfg.Profiles[resolved]),
	})
	if err != nil {
		d.notifyError(ctx, err, "starting recording")
		return ipc.StartResponse{}, err
	}

	if _, err := d.history.Begin(ctx, session.ID, session.Project, session.Profile, session.Dir, session.StartedAt); err != nil {
		d.logger.Warn("failed to record session start", logging.Error(err))
	}
	if d.cfg.Notifications.Recording {
		if err := d.notifier.NotifyRecordingStarted(ctx, session.Project, session.Profile); err != nil {
			d.logger.Warn("start notification failed", logging.Error(err))
		}
	}
	return ipc.StartResponse{
		Started:    true,
		SessionID:  session.ID,
		SessionDir: session.Dir,
		Message:    fmt.Sprintf("recording %s with profile %s", session.Project, session.Profile),
	}, nil
}

// StopRecording implements ipc.Backend. After the controller finalizes the
// session it runs transcription and cloud sync when enabled.
func (d *Daemon) StopRecording(ctx context.Context) (ipc.StopResponse, error) {
	d.mu.Lock()
	controller := d.controller
	d.mu.Unlock()
	if controller == nil {
		return ipc.StopResponse{}, errors.New("capture application not connected")
	}

	_, session := controller.Status()
	result, err := controller.Stop(ctx)
	if err != nil {
		if session != nil && !errors.Is(err, recording.ErrNotRecording) {
			if histErr := d.history.Fail(ctx, session.ID, err); histErr != nil {
				d.logger.Warn("failed to record session failure", logging.Error(histErr))
			}
		}
		d.notifyError(ctx, err, "stopping recording")
		return ipc.StopResponse{}, err
	}

	if err := d.history.Complete(ctx, result.Session.ID, len(result.Artifacts), result.Bytes, result.Duration); err != nil {
		d.logger.Warn("failed to record session completion", logging.Error(err))
	}
	if d.cfg.Notifications.Recording {
		if err := d.notifier.NotifyRecordingFinished(ctx, result.Session.Project, len(result.Artifacts), result.Bytes, result.Duration); err != nil {
			d.logger.Warn("finish notification failed", logging.Error(err))
		}
	}

	message := d.postProcess(ctx, result)
	names := make([]string, 0, len(result.Artifacts))
	for _, artifact := range result.Artifacts {
		names = append(names, filepath.Base(artifact))
	}
	return ipc.StopResponse{
		Stopped:         true,
		Artifacts:       names,
		Bytes:           result.Bytes,
		DurationSeconds: result.Duration.Seconds(),
		Message:         message,
	}, nil
}

// postProcess transcribes the primary artifact and syncs the session
// directory. Failures are reported but never undo a finished session.
func (d *Daemon) postProcess(ctx context.Context, result *recording.Result) string {
	var notes []string

	ctx = services.WithSessionID(ctx, result.Session.ID)
	logger := logging.WithContext(ctx, d.logger)

	if d.scriber != nil && len(result.Artifacts) > 0 {
		transcript, err := d.scriber.Transcribe(ctx, result.Artifacts[0], result.Session.Dir)
		if err != nil {
			logger.Warn("transcription failed", logging.Error(err))
			d.notifyError(ctx, err, "transcribing recording")
			notes = append(notes, "transcription failed")
		} else {
			logger.Info("transcript written",
				logging.String("transcript", transcript))
			notes = append(notes, "transcript ready")
			if d.cfg.Notifications.Recording {
				if err := d.notifier.NotifyTranscriptReady(ctx, result.Session.Project, transcript); err != nil {
					logger.Warn("transcript notification failed", logging.Error(err))
				}
			}
		}
	}

	if d.syncer != nil {
		syncCtx := ctx
		if d.cfg.Sync.TimeoutSeconds > 0 {
			var cancel context.CancelFunc
			syncCtx, cancel = context.WithTimeout(ctx, time.Duration(d.cfg.Sync.TimeoutSeconds)*time.Second)
			defer cancel()
		}
		err := d.syncer.Sync(syncCtx, result.Session.Dir, d.cfg.Sync.Remote, d.remoteDir(result.Session.Project), func(update rclone.ProgressUpdate) {
			logger.Debug("sync progress",
				logging.Int64("percent", update.Percent),
				logging.Int64("transferred", update.Transferred))
		})
		if err != nil {
			logger.Warn("cloud sync failed", logging.Error(err))
			d.notifyError(ctx, err, "syncing recording")
			notes = append(notes, "sync failed")
		} else {
			notes = append(notes, "synced to "+d.cfg.Sync.Remote)
			if d.cfg.Notifications.Sync {
				if err := d.notifier.NotifySyncCompleted(ctx, result.Session.Project, d.cfg.Sync.Remote); err != nil {
					logger.Warn("sync notification failed", logging.Error(err))
				}
			}
		}
	}

	if len(notes) == 0 {
		return "session finalized"
	}
	return "session finalized: " + strings.Join(notes, ", ")
}

// remoteDir derives the rclone destination for a project. The name is
// tokenized because it becomes part of a remote:path argument.
func (d *Daemon) remoteDir(project string) string {
	segment := textutil.SanitizeToken(project)
	if d.cfg.Sync.RemotePath == "" {
		return segment
	}
	return filepath.Join(d.cfg.Sync.RemotePath, segment)
}

func (d *Daemon) notifyError(ctx context.Context, err error, activity string) {
	if !d.cfg.Notifications.Errors {
		return
	}
	if notifyErr := d.notifier.NotifyError(ctx, err, activity); notifyErr != nil {
		d.logger.Warn("error notification failed", logging.Error(notifyErr))
	}
}

// Status implements ipc.Backend.
func (d *Daemon) Status(context.Context) ipc.StatusResponse {
	resp := ipc.StatusResponse{
		Running:    d.running.Load(),
		Connected:  d.connected.Load(),
		State:      recording.StateIdle.String(),
		LockPath:   d.lockPath,
		SocketPath: d.socketPath,
		PID:        os.Getpid(),
	}
	d.mu.Lock()
	controller := d.controller
	d.mu.Unlock()
	if controller == nil {
		return resp
	}
	state, session := controller.Status()
	resp.State = state.String()
	if session != nil {
		resp.SessionID = session.ID
		resp.Project = session.Project
		resp.SessionDir = session.Dir
		resp.StartedAt = session.StartedAt.Format(time.RFC3339)
	}
	return resp
}

// Sessions implements ipc.Backend.
func (d *Daemon) Sessions(ctx context.Context, project string, limit int) ([]ipc.SessionSummary, error) {
	var (
		entries []history.Entry
		err     error
	)
	if strings.TrimSpace(project) == "" {
		entries, err = d.history.Recent(ctx, limit)
	} else {
		entries, err = d.history.ForProject(ctx, project, limit)
	}
	if err != nil {
		return nil, err
	}
	summaries := make([]ipc.SessionSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, ipc.SessionSummary{
			SessionID:       entry.SessionID,
			Project:         entry.Project,
			Profile:         entry.Profile,
			Status:          entry.Status,
			Artifacts:       entry.Artifacts,
			Bytes:           entry.Bytes,
			DurationSeconds: entry.Duration.Seconds(),
			StartedAt:       entry.StartedAt.Format(time.RFC3339),
		})
	}
	return summaries, nil
}

// Provision implements ipc.Backend. It converges the capture layout for a
// profile without starting a recording.
func (d *Daemon) Provision(ctx context.Context, profile string) error {
	resolved, err := d.resolveProfile(strings.TrimSpace(profile))
	if err != nil {
		return err
	}
	if _, err := d.ensureController(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return errors.New("capture application not connected")
	}
	profileCfg := d.cfg.Profiles[resolved]
	plan := provision.PlanFromProfile(resolved, d.cfg.OBS.SceneName, profileCfg, d.bindings(profileCfg))
	provisioner := provision.New(client, d.logger)
	if err := provisioner.Apply(ctx, plan); err != nil {
		return err
	}
	return provisioner.Prune(ctx, plan)
}

// TestNotification implements ipc.Backend.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

var _ ipc.Backend = (*Daemon)(nil)
