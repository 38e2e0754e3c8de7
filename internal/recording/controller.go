// Package recording drives a capture session from provisioning through
// artifact finalization.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reel/internal/config"
	"reel/internal/fileutil"
	"reel/internal/logging"
	"reel/internal/obs"
	"reel/internal/poll"
	"reel/internal/projects"
	"reel/internal/provision"
	"reel/internal/textutil"
)

var (
	// ErrBusy indicates a session is already in progress.
	ErrBusy = errors.New("recording: session already in progress")

	// ErrNotRecording indicates Stop was called with no active session.
	ErrNotRecording = errors.New("recording: no session in progress")

	// ErrArtifactNotFound indicates no stable recording file appeared
	// within the stability budget. A still-growing file is never
	// reported as an artifact.
	ErrArtifactNotFound = errors.New("recording: no stable artifact found")
)

// State is the controller's position in the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OBS prefixes recording filenames with its own timestamp.
var timestampPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ _]\d{2}-\d{2}-\d{2}[ _]?`)

// Session is one recording run.
type Session struct {
	ID        string
	Project   string
	Profile   string
	Dir       string
	StartedAt time.Time
}

// Result summarizes a finished session.
type Result struct {
	Session   Session
	Artifacts []string
	Bytes     int64
	Duration  time.Duration
}

// StartOptions selects what to record and where.
type StartOptions struct {
	Project  string
	Profile  string
	Bindings provision.Bindings
}

// Controller owns the session state machine. One session at a time.
type Controller struct {
	client      *obs.Client
	provisioner *provision.Provisioner
	cfg         *config.Config
	logger      *slog.Logger

	mu      sync.Mutex
	state   State
	session *Session
}

// New builds a Controller around a connected client.
func New(client *obs.Client, cfg *config.Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		client:      client,
		provisioner: provision.New(client, logger),
		cfg:         cfg,
		logger:      logger,
	}
}

// Status reports the current state and, when active, the session.
func (c *Controller) Status() (State, *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return c.state, nil
	}
	session := *c.session
	return c.state, &session
}

// Start provisions the scene and begins recording into a fresh session
// directory under the project.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*Session, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrBusy, c.state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	session, err := c.start(ctx, opts)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateIdle
		c.session = nil
		return nil, err
	}
	c.state = StateRecording
	c.session = session
	copied := *session
	return &copied, nil
}

func (c *Controller) start(ctx context.Context, opts StartOptions) (*Session, error) {
	profile, ok := c.cfg.Profiles[opts.Profile]
	if !ok {
		return nil, fmt.Errorf("recording: unknown profile %q", opts.Profile)
	}

	project, err := projects.OpenOrCreate(c.cfg.Paths.RecordingsDir, opts.Project, opts.Profile)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sessionDir, err := project.NewSessionDir(now)
	if err != nil {
		return nil, err
	}

	plan := provision.PlanFromProfile(opts.Profile, c.cfg.OBS.SceneName, profile, opts.Bindings)
	if err := c.provisioner.Apply(ctx, plan); err != nil {
		return nil, err
	}

	if err := c.client.SetRecordDirectory(ctx, sessionDir); err != nil {
		return nil, err
	}
	if dir, err := c.client.GetRecordDirectory(ctx); err != nil {
		var reqErr *obs.RequestError
		if !errors.As(err, &reqErr) {
			return nil, err
		}
		// Server predates GetRecordDirectory; trust the set call.
		c.logger.Debug("record directory read-back unavailable",
			logging.String("comment", reqErr.Comment))
	} else if dir != sessionDir {
		return nil, fmt.Errorf("recording: record directory is %s, want %s", dir, sessionDir)
	}

	if c.cfg.Recording.ISOEnabled {
		isoDir := filepath.Join(sessionDir, "iso")
		if err := os.MkdirAll(isoDir, 0o755); err != nil {
			return nil, fmt.Errorf("recording: create iso dir: %w", err)
		}
		if err := c.provisioner.EnableISORecording(ctx, c.cfg.OBS.SceneName, isoDir); err != nil {
			return nil, err
		}
	}

	status, err := c.client.GetRecordStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status.OutputActive {
		c.logger.Warn("record output already active, adopting it")
	} else if err := c.client.StartRecord(ctx); err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.NewString(),
		Project:   opts.Project,
		Profile:   opts.Profile,
		Dir:       sessionDir,
		StartedAt: now,
	}
	c.logger.Info("recording started",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String("project", session.Project),
		logging.String("session_dir", session.Dir))
	return session, nil
}

// Stop ends the session and finalizes its artifacts. The session ends
// even when finalization fails; the error reports what went wrong.
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.session == nil {
		c.mu.Unlock()
		return nil, ErrNotRecording
	}
	c.state = StateStopping
	session := *c.session
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.session = nil
		c.mu.Unlock()
	}()

	outputPath, err := c.client.StopRecord(ctx)
	if err != nil {
		// A rejected stop and a lost connection both leave the output
		// path unknown; either way the session directory is the source
		// of truth for what was written.
		var reqErr *obs.RequestError
		if errors.As(err, &reqErr) {
			c.logger.Warn("stop rejected, scanning session directory",
				logging.String("comment", reqErr.Comment))
		} else {
			c.logger.Warn("stop call failed, scanning session directory",
				logging.Error(err))
		}
		outputPath = ""
	}

	if c.cfg.Recording.ISOEnabled {
		if err := c.provisioner.DisableISORecording(ctx, c.cfg.OBS.SceneName); err != nil {
			c.logger.Warn("iso filter teardown failed", logging.Error(err))
		}
	}

	c.mu.Lock()
	c.state = StateFinalizing
	c.mu.Unlock()

	result, err := c.finalize(ctx, session, outputPath)
	if err != nil {
		return nil, err
	}
	c.logger.Info("recording finished",
		logging.String(logging.FieldSessionID, session.ID),
		logging.Int("artifacts", len(result.Artifacts)),
		logging.Int64("bytes", result.Bytes))
	return result, nil
}

// finalize waits for the recording to settle on disk and collects it
// under a cleaned name.
func (c *Controller) finalize(ctx context.Context, session Session, outputPath string) (*Result, error) {
	stability := poll.Config{
		Interval: time.Duration(c.cfg.Recording.StabilityInterval) * time.Second,
		MaxWait:  time.Duration(c.cfg.Recording.StabilityTimeout) * time.Second,
	}

	if outputPath == "" {
		// Older servers omit the path from StopRecord; fall back to
		// the freshest matching file written since the session began.
		found, err := poll.NewestMatching(session.Dir, session.StartedAt, c.cfg.Recording.Extensions)
		if err != nil {
			return nil, err
		}
		if found == "" {
			return nil, fmt.Errorf("%w in %s", ErrArtifactNotFound, session.Dir)
		}
		outputPath = found
	}

	size, err := poll.WaitForStableFile(ctx, stability, outputPath)
	if err != nil {
		if errors.Is(err, poll.ErrBudgetExhausted) {
			return nil, fmt.Errorf("%w: %s never stabilized", ErrArtifactNotFound, outputPath)
		}
		return nil, err
	}

	result := &Result{
		Session:  session,
		Bytes:    size,
		Duration: time.Since(session.StartedAt),
	}

	collected, err := c.collect(session, outputPath)
	if err != nil {
		return nil, err
	}
	result.Artifacts = collected
	return result, nil
}

// collect moves the stable artifact into the session directory under a
// cleaned name, plus any sibling recordings from the same session.
func (c *Controller) collect(session Session, primary string) ([]string, error) {
	candidates := map[string]struct{}{primary: {}}
	entries, err := os.ReadDir(filepath.Dir(primary))
	if err != nil {
		return nil, fmt.Errorf("recording: scan %s: %w", filepath.Dir(primary), err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(filepath.Dir(primary), entry.Name())
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(session.StartedAt) {
			continue
		}
		if matchesExtension(entry.Name(), c.cfg.Recording.Extensions) {
			candidates[path] = struct{}{}
		}
	}

	var collected []string
	for path := range candidates {
		dst := filepath.Join(session.Dir, CleanName(filepath.Base(path)))
		if path != dst {
			if err := fileutil.MoveFile(path, dst); err != nil {
				return nil, fmt.Errorf("recording: collect %s: %w", path, err)
			}
		}
		collected = append(collected, dst)
	}
	return collected, nil
}

// CleanName strips the timestamp prefix OBS prepends to recording
// filenames and replaces filesystem-unsafe characters. Names that are
// nothing but the prefix keep it.
func CleanName(name string) string {
	cleaned := timestampPrefix.ReplaceAllString(name, "")
	if cleaned == "" || cleaned == filepath.Ext(name) {
		return textutil.SanitizeFileName(name)
	}
	return textutil.SanitizeFileName(cleaned)
}

func matchesExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range extensions {
		if ext != "" && ext == strings.ToLower(candidate) {
			return true
		}
	}
	return false
}
