package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	LogDir        string `toml:"log_dir"`
}

// OBS contains connection and launch settings for the capture application.
type OBS struct {
	Host                    string `toml:"host"`
	Port                    int    `toml:"port"`
	Password                string `toml:"password"`
	LaunchPath              string `toml:"launch_path"`
	SceneName               string `toml:"scene_name"`
	ConnectRetries          int    `toml:"connect_retries"`
	ConnectRetryInterval    int    `toml:"connect_retry_interval"`
	HandshakeTimeoutSeconds int    `toml:"handshake_timeout"`
	RequestTimeoutSeconds   int    `toml:"request_timeout"`
	LaunchWaitSeconds       int    `toml:"launch_wait"`
}

// Recording contains artifact finalization settings.
type Recording struct {
	Extensions        []string `toml:"extensions"`
	StabilityInterval int      `toml:"stability_interval"`
	StabilityTimeout  int      `toml:"stability_timeout"`
	ISOEnabled        bool     `toml:"iso_enabled"`
}

// Profile describes the capture sources a named recording profile provisions.
type Profile struct {
	Displays    int      `toml:"displays"`
	Cameras     []string `toml:"cameras"`
	AudioInputs []string `toml:"audio_inputs"`
}

// Sync contains configuration for rclone cloud sync.
type Sync struct {
	Enabled         bool     `toml:"enabled"`
	Remote          string   `toml:"remote"`
	RemotePath      string   `toml:"remote_path"`
	ExcludePatterns []string `toml:"exclude_patterns"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// Transcription contains configuration for whisper transcription.
type Transcription struct {
	Enabled  bool   `toml:"enabled"`
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Recording      bool   `toml:"recording"`
	Sync           bool   `toml:"sync"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Reel.
//
// Configuration sections by subsystem:
//   - Paths: recordings base and log directories
//   - OBS: websocket endpoint, credentials, launch and timeout settings
//   - Recording: artifact extensions and size-stability windows
//   - Profiles: named capture profiles (displays, cameras, audio inputs)
//   - Sync: rclone cloud sync settings
//   - Transcription: whisper transcription settings
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths              `toml:"paths"`
	OBS           OBS                `toml:"obs"`
	Recording     Recording          `toml:"recording"`
	Profiles      map[string]Profile `toml:"profiles"`
	Sync          Sync               `toml:"sync"`
	Transcription Transcription      `toml:"transcription"`
	Notifications Notifications      `toml:"notifications"`
	Logging       Logging            `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/reel/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordingsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WebSocketURL returns the obs-websocket endpoint derived from host and port.
func (c *Config) WebSocketURL() string {
	return fmt.Sprintf("ws://%s:%d", c.OBS.Host, c.OBS.Port)
}

// ProfileNames returns configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RcloneBinary returns the rclone executable name used for cloud sync.
func (c *Config) RcloneBinary() string {
	return "rclone"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
