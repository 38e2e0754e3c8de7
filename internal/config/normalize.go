package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeOBS(); err != nil {
		return err
	}
	c.normalizeRecording()
	c.normalizeProfiles()
	c.normalizeSync()
	c.normalizeTranscription()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeOBS() error {
	c.OBS.Host = strings.TrimSpace(c.OBS.Host)
	if c.OBS.Host == "" {
		c.OBS.Host = defaultOBSHost
	}
	if c.OBS.Port <= 0 {
		c.OBS.Port = defaultOBSPort
	}
	if c.OBS.Password == "" {
		if value, ok := os.LookupEnv("OBS_WEBSOCKET_PASSWORD"); ok {
			c.OBS.Password = value
		}
	}
	if strings.TrimSpace(c.OBS.LaunchPath) != "" {
		expanded, err := expandPath(c.OBS.LaunchPath)
		if err != nil {
			return fmt.Errorf("obs.launch_path: %w", err)
		}
		c.OBS.LaunchPath = expanded
	}
	c.OBS.SceneName = strings.TrimSpace(c.OBS.SceneName)
	if c.OBS.SceneName == "" {
		c.OBS.SceneName = defaultSceneName
	}
	if c.OBS.ConnectRetries <= 0 {
		c.OBS.ConnectRetries = defaultConnectRetries
	}
	if c.OBS.ConnectRetryInterval <= 0 {
		c.OBS.ConnectRetryInterval = defaultConnectRetryInterval
	}
	if c.OBS.HandshakeTimeoutSeconds <= 0 {
		c.OBS.HandshakeTimeoutSeconds = defaultHandshakeTimeout
	}
	if c.OBS.RequestTimeoutSeconds <= 0 {
		c.OBS.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if c.OBS.LaunchWaitSeconds <= 0 {
		c.OBS.LaunchWaitSeconds = defaultLaunchWait
	}
	return nil
}

func (c *Config) normalizeRecording() {
	if c.Recording.StabilityInterval <= 0 {
		c.Recording.StabilityInterval = defaultStabilityInterval
	}
	if c.Recording.StabilityTimeout <= 0 {
		c.Recording.StabilityTimeout = defaultStabilityTimeout
	}
	if len(c.Recording.Extensions) == 0 {
		c.Recording.Extensions = defaultExtensions()
		return
	}
	exts := make([]string, 0, len(c.Recording.Extensions))
	seen := make(map[string]struct{}, len(c.Recording.Extensions))
	for _, ext := range c.Recording.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultExtensions()
	}
	c.Recording.Extensions = exts
}

func (c *Config) normalizeProfiles() {
	if len(c.Profiles) == 0 {
		c.Profiles = DefaultProfiles()
		return
	}
	for name, profile := range c.Profiles {
		if profile.Displays < 0 {
			profile.Displays = 0
		}
		profile.Cameras = trimStrings(profile.Cameras)
		profile.AudioInputs = trimStrings(profile.AudioInputs)
		c.Profiles[name] = profile
	}
}

func (c *Config) normalizeSync() {
	c.Sync.Remote = strings.TrimSpace(c.Sync.Remote)
	if c.Sync.Remote == "" {
		c.Sync.Remote = defaultSyncRemote
	}
	c.Sync.RemotePath = strings.TrimSpace(c.Sync.RemotePath)
	if c.Sync.RemotePath == "" {
		c.Sync.RemotePath = defaultSyncRemotePath
	}
	if len(c.Sync.ExcludePatterns) == 0 {
		c.Sync.ExcludePatterns = defaultSyncExcludes()
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = defaultSyncTimeoutSeconds
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Binary = strings.TrimSpace(c.Transcription.Binary)
	if c.Transcription.Binary == "" {
		c.Transcription.Binary = defaultWhisperBinary
	}
	c.Transcription.Model = strings.ToLower(strings.TrimSpace(c.Transcription.Model))
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultWhisperLanguage
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("REEL_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func trimStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
