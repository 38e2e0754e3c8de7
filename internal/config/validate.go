package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOBS(); err != nil {
		return err
	}
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateProfiles(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RecordingsDir) == "" {
		return errors.New("paths.recordings_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateOBS() error {
	if c.OBS.Port <= 0 || c.OBS.Port > 65535 {
		return fmt.Errorf("obs.port %d is outside the valid range", c.OBS.Port)
	}
	if c.OBS.SceneName == "" {
		return errors.New("obs.scene_name must be set")
	}
	return nil
}

func (c *Config) validateRecording() error {
	if c.Recording.StabilityInterval >= c.Recording.StabilityTimeout {
		return fmt.Errorf(
			"recording.stability_interval (%ds) must be shorter than recording.stability_timeout (%ds)",
			c.Recording.StabilityInterval, c.Recording.StabilityTimeout,
		)
	}
	return nil
}

func (c *Config) validateProfiles() error {
	for name, profile := range c.Profiles {
		if strings.TrimSpace(name) == "" {
			return errors.New("profiles must have non-empty names")
		}
		if profile.Displays == 0 && len(profile.Cameras) == 0 && len(profile.AudioInputs) == 0 {
			return fmt.Errorf("profile %q has no capture sources", name)
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	if !c.Sync.Enabled {
		return nil
	}
	if c.Sync.Remote == "" {
		return errors.New("sync.remote must be set when sync.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	return nil
}
