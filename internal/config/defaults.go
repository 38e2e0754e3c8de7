package config

import "fmt"

const (
	defaultRecordingsDir        = "~/recordings"
	defaultLogDir               = "~/.local/share/reel/logs"
	defaultLogRetentionDays     = 60
	defaultOBSHost              = "127.0.0.1"
	defaultOBSPort              = 4455
	defaultSceneName            = "Tutorial Recording"
	defaultConnectRetries       = 30
	defaultConnectRetryInterval = 1
	defaultHandshakeTimeout     = 5
	defaultRequestTimeout       = 10
	defaultLaunchWait           = 20
	defaultStabilityInterval    = 1
	defaultStabilityTimeout     = 30
	defaultSyncRemote           = "tutorial-recordings"
	defaultSyncRemotePath       = "Tutorial Recordings"
	defaultSyncTimeoutSeconds   = 1800
	defaultWhisperBinary        = "whisper"
	defaultWhisperModel         = "small"
	defaultWhisperLanguage      = "en"
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

func defaultExtensions() []string {
	return []string{".mkv", ".mp4", ".mov", ".flv", ".avi"}
}

func defaultSyncExcludes() []string {
	return []string{"*.tmp", "*.part"}
}

// DefaultProfiles returns the built-in capture profiles created when no
// profiles are configured.
func DefaultProfiles() map[string]Profile {
	cameras := make([]string, 0, 7)
	mics := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		cameras = append(cameras, fmt.Sprintf("Camera %d", i))
		mics = append(mics, fmt.Sprintf("Mic %d", i))
	}
	return map[string]Profile{
		"single": {
			Displays:    1,
			Cameras:     []string{"Camera 1"},
			AudioInputs: []string{"Microphone"},
		},
		"multicam": {
			Displays:    1,
			Cameras:     cameras,
			AudioInputs: mics,
		},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
		},
		OBS: OBS{
			Host:                    defaultOBSHost,
			Port:                    defaultOBSPort,
			SceneName:               defaultSceneName,
			ConnectRetries:          defaultConnectRetries,
			ConnectRetryInterval:    defaultConnectRetryInterval,
			HandshakeTimeoutSeconds: defaultHandshakeTimeout,
			RequestTimeoutSeconds:   defaultRequestTimeout,
			LaunchWaitSeconds:       defaultLaunchWait,
		},
		Recording: Recording{
			Extensions:        defaultExtensions(),
			StabilityInterval: defaultStabilityInterval,
			StabilityTimeout:  defaultStabilityTimeout,
			ISOEnabled:        true,
		},
		Profiles: DefaultProfiles(),
		Sync: Sync{
			Remote:          defaultSyncRemote,
			RemotePath:      defaultSyncRemotePath,
			ExcludePatterns: defaultSyncExcludes(),
			TimeoutSeconds:  defaultSyncTimeoutSeconds,
		},
		Transcription: Transcription{
			Binary:   defaultWhisperBinary,
			Model:    defaultWhisperModel,
			Language: defaultWhisperLanguage,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Recording:      true,
			Sync:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
