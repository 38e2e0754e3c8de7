package ipc

// StartRequest begins a recording session.
type StartRequest struct {
	Project string `json:"project"`
	Profile string `json:"profile"`
}

// StartResponse reports the session that was started.
type StartResponse struct {
	Started    bool   `json:"started"`
	SessionID  string `json:"session_id"`
	SessionDir string `json:"session_dir"`
	Message    string `json:"message"`
}

// StopRequest ends the active recording session.
type StopRequest struct{}

// StopResponse summarizes the finished session.
type StopResponse struct {
	Stopped         bool     `json:"stopped"`
	Artifacts       []string `json:"artifacts"`
	Bytes           int64    `json:"bytes"`
	DurationSeconds float64  `json:"duration_seconds"`
	Message         string   `json:"message"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and session status.
type StatusResponse struct {
	Running    bool   `json:"running"`
	Connected  bool   `json:"connected"`
	State      string `json:"state"`
	SessionID  string `json:"session_id,omitempty"`
	Project    string `json:"project,omitempty"`
	SessionDir string `json:"session_dir,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	LockPath   string `json:"lock_path"`
	SocketPath string `json:"socket_path"`
	PID        int    `json:"pid"`
}

// SessionSummary is one history entry for listings.
type SessionSummary struct {
	SessionID       string  `json:"session_id"`
	Project         string  `json:"project"`
	Profile         string  `json:"profile"`
	Status          string  `json:"status"`
	Artifacts       int     `json:"artifacts"`
	Bytes           int64   `json:"bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	StartedAt       string  `json:"started_at"`
}

// SessionsRequest lists past sessions, optionally scoped to one project.
type SessionsRequest struct {
	Project string `json:"project"`
	Limit   int    `json:"limit"`
}

// SessionsResponse contains history entries, newest first.
type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// ProvisionRequest converges the capture layout without recording.
type ProvisionRequest struct {
	Profile string `json:"profile"`
}

// ProvisionResponse reports the provisioning outcome.
type ProvisionResponse struct {
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ShutdownRequest asks the daemon to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges the shutdown.
type ShutdownResponse struct {
	ShuttingDown bool `json:"shutting_down"`
}
