// Package deps reports the availability of external binaries reel
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"reel/internal/config"
)

// Requirement defines an external dependency reel relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ForConfig lists the external binaries the configuration calls for.
// Features that are disabled contribute optional requirements so the
// report stays informative without failing validation.
func ForConfig(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{
			Name:        "OBS Studio",
			Command:     cfg.OBS.LaunchPath,
			Description: "launched on demand when not already running",
			Optional:    cfg.OBS.LaunchPath == "",
		},
		{
			Name:        "rclone",
			Command:     cfg.RcloneBinary(),
			Description: "uploads finished sessions to the sync remote",
			Optional:    !cfg.Sync.Enabled,
		},
		{
			Name:        "whisper",
			Command:     cfg.Transcription.Binary,
			Description: "transcribes the primary recording",
			Optional:    !cfg.Transcription.Enabled,
		},
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
