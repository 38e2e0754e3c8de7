// Package projects manages the on-disk project layout: one directory
// per project holding raw session recordings, exports, and a metadata
// file.
package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"reel/internal/textutil"
)

const (
	rawDirName     = "raw"
	exportsDirName = "exports"
	metadataName   = "metadata.json"
)

// ErrNotFound indicates the named project does not exist under the
// base directory.
var ErrNotFound = errors.New("projects: project not found")

// Metadata is persisted as metadata.json in the project root.
type Metadata struct {
	Name      string    `json:"name"`
	Profile   string    `json:"profile,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is one project directory.
type Project struct {
	Root     string
	Metadata Metadata
}

// DirName maps a project name onto a filesystem-safe directory segment.
func DirName(name string) string {
	return textutil.SanitizeFileName(name)
}

// Create builds the project layout under base and writes the metadata
// file. Creating an existing project is an error; use Open.
func Create(base, name, profile string) (*Project, error) {
	if DirName(name) == "" {
		return nil, fmt.Errorf("projects: empty project name")
	}
	root := filepath.Join(base, DirName(name))
	if _, err := os.Stat(filepath.Join(root, metadataName)); err == nil {
		return nil, fmt.Errorf("projects: %s already exists", name)
	}
	for _, dir := range []string{root, filepath.Join(root, rawDirName), filepath.Join(root, exportsDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create project %s: %w", name, err)
		}
	}
	project := &Project{
		Root:     root,
		Metadata: Metadata{Name: name, Profile: profile, CreatedAt: time.Now().UTC()},
	}
	if err := project.writeMetadata(); err != nil {
		return nil, err
	}
	return project, nil
}

// Open loads an existing project.
func Open(base, name string) (*Project, error) {
	root := filepath.Join(base, DirName(name))
	data, err := os.ReadFile(filepath.Join(root, metadataName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open project %s: %w", name, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("open project %s: %w", name, err)
	}
	return &Project{Root: root, Metadata: meta}, nil
}

// OpenOrCreate opens the project, creating it when missing.
func OpenOrCreate(base, name, profile string) (*Project, error) {
	project, err := Open(base, name)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return Create(base, name, profile)
}

// List returns every project under base, newest first. Directories
// without a metadata file are skipped.
func List(base string) ([]*Project, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var projects []*Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		project, err := Open(base, entry.Name())
		if err != nil {
			continue
		}
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Metadata.CreatedAt.After(projects[j].Metadata.CreatedAt)
	})
	return projects, nil
}

// RawDir is where session recordings land.
func (p *Project) RawDir() string {
	return filepath.Join(p.Root, rawDirName)
}

// ExportsDir is where processed outputs land.
func (p *Project) ExportsDir() string {
	return filepath.Join(p.Root, exportsDirName)
}

// NewSessionDir creates a timestamped directory under raw/ for one
// recording session. A second session in the same instant gets a
// numeric suffix.
func (p *Project) NewSessionDir(start time.Time) (string, error) {
	stamp := start.Format("2006-01-02_15-04-05")
	dir := filepath.Join(p.RawDir(), stamp)
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create session dir: %w", err)
		}
		dir = filepath.Join(p.RawDir(), fmt.Sprintf("%s_%d", stamp, i))
	}
}

func (p *Project) writeMetadata() error {
	data, err := json.MarshalIndent(p.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	path := filepath.Join(p.Root, metadataName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
