package projects

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateLaysOutDirectories(t *testing.T) {
	base := t.TempDir()

	project, err := Create(base, "go-basics", "multicam")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, dir := range []string{project.RawDir(), project.ExportsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing directory %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(project.Root, "metadata.json")); err != nil {
		t.Fatalf("missing metadata: %v", err)
	}
	if project.Metadata.Profile != "multicam" {
		t.Fatalf("profile = %q", project.Metadata.Profile)
	}
}

func TestCreateRejectsExisting(t *testing.T) {
	base := t.TempDir()
	if _, err := Create(base, "go-basics", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(base, "go-basics", ""); err == nil {
		t.Fatal("second Create succeeded")
	}
}

func TestCreateSanitizesDirectoryName(t *testing.T) {
	base := t.TempDir()

	project, err := Create(base, "Lesson 3: Loops", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if filepath.Base(project.Root) != "Lesson 3- Loops" {
		t.Fatalf("directory name = %q", filepath.Base(project.Root))
	}
	if project.Metadata.Name != "Lesson 3: Loops" {
		t.Fatalf("metadata name = %q", project.Metadata.Name)
	}

	// Open must apply the same mapping as Create.
	if _, err := Open(base, "Lesson 3: Loops"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(t.TempDir(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open = %v, want ErrNotFound", err)
	}
}

func TestOpenOrCreate(t *testing.T) {
	base := t.TempDir()

	created, err := OpenOrCreate(base, "go-basics", "single")
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	opened, err := OpenOrCreate(base, "go-basics", "ignored")
	if err != nil {
		t.Fatalf("second OpenOrCreate failed: %v", err)
	}
	if opened.Metadata.Profile != created.Metadata.Profile {
		t.Fatalf("reopen changed profile to %q", opened.Metadata.Profile)
	}
}

func TestListNewestFirst(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"first", "second"} {
		if _, err := Create(base, name, ""); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	// A stray directory without metadata must be skipped.
	if err := os.Mkdir(filepath.Join(base, "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}

	projects, err := List(base)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	if projects[0].Metadata.Name != "second" {
		t.Fatalf("newest first violated: %s", projects[0].Metadata.Name)
	}
}

func TestListMissingBase(t *testing.T) {
	projects, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || projects != nil {
		t.Fatalf("List = %v, %v; want nil, nil", projects, err)
	}
}

func TestNewSessionDirAvoidsCollision(t *testing.T) {
	base := t.TempDir()
	project, err := Create(base, "go-basics", "")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 8, 30, 14, 5, 1, 0, time.UTC)
	first, err := project.NewSessionDir(start)
	if err != nil {
		t.Fatal(err)
	}
	second, err := project.NewSessionDir(start)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("session dirs collide: %s", first)
	}
	if filepath.Base(first) != "2026-08-30_14-05-01" {
		t.Fatalf("session dir name = %s", filepath.Base(first))
	}
}
