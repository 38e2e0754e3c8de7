package whisper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func stubCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "WHISPER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestTranscribeRequiresAudio(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Transcribe(context.Background(), "", t.TempDir()); err == nil {
		t.Fatal("expected error when audio path is empty")
	}
}

func TestTranscribeRejectsInvalidLanguage(t *testing.T) {
	cli := NewCLI(WithLanguage("not a tag"))
	if _, err := cli.Transcribe(context.Background(), "/a.mkv", t.TempDir()); err == nil {
		t.Fatal("expected error for invalid language tag")
	}
}

func TestTranscribeNormalizesLanguage(t *testing.T) {
	var capturedArgs []string
	stubCommand(t, "success", &capturedArgs)

	outputDir := t.TempDir()
	audio := filepath.Join(t.TempDir(), "session.mkv")
	// The helper writes the transcript the client expects to find.
	t.Setenv("WHISPER_HELPER_TRANSCRIPT", filepath.Join(outputDir, "session.txt"))

	cli := NewCLI(WithLanguage("en-US"), WithModel("base"))
	transcript, err := cli.Transcribe(context.Background(), audio, outputDir)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if transcript != filepath.Join(outputDir, "session.txt") {
		t.Fatalf("transcript = %q", transcript)
	}

	lang := findArgValue(capturedArgs, "--language")
	if lang != "en" {
		t.Fatalf("language arg = %q, want en", lang)
	}
	if model := findArgValue(capturedArgs, "--model"); model != "base" {
		t.Fatalf("model arg = %q, want base", model)
	}
}

func TestTranscribeFailure(t *testing.T) {
	stubCommand(t, "failure", nil)

	cli := NewCLI()
	if _, err := cli.Transcribe(context.Background(), "/a.mkv", t.TempDir()); err == nil {
		t.Fatal("expected error from failing whisper")
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	stubCommand(t, "silent", nil)

	cli := NewCLI()
	if _, err := cli.Transcribe(context.Background(), "/a.mkv", t.TempDir()); err == nil {
		t.Fatal("expected error when no transcript is produced")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("WHISPER_HELPER_MODE") {
	case "success":
		if path := os.Getenv("WHISPER_HELPER_TRANSCRIPT"); path != "" {
			os.WriteFile(path, []byte("transcript"), 0o644)
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "model load failed")
		os.Exit(1)
	case "silent":
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func findArgValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
