// Package whisper wraps a whisper CLI for transcribing session
// recordings.
package whisper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"reel/internal/services"
)

var commandContext = exec.CommandContext

// Client defines transcription behaviour.
type Client interface {
	Transcribe(ctx context.Context, audioPath, outputDir string) (string, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithModel selects the whisper model (tiny, base, small, medium,
// large).
func WithModel(model string) Option {
	return func(c *CLI) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLanguage sets the spoken language. The tag is validated against
// BCP 47; an invalid tag surfaces from Transcribe.
func WithLanguage(tag string) Option {
	return func(c *CLI) {
		c.language = tag
	}
}

// CLI wraps the whisper command-line tool.
type CLI struct {
	binary   string
	model    string
	language string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "whisper", model: "small", language: "en"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Transcribe runs whisper on audioPath and returns the path of the
// generated transcript.
func (c *CLI) Transcribe(ctx context.Context, audioPath, outputDir string) (string, error) {
	if audioPath == "" {
		return "", services.Wrap(services.ErrValidation, "transcription", "whisper", "audio path required", nil)
	}
	if outputDir == "" {
		return "", services.Wrap(services.ErrValidation, "transcription", "whisper", "output directory required", nil)
	}

	lang, err := normalizeLanguage(c.language)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transcription", "whisper", "language", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	args := []string{
		audioPath,
		"--model", c.model,
		"--language", lang,
		"--output_format", "txt",
		"--output_dir", outputDir,
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		return "", services.Wrap(services.ErrExternalTool, "transcription", "whisper", detail, err)
	}

	base := filepath.Base(audioPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	transcript := filepath.Join(outputDir, stem+".txt")
	if _, err := os.Stat(transcript); err != nil {
		return "", fmt.Errorf("transcript not produced at %s: %w", transcript, err)
	}
	return transcript, nil
}

// normalizeLanguage canonicalizes a BCP 47 tag down to the base
// language whisper expects ("en", not "en-US").
func normalizeLanguage(tag string) (string, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", tag, err)
	}
	base, _ := parsed.Base()
	return base.String(), nil
}

var _ Client = (*CLI)(nil)
