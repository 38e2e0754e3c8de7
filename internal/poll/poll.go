// Package poll provides bounded polling primitives: a generic
// poll-until loop and the file stability checks the recording
// finalizer depends on.
package poll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrBudgetExhausted indicates the condition never held within the
// configured maximum wait.
var ErrBudgetExhausted = errors.New("poll: budget exhausted")

// Config bounds one polling loop.
type Config struct {
	// Interval is the pause between observations.
	Interval time.Duration

	// MaxWait caps the total time spent polling.
	MaxWait time.Duration
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
	return c
}

// Until calls fn at each interval until it reports done, the budget is
// exhausted, or ctx is cancelled. fn's error aborts the loop
// immediately.
func Until(ctx context.Context, cfg Config, fn func() (done bool, err error)) error {
	cfg = cfg.normalized()
	deadline := time.Now().Add(cfg.MaxWait)

	for {
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().Add(cfg.Interval).After(deadline) {
			return ErrBudgetExhausted
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}

// WaitForStableFile blocks until path has a non-zero size that is
// unchanged across two consecutive observations. A file that is still
// being written never qualifies.
func WaitForStableFile(ctx context.Context, cfg Config, path string) (int64, error) {
	var lastSize int64 = -1
	var finalSize int64

	err := Until(ctx, cfg, func() (bool, error) {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				lastSize = -1
				return false, nil
			}
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
		size := info.Size()
		if size > 0 && size == lastSize {
			finalSize = size
			return true, nil
		}
		lastSize = size
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	return finalSize, nil
}

// NewestMatching returns the file in dir with the newest modification
// time among those modified at or after since and carrying one of the
// given extensions. Extensions are matched case-insensitively and must
// include the leading dot. Returns "" when nothing matches.
func NewestMatching(dir string, since time.Time, extensions []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !hasExtension(entry.Name(), extensions) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if mod.Before(since) {
			continue
		}
		if newest == "" || mod.After(newestMod) {
			newest = entry.Name()
			newestMod = mod
		}
	}
	if newest == "" {
		return "", nil
	}
	return filepath.Join(dir, newest), nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range extensions {
		if ext == strings.ToLower(candidate) {
			return true
		}
	}
	return false
}
