package pipeline

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/agbru/dayrun/internal/errors"
)

// preflightConcurrency caps the number of concurrent filesystem checks.
const preflightConcurrency = 8

// Preflight verifies that every stage command of the pipeline resolves to an
// executable before the first day starts, so a missing binary is reported
// up front instead of after hours of work. All missing commands are
// reported in a single ConfigError.
func Preflight(ctx context.Context, p Pipeline, binDir string) error {
	stages := append(append([]Stage{}, p.Setup...), p.Stages...)

	var (
		mu      sync.Mutex
		missing []string
		seen    = make(map[string]bool)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preflightConcurrency)
	for _, s := range stages {
		if seen[s.Command] {
			continue
		}
		seen[s.Command] = true
		command := s.Command
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := Resolve(binDir, command)
			if !isExecutable(path) {
				mu.Lock()
				missing = append(missing, path)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return apperrors.NewConfigError("missing or non-executable stage commands: %s", strings.Join(missing, ", "))
	}
	return nil
}

func isExecutable(path string) bool {
	if !strings.ContainsRune(path, '/') && !strings.ContainsRune(path, os.PathSeparator) {
		_, err := exec.LookPath(path)
		return err == nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
