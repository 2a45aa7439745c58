// Package workspace owns the files a run touches between stages: the two
// append-only accumulator files and the working directory that is wiped
// after every day.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Accumulator is an append-only text file that collects one "<index>,"
// token per processed day. The external stages append their own values
// after the token.
type Accumulator struct {
	Path string
}

// NewAccumulator returns an accumulator backed by path.
func NewAccumulator(path string) Accumulator {
	return Accumulator{Path: path}
}

// Token returns the marker appended for the given iteration index.
func Token(index int) string {
	return strconv.Itoa(index) + ","
}

// Append writes Token(index) to the end of the file, creating the file and
// its parent directories when missing.
func (a Accumulator) Append(index int) error {
	if dir := filepath.Dir(a.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating accumulator directory: %w", err)
		}
	}
	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening accumulator %s: %w", a.Path, err)
	}
	if _, err := f.WriteString(Token(index)); err != nil {
		f.Close()
		return fmt.Errorf("appending to accumulator %s: %w", a.Path, err)
	}
	return f.Close()
}

// WorkDir is the shared directory stages write intermediate files into.
type WorkDir struct {
	Path string
}

// NewWorkDir returns a WorkDir rooted at path.
func NewWorkDir(path string) WorkDir {
	return WorkDir{Path: path}
}

// Ensure creates the directory if it does not exist yet.
func (w WorkDir) Ensure() error {
	if err := os.MkdirAll(w.Path, 0o755); err != nil {
		return fmt.Errorf("creating work directory %s: %w", w.Path, err)
	}
	return nil
}

// Reset deletes the directory with everything in it and recreates it empty.
func (w WorkDir) Reset() error {
	if w.Path == "" || filepath.Clean(w.Path) == "." || filepath.Clean(w.Path) == string(filepath.Separator) {
		return fmt.Errorf("refusing to reset work directory %q", w.Path)
	}
	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("removing work directory %s: %w", w.Path, err)
	}
	if err := os.Mkdir(w.Path, 0o755); err != nil {
		return fmt.Errorf("recreating work directory %s: %w", w.Path, err)
	}
	return nil
}

// Entries lists the names currently inside the directory.
func (w WorkDir) Entries() ([]string, error) {
	des, err := os.ReadDir(w.Path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(des))
	for i, de := range des {
		names[i] = de.Name()
	}
	return names, nil
}
