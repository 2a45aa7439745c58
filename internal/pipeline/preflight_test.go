package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/agbru/dayrun/internal/errors"
)

func TestPreflight(t *testing.T) {
	t.Parallel()
	binDir := t.TempDir()
	for _, s := range Daily().Stages {
		writeScript(t, binDir, s.Command, "true")
	}
	writeScript(t, binDir, "MakeEncTab_1", "true")

	t.Run("all present", func(t *testing.T) {
		t.Parallel()
		if err := Preflight(context.Background(), Daily(), binDir); err != nil {
			t.Errorf("Preflight() = %v", err)
		}
	})

	t.Run("missing commands are all reported", func(t *testing.T) {
		t.Parallel()
		p := Daily()
		p.Stages = append(p.Stages,
			Stage{Name: "Extra1", Command: "Extra1"},
			Stage{Name: "Extra2", Command: "Extra2"},
		)
		err := Preflight(context.Background(), p, binDir)
		var ce apperrors.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
		if !strings.Contains(ce.Message, "Extra1") || !strings.Contains(ce.Message, "Extra2") {
			t.Errorf("message should list both missing commands: %s", ce.Message)
		}
	})

	t.Run("non-executable file is rejected", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "Plain"), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
		p := Pipeline{Stages: []Stage{{Name: "Plain", Command: "Plain"}}}
		if err := Preflight(context.Background(), p, dir); err == nil {
			t.Error("expected error for non-executable stage")
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := Preflight(ctx, Daily(), binDir); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
