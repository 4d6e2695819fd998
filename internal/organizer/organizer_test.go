package organizer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"remuxd/internal/organizer"
	"remuxd/internal/queue"
	"remuxd/internal/testsupport"
)

func TestRelocateMovesArtifactIntoLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	org := organizer.New(cfg, nil)

	artifact := filepath.Join(cfg.Paths.ShareRoot, "out", "movie.mkv")
	testsupport.WriteFile(t, artifact, 2048)

	task := &queue.Task{ID: 1, Name: "The Matrix"}
	final, err := org.Relocate(context.Background(), task, artifact)
	if err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}

	want := filepath.Join(cfg.Paths.OutputDir, "The Matrix.mkv")
	if final != want {
		t.Fatalf("unexpected final path: got %q want %q", final, want)
	}
	if _, err := os.Stat(final); err != nil {
		t.Fatalf("expected artifact at final path: %v", err)
	}
	if _, err := os.Stat(artifact); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected source removed, got %v", err)
	}
}

func TestRelocateResolvesRelativeArtifactAgainstShare(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	org := organizer.New(cfg, nil)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ShareRoot, "out", "movie.mkv"), 1)

	task := &queue.Task{ID: 2, Name: "Alien"}
	final, err := org.Relocate(context.Background(), task, filepath.Join("out", "movie.mkv"))
	if err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if filepath.Base(final) != "Alien.mkv" {
		t.Fatalf("unexpected final name: %q", final)
	}
}

func TestRelocateSanitizesTaskName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	org := organizer.New(cfg, nil)

	artifact := filepath.Join(cfg.Paths.ShareRoot, "movie.mkv")
	testsupport.WriteFile(t, artifact, 1)

	task := &queue.Task{ID: 3, Name: "Face/Off: Special?"}
	final, err := org.Relocate(context.Background(), task, artifact)
	if err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if filepath.Base(final) != "Face-Off- Special-.mkv" {
		t.Fatalf("unexpected sanitized name: %q", filepath.Base(final))
	}
}

func TestRelocateMissingArtifactWrapsRelocationFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	org := organizer.New(cfg, nil)

	task := &queue.Task{ID: 4, Name: "Ghost"}
	_, err := org.Relocate(context.Background(), task, filepath.Join(cfg.Paths.ShareRoot, "missing.mkv"))
	if !errors.Is(err, queue.ErrRelocationFailure) {
		t.Fatalf("expected ErrRelocationFailure, got %v", err)
	}

	_, err = org.Relocate(context.Background(), task, "")
	if !errors.Is(err, queue.ErrRelocationFailure) {
		t.Fatalf("expected ErrRelocationFailure for empty artifact, got %v", err)
	}
}
