package preflight_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"remuxd/internal/preflight"
	"remuxd/internal/testsupport"
	"remuxd/internal/workerclient"
)

type fakeProber struct {
	health *workerclient.Health
	err    error
}

func (f *fakeProber) Health(ctx context.Context) (*workerclient.Health, error) {
	return f.health, f.err
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Share root", dir)
	if !result.Passed {
		t.Fatalf("expected pass for %s: %s", dir, result.Detail)
	}

	result = preflight.CheckDirectoryAccess("Share root", filepath.Join(dir, "missing"))
	if result.Passed {
		t.Fatal("expected failure for missing directory")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckFreeSpace("Output free space", dir, 1)
	if !result.Passed {
		t.Fatalf("expected pass: %s", result.Detail)
	}

	result = preflight.CheckFreeSpace("Output free space", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure for absurd free-space requirement")
	}
}

func TestCheckWorker(t *testing.T) {
	ctx := context.Background()

	result := preflight.CheckWorker(ctx, &fakeProber{health: &workerclient.Health{Status: "ok", ActiveTasks: 1, Version: "0.3.0"}})
	if !result.Passed {
		t.Fatalf("expected pass: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "version 0.3.0") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}

	result = preflight.CheckWorker(ctx, &fakeProber{err: errors.New("connection refused")})
	if result.Passed {
		t.Fatal("expected failure when the worker is unreachable")
	}
}

func TestRunAllAndAllPassed(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := preflight.RunAll(context.Background(), cfg, nil)
	if len(results) == 0 {
		t.Fatal("expected at least one check")
	}
	for _, result := range results {
		if result.Name == "Output free space" {
			// Skippable on small CI volumes.
			continue
		}
		if !result.Passed {
			t.Fatalf("check %s failed: %s", result.Name, result.Detail)
		}
	}

	if preflight.AllPassed([]preflight.Result{{Passed: true}, {Passed: false}}) {
		t.Fatal("AllPassed should be false with a failing check")
	}
	if !preflight.AllPassed([]preflight.Result{{Passed: true}}) {
		t.Fatal("AllPassed should be true when everything passes")
	}
}
