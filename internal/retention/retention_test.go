package retention

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"omnipitr/internal/runner"
)

type fakeRunner struct {
	controldataOutput string
	controldataErr bool
	hookExitCode int
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	if argv[0] == "pg_controldata" {
		if f.controldataErr {
			return runner.Result{Argv: argv, ExitCode: 1}
		}
		return runner.Result{Argv: argv, Stdout: []byte(f.controldataOutput), ExitCode: 0}
	}
	return runner.Result{Argv: argv, ExitCode: f.hookExitCode}
}

func writeSegments(t *testing.T, dir string, names...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunSkipsWhenPauseTriggerPresent(t *testing.T) {
	archiveDir := t.TempDir()
	trigger := filepath.Join(t.TempDir(), "pause")
	if err := os.WriteFile(trigger, nil, 0600); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), Options{ArchiveDir: archiveDir, RemovalPauseTrigger: trigger})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Paused {
		t.Error("expected Paused = true")
	}
}

func TestRunRemovesSegmentsBelowExplicitBoundary(t *testing.T) {
	archiveDir := t.TempDir()
	writeSegments(t, archiveDir,
		"000000010000000000000001",
		"000000010000000000000002",
		"000000010000000000000003",
		"not-a-segment.txt",
	)

	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			RemoveUnneeded: "000000010000000000000003",
			Runner: &fakeRunner{},
		})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", res.Removed)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "000000010000000000000003")); err != nil {
		t.Error("boundary segment itself must not be removed")
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "not-a-segment.txt")); err != nil {
		t.Error("non-segment file must be left alone")
	}
}

func TestRunLeavesHistoryFilesAlone(t *testing.T) {
	archiveDir := t.TempDir()
	writeSegments(t, archiveDir,
		"000000010000000000000001",
		"000000010000000000000002",
		"00000001.history",
	)

	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			RemoveUnneeded: "000000010000000000000002",
			Runner: &fakeRunner{},
		})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "000000010000000000000001" {
		t.Errorf("Removed = %v, want just the one segment below the boundary", res.Removed)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "00000001.history")); err != nil {
		t.Error("timeline history file must never be removed by retention")
	}
}

func TestRunCapsAtRemoveAtATime(t *testing.T) {
	archiveDir := t.TempDir()
	writeSegments(t, archiveDir,
		"000000010000000000000001",
		"000000010000000000000002",
		"000000010000000000000003",
	)
	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			RemoveUnneeded: "000000010000000000000005",
			RemoveAtATime: 1,
			Runner: &fakeRunner{},
		})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 1 {
		t.Fatalf("expected exactly 1 removed, got %v", res.Removed)
	}
}

func TestRunSuspendsOnControldataFailure(t *testing.T) {
	archiveDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "backoff")
	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			DataDir: t.TempDir(),
			BackoffMarker: marker,
			Runner: &fakeRunner{controldataErr: true},
		})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suspended {
		t.Error("expected Suspended = true")
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("expected backoff marker to be created")
	}
}

func TestRunHonorsActiveBackoffWithoutCallingControldata(t *testing.T) {
	archiveDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "backoff")
	if err := os.WriteFile(marker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	rn := &fakeRunner{controldataOutput: "should not be queried"}
	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			DataDir: t.TempDir(),
			BackoffMarker: marker,
			Runner: rn,
		})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suspended {
		t.Error("expected Suspended = true while backoff marker is fresh")
	}
}

func TestRunUsesControldataRedoBoundaryWhenNoExplicitOverride(t *testing.T) {
	archiveDir := t.TempDir()
	writeSegments(t, archiveDir, "000000010000000000000001", "000000010000000000000003")

	controldataOutput := "Latest checkpoint's REDO location: 0/3000000\n" +
	"Latest checkpoint's TimeLineID: 1\n" +
	"Latest checkpoint location: 0/3000000\n" +
	"Minimum recovery ending location: 0/0\n"

	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			DataDir: t.TempDir(),
			Runner: &fakeRunner{controldataOutput: controldataOutput},
		})
	if err != nil {
		t.Fatal(err)
	}
	if res.Boundary != "000000010000000000000003" {
		t.Errorf("Boundary = %q", res.Boundary)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "000000010000000000000001" {
		t.Errorf("Removed = %v, want just the segment below the REDO boundary", res.Removed)
	}
}

func TestRunExecutesPreRemovalHook(t *testing.T) {
	archiveDir := t.TempDir()
	tempDir := t.TempDir()
	writeSegments(t, archiveDir, "000000010000000000000001")

	rn := &fakeRunner{hookExitCode: 0}
	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			RemoveUnneeded: "000000010000000000000002",
			PreRemovalHook: "/usr/local/bin/notify-removed",
			TempDir: tempDir,
			ShellPath: "/bin/sh",
			Runner: rn,
		})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 1 {
		t.Fatalf("expected 1 removed via hook, got %v", res.Removed)
	}
}

func TestRunAbandonsBatchOnHookFailure(t *testing.T) {
	archiveDir := t.TempDir()
	tempDir := t.TempDir()
	writeSegments(t, archiveDir, "000000010000000000000001", "000000010000000000000002")

	rn := &fakeRunner{hookExitCode: 1}
	res, err := Run(context.Background(), Options{
			ArchiveDir: archiveDir,
			RemoveUnneeded: "000000010000000000000003",
			PreRemovalHook: "/usr/local/bin/notify-removed",
			TempDir: tempDir,
			ShellPath: "/bin/sh",
			Runner: rn,
		})
	if err != nil {
		t.Fatal(err)
	}
	if res.HookFailed == "" {
		t.Error("expected HookFailed to be set")
	}
	if len(res.Removed) != 0 {
		t.Errorf("expected no segments removed when the first hook fails, got %v", res.Removed)
	}
}
