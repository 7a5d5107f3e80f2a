package restorectl

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/runner"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	return runner.Result{Argv: argv, ExitCode: 0}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestRunDeliversUncompressedSegment(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "000000010000000000000001"), []byte("wal bytes"))

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome != Delivered {
		t.Fatalf("outcome = %v, want Delivered", outcome)
	}
	got, err := os.ReadFile(filepath.Join(dataDir, "pg_xlog", "RECOVERYXLOG"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "wal bytes" {
		t.Errorf("delivered content = %q", got)
	}
}

func TestRunRejectsDestinationEscapingDataDir(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "000000010000000000000001"), []byte("wal bytes"))

	_, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
		}, "000000010000000000000001", "../../etc/passwd")
	if err == nil {
		t.Fatal("expected an error for a traversal destination")
	}
}

func TestRunRejectsSegmentWithPathSeparator(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()

	_, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
		}, "../escape", "pg_xlog/RECOVERYXLOG")
	if err == nil {
		t.Fatal("expected an error for a segment name containing a path separator")
	}
}

func TestRunHistoryFileAbsentReturnsHistoryAbsentNotFatal(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
			WaitCeiling: 50 * time.Millisecond,
			IdleSleep: 5 * time.Millisecond,
		}, "00000002.history", "pg_xlog/RECOVERYHISTORY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != HistoryAbsent {
		t.Fatalf("outcome = %v, want HistoryAbsent", outcome)
	}
}

func TestRunSmartFinishTriggerFailsFastWhenSegmentAbsent(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	trigger := filepath.Join(t.TempDir(), "finish")
	writeFile(t, trigger, []byte("smart\n"))

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			FinishTrigger: trigger,
			Runner: noopRunner{},
			WaitCeiling: 50 * time.Millisecond,
			IdleSleep: 5 * time.Millisecond,
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err == nil {
		t.Fatal("expected a fatal error for a smart finish-trigger with no segment available")
	}
	if outcome != Fatal {
		t.Errorf("outcome = %v, want Fatal", outcome)
	}
}

func TestRunImmediateFinishTriggerAbortsBeforeDelivering(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "000000010000000000000001"), []byte("wal bytes"))
	trigger := filepath.Join(t.TempDir(), "finish")
	writeFile(t, trigger, []byte("NOW\n"))

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			FinishTrigger: trigger,
			Runner: noopRunner{},
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err == nil {
		t.Fatal("expected an error when finish-trigger requests immediate stop")
	}
	if outcome != Fatal {
		t.Errorf("outcome = %v, want Fatal", outcome)
	}
}

func TestRunSignalImmediateFinishAbortsBeforeDelivering(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "000000010000000000000001"), []byte("wal bytes"))

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
			ImmediateFinish: func() bool { return true },
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err == nil {
		t.Fatal("expected an error when ImmediateFinish reports true")
	}
	if outcome != Fatal {
		t.Errorf("outcome = %v, want Fatal", outcome)
	}
}

func TestRunEnforcesRecoveryDelayThenDeliversOnceElapsed(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	segPath := filepath.Join(sourceDir, "000000010000000000000001")
	writeFile(t, segPath, []byte("wal bytes"))
	// Stamp the segment's mtime as now, so its age starts below
	// recovery-delay, then let the poll loop catch it once it ages past the
	// threshold.
	recent := time.Now()
	if err := os.Chtimes(segPath, recent, recent); err != nil {
		t.Fatal(err)
	}

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
			RecoveryDelay: 20 * time.Millisecond,
			WaitCeiling: time.Second,
			IdleSleep: 5 * time.Millisecond,
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Delivered {
		t.Fatalf("outcome = %v, want Delivered", outcome)
	}
}

func TestRunExceedsWaitCeilingWhenSegmentNeverAppears(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			Runner: noopRunner{},
			WaitCeiling: 20 * time.Millisecond,
			IdleSleep: 5 * time.Millisecond,
		}, "000000010000000000000002", "pg_xlog/RECOVERYXLOG")
	if err == nil {
		t.Fatal("expected an error once the wait ceiling elapses")
	}
	if outcome != Fatal {
		t.Errorf("outcome = %v, want Fatal", outcome)
	}
}

func TestRunStreamingReplicationFailsFastWhenSegmentAbsent(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()

	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			StreamingReplication: true,
			Runner: noopRunner{},
			WaitCeiling: 50 * time.Millisecond,
			IdleSleep: 5 * time.Millisecond,
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err == nil {
		t.Fatal("expected an error when streaming-replication is enabled and the segment is absent")
	}
	if outcome != Fatal {
		t.Errorf("outcome = %v, want Fatal", outcome)
	}
}

func TestRunDeliversCompressedSegment(t *testing.T) {
	sourceDir := t.TempDir()
	dataDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "000000010000000000000001.gz"), []byte("gzip bytes"))

	rn := &decompressRunner{}
	outcome, err := Run(context.Background(), Options{
			SourceDir: sourceDir,
			DataDir: dataDir,
			SourceCompression: compress.Gzip,
			Binary: compress.DefaultBinary,
			Runner: rn,
		}, "000000010000000000000001", "pg_xlog/RECOVERYXLOG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Delivered {
		t.Fatalf("outcome = %v, want Delivered", outcome)
	}
	if !rn.called {
		t.Error("expected the gzip decompressor to be invoked")
	}
	got, err := os.ReadFile(filepath.Join(dataDir, "pg_xlog", "RECOVERYXLOG"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "decompressed bytes" {
		t.Errorf("delivered content = %q", got)
	}
}

// decompressRunner fakes `gzip -dc` by returning canned plaintext instead
// of shelling out to a real gzip binary.
type decompressRunner struct {
	called bool
}

func (d *decompressRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	d.called = true
	return runner.Result{Argv: argv, ExitCode: 0, Stdout: []byte("decompressed bytes")}
}
