package backupengine

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"omnipitr/internal/destination"
	"omnipitr/internal/pgctl"
	"omnipitr/internal/runner"
	"omnipitr/internal/walseg"
)

// controldataSequenceRunner answers successive pg_controldata calls with
// snapshots popped off a queue, so polling-loop tests can assert a fixed
// number of advance steps without sleeping on real clock boundaries.
type controldataSequenceRunner struct {
	outputs []string
	calls int
}

func (c *controldataSequenceRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	if argv[0] == "pg_controldata" {
		idx := c.calls
		if idx >= len(c.outputs) {
			idx = len(c.outputs) - 1
		}
		c.calls++
		return runner.Result{Argv: argv, Stdout: []byte(c.outputs[idx]), ExitCode: 0}
	}
	return runner.Result{Argv: argv, ExitCode: 0}
}

func controldataOutput(redo, checkpoint, minRecovery string, timeline int) string {
	return "Latest checkpoint's REDO location: " + redo + "\n" +
	"Latest checkpoint's TimeLineID: " + strconv.Itoa(timeline) + "\n" +
	"Latest checkpoint location: " + checkpoint + "\n" +
	"Minimum recovery ending location: " + minRecovery + "\n"
}

func TestPollCheckpointAdvanceReturnsOnceCheckpointMoves(t *testing.T) {
	rn := &controldataSequenceRunner{outputs: []string{
			controldataOutput("0/1000000", "0/1000000", "0/1000000", 1),
			controldataOutput("0/1000000", "0/1000000", "0/1000000", 1),
			controldataOutput("0/2000000", "0/2000000", "0/2000000", 1),
		}}
	initial, err := pgctl.ParseControlData(rn.outputs[0])
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	final, err := pollCheckpointAdvance(ctx, rn, "pg_controldata", "/data", initial, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("pollCheckpointAdvance error = %v", err)
	}
	if final.CheckpointLocation.Series != 0 || final.CheckpointLocation.Offset != 0x2000000 {
		t.Errorf("final checkpoint = %v, want 0/2000000", final.CheckpointLocation)
	}
}

func TestPollCheckpointAdvanceCancelled(t *testing.T) {
	rn := &controldataSequenceRunner{outputs: []string{
			controldataOutput("0/1000000", "0/1000000", "0/1000000", 1),
		}}
	initial, err := pgctl.ParseControlData(rn.outputs[0])
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pollCheckpointAdvance(ctx, rn, "pg_controldata", "/data", initial, time.Second); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestWaitForCheckpointPastReturnsOnceAhead(t *testing.T) {
	rn := &controldataSequenceRunner{outputs: []string{
			controldataOutput("0/1000000", "0/1000000", "0/1000000", 1),
			controldataOutput("0/3000000", "0/3000000", "0/3000000", 1),
		}}
	target, err := walseg.ParseLocation("0/2000000")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := waitForCheckpointPast(ctx, rn, "pg_controldata", "/data", target, 5*time.Millisecond); err != nil {
		t.Fatalf("waitForCheckpointPast error = %v", err)
	}
}

func TestRunSlaveCallMasterRequiresPrimary(t *testing.T) {
	opts := SlaveOptions{
		Options: Options{DataDir: t.TempDir(), TempDir: t.TempDir(), FilenameTemplate: "__FILETYPE__"},
		CallMaster: true,
	}
	if err := RunSlave(context.Background(), opts); err == nil {
		t.Error("expected error when --call-master is set without a Primary")
	}
}

func TestRunSlaveNonCallMasterHappyPath(t *testing.T) {
	dataDir := t.TempDir()
	sourceDir := t.TempDir()
	destDir := t.TempDir()

	rn := &multiRunner{
		controldata: &controldataSequenceRunner{outputs: []string{
				controldataOutput("0/1000000", "0/1000000", "0/1000000", 1),
				controldataOutput("0/2000000", "0/2000000", "0/2000000", 1),
			}},
	}

	opts := SlaveOptions{
		Options: Options{
			DataDir: dataDir,
			TempDir: t.TempDir(),
			Destinations: []destination.Destination{{Kind: destination.Local, Path: destDir}},
			FilenameTemplate: "__HOSTNAME__-__FILETYPE____CEXT__",
			Hostname: "h",
			Runner: rn,
		},
		SourceDir: sourceDir,
		PollInterval: 5 * time.Millisecond,
	}

	if err := RunSlave(context.Background(), opts); err != nil {
		t.Fatalf("RunSlave error = %v", err)
	}
}

// multiRunner dispatches pg_controldata calls to an embedded sequence
// runner and answers every other subprocess (the pipe script, rsync)
// with a trivial success, the same split real backup-slave runs exercise.
type multiRunner struct {
	controldata *controldataSequenceRunner
}

func (m *multiRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	if argv[0] == "pg_controldata" {
		return m.controldata.Run(ctx, argv, stdin)
	}
	return runner.Result{Argv: argv, ExitCode: 0}
}
