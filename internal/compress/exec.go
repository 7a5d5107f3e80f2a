package compress

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"omnipitr/internal/runner"
)

// streamer is satisfied by runner.Exec: running a compressor with its
// stdin/stdout wired directly to files, so large WAL segments never pass
// through an extra in-memory copy. A fake runner.Runner used in tests
// won't implement this, so Compressor falls back to the buffered Run
// path below and writes the fake's Stdout to dst.
type streamer interface {
	RunStream(ctx context.Context, argv []string, stdin, stdout *os.File) runner.Result
}

// execStream runs argv with stdin/stdout wired directly to files, so large
// WAL segments stream through the compressor without an extra in-memory copy.
func execStream(ctx context.Context, argv []string, stdin, stdout *os.File) runner.Result {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout

	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	return runner.Result{
		Argv: argv,
		Stderr: errBuf.Bytes(),
		ExitCode: exitCode,
		Duration: dur,
		Err: err,
	}
}
