// Package restorectl implements PostgreSQL's restore_command loop: wait
// for a requested WAL segment to land in the archive, honor
// --recovery-delay, decompress-or-copy it into the data directory, and
// run retention passes between idle polls. One Run call is one
// restore_command invocation; PostgreSQL itself supplies the retry loop
// across process invocations, but a single invocation also loops
// internally while a segment is still pending ( 1-second
// idle sleep, 1-hour wait ceiling).
package restorectl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/logger"
	"omnipitr/internal/retention"
	"omnipitr/internal/runner"
	"omnipitr/internal/security"
	"omnipitr/internal/walseg"
)

// Outcome classifies how a Run call ended, so cmd/restore.go can choose the
// right process exit code and whether to log a fatal line — a missing
// requested.history file exits 1 without logging fatal, since PostgreSQL
// probes for history files routinely.
type Outcome int

const (
	// Delivered: the segment was decompressed/copied into the data
	// directory. Exit 0.
	Delivered Outcome = iota
	// HistoryAbsent: a.history file was requested and is not present;
	// PostgreSQL treats this as routine. Exit 1, no fatal log line.
	HistoryAbsent
	// Fatal: any other failure to deliver. Exit 1, fatal log line.
	Fatal
)

const (
	waitCeiling = time.Hour
	idleSleep = time.Second
)

// finishMode is the finish-trigger file's parsed intent.
type finishMode int

const (
	finishNone finishMode = iota
	finishSmart
	finishImmediate
)

// Options configures one restore invocation.
type Options struct {
	SourceDir string
	SourceCompression compress.Type
	DataDir string

	RecoveryDelay time.Duration
	FinishTrigger string
	RemovalPauseTrigger string
	PreRemovalHook string
	RemoveAtATime int
	RemoveUnneeded string
	RemoveBefore bool
	StreamingReplication bool
	ErrorPgControldata string // break|ignore|hang, forwarded to retention.Options

	TempDir string
	Binary compress.Binary
	ShellPath string
	PgControldataPath string

	// ImmediateFinish reports whether SIGUSR1 has set the worker's
	// immediate-finish flag. Nil means the signal handler isn't wired
	// (e.g. in tests); it then behaves as if never set.
	ImmediateFinish func() bool

	// WaitCeiling and IdleSleep override the production 1-hour/1-second
	// defaults; tests shrink them so the poll loop doesn't take real wall
	// clock time.
	WaitCeiling time.Duration
	IdleSleep time.Duration

	Runner runner.Runner
	Log logger.Logger
}

// Run executes the restore state machine for one SEGMENT/DESTINATION
// pair ( table).
func Run(ctx context.Context, opts Options, segment, destination string) (Outcome, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewNullLogger()
	}
	if err := security.ValidateSegmentName(segment); err != nil {
		return Fatal, fmt.Errorf("restorectl: %w", err)
	}
	destPath, err := security.ValidateRestoreDestination(opts.DataDir, destination)
	if err != nil {
		return Fatal, fmt.Errorf("restorectl: %w", err)
	}

	if opts.RemoveBefore {
		if err := runRetentionPass(ctx, opts, log); err != nil {
			return Fatal, fmt.Errorf("restorectl: %w", err)
		}
	}

	ceiling := opts.WaitCeiling
	if ceiling <= 0 {
		ceiling = waitCeiling
	}
	sleep := opts.IdleSleep
	if sleep <= 0 {
		sleep = idleSleep
	}

	deadline := time.Now().Add(ceiling)
	ticker := time.NewTicker(sleep)
	defer ticker.Stop()

	for {
		mode, err := checkFinishTrigger(opts.FinishTrigger)
		if err != nil {
			return Fatal, fmt.Errorf("restorectl: read finish-trigger: %w", err)
		}
		if mode == finishImmediate || (opts.ImmediateFinish != nil && opts.ImmediateFinish()) {
			return Fatal, fmt.Errorf("restorectl: immediate finish requested (finish-trigger=NOW or SIGUSR1)")
		}

		present, mtime, err := segmentInfo(opts, segment)
		if err != nil {
			return Fatal, fmt.Errorf("restorectl: %w", err)
		}

		if present {
			if opts.RecoveryDelay > 0 && time.Since(mtime) < opts.RecoveryDelay {
				log.Debug("segment present but recovery-delay not yet elapsed", "segment", segment)
			} else {
				if err := deliver(ctx, opts, segment, destPath); err != nil {
					return Fatal, fmt.Errorf("restorectl: deliver %s: %w", segment, err)
				}
				log.Info("restored segment", "segment", segment, "destination", destination)
				return Delivered, nil
			}
		} else {
			switch {
				case mode == finishSmart:
				return Fatal, fmt.Errorf("restorectl: segment %s absent and finish-trigger=smart", segment)
				case walseg.Classify(segment) == walseg.KindHistory:
				log.Debug("history file not present", "segment", segment)
				return HistoryAbsent, nil
				case opts.StreamingReplication:
				return Fatal, fmt.Errorf("restorectl: segment %s absent; deferring to streaming replication", segment)
				default:
				if err := runRetentionPass(ctx, opts, log); err != nil && opts.ErrorPgControldata == "break" {
					return Fatal, fmt.Errorf("restorectl: %w", err)
				}
			}
		}

		if time.Now().After(deadline) {
			return Fatal, fmt.Errorf("restorectl: exceeded %s wait ceiling for segment %s", ceiling, segment)
		}
		select {
			case <-ctx.Done():
			return Fatal, ctx.Err()
			case <-ticker.C:
		}
	}
}

func runRetentionPass(ctx context.Context, opts Options, log logger.Logger) error {
	res, err := retention.Run(ctx, retention.Options{
			ArchiveDir: opts.SourceDir,
			DataDir: opts.DataDir,
			RemoveUnneeded: opts.RemoveUnneeded,
			RemovalPauseTrigger: opts.RemovalPauseTrigger,
			RemoveAtATime: opts.RemoveAtATime,
			PreRemovalHook: opts.PreRemovalHook,
			TempDir: opts.TempDir,
			SourceCompression: opts.SourceCompression,
			Binary: opts.Binary,
			ShellPath: opts.ShellPath,
			PgControldataPath: opts.PgControldataPath,
			ErrorPgControldata: opts.ErrorPgControldata,
			Runner: opts.Runner,
			Log: log,
		})
	if err != nil {
		log.Warn("retention pass failed", "error", err)
		return err
	}
	if len(res.Removed) > 0 {
		log.Info("retention pass removed segments", "count", len(res.Removed), "boundary", res.Boundary)
	}
	return nil
}

// checkFinishTrigger reads the finish-trigger file: absent means
// finishNone, a "NOW\n" body means finishImmediate, any other content
// means finishSmart.
func checkFinishTrigger(path string) (finishMode, error) {
	if path == "" {
		return finishNone, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finishNone, nil
		}
		return finishNone, err
	}
	if strings.TrimRight(string(data), "\n") == "NOW" {
		return finishImmediate, nil
	}
	return finishSmart, nil
}

// segmentInfo locates segment (optionally carrying a compression suffix)
// in the source directory.
func segmentInfo(opts Options, segment string) (bool, time.Time, error) {
	name := segmentArchiveName(opts.SourceCompression, segment)
	path := filepath.Join(opts.SourceDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	return true, info.ModTime(), nil
}

func segmentArchiveName(t compress.Type, segment string) string {
	return segment + t.Ext()
}

func deliver(ctx context.Context, opts Options, segment, destPath string) error {
	srcName := segmentArchiveName(opts.SourceCompression, segment)
	srcPath := filepath.Join(opts.SourceDir, srcName)

	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(destPath), err)
	}

	if opts.SourceCompression == compress.None || opts.SourceCompression == "" {
		return copyFile(srcPath, destPath)
	}

	rn := opts.Runner
	if rn == nil {
		rn = runner.New()
	}
	comp := compress.Compressor{Bin: opts.Binary, Run: rn}
	return comp.DecompressFile(ctx, opts.SourceCompression, srcPath, destPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := out.ReadFrom(in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}
