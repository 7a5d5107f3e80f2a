// Package retention implements the restore controller's garbage
// collection pass: compute a REDO-LSN boundary, list the archive for
// segments strictly below it, and remove them one at a time through an
// optional pre-removal hook.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/logger"
	"omnipitr/internal/pgctl"
	"omnipitr/internal/runner"
	"omnipitr/internal/walseg"
)

// backoffWindow is how long a failed pg_controldata invocation suspends
// boundary-based retention passes.
const backoffWindow = 5 * time.Minute

// Options configures one retention pass (the restore command's
// --remove-unneeded, --removal-pause-trigger, --remove-at-a-time, and
// --pre-removal-processing flags).
type Options struct {
	ArchiveDir string
	DataDir string
	RemoveUnneeded string // explicit boundary segment name; empty selects pg_controldata
	RemovalPauseTrigger string
	RemoveAtATime int
	PreRemovalHook string
	TempDir string
	SourceCompression compress.Type
	Binary compress.Binary
	ShellPath string
	PgControldataPath string
	BackoffMarker string // defaults to ArchiveDir/.retention-backoff
	// ErrorPgControldata selects how a pg_controldata failure is handled
	// (--error-pgcontroldata=break|ignore|hang): "ignore"
	// (the default) suspends retention for backoffWindow; "break" fails
	// the pass outright; "hang" suspends without arming the backoff
	// marker, so the very next retention pass retries pg_controldata
	// immediately instead of waiting out the window.
	ErrorPgControldata string

	Runner runner.Runner
	Log logger.Logger
}

// Result reports what one retention pass did, for the caller to log and
// feed into the metrics collector.
type Result struct {
	Paused bool // removal-pause-trigger was present; pass skipped entirely
	Suspended bool // pg_controldata failed or the prior failure's backoff hadn't elapsed
	Boundary string
	Candidates int
	Removed []string
	HookFailed string // non-empty: the victim whose hook failed, ending the batch early
}

// Run executes one retention pass: resolve the boundary, list candidates,
// and remove each one in turn.
func Run(ctx context.Context, opts Options) (Result, error) {
	return run(ctx, opts, false)
}

// DryRun resolves the retention boundary and lists the segments a live
// pass would remove, without touching the filesystem or running the
// pre-removal hook. Result.Removed holds the candidate names, not segments
// actually removed.
func DryRun(ctx context.Context, opts Options) (Result, error) {
	return run(ctx, opts, true)
}

func run(ctx context.Context, opts Options, dryRun bool) (Result, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewNullLogger()
	}
	rn := opts.Runner
	if rn == nil {
		rn = runner.New()
	}
	pauseTrigger := opts.RemovalPauseTrigger
	if pauseTrigger != "" {
		if _, err := os.Stat(pauseTrigger); err == nil {
			log.Debug("retention pass skipped: removal-pause-trigger present", "trigger", pauseTrigger)
			return Result{Paused: true}, nil
		}
	}

	backoffMarker := opts.BackoffMarker
	if backoffMarker == "" {
		backoffMarker = filepath.Join(opts.ArchiveDir, ".retention-backoff")
	}

	boundary := opts.RemoveUnneeded
	if boundary == "" {
		if suspended, remaining := backoffActive(backoffMarker); suspended {
			log.Debug("retention pass suspended after a prior pg_controldata failure", "remaining", remaining)
			return Result{Suspended: true}, nil
		}
		snap, err := pgctl.ControlData(ctx, rn, opts.PgControldataPath, opts.DataDir)
		if err != nil {
			switch opts.ErrorPgControldata {
				case "break":
				return Result{}, fmt.Errorf("retention: pg_controldata failed: %w", err)
				case "hang":
				log.Warn("pg_controldata failed; will retry next pass without backing off", "error", err)
				return Result{Suspended: true}, nil
				default: // "ignore"
				log.Warn("pg_controldata failed; suspending retention for 5 minutes", "error", err)
				touchBackoffMarker(backoffMarker)
				return Result{Suspended: true}, nil
			}
		}
		boundary = snap.RedoSegmentName()
		os.Remove(backoffMarker)
	}

	srcType := opts.SourceCompression
	if srcType == "" {
		srcType = compress.None
	}

	victims, err := candidates(opts.ArchiveDir, boundary, srcType.Ext(), opts.RemoveAtATime)
	if err != nil {
		return Result{}, fmt.Errorf("retention: %w", err)
	}

	result := Result{Boundary: boundary, Candidates: len(victims)}
	if dryRun {
		result.Removed = victims
		return result, nil
	}
	comp := compress.Compressor{Bin: opts.Binary, Run: rn}

	for _, name := range victims {
		path := filepath.Join(opts.ArchiveDir, name)
		if opts.PreRemovalHook != "" {
			if err := runPreRemovalHook(ctx, rn, comp, opts, srcType, name, path); err != nil {
				log.Error("pre-removal hook failed; abandoning remainder of batch", "segment", name, "error", err)
				result.HookFailed = name
				break
			}
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Error("failed to remove archived segment", "segment", name, "error", err)
			result.HookFailed = name
			break
		}
		result.Removed = append(result.Removed, name)
		log.Info("removed archived segment", "segment", name, "boundary", boundary)
	}

	return result, nil
}

// candidates lists archiveDir for segment/.backup names strictly below
// boundary, sorted ascending and capped at removeAtATime. ext is stripped
// before classification/ordering, the same compressed-source
// accommodation backupengine's xlog range collector makes. Timeline
// history files are never candidates, regardless of how they compare to
// boundary.
func candidates(archiveDir, boundary, ext string, removeAtATime int) ([]string, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir %s: %w", archiveDir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		bare := strings.TrimSuffix(name, ext)
		switch walseg.Classify(bare) {
			case walseg.KindInvalid, walseg.KindHistory:
			continue
		}
		if !walseg.Less(bare, boundary) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if removeAtATime > 0 && len(names) > removeAtATime {
		names = names[:removeAtATime]
	}
	return names, nil
}

// runPreRemovalHook stages name (decompressed if SourceCompression is set)
// into tempDir/pg_xlog/<segment>, then execs the hook through a shell with
// that directory as its working directory, requiring exit 0.
func runPreRemovalHook(ctx context.Context, rn runner.Runner, comp compress.Compressor, opts Options, srcType compress.Type, name, archivePath string) error {
	stageDir := filepath.Join(opts.TempDir, "pg_xlog")
	if err := os.MkdirAll(stageDir, 0700); err != nil {
		return fmt.Errorf("mkdir %s: %w", stageDir, err)
	}
	stagedName := strings.TrimSuffix(name, srcType.Ext())
	stagedPath := filepath.Join(stageDir, stagedName)

	if srcType != compress.None {
		if err := comp.DecompressFile(ctx, srcType, archivePath, stagedPath); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	} else {
		if err := copyFile(archivePath, stagedPath); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	defer os.Remove(stagedPath)

	shellPath := opts.ShellPath
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	hookArgv := []string{shellPath, "-c", fmt.Sprintf("cd %s && %s %s", shellQuote(opts.TempDir), opts.PreRemovalHook, shellQuote("pg_xlog/"+stagedName))}
	res := rn.Run(ctx, hookArgv, nil)
	if res.Err != nil || res.ExitCode != 0 {
		return fmt.Errorf("hook %q exited %d: %s: %w", opts.PreRemovalHook, res.ExitCode, res.CombinedOutput(), res.Err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func backoffActive(marker string) (bool, time.Duration) {
	info, err := os.Stat(marker)
	if err != nil {
		return false, 0
	}
	elapsed := time.Since(info.ModTime())
	if elapsed >= backoffWindow {
		return false, 0
	}
	return true, backoffWindow - elapsed
}

func touchBackoffMarker(marker string) {
	f, err := os.Create(marker)
	if err != nil {
		return
	}
	f.Close()
}
