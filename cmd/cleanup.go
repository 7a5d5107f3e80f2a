package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"omnipitr/internal/destination"
	"omnipitr/internal/retention"
)

var cleanupCmd = &cobra.Command{
	Use: "cleanup ARCHIVE_DIR",
	Short: "Run a one-off retention pass against an archive directory outside the restore loop",
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

var (
	cleanupRemoveUnneeded string
	cleanupRemovalPauseTrigger string
	cleanupPreRemovalProcessing string
	cleanupRemoveAtATime int
	cleanupErrorPgControldata string
	cleanupDryRun bool
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVar(&cleanupRemoveUnneeded, "remove-unneeded", "", "explicit retention boundary segment name (default: derived from pg_controldata's REDO location)")
	cleanupCmd.Flags().StringVar(&cleanupRemovalPauseTrigger, "removal-pause-trigger", "", "skip the pass while this file is present")
	cleanupCmd.Flags().StringVar(&cleanupPreRemovalProcessing, "pre-removal-processing", "", "shell command run against each segment immediately before it is removed")
	cleanupCmd.Flags().IntVar(&cleanupRemoveAtATime, "remove-at-a-time", 0, "cap the number of segments removed (0 = unbounded)")
	cleanupCmd.Flags().StringVar(&cleanupErrorPgControldata, "error-pgcontroldata", "ignore", "how to react to a pg_controldata failure: break|ignore|hang")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "list what would be removed without actually removing it")
}

// runCleanup drives the same boundary-based retention pass the restore
// loop runs between polls, but as a standalone operator command: useful
// after changing --remove-unneeded policy or recovering from a stuck
// archive without waiting on a live restore_command invocation.
func runCleanup(cmd *cobra.Command, args []string) error {
	applyGlobalFlags(cmd)
	archiveDir := args[0]

	src, err := destination.ParseFlag(destination.Local, archiveDir)
	if err != nil {
		return fmt.Errorf("ARCHIVE_DIR=%q: %w", archiveDir, err)
	}

	start := time.Now()
	opts := retention.Options{
		ArchiveDir: src.Path,
		DataDir: cfg.DataDir,
		RemoveUnneeded: cleanupRemoveUnneeded,
		RemovalPauseTrigger: cleanupRemovalPauseTrigger,
		RemoveAtATime: cleanupRemoveAtATime,
		PreRemovalHook: cleanupPreRemovalProcessing,
		TempDir: defaultTempDir(cfg.DataDir, "cleanup"),
		SourceCompression: src.Compression,
		Binary: binaryFromConfig(cfg),
		ShellPath: cfg.ShellPath,
		PgControldataPath: cfg.PgControldataPath,
		ErrorPgControldata: cleanupErrorPgControldata,
		Log: log,
	}

	if cleanupDryRun {
		return runCleanupDryRun(cmd, opts)
	}

	res, err := retention.Run(cmd.Context(), opts)
	recordOperation("cleanup", archiveDir, start, err)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	switch {
		case res.Paused:
		log.Info("cleanup skipped: removal-pause-trigger present")
		case res.Suspended:
		log.Info("cleanup suspended after a pg_controldata failure")
		default:
		log.Info("cleanup pass complete", "boundary", res.Boundary, "candidates", res.Candidates, "removed", len(res.Removed))
	}
	if res.HookFailed != "" {
		return fmt.Errorf("cleanup: pre-removal hook or removal failed on segment %s", res.HookFailed)
	}
	return nil
}

// runCleanupDryRun runs retention.DryRun: it reports the boundary
// pg_controldata (or --remove-unneeded) resolves to and logs each segment
// a live pass would remove (capped by --remove-at-a-time), without
// removing anything or running the pre-removal hook.
func runCleanupDryRun(cmd *cobra.Command, opts retention.Options) error {
	log.Info("dry-run: listing candidates only, no segments will be removed", "archive-dir", opts.ArchiveDir)
	res, err := retention.DryRun(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("cleanup --dry-run: %w", err)
	}
	switch {
		case res.Paused:
		log.Info("dry-run: removal-pause-trigger present, a live pass would skip entirely")
		case res.Suspended:
		log.Info("dry-run: pg_controldata failure backoff active, a live pass would be suspended")
		default:
		log.Info("dry-run: resolved boundary", "boundary", res.Boundary, "candidates", res.Candidates)
		for _, name := range res.Removed {
			log.Info("would remove", "segment", name)
		}
	}
	return nil
}
