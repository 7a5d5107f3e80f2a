package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"omnipitr/internal/destination"
	"omnipitr/internal/restorectl"
)

var restoreCmd = &cobra.Command{
	Use: "restore SEGMENT DESTINATION",
	Short: "Run as restore_command: deliver a requested WAL segment and run retention between polls",
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

var (
	restoreSource string
	restoreRecoveryDelay time.Duration
	restoreFinishTrigger string
	restoreRemovalPauseTrigger string
	restorePreRemovalProcessing string
	restoreRemoveAtATime int
	restoreRemoveUnneeded string
	restoreRemoveBefore bool
	restoreStreamingReplication bool
	restoreErrorPgControldata string
)

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringVar(&restoreSource, "source", "", "[CMP=]DIR holding the WAL archive (required)")
	restoreCmd.Flags().DurationVar(&restoreRecoveryDelay, "recovery-delay", 0, "hold a segment back until this long after its archival mtime")
	restoreCmd.Flags().StringVar(&restoreFinishTrigger, "finish-trigger", "", "trigger file: absent means keep waiting, \"NOW\" means stop immediately, any other content (including none) means stop once the current segment is unavailable")
	restoreCmd.Flags().StringVar(&restoreRemovalPauseTrigger, "removal-pause-trigger", "", "skip retention passes while this file is present")
	restoreCmd.Flags().StringVar(&restorePreRemovalProcessing, "pre-removal-processing", "", "shell command run against each segment immediately before it is removed")
	restoreCmd.Flags().IntVar(&restoreRemoveAtATime, "remove-at-a-time", 0, "cap the number of segments removed per retention pass (0 = unbounded)")
	restoreCmd.Flags().StringVar(&restoreRemoveUnneeded, "remove-unneeded", "", "explicit retention boundary segment name (default: derived from pg_controldata's REDO location)")
	restoreCmd.Flags().BoolVar(&restoreRemoveBefore, "remove-before", false, "run one retention pass before waiting for the requested segment")
	restoreCmd.Flags().BoolVar(&restoreStreamingReplication, "streaming-replication", false, "defer to streaming replication instead of waiting when a segment is absent")
	restoreCmd.Flags().StringVar(&restoreErrorPgControldata, "error-pgcontroldata", "ignore", "how to react to a pg_controldata failure during retention: break|ignore|hang")
}

func runRestore(cmd *cobra.Command, args []string) error {
	applyGlobalFlags(cmd)
	segment, dest := args[0], args[1]

	if restoreSource == "" {
		return fmt.Errorf("--source is required")
	}
	source, err := destination.ParseFlag(destination.Local, restoreSource)
	if err != nil {
		return fmt.Errorf("--source=%q: %w", restoreSource, err)
	}

	immediate := watchImmediateFinishSignal(cmd.Context())

	start := time.Now()
	opts := restorectl.Options{
		SourceDir: source.Path,
		SourceCompression: source.Compression,
		DataDir: cfg.DataDir,
		RecoveryDelay: restoreRecoveryDelay,
		FinishTrigger: restoreFinishTrigger,
		RemovalPauseTrigger: restoreRemovalPauseTrigger,
		PreRemovalHook: restorePreRemovalProcessing,
		RemoveAtATime: restoreRemoveAtATime,
		RemoveUnneeded: restoreRemoveUnneeded,
		RemoveBefore: restoreRemoveBefore,
		StreamingReplication: restoreStreamingReplication,
		ErrorPgControldata: restoreErrorPgControldata,
		TempDir: defaultTempDir(cfg.DataDir, "restore"),
		Binary: binaryFromConfig(cfg),
		ShellPath: cfg.ShellPath,
		PgControldataPath: cfg.PgControldataPath,
		ImmediateFinish: immediate,
		Log: log,
	}

	outcome, err := restorectl.Run(cmd.Context(), opts, segment, dest)
	recordOperation("restore", segment, start, err)

	switch outcome {
		case restorectl.Delivered:
		return nil
		case restorectl.HistoryAbsent:
		// Exit 1 without a fatal log line: PostgreSQL probes for.history
		// files routinely when no such timeline branch exists.
		cmd.SilenceErrors = true
		os.Exit(1)
		return nil
		default:
		if err != nil {
			log.Error("restore failed", "segment", segment, "error", err)
		}
		return err
	}
}

// watchImmediateFinishSignal arms SIGUSR1 as the restore worker's
// immediate-finish flag and returns a
// predicate restorectl.Run polls on every loop iteration.
func watchImmediateFinishSignal(ctx interface{ Done() <-chan struct{} }) func() bool {
	var flag atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		select {
			case <-sigCh:
			flag.Store(true)
			case <-ctx.Done():
			signal.Stop(sigCh)
		}
	}()
	return flag.Load
}
