package backupengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"omnipitr/internal/logger"
	"omnipitr/internal/metadata"
	"omnipitr/internal/pgctl"
	"omnipitr/internal/progress"
	"omnipitr/internal/runner"
	"omnipitr/internal/walseg"
)

// RunSlave executes backup-slave's protocol against a hot standby
//: snapshot pg_controldata, tar the data directory, poll
// pg_controldata until the checkpoint advances (or, with CallMaster,
// coordinate with the primary directly), synthesize backup_label and the
//.backup sentinel, tar the collected xlog segments plus that metadata,
// deliver every artifact, clean up.
func RunSlave(ctx context.Context, opts SlaveOptions) error {
	log := opts.Log
	if log == nil {
		log = logger.NewNullLogger()
	}
	rn := opts.Runner
	if rn == nil {
		rn = runner.New()
	}
	prog := opts.Progress
	if prog == nil {
		prog = progress.NewNullIndicator()
	}
	defer prog.Stop()
	if opts.CallMaster && opts.Primary == nil {
		return fmt.Errorf("backupengine: --call-master requires a Primary connection")
	}
	if err := ValidateTemplate(opts.FilenameTemplate); err != nil {
		return err
	}
	hostname := opts.Hostname
	if hostname == "" {
		hostname = DefaultHostname()
	}
	if err := os.MkdirAll(opts.TempDir, 0700); err != nil {
		return fmt.Errorf("backupengine: mkdir %s: %w", opts.TempDir, err)
	}

	startTime := time.Now()
	initial, err := pgctl.ControlData(ctx, rn, opts.PgControldataPath, opts.DataDir)
	if err != nil {
		return fmt.Errorf("backupengine: initial pg_controldata snapshot: %w", err)
	}
	log.Info("slave backup started", "redo_location", initial.RedoLocation.String())

	var masterStartLoc walseg.Location
	if opts.CallMaster {
		startRes, err := opts.Primary.StartBackup(ctx, "omnipitr")
		if err != nil {
			return fmt.Errorf("backupengine: pg_start_backup on primary: %w", err)
		}
		masterStartLoc, err = walseg.ParseLocation(startRes.Location)
		if err != nil {
			return fmt.Errorf("backupengine: parse primary start location %q: %w", startRes.Location, err)
		}
	}

	tablespaces, err := DiscoverTablespaces(opts.DataDir)
	if err != nil {
		return fmt.Errorf("backupengine: %w", err)
	}

	types := requiredArtifactTypes(opts.Destinations)
	dataDir := filepath.Join(opts.TempDir, "data")
	dataPaths, err := ComputeArtifactPaths(opts.FilenameTemplate, hostname, "data", startTime, dataDir, types, opts.Digests)
	if err != nil {
		return err
	}
	dataTarArgv := BuildDataTarArgv(opts.TarPath, opts.DataDir, tablespaces, true)
	dataRoot, dataArtifacts, err := BuildStreamTree(dataTarArgv, types, opts.Binary, opts.Digests, namerFromPaths(dataPaths))
	if err != nil {
		return err
	}
	log.Debug("streaming data directory tar", "destinations", len(opts.Destinations))
	prog.Start("streaming data directory")
	if err := RunStreamTree(ctx, rn, opts.ShellPath, dataRoot, dataDir); err != nil {
		prog.Fail("data directory tar failed")
		return fmt.Errorf("backupengine: data tar: %w", err)
	}
	prog.Complete("data directory streamed")

	var labelText string
	var finalSegmentTimeline uint32
	var finalCheckpointLoc walseg.Location

	if opts.CallMaster {
		stopRes, err := opts.Primary.StopBackup(ctx)
		if err != nil {
			return fmt.Errorf("backupengine: pg_stop_backup on primary: %w", err)
		}
		stopLoc, err := walseg.ParseLocation(stopRes.Location)
		if err != nil {
			return fmt.Errorf("backupengine: parse primary stop location %q: %w", stopRes.Location, err)
		}
		if err := waitForCheckpointPast(ctx, rn, opts.PgControldataPath, opts.DataDir, stopLoc, pollOrDefault(opts.PollInterval, 5*time.Second)); err != nil {
			return fmt.Errorf("backupengine: waiting for standby to catch up to primary's stop location: %w", err)
		}
		labelText = stopRes.BackupLabel
		if labelText == "" {
			// StopBackup supplied no backup_label (the pgx-backed Primary
			// never does), so fetch it from the primary explicitly.
			raw, err := opts.Primary.ReadFile(ctx, "backup_label", 0, -1)
			if err != nil {
				return fmt.Errorf("backupengine: retrieve backup_label from primary: %w", err)
			}
			labelText = string(raw)
		}
		finalSegmentTimeline = initial.RedoTimeline
	} else {
		final, err := pollCheckpointAdvance(ctx, rn, opts.PgControldataPath, opts.DataDir, initial, pollOrDefault(opts.PollInterval, 5*time.Second))
		if err != nil {
			return fmt.Errorf("backupengine: polling for checkpoint advance: %w", err)
		}
		stopTime := time.Now()
		labelText = metadata.FromControl(initial.ToControlSnapshot(), final.ToControlSnapshot(), startTime, stopTime).Render()
		finalSegmentTimeline = final.RedoTimeline
		finalCheckpointLoc = final.CheckpointLocation
		log.Info("checkpoint advanced", "checkpoint_location", final.CheckpointLocation.String())
	}

	if err := DeliverArtifacts(ctx, rn, opts.ParallelJobs, opts.RsyncPath, opts.AllowInsecureSSH, opts.Destinations, dataArtifacts, log); err != nil {
		return fmt.Errorf("backupengine: deliver data artifacts: %w", err)
	}

	var segments []string
	var metaDir string
	var metaFiles []string
	if !opts.SkipXlogs {
		startSegment := initial.RedoLocation.SegmentName(initial.RedoTimeline)
		var finalSegment string
		if opts.CallMaster {
			finalSegment = masterStartLoc.SegmentName(finalSegmentTimeline)
		} else {
			finalSegment = finalCheckpointLoc.SegmentName(finalSegmentTimeline)
		}
		segments, err = collectXlogRange(opts.SourceDir, startSegment, finalSegment, opts.SourceCompression.Ext())
		if err != nil {
			return fmt.Errorf("backupengine: %w", err)
		}

		metaDir = filepath.Join(opts.TempDir, "meta")
		if err := os.MkdirAll(metaDir, 0700); err != nil {
			return fmt.Errorf("backupengine: mkdir %s: %w", metaDir, err)
		}
		if err := os.WriteFile(filepath.Join(metaDir, "backup_label"), []byte(labelText), 0600); err != nil {
			return fmt.Errorf("backupengine: write backup_label: %w", err)
		}
		sentinelName := finalSegment + ".00000028.backup"
		if err := os.WriteFile(filepath.Join(metaDir, sentinelName), []byte(labelText), 0600); err != nil {
			return fmt.Errorf("backupengine: write %s: %w", sentinelName, err)
		}
		metaFiles = []string{"backup_label", sentinelName}
	}

	if !opts.SkipXlogs {
		xlogDir := filepath.Join(opts.TempDir, "xlog")
		xlogPaths, err := ComputeArtifactPaths(opts.FilenameTemplate, hostname, "xlog", startTime, xlogDir, types, opts.Digests)
		if err != nil {
			return err
		}
		xlogTarArgv := BuildXlogTarArgv(opts.TarPath, opts.SourceDir, segments, metaDir, metaFiles)
		xlogRoot, xlogArtifacts, err := BuildStreamTree(xlogTarArgv, types, opts.Binary, opts.Digests, namerFromPaths(xlogPaths))
		if err != nil {
			return err
		}
		log.Debug("streaming xlog tar", "segments", len(segments))
		prog.Start("streaming xlog tar")
		if err := RunStreamTree(ctx, rn, opts.ShellPath, xlogRoot, xlogDir); err != nil {
			prog.Fail("xlog tar failed")
			return fmt.Errorf("backupengine: xlog tar: %w", err)
		}
		prog.Complete("xlog tar streamed")
		if err := DeliverArtifacts(ctx, rn, opts.ParallelJobs, opts.RsyncPath, opts.AllowInsecureSSH, opts.Destinations, xlogArtifacts, log); err != nil {
			return fmt.Errorf("backupengine: deliver xlog artifacts: %w", err)
		}
	}

	log.Info("slave backup complete")
	if err := os.RemoveAll(opts.TempDir); err != nil {
		log.Warn("failed to remove tempdir", "tempdir", opts.TempDir, "error", err)
	}
	return nil
}

// pollCheckpointAdvance re-snapshots pg_controldata every interval until
// Latest checkpoint location advances past initial's.
func pollCheckpointAdvance(ctx context.Context, rn runner.Runner, pgControldataPath, dataDir string, initial pgctl.Snapshot, interval time.Duration) (pgctl.Snapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
			case <-ctx.Done():
			return pgctl.Snapshot{}, ctx.Err()
			case <-ticker.C:
			final, err := pgctl.ControlData(ctx, rn, pgControldataPath, dataDir)
			if err != nil {
				return pgctl.Snapshot{}, err
			}
			if walseg.LocationLess(initial.CheckpointLocation, final.CheckpointLocation) {
				return final, nil
			}
		}
	}
}

// waitForCheckpointPast polls pg_controldata until the standby's
// checkpoint location has passed target: the --call-master path's local
// catch-up wait for the primary's stop location.
func waitForCheckpointPast(ctx context.Context, rn runner.Runner, pgControldataPath, dataDir string, target walseg.Location, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := pgctl.ControlData(ctx, rn, pgControldataPath, dataDir)
		if err != nil {
			return err
		}
		if !walseg.LocationLess(snap.CheckpointLocation, target) {
			return nil
		}
		select {
			case <-ctx.Done():
			return ctx.Err()
			case <-ticker.C:
		}
	}
}
