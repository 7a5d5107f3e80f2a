package backupengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"omnipitr/internal/logger"
	"omnipitr/internal/progress"
	"omnipitr/internal/runner"
	"omnipitr/internal/walseg"
)

// RunMaster executes backup-master's protocol against a primary:
// pg_start_backup, tar the data directory, pg_stop_backup, wait for the
// final required xlog segment to appear, tar the xlog directory, deliver
// every artifact, clean up.
func RunMaster(ctx context.Context, opts MasterOptions) error {
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
	if opts.Primary == nil {
		return fmt.Errorf("backupengine: master mode requires a Primary connection")
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
	startRes, err := opts.Primary.StartBackup(ctx, "omnipitr")
	if err != nil {
		return fmt.Errorf("backupengine: pg_start_backup: %w", err)
	}
	startLoc, err := walseg.ParseLocation(startRes.Location)
	if err != nil {
		return fmt.Errorf("backupengine: parse pg_start_backup location %q: %w", startRes.Location, err)
	}
	log.Info("backup started", "location", startLoc.String())

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
	dataTarArgv := BuildDataTarArgv(opts.TarPath, opts.DataDir, tablespaces, false)
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

	stopRes, err := opts.Primary.StopBackup(ctx)
	if err != nil {
		return fmt.Errorf("backupengine: pg_stop_backup: %w", err)
	}
	stopLoc, err := walseg.ParseLocation(stopRes.Location)
	if err != nil {
		return fmt.Errorf("backupengine: parse pg_stop_backup location %q: %w", stopRes.Location, err)
	}
	stopTime := time.Now()
	log.Info("backup stopped", "location", stopLoc.String())

	if err := DeliverArtifacts(ctx, rn, opts.ParallelJobs, opts.RsyncPath, opts.AllowInsecureSSH, opts.Destinations, dataArtifacts, log); err != nil {
		return fmt.Errorf("backupengine: deliver data artifacts: %w", err)
	}

	if opts.SkipXlogs {
		return nil
	}

	timeline := opts.Timeline
	if timeline == 0 {
		timeline = 1
	}
	finalSegment := stopLoc.SegmentName(timeline)
	finalSegmentPath := filepath.Join(opts.XlogsDir, finalSegment)

	interval := pollOrDefault(opts.PollInterval, time.Second)
	log.Debug("waiting for final xlog segment", "segment", finalSegment)
	if err := waitForFile(ctx, finalSegmentPath, interval); err != nil {
		return fmt.Errorf("backupengine: waiting for final xlog segment %s: %w", finalSegment, err)
	}

	startSegment := startLoc.SegmentName(timeline)
	segments, err := collectXlogRange(opts.XlogsDir, startSegment, finalSegment, "")
	if err != nil {
		return fmt.Errorf("backupengine: %w", err)
	}

	xlogDir := filepath.Join(opts.TempDir, "xlog")
	xlogPaths, err := ComputeArtifactPaths(opts.FilenameTemplate, hostname, "xlog", startTime, xlogDir, types, opts.Digests)
	if err != nil {
		return err
	}
	xlogTarArgv := BuildXlogTarArgv(opts.TarPath, opts.XlogsDir, segments, "", nil)
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

	log.Info("backup complete", "stop_time", stopTime)

	if err := os.RemoveAll(opts.TempDir); err != nil {
		log.Warn("failed to remove tempdir", "tempdir", opts.TempDir, "error", err)
	}
	return nil
}

// waitForFile polls for path's existence every interval until it appears
// or ctx is cancelled.
func waitForFile(ctx context.Context, path string, interval time.Duration) error {
	if fileExists(path) {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
			case <-ctx.Done():
			return ctx.Err()
			case <-ticker.C:
			if fileExists(path) {
				return nil
			}
		}
	}
}

// collectXlogRange lists segment names in dir that fall within
// [startSegment, finalSegment] inclusive, sorted lexicographically.
// When ext is non-empty, entries are
// expected to carry that extra suffix (backup-slave's --source=CMP=DIR
// holds segments already compressed by archive-sync, so the bare 24-hex
// classification has to look past the trailing ".gz"/".bz2"/etc. before it
// can recognize and order them).
func collectXlogRange(dir, startSegment, finalSegment, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read xlog dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		bare := strings.TrimSuffix(name, ext)
		if walseg.Classify(bare) == walseg.KindInvalid {
			continue
		}
		if walseg.Less(bare, startSegment) || walseg.Less(finalSegment, bare) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
