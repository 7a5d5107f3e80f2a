package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"omnipitr/internal/archivepipe"
	"omnipitr/internal/destination"
)

var archiveCmd = &cobra.Command{
	Use: "archive SEGMENT",
	Short: "Run as archive_command: fan a completed WAL segment out to every destination",
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

var (
	archiveDstLocal []string
	archiveDstRemote []string
	archiveDstPipe []string
	archiveDstS3 []string
	archiveDstAzure []string
	archiveDstGCS []string
	archiveDstBackup string
	archiveStateDir string
	archiveTempDir string
	archiveForceDataDir bool
)

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringArrayVar(&archiveDstLocal, "dst-local", nil, "[CMP=]path local delivery destination (repeatable)")
	archiveCmd.Flags().StringArrayVar(&archiveDstRemote, "dst-remote", nil, "[CMP=]user@host:path remote delivery destination via rsync, or [CMP=]ssh://user@host/path for the in-process SSH leaf (repeatable)")
	archiveCmd.Flags().StringArrayVar(&archiveDstPipe, "dst-pipe", nil, "[CMP=]prog delivery destination via a piped subprocess (repeatable)")
	archiveCmd.Flags().StringArrayVar(&archiveDstS3, "dst-s3", nil, "[CMP=]s3://bucket/prefix delivery destination (repeatable)")
	archiveCmd.Flags().StringArrayVar(&archiveDstAzure, "dst-azure", nil, "[CMP=]azure://container/prefix delivery destination (repeatable)")
	archiveCmd.Flags().StringArrayVar(&archiveDstGCS, "dst-gcs", nil, "[CMP=]gs://bucket/prefix delivery destination (repeatable)")
	archiveCmd.Flags().StringVar(&archiveDstBackup, "dst-backup", "", "degraded destination whose failures are logged but not fatal")
	archiveCmd.Flags().StringVar(&archiveStateDir, "state-dir", "", "directory holding per-segment state files (required when more than one destination is configured)")
	archiveCmd.Flags().StringVar(&archiveTempDir, "temp-dir", "", "scratch directory for compressed artifacts (default: a subdirectory of --data-dir)")
	archiveCmd.Flags().BoolVar(&archiveForceDataDir, "force-data-dir", false, "allow --data-dir to not look like a PostgreSQL data directory")
}

func runArchive(cmd *cobra.Command, args []string) error {
	applyGlobalFlags(cmd)
	segment := args[0]

	dests, err := parseDestinations(archiveDstLocal, archiveDstRemote, archiveDstPipe, archiveDstS3, archiveDstAzure, archiveDstGCS, archiveDstBackup)
	if err != nil {
		return err
	}

	tempDir := archiveTempDir
	if tempDir == "" {
		tempDir = defaultTempDir(cfg.DataDir, "archive")
	}

	start := time.Now()
	opts := archivepipe.Options{
		DataDir: cfg.DataDir,
		StateDir: archiveStateDir,
		TempDir: tempDir,
		Destinations: dests,
		Binary: binaryFromConfig(cfg),
		RsyncPath: cfg.RsyncPath,
		ParallelJobs: cfg.ResolveParallelJobs(),
		Log: log,
		AllowInsecureSSH: cfg.AllowInsecureSSH,
	}
	err = archivepipe.Run(cmd.Context(), opts, segment)
	recordOperation("archive", segment, start, err)
	return err
}

// parseDestinations builds the ordered destination slice from the seven
// --dst-* flag families. A --dst-remote value using the ssh:// scheme is
// reclassified as Kind SSH by destination.ParseFlag.
func parseDestinations(local, remote, pipe, s3, azure, gcs []string, backup string) ([]destination.Destination, error) {
	var dests []destination.Destination
	for _, v := range local {
		d, err := destination.ParseFlag(destination.Local, v)
		if err != nil {
			return nil, fmt.Errorf("--dst-local=%q: %w", v, err)
		}
		dests = append(dests, d)
	}
	for _, v := range remote {
		d, err := destination.ParseFlag(destination.Remote, v)
		if err != nil {
			return nil, fmt.Errorf("--dst-remote=%q: %w", v, err)
		}
		dests = append(dests, d)
	}
	for _, v := range pipe {
		d, err := destination.ParseFlag(destination.Pipe, v)
		if err != nil {
			return nil, fmt.Errorf("--dst-pipe=%q: %w", v, err)
		}
		dests = append(dests, d)
	}
	for _, v := range s3 {
		d, err := destination.ParseFlag(destination.S3, v)
		if err != nil {
			return nil, fmt.Errorf("--dst-s3=%q: %w", v, err)
		}
		dests = append(dests, d)
	}
	for _, v := range azure {
		d, err := destination.ParseFlag(destination.Azure, v)
		if err != nil {
			return nil, fmt.Errorf("--dst-azure=%q: %w", v, err)
		}
		dests = append(dests, d)
	}
	for _, v := range gcs {
		d, err := destination.ParseFlag(destination.GCS, v)
		if err != nil {
			return nil, fmt.Errorf("--dst-gcs=%q: %w", v, err)
		}
		dests = append(dests, d)
	}
	if backup != "" {
		d, err := destination.ParseBackup(backup)
		if err != nil {
			return nil, fmt.Errorf("--dst-backup=%q: %w", backup, err)
		}
		dests = append(dests, d)
	}
	if len(dests) == 0 {
		return nil, fmt.Errorf("at least one destination flag (--dst-local/--dst-remote/--dst-pipe/--dst-s3/--dst-azure/--dst-gcs/--dst-backup) is required")
	}
	return dests, nil
}

func defaultTempDir(dataDir, sub string) string {
	return dataDir + string(os.PathSeparator) + "omnipitr_tmp_" + sub
}
