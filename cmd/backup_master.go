package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"omnipitr/internal/backupengine"
	"omnipitr/internal/digest"
	"omnipitr/internal/pgctl"
	"omnipitr/internal/progress"
)

var backupMasterCmd = &cobra.Command{
	Use: "backup-master",
	Short: "Take a hot base backup directly against a primary",
	RunE: runBackupMaster,
}

var (
	bmDstLocal []string
	bmDstRemote []string
	bmDstPipe []string
	bmDstS3 []string
	bmDstAzure []string
	bmDstGCS []string
	bmDstBackup string
	bmTempDir string
	bmXlogsDir string
	bmDatabase string
	bmHost string
	bmPort int
	bmUsername string
	bmFilenameTemplate string
	bmDigests string
	bmSkipXlogs bool
	bmProgress string
)

func init() {
	rootCmd.AddCommand(backupMasterCmd)
	backupMasterCmd.Flags().StringArrayVar(&bmDstLocal, "dst-local", nil, "[CMP=]path local delivery destination (repeatable)")
	backupMasterCmd.Flags().StringArrayVar(&bmDstRemote, "dst-remote", nil, "[CMP=]user@host:path remote delivery destination via rsync, or [CMP=]ssh://user@host/path for the in-process SSH leaf (repeatable)")
	backupMasterCmd.Flags().StringArrayVar(&bmDstPipe, "dst-pipe", nil, "[CMP=]prog delivery destination via a piped subprocess (repeatable)")
	backupMasterCmd.Flags().StringArrayVar(&bmDstS3, "dst-s3", nil, "[CMP=]s3://bucket/prefix delivery destination (repeatable)")
	backupMasterCmd.Flags().StringArrayVar(&bmDstAzure, "dst-azure", nil, "[CMP=]azure://container/prefix delivery destination (repeatable)")
	backupMasterCmd.Flags().StringArrayVar(&bmDstGCS, "dst-gcs", nil, "[CMP=]gs://bucket/prefix delivery destination (repeatable)")
	backupMasterCmd.Flags().StringVar(&bmDstBackup, "dst-backup", "", "degraded destination whose failures are logged but not fatal")
	backupMasterCmd.Flags().StringVar(&bmTempDir, "temp-dir", "", "scratch directory for tar streaming (default: a subdirectory of --data-dir)")
	backupMasterCmd.Flags().StringVar(&bmXlogsDir, "xlogs", "", "directory PostgreSQL archives WAL segments into (required)")
	backupMasterCmd.Flags().StringVar(&bmDatabase, "database", "postgres", "database to connect to for pg_start_backup/pg_stop_backup")
	backupMasterCmd.Flags().StringVar(&bmHost, "host", "localhost", "primary host")
	backupMasterCmd.Flags().IntVar(&bmPort, "port", 5432, "primary port")
	backupMasterCmd.Flags().StringVar(&bmUsername, "username", "", "connecting user")
	backupMasterCmd.Flags().StringVar(&bmFilenameTemplate, "filename-template", "__HOSTNAME__-__FILETYPE__.tar__CEXT__", "artifact filename template")
	backupMasterCmd.Flags().StringVar(&bmDigests, "digest", "", "comma-separated digest algorithms to compute per artifact (md5,sha1,sha256,sha512)")
	backupMasterCmd.Flags().BoolVar(&bmSkipXlogs, "skip-xlogs", false, "skip collecting and delivering the WAL segments spanning the backup")
	backupMasterCmd.Flags().StringVar(&bmProgress, "progress", "", "progress indicator for an interactive terminal: spinner|dots|bar|none (default: line-by-line)")
}

func runBackupMaster(cmd *cobra.Command, args []string) error {
	applyGlobalFlags(cmd)

	dests, err := parseDestinations(bmDstLocal, bmDstRemote, bmDstPipe, bmDstS3, bmDstAzure, bmDstGCS, bmDstBackup)
	if err != nil {
		return err
	}
	digests, err := digest.ParseList(bmDigests)
	if err != nil {
		return fmt.Errorf("--digest: %w", err)
	}
	if bmXlogsDir == "" && !bmSkipXlogs {
		return fmt.Errorf("--xlogs is required unless --skip-xlogs is set")
	}

	connString := fmt.Sprintf("host=%s port=%d dbname=%s", bmHost, bmPort, bmDatabase)
	if bmUsername != "" {
		connString += fmt.Sprintf(" user=%s", bmUsername)
	}
	primary, err := pgctl.DialPrimary(cmd.Context(), connString)
	if err != nil {
		return fmt.Errorf("backup-master: %w", err)
	}
	defer primary.Close()

	tempDir := bmTempDir
	if tempDir == "" {
		tempDir = defaultTempDir(cfg.DataDir, "backup_master")
	}

	start := time.Now()
	opts := backupengine.MasterOptions{
		Options: backupengine.Options{
			DataDir: cfg.DataDir,
			TempDir: tempDir,
			Destinations: dests,
			Binary: binaryFromConfig(cfg),
			Digests: digests,
			SkipXlogs: bmSkipXlogs,
			FilenameTemplate: bmFilenameTemplate,
			TarPath: cfg.TarPath,
			ShellPath: cfg.ShellPath,
			RsyncPath: cfg.RsyncPath,
			PgControldataPath: cfg.PgControldataPath,
			ParallelJobs: cfg.ResolveParallelJobs(),
			Log: log,
			Progress: newProgressIndicator(bmProgress),
			AllowInsecureSSH: cfg.AllowInsecureSSH,
		},
		XlogsDir: bmXlogsDir,
		Primary: primary,
	}
	err = backupengine.RunMaster(cmd.Context(), opts)
	recordOperation("backup_master", bmFilenameTemplate, start, err)
	return err
}
