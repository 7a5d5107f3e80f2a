package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"omnipitr/internal/backupengine"
	"omnipitr/internal/destination"
	"omnipitr/internal/digest"
	"omnipitr/internal/pgctl"
)

var backupSlaveCmd = &cobra.Command{
	Use: "backup-slave",
	Short: "Take a hot base backup from a standby",
	RunE: runBackupSlave,
}

var (
	bsDstLocal []string
	bsDstRemote []string
	bsDstPipe []string
	bsDstS3 []string
	bsDstAzure []string
	bsDstGCS []string
	bsDstBackup string
	bsTempDir string
	bsSource string
	bsRemovalPauseTrigger string
	bsCallMaster bool
	bsDatabase string
	bsHost string
	bsPort int
	bsUsername string
	bsFilenameTemplate string
	bsDigests string
	bsSkipXlogs bool
	bsProgress string
)

func init() {
	rootCmd.AddCommand(backupSlaveCmd)
	backupSlaveCmd.Flags().StringArrayVar(&bsDstLocal, "dst-local", nil, "[CMP=]path local delivery destination (repeatable)")
	backupSlaveCmd.Flags().StringArrayVar(&bsDstRemote, "dst-remote", nil, "[CMP=]user@host:path remote delivery destination via rsync, or [CMP=]ssh://user@host/path for the in-process SSH leaf (repeatable)")
	backupSlaveCmd.Flags().StringArrayVar(&bsDstPipe, "dst-pipe", nil, "[CMP=]prog delivery destination via a piped subprocess (repeatable)")
	backupSlaveCmd.Flags().StringArrayVar(&bsDstS3, "dst-s3", nil, "[CMP=]s3://bucket/prefix delivery destination (repeatable)")
	backupSlaveCmd.Flags().StringArrayVar(&bsDstAzure, "dst-azure", nil, "[CMP=]azure://container/prefix delivery destination (repeatable)")
	backupSlaveCmd.Flags().StringArrayVar(&bsDstGCS, "dst-gcs", nil, "[CMP=]gs://bucket/prefix delivery destination (repeatable)")
	backupSlaveCmd.Flags().StringVar(&bsDstBackup, "dst-backup", "", "degraded destination whose failures are logged but not fatal")
	backupSlaveCmd.Flags().StringVar(&bsTempDir, "temp-dir", "", "scratch directory for tar streaming (default: a subdirectory of --data-dir)")
	backupSlaveCmd.Flags().StringVar(&bsSource, "source", "", "[CMP=]DIR holding the WAL archive to pull xlog segments from (required)")
	backupSlaveCmd.Flags().StringVar(&bsRemovalPauseTrigger, "removal-pause-trigger", "", "trigger file created for the duration of the backup, consulted by restore's retention pass")
	backupSlaveCmd.Flags().BoolVar(&bsCallMaster, "call-master", false, "coordinate with the primary directly instead of polling pg_controldata locally")
	backupSlaveCmd.Flags().StringVar(&bsDatabase, "database", "postgres", "database to connect to when --call-master is set")
	backupSlaveCmd.Flags().StringVar(&bsHost, "host", "localhost", "primary host, used when --call-master is set")
	backupSlaveCmd.Flags().IntVar(&bsPort, "port", 5432, "primary port, used when --call-master is set")
	backupSlaveCmd.Flags().StringVar(&bsUsername, "username", "", "connecting user, used when --call-master is set")
	backupSlaveCmd.Flags().StringVar(&bsFilenameTemplate, "filename-template", "__HOSTNAME__-__FILETYPE__.tar__CEXT__", "artifact filename template")
	backupSlaveCmd.Flags().StringVar(&bsDigests, "digest", "", "comma-separated digest algorithms to compute per artifact (md5,sha1,sha256,sha512)")
	backupSlaveCmd.Flags().BoolVar(&bsSkipXlogs, "skip-xlogs", false, "skip collecting and delivering the WAL segments spanning the backup")
	backupSlaveCmd.Flags().StringVar(&bsProgress, "progress", "", "progress indicator for an interactive terminal: spinner|dots|bar|none (default: line-by-line)")
}

func runBackupSlave(cmd *cobra.Command, args []string) error {
	applyGlobalFlags(cmd)

	dests, err := parseDestinations(bsDstLocal, bsDstRemote, bsDstPipe, bsDstS3, bsDstAzure, bsDstGCS, bsDstBackup)
	if err != nil {
		return err
	}
	digests, err := digest.ParseList(bsDigests)
	if err != nil {
		return fmt.Errorf("--digest: %w", err)
	}
	if bsSource == "" {
		return fmt.Errorf("--source is required")
	}
	source, err := destination.ParseFlag(destination.Local, bsSource)
	if err != nil {
		return fmt.Errorf("--source=%q: %w", bsSource, err)
	}

	var primary pgctl.Primary
	if bsCallMaster {
		connString := fmt.Sprintf("host=%s port=%d dbname=%s", bsHost, bsPort, bsDatabase)
		if bsUsername != "" {
			connString += fmt.Sprintf(" user=%s", bsUsername)
		}
		primary, err = pgctl.DialPrimary(cmd.Context(), connString)
		if err != nil {
			return fmt.Errorf("backup-slave: %w", err)
		}
		defer primary.Close()
	}

	tempDir := bsTempDir
	if tempDir == "" {
		tempDir = defaultTempDir(cfg.DataDir, "backup_slave")
	}

	start := time.Now()
	opts := backupengine.SlaveOptions{
		Options: backupengine.Options{
			DataDir: cfg.DataDir,
			TempDir: tempDir,
			Destinations: dests,
			Binary: binaryFromConfig(cfg),
			Digests: digests,
			SkipXlogs: bsSkipXlogs,
			FilenameTemplate: bsFilenameTemplate,
			TarPath: cfg.TarPath,
			ShellPath: cfg.ShellPath,
			RsyncPath: cfg.RsyncPath,
			PgControldataPath: cfg.PgControldataPath,
			ParallelJobs: cfg.ResolveParallelJobs(),
			Log: log,
			Progress: newProgressIndicator(bsProgress),
			AllowInsecureSSH: cfg.AllowInsecureSSH,
		},
		SourceDir: source.Path,
		SourceCompression: source.Compression,
		CallMaster: bsCallMaster,
		Primary: primary,
	}
	err = backupengine.RunSlave(cmd.Context(), opts)
	recordOperation("backup_slave", bsFilenameTemplate, start, err)
	return err
}
