// Package cmd wires the cobra command tree for omnipitr: a package-level
// root command built once by Execute, global flags declared as
// PersistentFlags, per-command flags declared locally in each command's
// own init.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"omnipitr/internal/config"
	"omnipitr/internal/logger"
	"omnipitr/internal/metrics"
)

var (
	cfg *config.Global
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use: "omnipitr",
	Short: "PostgreSQL point-in-time-recovery archiving and restore toolkit",
	Long: `omnipitr drives PostgreSQL's archive_command and restore_command:

	archive run as archive_command, fanning a completed WAL segment
	out to every configured destination
	backup-master take a hot base backup directly against a primary
	backup-slave take a hot base backup from a standby, without talking
	to the primary unless --call-master is given
	restore run as restore_command, delivering a requested segment
	and running WAL retention between polls
	cleanup trigger one retention pass against an archive directory
	outside of the normal restore loop`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		return cfg.Validate()
	},
	SilenceUsage: true,
}

// Execute builds the command tree against cfg/logger/metrics and runs it.
func Execute(ctx context.Context, c *config.Global, l logger.Logger, mc *metrics.Collector) error {
	cfg = c
	log = l
	collector = mc
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "PostgreSQL data directory (required)")
	rootCmd.PersistentFlags().StringVar(&logTemplateFlag, "log", "", "log filename template (strftime escapes as ^x)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&notNiceFlag, "not-nice", false, "do not run compressors/rsync under nice")
	rootCmd.PersistentFlags().StringVar(&nicePathFlag, "nice-path", "nice", "path to the nice(1) binary")
	rootCmd.PersistentFlags().IntVar(&parallelJobsFlag, "parallel-jobs", 0, "parallel delivery/compression jobs (0 = CPU-derived default)")
	rootCmd.PersistentFlags().StringVar(&gzipPathFlag, "gzip-path", "gzip", "path to the gzip binary")
	rootCmd.PersistentFlags().StringVar(&bzip2PathFlag, "bzip2-path", "bzip2", "path to the bzip2 binary")
	rootCmd.PersistentFlags().StringVar(&lzmaPathFlag, "lzma-path", "lzma", "path to the lzma binary")
	rootCmd.PersistentFlags().StringVar(&rsyncPathFlag, "rsync-path", "rsync", "path to the rsync binary")
	rootCmd.PersistentFlags().StringVar(&tarPathFlag, "tar-path", "tar", "path to the tar binary")
	rootCmd.PersistentFlags().StringVar(&shellPathFlag, "shell-path", "/bin/sh", "path to the shell used to run generated pipe scripts and hooks")
	rootCmd.PersistentFlags().StringVar(&pgControldataPathFlag, "pgcontroldata-path", "pg_controldata", "path to the pg_controldata binary")
	rootCmd.PersistentFlags().BoolVar(&allowInsecureSSHFlag, "allow-insecure-ssh", false, "skip host-key verification for ssh:// destinations (insecure)")
}

// Global flag variables, bound in init above and folded into cfg by
// applyGlobalFlags (called from each command's RunE so a command-local
// override set via flag always wins over cfg's env-derived defaults).
var (
	dataDirFlag string
	logTemplateFlag string
	verboseFlag bool
	notNiceFlag bool
	nicePathFlag string
	parallelJobsFlag int
	gzipPathFlag string
	bzip2PathFlag string
	lzmaPathFlag string
	rsyncPathFlag string
	tarPathFlag string
	shellPathFlag string
	pgControldataPathFlag string
	allowInsecureSSHFlag bool
)

// applyGlobalFlags overlays any explicitly-set persistent flag onto cfg,
// preserving cfg's environment-derived defaults for flags left untouched,
// using cobra's own Changed bookkeeping to distinguish "flag passed" from
// "flag left at its zero value".
func applyGlobalFlags(cmd *cobra.Command) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDirFlag
	}
	if flags.Changed("log") {
		cfg.LogTemplate = logTemplateFlag
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verboseFlag
	}
	if flags.Changed("not-nice") {
		cfg.NotNice = notNiceFlag
	}
	if flags.Changed("nice-path") {
		cfg.NicePath = nicePathFlag
	}
	if flags.Changed("parallel-jobs") {
		cfg.ParallelJobs = parallelJobsFlag
	}
	if flags.Changed("gzip-path") {
		cfg.GzipPath = gzipPathFlag
	}
	if flags.Changed("bzip2-path") {
		cfg.Bzip2Path = bzip2PathFlag
	}
	if flags.Changed("lzma-path") {
		cfg.LzmaPath = lzmaPathFlag
	}
	if flags.Changed("rsync-path") {
		cfg.RsyncPath = rsyncPathFlag
	}
	if flags.Changed("tar-path") {
		cfg.TarPath = tarPathFlag
	}
	if flags.Changed("shell-path") {
		cfg.ShellPath = shellPathFlag
	}
	if flags.Changed("pgcontroldata-path") {
		cfg.PgControldataPath = pgControldataPathFlag
	}
	if flags.Changed("allow-insecure-ssh") {
		cfg.AllowInsecureSSH = allowInsecureSSHFlag
	}
}
