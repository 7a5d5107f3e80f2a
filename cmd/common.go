package cmd

import (
	"os"
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/config"
	"omnipitr/internal/metrics"
	"omnipitr/internal/progress"
)

var collector *metrics.Collector

// binaryFromConfig threads the global --gzip-path/--bzip2-path/--lzma-path
// overrides into the compress.Binary every archive/backup/restore command
// hands its Compressor.
func binaryFromConfig(c *config.Global) compress.Binary {
	return compress.Binary{Gzip: c.GzipPath, Bzip2: c.Bzip2Path, Lzma: c.LzmaPath}
}

// newProgressIndicator builds backup-master/backup-slave's --progress
// indicator. kind selects spinner/dots/bar/none explicitly; left empty, it
// follows the terminal: a line-by-line indicator when stdout is a
// character device, otherwise a silent no-op (archive_command/
// restore_command invocations from postgresql.conf are never a terminal).
func newProgressIndicator(kind string) progress.Indicator {
	if kind == "none" {
		return progress.NewNullIndicator()
	}
	if kind != "" {
		return progress.NewIndicator(true, kind)
	}
	info, err := os.Stdout.Stat()
	interactive := err == nil && info.Mode()&os.ModeCharDevice != 0
	if !interactive {
		return progress.NewNullIndicator()
	}
	return progress.NewIndicator(true, "")
}

func recordOperation(operation, target string, start time.Time, err error) {
	if collector == nil {
		return
	}
	errCount := 0
	if err != nil {
		errCount = 1
	}
	collector.RecordOperation(operation, target, start, 0, err == nil, errCount)
}
