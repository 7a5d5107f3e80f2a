// Package backupengine implements the backup-master/backup-slave common
// protocol: pg_start_backup/pg_stop_backup (or a pg_controldata-based
// simulation on a hot standby), a tar of the data directory and its
// tablespaces teed through compressors and digesters to every declared
// destination, and the matching xlog tar.
package backupengine

import (
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/destination"
	"omnipitr/internal/digest"
	"omnipitr/internal/logger"
	"omnipitr/internal/pgctl"
	"omnipitr/internal/progress"
	"omnipitr/internal/runner"
)

// Options carries the fields common to both backup modes.
type Options struct {
	DataDir string
	TempDir string
	Destinations []destination.Destination
	Binary compress.Binary
	Digests []digest.Algorithm
	SkipXlogs bool

	FilenameTemplate string
	Hostname string

	TarPath string
	ShellPath string
	RsyncPath string
	PgControldataPath string

	ParallelJobs int
	Log logger.Logger
	// Runner executes every subprocess this package needs (tar-through-shell
	// script, pg_controldata, rsync). Defaults to the real os/exec-backed
	// runner; tests inject a fake.
	Runner runner.Runner
	// Progress reports the data/xlog tar phases to an operator watching an
	// interactive terminal. Defaults to progress.NewNullIndicator(), a
	// silent no-op, so tests and non-interactive invocations never print.
	Progress progress.Indicator
	// AllowInsecureSSH skips host-key verification for ssh:// destinations.
	AllowInsecureSSH bool
}

// MasterOptions is backup-master's configuration: it talks to the primary
// directly via pgctl.Primary and watches the xlog directory PostgreSQL
// archives into (--xlogs).
type MasterOptions struct {
	Options
	XlogsDir string
	Primary pgctl.Primary
	PollInterval time.Duration // defaults to 1s; how often to check for the final xlog segment
	// Timeline is the primary's current timeline ID, used to compute xlog
	// segment names from the start/stop WAL locations. Defaults to 1 (a
	// fresh cluster's initial timeline) when unset; callers tracking
	// timeline history should supply it explicitly.
	Timeline uint32
}

// SlaveOptions is backup-slave's configuration: by default it only reads
// pg_controldata locally; with CallMaster it additionally talks to the
// primary to retrieve backup_label.
type SlaveOptions struct {
	Options
	SourceDir string
	SourceCompression compress.Type
	CallMaster bool
	Primary pgctl.Primary // required when CallMaster is set
	PollInterval time.Duration // defaults to 5s between pg_controldata polls
}

func pollOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
