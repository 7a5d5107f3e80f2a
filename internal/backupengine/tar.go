package backupengine

import (
	"os"
	"path/filepath"
	"strings"
)

// dataDirExclusions returns the --exclude arguments for the data-directory
// tar, per "Exclusions": pg_log/* and pg_xlog/0* and
// pg_xlog/archive_status/* and postmaster.pid always; recovery.conf only
// on the slave path; and a whole directory (not just its contents) when
// pg_log or pg_xlog is itself a symlink, since tar would otherwise archive
// the symlink's target under the wrong name.
func dataDirExclusions(dataDir string, slave bool) []string {
	excludes := []string{"postmaster.pid"}

	for _, dir := range []string{"pg_log", "pg_xlog"} {
		if isSymlink(filepath.Join(dataDir, dir)) {
			excludes = append(excludes, dir)
			continue
		}
		if dir == "pg_log" {
			excludes = append(excludes, "pg_log/*")
		} else {
			excludes = append(excludes, "pg_xlog/0*", "pg_xlog/archive_status/*")
		}
	}

	if slave {
		excludes = append(excludes, "recovery.conf")
	}
	return excludes
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// BuildDataTarArgv assembles the argv for the data-directory tar: the data
// directory contents as ".", plus one additional top-level entry per
// tablespace with a --transform rule remapping its real path to
// tablespaces/<oid>.
func BuildDataTarArgv(tarPath, dataDir string, tablespaces []Tablespace, slave bool) []string {
	if tarPath == "" {
		tarPath = "tar"
	}
	argv := []string{tarPath, "-cf", "-"}
	for _, excl := range dataDirExclusions(dataDir, slave) {
		argv = append(argv, "--exclude="+excl)
	}
	argv = append(argv, "-C", dataDir, ".")

	for _, ts := range tablespaces {
		target := strings.TrimPrefix(ts.Target, "/")
		argv = append(argv, "--transform", ts.TransformRule(), "-C", "/", target)
	}
	return argv
}

// BuildXlogTarArgv assembles the argv for the xlog tar: every collected
// segment file named relative to sourceDir, plus (when non-empty) the
// backup_label and.backup sentinel the slave path constructs locally in a
// separate directory, so the archive contains flat segment names regardless
// of where those metadata files actually live on disk.
func BuildXlogTarArgv(tarPath, sourceDir string, segments []string, metaDir string, metaFiles []string) []string {
	if tarPath == "" {
		tarPath = "tar"
	}
	argv := []string{tarPath, "-cf", "-", "-C", sourceDir}
	argv = append(argv, segments...)
	if len(metaFiles) > 0 {
		argv = append(argv, "-C", metaDir)
		argv = append(argv, metaFiles...)
	}
	return argv
}

// fileExists is a pure existence check used by the master path's "wait for
// that xlog to exist" step (waitForFile); the caller owns the polling loop
// and its interval.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
