package backupengine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildDataTarArgvExcludesAndTransforms(t *testing.T) {
	dataDir := t.TempDir()
	tablespaces := []Tablespace{{OID: "16400", Target: "/mnt/fast/ts1"}}

	argv := BuildDataTarArgv("tar", dataDir, tablespaces, false)
	joined := strings.Join(argv, " ")

	for _, want := range []string{"--exclude=postmaster.pid", "--exclude=pg_log/*", "--exclude=pg_xlog/0*", "--exclude=pg_xlog/archive_status/*"} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q: %v", want, argv)
		}
	}
	if strings.Contains(joined, "recovery.conf") {
		t.Errorf("master-mode tar should not exclude recovery.conf: %v", argv)
	}
	if !strings.Contains(joined, "tablespaces/16400") {
		t.Errorf("argv missing tablespace transform: %v", argv)
	}
}

func TestBuildDataTarArgvSlaveExcludesRecoveryConf(t *testing.T) {
	argv := BuildDataTarArgv("tar", t.TempDir(), nil, true)
	if !strings.Contains(strings.Join(argv, " "), "--exclude=recovery.conf") {
		t.Errorf("slave-mode tar should exclude recovery.conf: %v", argv)
	}
}

func TestBuildDataTarArgvSymlinkedPgXlogExcludesWholeDir(t *testing.T) {
	dataDir := t.TempDir()
	target := t.TempDir()
	if err := os.Symlink(target, filepath.Join(dataDir, "pg_xlog")); err != nil {
		t.Fatal(err)
	}
	argv := BuildDataTarArgv("tar", dataDir, nil, false)
	found := false
	for _, a := range argv {
		if a == "--exclude=pg_xlog" {
			found = true
		}
		if a == "--exclude=pg_xlog/0*" {
			t.Errorf("symlinked pg_xlog should not also get the content-glob exclude: %v", argv)
		}
	}
	if !found {
		t.Errorf("expected whole-directory exclude for symlinked pg_xlog: %v", argv)
	}
}

func TestBuildXlogTarArgvWithMeta(t *testing.T) {
	argv := BuildXlogTarArgv("tar", "/wal", []string{"000000010000000000000001"}, "/meta", []string{"backup_label", "sentinel.backup"})
	want := []string{"tar", "-cf", "-", "-C", "/wal", "000000010000000000000001", "-C", "/meta", "backup_label", "sentinel.backup"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestBuildXlogTarArgvWithoutMeta(t *testing.T) {
	argv := BuildXlogTarArgv("", "/wal", []string{"a", "b"}, "", nil)
	want := []string{"tar", "-cf", "-", "-C", "/wal", "a", "b"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "present")
	if err := os.WriteFile(f, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if !fileExists(f) {
		t.Error("expected existing file to report true")
	}
	if fileExists(filepath.Join(dir, "missing")) {
		t.Error("expected missing file to report false")
	}
}
