package backupengine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverTablespacesResolvesSymlinks(t *testing.T) {
	dataDir := t.TempDir()
	realTarget := filepath.Join(t.TempDir(), "ts1")
	if err := os.MkdirAll(realTarget, 0700); err != nil {
		t.Fatal(err)
	}
	tblspc := filepath.Join(dataDir, "pg_tblspc")
	if err := os.MkdirAll(tblspc, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realTarget, filepath.Join(tblspc, "16400")); err != nil {
		t.Fatal(err)
	}

	got, err := DiscoverTablespaces(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 tablespace, got %d", len(got))
	}
	if got[0].OID != "16400" {
		t.Errorf("OID = %q, want 16400", got[0].OID)
	}
	resolved, _ := filepath.EvalSymlinks(realTarget)
	if got[0].Target != resolved {
		t.Errorf("Target = %q, want %q", got[0].Target, resolved)
	}
}

func TestDiscoverTablespacesNoDirReturnsNil(t *testing.T) {
	dataDir := t.TempDir()
	got, err := DiscoverTablespaces(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestTransformRule(t *testing.T) {
	ts := Tablespace{OID: "16400", Target: "/mnt/fast/pg_ts"}
	want := "s#^mnt/fast/pg_ts#tablespaces/16400#"
	if got := ts.TransformRule(); got != want {
		t.Errorf("TransformRule = %q, want %q", got, want)
	}
}
