package backupengine

import (
	"strings"
	"testing"
	"time"
)

func TestValidateTemplate(t *testing.T) {
	if err := ValidateTemplate("__HOSTNAME__-__FILETYPE__-^Y^m^d.tar__CEXT__"); err != nil {
		t.Errorf("expected valid template to pass: %v", err)
	}
	if err := ValidateTemplate("no-filetype-placeholder"); err == nil {
		t.Error("expected error for missing __FILETYPE__")
	}
	if err := ValidateTemplate("dir/__FILETYPE__"); err == nil {
		t.Error("expected error for path separator")
	}
}

func TestRenderFilename(t *testing.T) {
	start := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	got, err := RenderFilename("__HOSTNAME__-__FILETYPE__-^Y^m^d%H.tar__CEXT__", "dbhost", "data", ".gz", start)
	if err != nil {
		t.Fatal(err)
	}
	want := "dbhost-data-2026073112.tar.gz"
	if got != want {
		t.Errorf("RenderFilename = %q, want %q", got, want)
	}
}

func TestRenderFilenameDigestHasNoExt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := RenderFilename("__HOSTNAME__-__FILETYPE__.__CEXT__", "h", "sha256", "", start)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("expected trailing dot with empty cext, got %q", got)
	}
}

func TestDefaultHostnameNeverEmpty(t *testing.T) {
	if DefaultHostname() == "" {
		t.Error("DefaultHostname must never return empty string")
	}
}
