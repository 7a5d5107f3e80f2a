package destination

import (
	"testing"

	"omnipitr/internal/compress"
)

func TestParseFlagPlain(t *testing.T) {
	d, err := ParseFlag(Local, "/var/lib/wal-archive/")
	if err != nil {
		t.Fatal(err)
	}
	if d.Compression != compress.None || d.Path != "/var/lib/wal-archive/" {
		t.Errorf("got %+v", d)
	}
}

func TestParseFlagCompressed(t *testing.T) {
	d, err := ParseFlag(Local, "gzip=/var/lib/wal-archive/")
	if err != nil {
		t.Fatal(err)
	}
	if d.Compression != compress.Gzip || d.Path != "/var/lib/wal-archive/" {
		t.Errorf("got %+v", d)
	}
}

func TestParseFlagRemoteNoPrefix(t *testing.T) {
	d, err := ParseFlag(Remote, "user@host:/absolute/path")
	if err != nil {
		t.Fatal(err)
	}
	if d.Compression != compress.None || d.Path != "user@host:/absolute/path" {
		t.Errorf("got %+v", d)
	}
}

func TestParseFlagCloud(t *testing.T) {
	d, err := ParseFlag(S3, "s3://bucket/prefix")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Kind.IsCloud() {
		t.Error("expected s3 destination to be a cloud kind")
	}
	if d.Path != "s3://bucket/prefix" {
		t.Errorf("got %+v", d)
	}
}

func TestParseBackup(t *testing.T) {
	d, err := ParseBackup("/abs/path")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Backup {
		t.Error("expected Backup=true")
	}
}

func TestParseBackupEmptyErrors(t *testing.T) {
	if _, err := ParseBackup(""); err == nil {
		t.Error("expected error for empty path")
	}
}
