package compress

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"omnipitr/internal/runner"
)

type fakeRunner struct {
	argv []string
	output []byte
	err error
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	f.argv = argv
	if f.err != nil {
		return runner.Result{Argv: argv, ExitCode: 1, Err: f.err}
	}
	return runner.Result{Argv: argv, ExitCode: 0, Stdout: f.output}
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{"": None, "none": None, "gzip": Gzip, "bzip2": Bzip2, "lzma": Lzma}
	for prefix, want := range cases {
		got, err := ParseType(prefix)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", prefix, err)
		}
		if got != want {
			t.Errorf("ParseType(%q) = %q, want %q", prefix, got, want)
		}
	}
	if _, err := ParseType("rot13"); err == nil {
		t.Error("expected an error for an unknown compression type")
	}
}

func TestBinaryPathFor(t *testing.T) {
	b := DefaultBinary()
	got, err := b.PathFor(Gzip)
	if err != nil || got != "gzip" {
		t.Errorf("PathFor(Gzip) = (%q, %v)", got, err)
	}
	if _, err := b.PathFor(None); err == nil {
		t.Error("expected an error requesting a program path for None")
	}
}

func TestCompressFileUsesFakeRunnerAndPreservesMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "segment")
	dst := filepath.Join(dir, "segment.gz")
	if err := os.WriteFile(src, []byte("wal bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	rn := &fakeRunner{output: []byte("compressed bytes")}
	c := Compressor{Bin: DefaultBinary(), Run: rn}
	if err := c.CompressFile(context.Background(), Gzip, src, dst); err != nil {
		t.Fatalf("CompressFile: %v", err)
	}
	if rn.argv[0] != "gzip" || rn.argv[1] != "-c" {
		t.Errorf("argv = %v, want [gzip -c]", rn.argv)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "compressed bytes" {
		t.Errorf("dst content = %q", got)
	}

	srcInfo, _ := os.Stat(src)
	dstInfo, _ := os.Stat(dst)
	if !srcInfo.ModTime().Equal(dstInfo.ModTime()) {
		t.Errorf("mtime not preserved: src=%v dst=%v", srcInfo.ModTime(), dstInfo.ModTime())
	}
}

func TestDecompressFileUsesFakeRunner(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "segment.gz")
	dst := filepath.Join(dir, "segment")
	if err := os.WriteFile(src, []byte("gzip bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	rn := &fakeRunner{output: []byte("plain bytes")}
	c := Compressor{Bin: DefaultBinary(), Run: rn}
	if err := c.DecompressFile(context.Background(), Gzip, src, dst); err != nil {
		t.Fatalf("DecompressFile: %v", err)
	}
	if rn.argv[0] != "gzip" || rn.argv[1] != "-dc" {
		t.Errorf("argv = %v, want [gzip -dc]", rn.argv)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "plain bytes" {
		t.Errorf("dst content = %q", got)
	}
}

func TestCompressFileRemovesPartialDstOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "segment")
	dst := filepath.Join(dir, "segment.gz")
	if err := os.WriteFile(src, []byte("wal bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	rn := &fakeRunner{err: context.DeadlineExceeded}
	c := Compressor{Bin: DefaultBinary(), Run: rn}
	if err := c.CompressFile(context.Background(), Gzip, src, dst); err == nil {
		t.Fatal("expected an error when the compressor exits non-zero")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("expected the partial destination file to be removed on failure")
	}
}

func TestCompressFileRejectsNone(t *testing.T) {
	c := Compressor{Bin: DefaultBinary(), Run: &fakeRunner{}}
	if err := c.CompressFile(context.Background(), None, "a", "b"); err == nil {
		t.Error("expected an error compressing with type none")
	}
}
