// Package compress models the compression type enum and runs the
// external compressor programs it binds to. omnipitr never implements
// gzip/bzip2/lzma itself — it orchestrates the system binaries.
package compress

import (
	"context"
	"fmt"
	"os"
	"time"

	"omnipitr/internal/runner"
)

// Type is one of the four compression types enumerates.
type Type string

const (
	None Type = "none"
	Gzip Type = "gzip"
	Bzip2 Type = "bzip2"
	Lzma Type = "lzma"
)

// Ext returns the filename extension a Type's artifacts carry.
func (t Type) Ext() string {
	switch t {
		case Gzip:
		return ".gz"
		case Bzip2:
		return ".bz2"
		case Lzma:
		return ".lzma"
		default:
		return ""
	}
}

// ParseType maps a [CMP=] prefix (as used in --dst-local=gzip=/path) to a
// Type, defaulting to None when the prefix is absent.
func ParseType(prefix string) (Type, error) {
	switch Type(prefix) {
		case "", None:
		return None, nil
		case Gzip, Bzip2, Lzma:
		return Type(prefix), nil
		default:
		return "", fmt.Errorf("compress: unknown compression type %q", prefix)
	}
}

// Binary holds the external program paths each Type binds to, with the
// defaults lists (--gzip-path, --bzip2-path, --lzma-path default
// to the type's own name, resolved via $PATH).
type Binary struct {
	Gzip string
	Bzip2 string
	Lzma string
}

// DefaultBinary returns a Binary with each path defaulted to the type name.
func DefaultBinary() Binary {
	return Binary{Gzip: "gzip", Bzip2: "bzip2", Lzma: "lzma"}
}

// PathFor returns the configured external program path for a compression type.
func (b Binary) PathFor(t Type) (string, error) {
	switch t {
		case Gzip:
		return b.Gzip, nil
		case Bzip2:
		return b.Bzip2, nil
		case Lzma:
		return b.Lzma, nil
		default:
		return "", fmt.Errorf("compress: %q has no external program", t)
	}
}

// Compressor runs a compression Type's external program against files on
// disk the way the archival pipeline needs it: read the original segment,
// write the compressed artifact into a tempdir, and set the artifact's
// mtime and atime both to the source's mtime (the source's atime is not
// copied).
type Compressor struct {
	Bin Binary
	Run runner.Runner
}

// New returns a Compressor using the real os/exec-backed runner.
func New(bin Binary) Compressor {
	return Compressor{Bin: bin, Run: runner.New()}
}

// CompressFile compresses src into dst using compression type t, then sets
// dst's mtime and atime to src's mtime. Each compressor is invoked as
// `<prog> -c` with src fed on stdin and stdout written to dst, the
// conventional contract for gzip/bzip2/xz-as-lzma.
func (c Compressor) CompressFile(ctx context.Context, t Type, src, dst string) error {
	if t == None {
		return fmt.Errorf("compress: CompressFile called with type none")
	}

	prog, err := c.Bin.PathFor(t)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("compress: create %s: %w", dst, err)
	}
	defer out.Close()

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("compress: open %s: %w", src, err)
	}
	defer srcFile.Close()

	res := c.runStreaming(ctx, []string{prog, "-c"}, srcFile, out)
	if res.Err != nil || res.ExitCode != 0 {
		os.Remove(dst)
		return fmt.Errorf("compress: %s failed (exit %d): %s: %w", prog, res.ExitCode, res.CombinedOutput(), res.Err)
	}

	return preserveTimes(src, dst)
}

// DecompressFile decompresses src (compressed under type t) into dst,
// setting dst's times the same way CompressFile does, used by the
// restore controller when the archive's source segment is compressed
// and by the retention controller when a pre-removal hook needs the
// segment's plaintext bytes staged on disk.
func (c Compressor) DecompressFile(ctx context.Context, t Type, src, dst string) error {
	if t == None {
		return fmt.Errorf("compress: DecompressFile called with type none")
	}

	prog, err := c.Bin.PathFor(t)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("compress: create %s: %w", dst, err)
	}
	defer out.Close()

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("compress: open %s: %w", src, err)
	}
	defer srcFile.Close()

	res := c.runStreaming(ctx, []string{prog, "-dc"}, srcFile, out)
	if res.Err != nil || res.ExitCode != 0 {
		os.Remove(dst)
		return fmt.Errorf("compress: %s -dc failed (exit %d): %s: %w", prog, res.ExitCode, res.CombinedOutput(), res.Err)
	}

	return preserveTimes(src, dst)
}

// runStreaming runs argv with stdin wired to src and, when c.Run supports
// it (the production runner.Exec), stdout wired straight to dst so a
// multi-megabyte WAL segment is never buffered in memory. A fake
// runner.Runner injected in tests doesn't implement that streaming
// interface, so its buffered Result.Stdout is written to dst instead.
func (c Compressor) runStreaming(ctx context.Context, argv []string, stdin *os.File, stdout *os.File) runner.Result {
	if s, ok := c.Run.(streamer); ok {
		return s.RunStream(ctx, argv, stdin, stdout)
	}
	res := c.Run.Run(ctx, argv, stdin)
	if res.Err == nil && res.ExitCode == 0 {
		if _, werr := stdout.Write(res.Stdout); werr != nil {
			res.Err = werr
		}
	}
	return res
}

func preserveTimes(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("compress: stat %s: %w", src, err)
	}
	mtime := info.ModTime()
	return os.Chtimes(dst, mtime, mtime)
}

// Elapsed is a tiny helper so callers can log "compressed in %s" the way
// the rest of the codebase logs durations.
func Elapsed(start time.Time) time.Duration {
	return time.Since(start)
}
