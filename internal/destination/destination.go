// Package destination models a delivery destination descriptor and
// parses the --dst-* CLI flags, including the geographically-distributed
// cloud kinds (s3, azure, gcs) on top of the original local/remote/pipe
// set.
package destination

import (
	"fmt"
	"strings"

	"omnipitr/internal/compress"
)

// Kind is one of the destination kinds a segment or backup artifact can be
// delivered to.
type Kind string

const (
	Local Kind = "local"
	Remote Kind = "remote"
	Pipe Kind = "pipe"
	Direct Kind = "direct"
	S3 Kind = "s3"
	Azure Kind = "azure"
	GCS Kind = "gcs"
	SSH Kind = "ssh"
)

// Destination is a {kind, path, compression} triple describing one
// delivery target. Path means different things per kind: a filesystem
// path for local, a
// [user@]host:/absolute/path for remote, an external program for pipe, and
// a bucket/prefix-bearing cloud URI for s3/azure/gcs.
type Destination struct {
	Kind Kind
	Path string
	Compression compress.Type
	// Backup marks the distinguished dst-backup destination, whose
	// failures are logged but do not fail the whole invocation.
	Backup bool
}

// String renders the destination the way it appears in state file keys
// and log lines.
func (d Destination) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.Path)
}

// ParseFlag parses one --dst-local/--dst-remote/--dst-pipe/--dst-s3/
// --dst-azure/--dst-gcs flag value of the form "[CMP=]path", e.g.
// "gzip=/var/lib/wal-archive/" or "user@host:/absolute/path" (no prefix,
// meaning compression type none). A --dst-remote value whose path is an
// ssh://user@host/absolute/path URI is reclassified as Kind SSH: the
// rsync-over-ssh transfer stays the default for a bare user@host:/path
// value, and the in-process SSH leaf is only used when the operator opts
// in with the ssh:// scheme.
func ParseFlag(kind Kind, value string) (Destination, error) {
	cmp, path, err := splitCompressionPrefix(value)
	if err != nil {
		return Destination{}, err
	}
	if path == "" {
		return Destination{}, fmt.Errorf("destination: empty path in %q", value)
	}
	if kind == Remote && strings.HasPrefix(path, "ssh://") {
		kind = SSH
	}
	return Destination{Kind: kind, Path: path, Compression: cmp}, nil
}

// ParseBackup parses --dst-backup=/abs/path. It is always compression type
// none (the flag takes no [CMP=] prefix) and is always degraded.
func ParseBackup(path string) (Destination, error) {
	if path == "" {
		return Destination{}, fmt.Errorf("destination: --dst-backup requires a path")
	}
	return Destination{Kind: Local, Path: path, Compression: compress.None, Backup: true}, nil
}

// splitCompressionPrefix splits a "[CMP=]rest" value. CMP, when present,
// must be one of the compress.Type names; anything before the first '='
// that doesn't parse as a known type is treated as part of the path
// (so "user@host:/path" without a prefix doesn't get misparsed on its own
// colons — we only split on '=', and a bare host:/path has no '=').
func splitCompressionPrefix(value string) (compress.Type, string, error) {
	idx := strings.IndexByte(value, '=')
	if idx < 0 {
		return compress.None, value, nil
	}
	prefix := value[:idx]
	rest := value[idx+1:]
	t, err := compress.ParseType(prefix)
	if err != nil {
		// Not a recognized compression prefix: treat the whole value as a
		// path that happens to contain '=' (e.g. a pipe program argument).
		return compress.None, value, nil
	}
	return t, rest, nil
}

// IsCloud reports whether a destination kind is one of the cloud-backed
// kinds (s3, azure, gcs).
func (k Kind) IsCloud() bool {
	return k == S3 || k == Azure || k == GCS
}
