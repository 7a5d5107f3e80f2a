// Package digest computes the content hashes used by the archive state
// file (md5) and the backup engine's --digest=a,b,... fan-out. Hashing
// stays on crypto/md5, crypto/sha1, crypto/sha256 and crypto/sha512
// directly; there's no third-party hashing library to reach for here.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Algorithm is one of the digest types the backup engine can fan a tar
// stream out to via the pipe builder's tee nodes.
type Algorithm string

const (
	MD5 Algorithm = "md5"
	SHA1 Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// New returns a fresh hash.Hash for the algorithm, or an error if it is
// not one of the supported names.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
		case MD5:
		return md5.New(), nil
		case SHA1:
		return sha1.New(), nil
		case SHA256:
		return sha256.New(), nil
		case SHA512:
		return sha512.New(), nil
		default:
		return nil, fmt.Errorf("digest: unknown algorithm %q", a)
	}
}

// ParseList parses a comma-separated --digest=md5,sha256 flag value.
func ParseList(s string) ([]Algorithm, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var algos []Algorithm
	for _, part := range strings.Split(s, ",") {
		a := Algorithm(strings.ToLower(strings.TrimSpace(part)))
		if a == "" {
			continue
		}
		if _, err := a.New(); err != nil {
			return nil, err
		}
		algos = append(algos, a)
	}
	return algos, nil
}

// File computes the hex digest of a file's contents under the given
// algorithm. MD5File wraps it for the archive state file's cached-artifact
// checksum; the backup engine's --digest files are produced by external
// programs instead.
func File(path string, algo Algorithm) (string, error) {
	h, err := algo.New()
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest: hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// MD5File is a convenience wrapper for the hot path used by the archive
// state file, which is hardcoded to md5 regardless of --digest.
func MD5File(path string) (string, error) {
	return File(path, MD5)
}
