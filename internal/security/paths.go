// Package security sanitizes the filesystem paths PostgreSQL hands
// omnipitr across a process boundary: restore_command's SEGMENT and
// DESTINATION arguments, and the segment name a pre-removal hook receives,
// are untrusted input the same way a web handler's path parameter is.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CleanPath rejects a path containing a ".." traversal segment once
// cleaned, the way a PostgreSQL-supplied restore DESTINATION must never be
// allowed to escape the data directory it is joined against.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}

	return cleaned, nil
}

// ValidateRestoreDestination joins dataDir and destination (PostgreSQL's
// restore_command second argument) and rejects the result if cleaning
// destination revealed a traversal attempt or if the joined path would
// fall outside dataDir.
func ValidateRestoreDestination(dataDir, destination string) (string, error) {
	cleaned, err := CleanPath(destination)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(dataDir, cleaned)
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}
	if absJoined != absDataDir && !strings.HasPrefix(absJoined, absDataDir+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %q escapes data directory %q", destination, dataDir)
	}
	return absJoined, nil
}

// ValidateSegmentName rejects a segment argument containing a path
// separator or traversal segment, since it is joined directly onto the
// archive directory and the pre-removal hook's staging directory.
func ValidateSegmentName(segment string) error {
	if segment == "" {
		return fmt.Errorf("segment name cannot be empty")
	}
	if strings.ContainsAny(segment, "/\\") {
		return fmt.Errorf("segment name %q must not contain a path separator", segment)
	}
	if segment == "." || segment == ".." {
		return fmt.Errorf("segment name %q is not a valid file name", segment)
	}
	return nil
}
