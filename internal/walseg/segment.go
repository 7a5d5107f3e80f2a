// Package walseg implements the WAL segment naming scheme: validation,
// parsing, lexicographic ordering and the LSN-to-segment-name formula
// shared by the archiver, the backup engine's label synthesis and the
// retention controller's REDO boundary calculation.
package walseg

import (
	"fmt"
	"regexp"
)

// SegmentBytes is the fixed WAL segment size: 16 MiB = 256^3 bytes.
const SegmentBytes int64 = 256 * 256 * 256

var (
	segmentRe = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	backupRe = regexp.MustCompile(`^[0-9a-fA-F]{24}\.[0-9a-fA-F]{8}\.backup$`)
	historyRe = regexp.MustCompile(`^[0-9a-fA-F]{8}\.history$`)
)

// Kind enumerates the three name shapes sharing the archive namespace.
type Kind int

const (
	KindSegment Kind = iota
	KindBackupLabel
	KindHistory
	KindInvalid
)

// Classify determines which of the three namespace shapes name has,
// per operation 1: ^[0-9a-fA-F]{24}(\.[0-9a-fA-F]{8}\.backup)?$
// or ^[0-9a-fA-F]{8}\.history$.
func Classify(name string) Kind {
	switch {
		case segmentRe.MatchString(name):
		return KindSegment
		case backupRe.MatchString(name):
		return KindBackupLabel
		case historyRe.MatchString(name):
		return KindHistory
		default:
		return KindInvalid
	}
}

// Validate enforces the name pattern and, for a plain 24-hex segment name,
// that the file on disk is exactly SegmentBytes.
func Validate(name string, size int64) error {
	switch Classify(name) {
		case KindSegment:
		if size != SegmentBytes {
			return fmt.Errorf("walseg: %s has size %d, expected %d", name, size, SegmentBytes)
		}
		return nil
		case KindBackupLabel, KindHistory:
		return nil
		default:
		return fmt.Errorf("walseg: %q does not match the WAL segment, .backup, or .history naming pattern", name)
	}
}

// Timeline returns the 8-hex-char timeline prefix shared by every name
// shape in the namespace.
func Timeline(name string) (string, error) {
	if len(name) < 8 {
		return "", fmt.Errorf("walseg: name %q too short to contain a timeline", name)
	}
	return name[:8], nil
}

// Less implements lexicographic ordering on the 24-char name; it applies
// equally well to.backup sentinel names since they share the 24-char
// segment prefix.
func Less(a, b string) bool {
	return a < b
}

// NameFromLocation implements the formula:
//
//	sprintf("%08X%08X%08X", timeline, series, offset>>24)
//
// where LOCATION = <series>/<offset> in hex, as used both for backup-label
// synthesis and for the retention controller's REDO-segment-name
// computation from pg_controldata.
func NameFromLocation(timeline uint32, series, offset uint32) string {
	return fmt.Sprintf("%08X%08X%08X", timeline, series, offset>>24)
}
