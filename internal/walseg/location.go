package walseg

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is a parsed PostgreSQL LSN of the form "<series>/<offset>" (hex).
type Location struct {
	Series uint32
	Offset uint32
}

// ParseLocation parses the "XXXXXXXX/XXXXXXXX" textual LSN format emitted
// by pg_controldata (e.g. "Latest checkpoint's REDO location: 0/5000028").
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("walseg: %q is not a SERIES/OFFSET location", s)
	}
	series, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return Location{}, fmt.Errorf("walseg: invalid series in location %q: %w", s, err)
	}
	offset, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return Location{}, fmt.Errorf("walseg: invalid offset in location %q: %w", s, err)
	}
	return Location{Series: uint32(series), Offset: uint32(offset)}, nil
}

// SegmentName renders the WAL segment name containing this location under
// the given timeline, using the NameFromLocation formula.
func (l Location) SegmentName(timeline uint32) string {
	return NameFromLocation(timeline, l.Series, l.Offset)
}

func (l Location) String() string {
	return fmt.Sprintf("%X/%X", l.Series, l.Offset)
}

// LocationLess orders two locations the way PostgreSQL LSNs order: by
// series, then by offset. Used by the slave backup path to detect a
// checkpoint advance between two pg_controldata snapshots.
func LocationLess(a, b Location) bool {
	if a.Series != b.Series {
		return a.Series < b.Series
	}
	return a.Offset < b.Offset
}
