// Package metadata synthesizes the backup_label text and .backup sentinel
// file content that PostgreSQL expects to find alongside a physical
// backup, and carries the pg_controldata snapshot taken on the slave
// backup path.
package metadata

import (
	"fmt"
	"time"

	"omnipitr/internal/walseg"
)

// Label is the in-memory form of backup_label / the.backup sentinel:
// START/STOP WAL LOCATION, CHECKPOINT LOCATION, START/STOP TIME, LABEL
//.
type Label struct {
	Timeline uint32
	StartLocation walseg.Location
	StopLocation walseg.Location
	CheckpointLoc string
	StartTime time.Time
	StopTime time.Time
	BackupLabel string
}

// DefaultSlaveLabel is the fixed LABEL value synthesized on the
// slave-without-call-master path.
const DefaultSlaveLabel = "OmniPITR_Slave_Hot_Backup"

// Render produces the exact backup_label text specifies.
// Timestamps are formatted in the server's local time zone, matching
// PostgreSQL's own backup_label convention.
func (l Label) Render() string {
	startName := l.StartLocation.SegmentName(l.Timeline)
	stopName := l.StopLocation.SegmentName(l.Timeline)
	return fmt.Sprintf(
		"START WAL LOCATION: %s (file %s)\n"+
		"STOP WAL LOCATION: %s (file %s)\n"+
		"CHECKPOINT LOCATION: %s\n"+
		"START TIME: %s\n"+
		"STOP TIME: %s\n"+
		"LABEL: %s\n",
		l.StartLocation, startName,
		l.StopLocation, stopName,
		l.CheckpointLoc,
		l.StartTime.Format("2006-01-02 15:04:05 MST"),
		l.StopTime.Format("2006-01-02 15:04:05 MST"),
		l.BackupLabel,
	)
}

// ControlSnapshot is the subset of pg_controldata output the slave backup
// path reads before and after the data-directory tar, to detect a
// checkpoint advance (/).
type ControlSnapshot struct {
	RedoLocation walseg.Location
	RedoTimeline uint32
	CheckpointLocation walseg.Location
	MinRecoveryEnding walseg.Location
	TakenAt time.Time
}

// Advanced reports whether final's checkpoint location is strictly past
// initial's — the slave path polls pg_controldata until this holds.
func Advanced(initial, final ControlSnapshot) bool {
	return walseg.LocationLess(initial.CheckpointLocation, final.CheckpointLocation)
}

// FromControl builds the backup label for the slave-without-call-master
// path directly from a before/after pg_controldata snapshot pair
//.
func FromControl(initial, final ControlSnapshot, start, stop time.Time) Label {
	return Label{
		Timeline: final.RedoTimeline,
		StartLocation: initial.RedoLocation,
		StopLocation: final.CheckpointLocation,
		CheckpointLoc: final.CheckpointLocation.String(),
		StartTime: start,
		StopTime: stop,
		BackupLabel: DefaultSlaveLabel,
	}
}
