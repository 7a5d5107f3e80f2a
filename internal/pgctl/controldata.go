// Package pgctl wraps the two ways omnipitr learns a cluster's WAL
// position: shelling out to pg_controldata for a control-file snapshot
// (used for retention's REDO boundary) and, on a primary, issuing
// pg_start_backup/pg_stop_backup/pg_read_file directly over the wire
// protocol via pgx instead of shelling psql.
package pgctl

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"omnipitr/internal/metadata"
	"omnipitr/internal/runner"
	"omnipitr/internal/walseg"
)

// Snapshot is the subset of pg_controldata's "KEY: VALUE" output omnipitr
// needs.
type Snapshot struct {
	RedoLocation walseg.Location
	RedoTimeline uint32
	CheckpointLocation walseg.Location
	MinRecoveryEnding walseg.Location
}

const (
	keyRedoLocation = "Latest checkpoint's REDO location"
	keyRedoTimeline = "Latest checkpoint's TimeLineID"
	keyCheckpointLoc = "Latest checkpoint location"
	keyMinRecoveryEnd = "Minimum recovery ending location"
)

// ControlData runs pg_controldata against dataDir through r and parses
// the four fields omnipitr needs.
func ControlData(ctx context.Context, r runner.Runner, bin, dataDir string) (Snapshot, error) {
	if bin == "" {
		bin = "pg_controldata"
	}
	res := r.Run(ctx, []string{bin, dataDir}, nil)
	if res.Err != nil {
		return Snapshot{}, fmt.Errorf("pgctl: %s %s: %w", bin, dataDir, res.Err)
	}
	if res.ExitCode != 0 {
		return Snapshot{}, fmt.Errorf("pgctl: %s %s exited %d: %s", bin, dataDir, res.ExitCode, res.CombinedOutput())
	}
	return ParseControlData(string(res.Stdout))
}

// ParseControlData parses pg_controldata's "KEY: VALUE" stdout format.
func ParseControlData(output string) (Snapshot, error) {
	fields := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		fields[key] = val
	}

	redoLoc, err := requireLocation(fields, keyRedoLocation)
	if err != nil {
		return Snapshot{}, err
	}
	checkpointLoc, err := requireLocation(fields, keyCheckpointLoc)
	if err != nil {
		return Snapshot{}, err
	}
	minRecovery, err := optionalLocation(fields, keyMinRecoveryEnd)
	if err != nil {
		return Snapshot{}, err
	}

	tlStr, ok := fields[keyRedoTimeline]
	if !ok {
		return Snapshot{}, fmt.Errorf("pgctl: missing field %q in pg_controldata output", keyRedoTimeline)
	}
	tl, err := strconv.ParseUint(strings.TrimSpace(tlStr), 10, 32)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pgctl: invalid %q value %q: %w", keyRedoTimeline, tlStr, err)
	}

	return Snapshot{
		RedoLocation: redoLoc,
		RedoTimeline: uint32(tl),
		CheckpointLocation: checkpointLoc,
		MinRecoveryEnding: minRecovery,
	}, nil
}

func requireLocation(fields map[string]string, key string) (walseg.Location, error) {
	raw, ok := fields[key]
	if !ok {
		return walseg.Location{}, fmt.Errorf("pgctl: missing field %q in pg_controldata output", key)
	}
	loc, err := walseg.ParseLocation(raw)
	if err != nil {
		return walseg.Location{}, fmt.Errorf("pgctl: field %q: %w", key, err)
	}
	return loc, nil
}

// optionalLocation parses key if present, returning the zero Location
// when it's absent — pg_controldata only reports "Minimum recovery
// ending location" on a standby, never on a primary.
func optionalLocation(fields map[string]string, key string) (walseg.Location, error) {
	raw, ok := fields[key]
	if !ok {
		return walseg.Location{}, nil
	}
	loc, err := walseg.ParseLocation(raw)
	if err != nil {
		return walseg.Location{}, fmt.Errorf("pgctl: field %q: %w", key, err)
	}
	return loc, nil
}

// RedoSegmentName computes the WAL segment name below which cleanup must
// never delete.
func (s Snapshot) RedoSegmentName() string {
	return s.RedoLocation.SegmentName(s.RedoTimeline)
}

// ToControlSnapshot adapts a pgctl.Snapshot into the metadata package's
// ControlSnapshot shape used by the slave backup path's before/after
// comparison.
func (s Snapshot) ToControlSnapshot() metadata.ControlSnapshot {
	return metadata.ControlSnapshot{
		RedoLocation: s.RedoLocation,
		RedoTimeline: s.RedoTimeline,
		CheckpointLocation: s.CheckpointLocation,
		MinRecoveryEnding: s.MinRecoveryEnding,
		TakenAt: time.Now(),
	}
}
