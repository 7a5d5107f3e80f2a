package metadata

import (
	"strings"
	"testing"
	"time"

	"omnipitr/internal/walseg"
)

func TestRenderMatchesBackupLabelFormat(t *testing.T) {
	loc := time.FixedZone("UTC", 0)
	l := Label{
		Timeline: 1,
		StartLocation: walseg.Location{Series: 0, Offset: 0x5000028},
		StopLocation: walseg.Location{Series: 0, Offset: 0x5000130},
		CheckpointLoc: "0/5000090",
		StartTime: time.Date(2026, 7, 31, 12, 0, 0, 0, loc),
		StopTime: time.Date(2026, 7, 31, 12, 0, 5, 0, loc),
		BackupLabel: DefaultSlaveLabel,
	}

	out := l.Render()

	for _, substr := range []string{
		"START WAL LOCATION: 0/5000028",
		"STOP WAL LOCATION: 0/5000130",
		"CHECKPOINT LOCATION: 0/5000090",
		"LABEL: OmniPITR_Slave_Hot_Backup",
	} {
		if !strings.Contains(out, substr) {
			t.Errorf("Render missing %q, got:\n%s", substr, out)
		}
	}
}

func TestAdvanced(t *testing.T) {
	initial := ControlSnapshot{CheckpointLocation: walseg.Location{Series: 0, Offset: 100}}
	final := ControlSnapshot{CheckpointLocation: walseg.Location{Series: 0, Offset: 200}}
	if !Advanced(initial, final) {
		t.Error("expected checkpoint advance to be detected")
	}
	if Advanced(final, initial) {
		t.Error("did not expect a regression to count as an advance")
	}
	if Advanced(initial, initial) {
		t.Error("equal snapshots should not count as an advance")
	}
}

func TestFromControl(t *testing.T) {
	start := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	stop := start.Add(5 * time.Second)
	initial := ControlSnapshot{}
	final := ControlSnapshot{
		RedoTimeline: 2,
		RedoLocation: walseg.Location{Series: 0, Offset: 0x1000000},
		CheckpointLocation: walseg.Location{Series: 0, Offset: 0x2000000},
	}

	l := FromControl(initial, final, start, stop)
	if l.Timeline != 2 {
		t.Errorf("Timeline = %d, want 2", l.Timeline)
	}
	if l.BackupLabel != DefaultSlaveLabel {
		t.Errorf("BackupLabel = %q, want %q", l.BackupLabel, DefaultSlaveLabel)
	}
}
