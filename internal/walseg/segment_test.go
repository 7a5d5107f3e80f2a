package walseg

import "testing"

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"000000010000000000000001": KindSegment,
		"000000010000000000000001.00000028.backup": KindBackupLabel,
		"00000001.history": KindHistory,
		"not-a-segment": KindInvalid,
		"00000001000000000000000Z": KindInvalid,
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("000000010000000000000001", SegmentBytes); err != nil {
		t.Errorf("expected valid segment, got %v", err)
	}
	if err := Validate("000000010000000000000001", SegmentBytes-1); err == nil {
		t.Error("expected size mismatch to fail validation")
	}
	if err := Validate("00000001.history", 42); err != nil {
		t.Errorf(".history files are not size-constrained: %v", err)
	}
}

func TestNameFromLocation(t *testing.T) {
	// timeline 1, LSN 0/5000000 -> series 0, offset 0x5000000
	got := NameFromLocation(1, 0, 0x5000000)
	want := "0000000100000000" + "00000005"
	if got != want {
		t.Errorf("NameFromLocation = %s, want %s", got, want)
	}
}

func TestParseLocationRoundTrip(t *testing.T) {
	loc, err := ParseLocation("0/5000028")
	if err != nil {
		t.Fatalf("ParseLocation: %v", err)
	}
	if loc.Series != 0 || loc.Offset != 0x5000028 {
		t.Errorf("parsed %+v", loc)
	}
	if got := loc.SegmentName(1); got != "0000000100000000"+"00000005" {
		t.Errorf("SegmentName = %s", got)
	}
}

func TestLess(t *testing.T) {
	if !Less("000000010000000000000001", "000000010000000000000002") {
		t.Error("expected lexicographic ordering to hold")
	}
}
