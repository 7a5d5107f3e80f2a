package security

import "testing"

func TestCleanPathRejectsTraversal(t *testing.T) {
	if _, err := CleanPath("../etc/passwd"); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if _, err := CleanPath(""); err == nil {
		t.Error("expected empty path to be rejected")
	}
	got, err := CleanPath("foo/bar")
	if err != nil {
		t.Fatal(err)
	}
	if got != "foo/bar" {
		t.Errorf("CleanPath = %q", got)
	}
}

func TestValidateRestoreDestinationRejectsEscape(t *testing.T) {
	if _, err := ValidateRestoreDestination("/var/lib/pg", "../../etc/passwd"); err == nil {
		t.Error("expected escape to be rejected")
	}
}

func TestValidateRestoreDestinationAcceptsNestedPath(t *testing.T) {
	got, err := ValidateRestoreDestination("/var/lib/pg", "pg_xlog/000000010000000000000001")
	if err != nil {
		t.Fatal(err)
	}
	want := "/var/lib/pg/pg_xlog/000000010000000000000001"
	if got != want {
		t.Errorf("ValidateRestoreDestination = %q, want %q", got, want)
	}
}

func TestValidateSegmentNameRejectsSeparators(t *testing.T) {
	for _, bad := range []string{"../x", "a/b", "a\\b", "", ".", ".."} {
		if err := ValidateSegmentName(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
	if err := ValidateSegmentName("000000010000000000000001"); err != nil {
		t.Errorf("expected valid segment name to pass: %v", err)
	}
}
