package backupengine

import (
	"testing"
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/destination"
	"omnipitr/internal/digest"
)

func TestRequiredArtifactTypesDeduplicatesAndDefaultsToNone(t *testing.T) {
	dests := []destination.Destination{
		{Kind: destination.Local, Compression: compress.Gzip},
		{Kind: destination.Local, Compression: compress.Gzip},
		{Kind: destination.Local, Compression: ""},
	}
	types := requiredArtifactTypes(dests)
	if len(types) != 2 {
		t.Fatalf("expected 2 distinct types, got %v", types)
	}
	seen := map[compress.Type]bool{}
	for _, ty := range types {
		seen[ty] = true
	}
	if !seen[compress.Gzip] || !seen[compress.None] {
		t.Errorf("expected gzip and none, got %v", types)
	}
}

func TestComputeArtifactPaths(t *testing.T) {
	start := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	paths, err := ComputeArtifactPaths("__HOSTNAME__-__FILETYPE____CEXT__", "h", "data", start, "/tmp/work", []compress.Type{compress.None, compress.Gzip}, []digest.Algorithm{digest.SHA256})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := paths[string(compress.None)]; !ok {
		t.Errorf("missing none artifact path: %v", paths)
	}
	if _, ok := paths[string(compress.Gzip)]; !ok {
		t.Errorf("missing gzip artifact path: %v", paths)
	}
	if _, ok := paths["digest:sha256"]; !ok {
		t.Errorf("missing digest artifact path: %v", paths)
	}
}

func TestNamerFromPathsFallsBackToLabel(t *testing.T) {
	namer := namerFromPaths(map[string]string{"gzip": "/tmp/x.gz"})
	if got := namer("gzip"); got != "/tmp/x.gz" {
		t.Errorf("namer(gzip) = %q", got)
	}
	if got := namer("unknown"); got != "unknown" {
		t.Errorf("namer(unknown) = %q, want passthrough", got)
	}
}
