package backupengine

import (
	"path/filepath"
	"time"

	"omnipitr/internal/compress"
	"omnipitr/internal/destination"
	"omnipitr/internal/digest"
)

// requiredArtifactTypes computes the set of compression types (including
// compress.None, unlike the archive pipeline) any destination needs, since
// the backup engine has no pre-existing uncompressed source file to reuse
// the way the archiver reuses the WAL segment on disk — even a "none"
// destination needs its own tar output captured.
func requiredArtifactTypes(dests []destination.Destination) []compress.Type {
	seen := map[compress.Type]bool{}
	var types []compress.Type
	for _, d := range dests {
		t := d.Compression
		if t == "" {
			t = compress.None
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}

// ComputeArtifactPaths renders the on-disk path for every compression
// type and digest algorithm a backup run needs to produce, under tempDir,
// using the --filename-template expansion. Map keys match the
// Artifact.Label values BuildStreamTree produces: a compress.Type name,
// or "digest:<algorithm>".
func ComputeArtifactPaths(tmpl, hostname, filetype string, startTime time.Time, tempDir string, types []compress.Type, algos []digest.Algorithm) (map[string]string, error) {
	paths := map[string]string{}
	for _, t := range types {
		name, err := RenderFilename(tmpl, hostname, filetype, t.Ext(), startTime)
		if err != nil {
			return nil, err
		}
		paths[string(t)] = filepath.Join(tempDir, name)
	}
	for _, a := range algos {
		name, err := RenderFilename(tmpl, hostname, string(a), "", startTime)
		if err != nil {
			return nil, err
		}
		paths["digest:"+string(a)] = filepath.Join(tempDir, name)
	}
	return paths, nil
}

func namerFromPaths(paths map[string]string) func(string) string {
	return func(label string) string {
		if p, ok := paths[label]; ok {
			return p
		}
		return label
	}
}

