package backupengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Tablespace is one pg_tblspc/<oid> symlink resolved to its real
// filesystem target.
type Tablespace struct {
	OID string
	Target string
}

// DiscoverTablespaces walks dataDir/pg_tblspc and resolves every symlink
// found there, sorted by OID for deterministic tar argv ordering.
func DiscoverTablespaces(dataDir string) ([]Tablespace, error) {
	tblspcDir := filepath.Join(dataDir, "pg_tblspc")
	entries, err := os.ReadDir(tblspcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backupengine: read %s: %w", tblspcDir, err)
	}

	var out []Tablespace
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		linkPath := filepath.Join(tblspcDir, e.Name())
		target, err := filepath.EvalSymlinks(linkPath)
		if err != nil {
			return nil, fmt.Errorf("backupengine: resolve tablespace symlink %s: %w", linkPath, err)
		}
		out = append(out, Tablespace{OID: e.Name(), Target: target})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OID < out[j].OID })
	return out, nil
}

// TransformRule renders one GNU tar --transform expression mapping a
// tablespace's real path to tablespaces/<oid> in the archive, so restore
// places every tablespace under the same symbolic tree regardless of
// where the source filesystem had it mounted.
func (t Tablespace) TransformRule() string {
	trimmed := t.Target
	if len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	return fmt.Sprintf("s#^%s#tablespaces/%s#", trimmed, t.OID)
}
