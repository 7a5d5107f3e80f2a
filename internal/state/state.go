// Package state implements the archive state file: a per-segment
// persistent record of which compression artifacts have been produced
// and which destinations have already received the segment. Its
// existence is what makes archiving idempotent and resumable across
// repeated archive_command invocations for the same segment.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File is the persisted record keyed by segment name, stored as
// state-dir/<segment>.
type File struct {
	// Compressed maps compression type name -> hex md5 of the compressed
	// artifact currently believed valid on disk.
	Compressed map[string]string `json:"compressed"`
	// Sent maps destination kind -> set of destination paths the segment
	// has already been delivered to.
	Sent map[string]map[string]bool `json:"sent"`
}

// New returns an empty state record.
func New() *File {
	return &File{
		Compressed: make(map[string]string),
		Sent: make(map[string]map[string]bool),
	}
}

// Path returns state-dir/<segment>.
func Path(stateDir, segment string) string {
	return filepath.Join(stateDir, segment)
}

// Load reads a segment's state file, returning a fresh empty File (not an
// error) if none exists yet — state files are created lazily.
func Load(stateDir, segment string) (*File, error) {
	path := Path(stateDir, segment)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}

	f := New()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	if f.Compressed == nil {
		f.Compressed = make(map[string]string)
	}
	if f.Sent == nil {
		f.Sent = make(map[string]map[string]bool)
	}
	return f, nil
}

// Save persists the state file atomically: write to a temp file in the
// same directory, then rename over the target, so a crash mid-write never
// leaves a half-written state file that Load would misparse.
func (f *File) Save(stateDir, segment string) error {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", stateDir, err)
	}

	data, err := json.MarshalIndent(f, "", " ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	path := Path(stateDir, segment)
	tmp, err := os.CreateTemp(stateDir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close temp: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: rename into place: %w", err)
	}
	return nil
}

// Delete removes the state file, called once a segment has reached every
// declared destination.
func Delete(stateDir, segment string) error {
	err := os.Remove(Path(stateDir, segment))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: remove %s: %w", Path(stateDir, segment), err)
	}
	return nil
}

// CompressedMD5 returns the cached md5 for a compression type, and whether
// an entry exists at all.
func (f *File) CompressedMD5(typeName string) (string, bool) {
	md5, ok := f.Compressed[typeName]
	return md5, ok
}

// SetCompressed records a freshly produced artifact's md5 for typeName.
func (f *File) SetCompressed(typeName, md5 string) {
	if f.Compressed == nil {
		f.Compressed = make(map[string]string)
	}
	f.Compressed[typeName] = md5
}

// IsSent reports whether a (kind, path) destination pair has already
// received this segment.
func (f *File) IsSent(kind, path string) bool {
	paths, ok := f.Sent[kind]
	if !ok {
		return false
	}
	return paths[path]
}

// MarkSent records a successful delivery to (kind, path).
func (f *File) MarkSent(kind, path string) {
	if f.Sent == nil {
		f.Sent = make(map[string]map[string]bool)
	}
	if f.Sent[kind] == nil {
		f.Sent[kind] = make(map[string]bool)
	}
	f.Sent[kind][path] = true
}

// AllSent reports whether every one of the given (kind, path) pairs has
// been recorded as sent — used to decide whether the state file (and the
// compressed-artifact tempdir) can be deleted after a run.
func (f *File) AllSent(pairs [][2]string) bool {
	for _, p := range pairs {
		if !f.IsSent(p[0], p[1]) {
			return false
		}
	}
	return true
}
