package backupengine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// ValidateTemplate enforces filename template rules: it must
// name __FILETYPE__ and must not contain a path separator, since the
// rendered name is a single file dropped into a destination directory.
func ValidateTemplate(tmpl string) error {
	if !strings.Contains(tmpl, "__FILETYPE__") {
		return fmt.Errorf("backupengine: filename template %q must contain __FILETYPE__", tmpl)
	}
	if strings.ContainsAny(tmpl, "/\\") {
		return fmt.Errorf("backupengine: filename template %q must not contain a path separator", tmpl)
	}
	return nil
}

// RenderFilename expands a --filename-template value for one produced
// artifact. Placeholders __HOSTNAME__ and __FILETYPE__ are substituted
// first; __CEXT__ takes the compression
// extension (or digest algorithm name has none); strftime escapes are
// written with a `^` sigil in the source template and rewritten to `%`
// before being handed to strftime, then expanded against startTime.
func RenderFilename(tmpl, hostname, filetype, cext string, startTime time.Time) (string, error) {
	s := strings.ReplaceAll(tmpl, "__HOSTNAME__", hostname)
	s = strings.ReplaceAll(s, "__FILETYPE__", filetype)
	s = strings.ReplaceAll(s, "__CEXT__", cext)
	s = strings.ReplaceAll(s, "^", "%")

	out, err := strftime.Format(s, startTime)
	if err != nil {
		return "", fmt.Errorf("backupengine: expand filename template %q: %w", tmpl, err)
	}
	return out, nil
}

// DefaultHostname returns os.Hostname(), falling back to "localhost" if the
// kernel call fails — a missing hostname should never abort a backup.
func DefaultHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
