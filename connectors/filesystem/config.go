// Package filesystem implements a minimal reference READ_FILE connector
// that serves files out of a local directory tree. It exists to give the
// connector contract (spec.md §10: "accepts a JSON scan-request body and
// returns the file bytes as a streaming HTTP response with optional
// content-length") a concrete, runnable implementation, grounded on the
// original Python implementation's filesystem connector configuration
// (root directory, path-escape guarding).
package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config is the filesystem connector's configuration.
type Config struct {
	// RootDir is the directory READ_FILE locations are resolved relative
	// to. A location that escapes RootDir via ".." is rejected.
	RootDir string
	// MaxReadBytes caps the size of a single served file; 0 disables the cap.
	MaxReadBytes int64
}

// ResolvePath joins location onto RootDir and rejects any path that
// escapes it, guarding against a malicious or malformed location value.
func (c Config) ResolvePath(location string) (string, error) {
	cleanRoot := filepath.Clean(c.RootDir)
	joined := filepath.Join(cleanRoot, location)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("location %q escapes connector root", location)
	}
	return joined, nil
}
