package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ArchiveMarker identifies a packaged single-file build in the invocation path.
const ArchiveMarker = ".bundle"

// LaunchMode tells where configuration documents are read from.
type LaunchMode int

const (
	// DirectoryMode reads config/ next to the installed binary.
	DirectoryMode LaunchMode = iota
	// ArchiveMode reads the bundle embedded into the binary.
	ArchiveMode
)

func (m LaunchMode) String() string {
	if m == ArchiveMode {
		return "archive"
	}
	return "directory"
}

// DetectMode inspects the invocation path (os.Args[0]) for the archive marker.
func DetectMode(invocation string) LaunchMode {
	if strings.Contains(invocation, ArchiveMarker) {
		return ArchiveMode
	}
	return DirectoryMode
}

// RootDir returns the directory holding config/ in directory mode: the
// override when set, otherwise the directory of the running executable.
func RootDir(override, invocation string) (string, error) {
	if override != "" {
		return filepath.Abs(override)
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe), nil
	}
	abs, err := filepath.Abs(invocation)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}
