package lsp

import (
	"os"
	"path/filepath"
	"strings"
)

// FindProjectRoot walks up from a Swift file looking for a project marker
// (Package.swift, *.xcodeproj, *.xcworkspace). The backend indexes per
// project, so files under the same root share one session. Falls back to
// the file's own directory when no marker is found, which covers isolated
// files and temp-dir test fixtures.
func FindProjectRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for cur := dir; ; {
		if hasProjectMarker(cur) {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return dir
}

func hasProjectMarker(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "Package.swift")); err == nil {
		return true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".xcodeproj") || strings.HasSuffix(name, ".xcworkspace") {
			return true
		}
	}
	return false
}
