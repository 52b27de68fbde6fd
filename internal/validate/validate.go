// Package validate centralizes Swift file path validation. Every tool
// that takes user-supplied paths runs them through here before any path
// reaches the analysis engine, so the engine can treat its inputs as a
// pre-validated contract.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxPathLength caps path length to reject pathological inputs.
const MaxPathLength = 4096

// DefaultMaxFileSizeMB caps how large a file the backend is asked to open.
const DefaultMaxFileSizeMB = 10

// Reason identifies why a path was rejected.
type Reason string

const (
	ReasonEmptyPath   Reason = "empty_path"
	ReasonInvalidPath Reason = "invalid_path"
	ReasonPathTooLong Reason = "path_too_long"
	ReasonNotFound    Reason = "file_not_found"
	ReasonNotRegular  Reason = "not_regular_file"
	ReasonNotSwift    Reason = "not_swift_file"
	ReasonTooLarge    Reason = "file_too_large"
	ReasonNotReadable Reason = "not_readable"
	ReasonOutsideCWD  Reason = "outside_working_directory"
)

// Error is a typed rejection carrying the offending path and the reason.
type Error struct {
	Path   string
	Reason Reason
	msg    string
}

func (e *Error) Error() string { return e.msg }

func reject(path string, reason Reason, format string, args ...any) error {
	return &Error{Path: path, Reason: reason, msg: fmt.Sprintf(format, args...)}
}

// Options adjusts validation policy per call site.
type Options struct {
	// AllowOutsideCWD disables the working-directory containment check.
	AllowOutsideCWD bool
	// MaxSizeMB overrides the file size cap; <=0 means the default.
	MaxSizeMB int
}

// SwiftFile validates a raw path and returns its canonical absolute form.
// Symlinks are resolved, not rejected: the containment and extension
// checks run against the resolved target. On failure the returned error
// is always a *Error.
func SwiftFile(path string, opts Options) (string, error) {
	if path == "" {
		return "", reject(path, ReasonEmptyPath, "file path must be a non-empty string")
	}
	if strings.ContainsRune(path, 0) {
		return "", reject(path, ReasonInvalidPath, "invalid file path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", reject(path, ReasonInvalidPath, "invalid file path: %s", path)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", reject(path, ReasonNotFound, "file not found: %s", path)
		}
		return "", reject(path, ReasonInvalidPath, "invalid file path: %s", path)
	}

	if len(real) > MaxPathLength {
		return "", reject(path, ReasonPathTooLong, "file path too long")
	}

	info, err := os.Stat(real)
	if err != nil {
		return "", reject(path, ReasonNotFound, "file not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return "", reject(path, ReasonNotRegular, "not a regular file: %s", path)
	}

	// Case-sensitive on purpose: SourceKit-LSP only opens lowercase .swift.
	if !strings.HasSuffix(real, ".swift") {
		return "", reject(path, ReasonNotSwift, "not a Swift file (.swift extension required): %s", path)
	}

	maxMB := opts.MaxSizeMB
	if maxMB <= 0 {
		maxMB = DefaultMaxFileSizeMB
	}
	if info.Size() > int64(maxMB)*1024*1024 {
		sizeMB := float64(info.Size()) / (1024 * 1024)
		return "", reject(path, ReasonTooLarge, "file too large: %.1fMB (limit: %dMB)", sizeMB, maxMB)
	}

	f, err := os.Open(real)
	if err != nil {
		return "", reject(path, ReasonNotReadable, "cannot read file: %s", path)
	}
	f.Close()

	if !opts.AllowOutsideCWD {
		cwd, err := os.Getwd()
		if err == nil {
			// Compare resolved forms so a symlinked working directory
			// does not reject its own files.
			if resolved, rerr := filepath.EvalSymlinks(cwd); rerr == nil {
				cwd = resolved
			}
			if real != cwd && !strings.HasPrefix(real, cwd+string(os.PathSeparator)) {
				return "", reject(path, ReasonOutsideCWD, "file is outside current working directory: %s", path)
			}
		}
	}

	return real, nil
}
