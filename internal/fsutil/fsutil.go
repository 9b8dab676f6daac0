// Package fsutil provides the small file primitives the harness needs for
// log files written by detached processes.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Reader reads the whole content of a file.
// Implementations must treat a missing file as empty content.
type Reader interface {
	ReadAll(path string) string
}

// Writer writes text to a file, replacing any previous content.
type Writer interface {
	WriteText(path, text string) error
}

// OS implements Reader and Writer on the local filesystem.
type OS struct{}

// ReadAll returns the file content, or "" if the file does not exist or
// cannot be read yet. Invalid UTF-8 (a multi-byte sequence cut mid-write)
// is replaced rather than rejected.
func (OS) ReadAll(path string) string {
	return ReadAll(path)
}

// WriteText writes text to path, creating parent directories.
func (OS) WriteText(path, text string) error {
	return WriteText(path, text)
}

// ReadAll is the package-level form of OS.ReadAll.
func ReadAll(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}

// WriteText is the package-level form of OS.WriteText.
func WriteText(path, text string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// IsDir reports whether path exists and is a directory.
// The returned error is nil when path is a directory, and describes why
// it is not usable otherwise.
func IsDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "stat", Path: path, Err: errors.New("not a directory")}
	}
	return nil
}
