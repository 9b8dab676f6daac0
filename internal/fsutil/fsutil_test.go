package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadAll_MissingFile(t *testing.T) {
	got := ReadAll(filepath.Join(t.TempDir(), "nope.txt"))
	if got != "" {
		t.Errorf("ReadAll(missing) = %q, want empty", got)
	}
}

func TestReadAll_InvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	// "é" is 0xC3 0xA9; cut after the first byte as a writer mid-flush would.
	if err := os.WriteFile(path, []byte("ok \xc3"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := ReadAll(path)
	if got != "ok �" {
		t.Errorf("ReadAll = %q, want %q", got, "ok �")
	}
}

func TestWriteText_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "log.txt")

	if err := WriteText(path, "header\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if got := (OS{}).ReadAll(path); got != "header\n" {
		t.Errorf("content = %q, want %q", got, "header\n")
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"directory", dir, false},
		{"regular_file", file, true},
		{"missing", filepath.Join(dir, "missing"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := IsDir(tc.path)
			if (err != nil) != tc.wantErr {
				t.Errorf("IsDir(%q) error = %v, wantErr %v", tc.path, err, tc.wantErr)
			}
		})
	}
}
