package main

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTempSource writes src to a real file and returns its path, since
// newLexer opens the translation unit with os.Open rather than accepting an
// in-memory reader.
func writeTempSource(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.c")
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("writing temp source: %v", err)
	}
	return path
}
