// Package fsperm checks that secrets written to disk are private to the
// owner.
package fsperm

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// AssertPrivateFile fails t unless path is a regular file with mode 0600
// inside a directory with mode 0700.
func AssertPrivateFile(t testing.TB, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		t.Fatalf("expected a regular file at %s, got %v", path, info.Mode())
	}
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected file perm 0600, got %04o for %s", perm, path)
	}
	dir := filepath.Dir(path)
	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat %s: %v", dir, err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Fatalf("expected dir perm 0700, got %04o for %s", perm, dir)
	}
}
