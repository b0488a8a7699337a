package track

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/stravagpx/internal/activity"
	"github.com/hpungsan/stravagpx/internal/errors"
)

func TestWriteFile_HappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024-01-01_1_Run_-_Run.gpx")
	tr := Align(&activity.StreamBundle{LatLng: positions(3), Time: series(0, 1, 2)}, epoch)

	if err := WriteFile(path, "Run", tr); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	g := decode(t, string(data))
	if len(g.Track.Segment.Points) != 3 {
		t.Errorf("len(trkpt) = %d, want 3", len(g.Track.Segment.Points))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}

	assertNoTempFiles(t, dir)
}

func TestWriteFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.gpx")
	if err := os.WriteFile(path, []byte("stale"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tr := Align(&activity.StreamBundle{LatLng: positions(2)}, epoch)
	if err := WriteFile(path, "fresh", tr); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "<name>fresh</name>") {
		t.Errorf("file was not replaced:\n%s", data)
	}
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "a.gpx")
	tr := Align(&activity.StreamBundle{LatLng: positions(2)}, epoch)

	err := WriteFile(path, "x", tr)
	if !errors.Is(err, errors.ErrWriteFailed) {
		t.Fatalf("WriteFile() error = %v, want WRITE_FAILED", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("file should not exist after failed write")
	}
}

func TestWriteFile_FailedRenameLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the destination makes the final rename fail
	// after the document has been fully written to the temp file.
	path := filepath.Join(dir, "blocked.gpx")
	if err := os.MkdirAll(filepath.Join(path, "child"), 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	tr := Align(&activity.StreamBundle{LatLng: positions(2)}, epoch)
	err := WriteFile(path, "x", tr)
	if !errors.Is(err, errors.ErrWriteFailed) {
		t.Fatalf("WriteFile() error = %v, want WRITE_FAILED", err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil || !info.IsDir() {
		t.Error("destination directory should be untouched")
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFile_RejectsSymlinkDestination(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("keep"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	link := filepath.Join(dir, "link.gpx")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tr := Align(&activity.StreamBundle{LatLng: positions(2)}, epoch)
	if err := WriteFile(link, "x", tr); !errors.Is(err, errors.ErrWriteFailed) {
		t.Fatalf("WriteFile() error = %v, want WRITE_FAILED", err)
	}

	data, _ := os.ReadFile(target)
	if string(data) != "keep" {
		t.Errorf("symlink target modified: %q", data)
	}
	assertNoTempFiles(t, dir)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
