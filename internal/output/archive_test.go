package output

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer r.Close()

	out := make(map[string]string)
	for _, f := range r.File {
		if f.Method != zip.Deflate {
			t.Errorf("%s: method = %d, want deflate", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestArchive_RoundTrip(t *testing.T) {
	src := t.TempDir()
	touch(t, src,
		"recipe_20180601_123045/plots/zmnam/main/a.png",
		"recipe_20180601_123045/run/main_log.txt",
		"top.txt",
	)

	dest := filepath.Join(t.TempDir(), "diagnostic_result.zip")
	got, err := Archive(src, dest)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if got != dest {
		t.Errorf("returned %q, want %q", got, dest)
	}

	want := map[string]string{
		"recipe_20180601_123045/plots/zmnam/main/a.png": "recipe_20180601_123045/plots/zmnam/main/a.png",
		"recipe_20180601_123045/run/main_log.txt":       "recipe_20180601_123045/run/main_log.txt",
		"top.txt": "top.txt",
	}
	if diff := cmp.Diff(want, readArchive(t, dest)); diff != "" {
		t.Errorf("archive content mismatch (-want +got):\n%s", diff)
	}
}

func TestArchive_Overwrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	touch(t, src, "a.txt")
	if _, err := Archive(src, dest); err != nil {
		t.Fatal(err)
	}

	names := make([]string, 0)
	for name := range readArchive(t, dest) {
		names = append(names, name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"a.txt"}, names); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestArchive_DestInsideSource(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "a.txt")

	dest := filepath.Join(src, "result.zip")
	if _, err := Archive(src, dest); err != nil {
		t.Fatal(err)
	}
	if _, ok := readArchive(t, dest)["result.zip"]; ok {
		t.Error("archive must not contain itself")
	}
}

func TestArchive_MissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	if _, err := Archive(filepath.Join(t.TempDir(), "missing"), dest); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("archive should not be created")
	}
}
