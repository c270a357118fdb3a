package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COPERNICUS_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Toolchain.Style != StyleInProcess {
		t.Errorf("expected inprocess style by default, got %q", cfg.Toolchain.Style)
	}
	want := []string{"doc/sphinx", "tests", "*.pdf"}
	if diff := cmp.Diff(want, cfg.Toolchain.Exclude); diff != "" {
		t.Errorf("exclude patterns mismatch (-want +got):\n%s", diff)
	}
	if cfg.Storage.Enabled() {
		t.Error("storage should be disabled without endpoint")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copernicus.yml")
	content := `
data:
  archive_root: /mnt/archive
  obs_root: /mnt/obs
toolchain:
  style: external
  exclude: [tests]
worker:
  concurrency: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COPERNICUS_CONFIG", path)
	t.Setenv("OBS_ROOT", "/env/obs")
	t.Setenv("WORKER_POLL_INTERVAL", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Data.ArchiveRoot != "/mnt/archive" {
		t.Errorf("archive root from file expected, got %q", cfg.Data.ArchiveRoot)
	}
	// Окружение перекрывает файл
	if cfg.Data.ObsRoot != "/env/obs" {
		t.Errorf("obs root from env expected, got %q", cfg.Data.ObsRoot)
	}
	if cfg.Toolchain.Style != StyleExternal {
		t.Errorf("expected external style, got %q", cfg.Toolchain.Style)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.PollInterval != 3*time.Second {
		t.Errorf("expected poll interval 3s, got %v", cfg.Worker.PollInterval)
	}
	// Значения, не заданные в файле, остаются по умолчанию
	if cfg.Toolchain.Name != "esmvaltool" {
		t.Errorf("expected default toolchain name, got %q", cfg.Toolchain.Name)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad int", "WORKER_CONCURRENCY", "many"},
		{"bad duration", "WORKER_POLL_INTERVAL", "soon"},
		{"bad bool", "MINIO_USE_SSL", "maybe"},
		{"bad style", "TOOLCHAIN_STYLE", "docker"},
		{"zero tick", "SCHED_TICK_INTERVAL", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COPERNICUS_CONFIG", "")
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestValidate_StorageWithoutCredentials(t *testing.T) {
	cfg := Default()
	cfg.Storage.Endpoint = "localhost:9000"

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c")

	got := List("TEST_LIST", nil)
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	if got := List("TEST_LIST_MISSING", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("expected default, got %v", got)
	}
}
