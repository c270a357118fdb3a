package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeTree создаёт файлы с содержимым, равным относительному пути.
func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// listTree возвращает относительные пути всех файлов.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(out)
	return out
}

func TestPreparer_CopiesWithExclusions(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source,
		"main.py",
		"nml/cfg/perfmetrics.ncl",
		"doc/sphinx/index.rst",
		"doc/readme.txt",
		"tests/test_main.py",
		"diag_scripts/tests/helper.py",
		"diag_scripts/plot.pdf",
		"diag_scripts/plot.py",
	)

	workdir := t.TempDir()
	p := NewPreparer(PreparerConfig{Source: source, Name: "esmvaltool"})

	home, err := p.Prepare(context.Background(), workdir)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if home != filepath.Join(workdir, "esmvaltool") {
		t.Errorf("home = %q", home)
	}

	want := []string{
		"diag_scripts/plot.py",
		"doc/readme.txt",
		"main.py",
		"nml/cfg/perfmetrics.ncl",
	}
	if diff := cmp.Diff(want, listTree(t, home)); diff != "" {
		t.Errorf("copied tree mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(home, "main.py"))
	if err != nil || string(data) != "main.py" {
		t.Errorf("main.py content = %q, err = %v", data, err)
	}

	// Временный каталог не остаётся
	entries, _ := os.ReadDir(workdir)
	for _, e := range entries {
		if strings.Contains(e.Name(), "partial") {
			t.Errorf("leftover temp dir %s", e.Name())
		}
	}
}

func TestPreparer_ExistingCopyNotRefreshed(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, "main.py")

	workdir := t.TempDir()
	p := NewPreparer(PreparerConfig{Source: source, Name: "esmvaltool"})

	if _, err := p.Prepare(context.Background(), workdir); err != nil {
		t.Fatal(err)
	}

	// Изменения в источнике после первой подготовки не попадают в копию
	writeTree(t, source, "new_script.py")

	home, err := p.Prepare(context.Background(), workdir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"main.py"}, listTree(t, home)); diff != "" {
		t.Errorf("second Prepare modified copy (-want +got):\n%s", diff)
	}
}

func TestPreparer_HomeIsFile(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, "main.py")

	workdir := t.TempDir()
	writeTree(t, workdir, "esmvaltool")

	p := NewPreparer(PreparerConfig{Source: source, Name: "esmvaltool"})
	_, err := p.Prepare(context.Background(), workdir)

	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected *SetupError, got %v", err)
	}
	if setupErr.Target != filepath.Join(workdir, "esmvaltool") {
		t.Errorf("Target = %q", setupErr.Target)
	}
	if data, _ := os.ReadFile(filepath.Join(workdir, "esmvaltool")); string(data) != "esmvaltool" {
		t.Error("existing file must stay untouched")
	}
}

func TestPreparer_CustomExclude(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, "main.py", "data/big.nc", "doc/sphinx/index.rst")

	p := NewPreparer(PreparerConfig{Source: source, Name: "tc", Exclude: []string{"*.nc"}})
	home, err := p.Prepare(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"doc/sphinx/index.rst", "main.py"}
	if diff := cmp.Diff(want, listTree(t, home)); diff != "" {
		t.Errorf("copied tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPreparer_MissingSource(t *testing.T) {
	workdir := t.TempDir()
	p := NewPreparer(PreparerConfig{Source: filepath.Join(workdir, "nope"), Name: "esmvaltool"})

	_, err := p.Prepare(context.Background(), workdir)
	if !errors.Is(err, ErrSetup) {
		t.Fatalf("expected ErrSetup, got %v", err)
	}

	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected *SetupError, got %T", err)
	}
	if setupErr.Target != filepath.Join(workdir, "esmvaltool") {
		t.Errorf("Target = %q", setupErr.Target)
	}

	// Неудачная подготовка не оставляет копию
	if _, err := os.Stat(filepath.Join(workdir, "esmvaltool")); !os.IsNotExist(err) {
		t.Error("home should not exist after failure")
	}
}

func TestPreparer_Cancelled(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, "main.py", "lib/a.py")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPreparer(PreparerConfig{Source: source, Name: "esmvaltool"})
	_, err := p.Prepare(ctx, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
