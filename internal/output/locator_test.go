package output

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, root string, files ...string) {
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

func TestLocator_Find(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"ta850/cycle/ta_cycle_monthlyclim__Glob.pdf",
		"zmnam/main/CMIP5_EC-EARTH_25000Pa_da_pdf.png",
		"zmnam/main/CMIP5_EC-EARTH_25000Pa_mo_reg.png",
		"zmnam/main/CMIP5_EC-EARTH_25000Pa_mo_ts.png",
		"zmnam/main/CMIP5_EC-EARTH_50000Pa_mo_ts.png",
	)

	tests := []struct {
		name        string
		pathPattern string
		namePattern string
		ext         string
		want        string
		wantErr     bool
	}{
		{"single match", "ta850/cycle", "ta_cycle_monthlyclim__Glob", "pdf", "ta850/cycle/ta_cycle_monthlyclim__Glob.pdf", false},
		{"wildcard path", "*/main", "CMIP5*25000Pa_da_pdf", "png", "zmnam/main/CMIP5_EC-EARTH_25000Pa_da_pdf.png", false},
		{"default name pattern", "ta850/cycle", "", "pdf", "ta850/cycle/ta_cycle_monthlyclim__Glob.pdf", false},
		{"first of many", "zmnam/main", "CMIP5*_mo_ts", "png", "zmnam/main/CMIP5_EC-EARTH_25000Pa_mo_ts.png", false},
		{"zero matches", "zmnam/main", "*", "nc", "", true},
		{"missing dir", "nope", "*", "png", "", true},
	}

	l := NewLocator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Find(root, tt.pathPattern, tt.namePattern, tt.ext)
			if tt.wantErr {
				if !errors.Is(err, ErrOutputNotFound) {
					t.Fatalf("expected ErrOutputNotFound, got %v", err)
				}
				var nf *NotFoundError
				if !errors.As(err, &nf) || !strings.HasPrefix(nf.Pattern, root) {
					t.Errorf("NotFoundError should carry the pattern, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != filepath.Join(root, filepath.FromSlash(tt.want)) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocator_Find_WarnsOnMultiple(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "plots/b.png", "plots/a.png")

	var buf bytes.Buffer
	l := NewLocator(slog.New(slog.NewTextHandler(&buf, nil)))

	got, err := l.Find(root, "plots", "*", "png")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "plots", "a.png") {
		t.Errorf("got %q, want first match in glob order", got)
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "b.png") {
		t.Errorf("expected warning naming all matches, log:\n%s", buf.String())
	}
}

func TestLocator_Resolve(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "zmnam/main/CMIP5_x_25000Pa_mo_reg.png", "exact/result.png")

	tests := []struct {
		name    string
		d       Descriptor
		want    string
		wantErr error
	}{
		{
			name: "exact path",
			d:    Descriptor{Version: 1, Name: "plot", Path: "exact/result.png"},
			want: "exact/result.png",
		},
		{
			name: "fallback to search",
			d: Descriptor{Version: 1, Name: "plot_reg", Path: "zmnam/main/missing.png",
				Pattern: "zmnam/main", NamePattern: "CMIP5*25000Pa_mo_reg", Ext: "png"},
			want: "zmnam/main/CMIP5_x_25000Pa_mo_reg.png",
		},
		{
			name: "search only",
			d:    Descriptor{Name: "plot_reg", Pattern: "zmnam/*", NamePattern: "*_mo_reg", Ext: "png"},
			want: "zmnam/main/CMIP5_x_25000Pa_mo_reg.png",
		},
		{
			name:    "missing path without fallback",
			d:       Descriptor{Version: 1, Name: "plot", Path: "exact/missing.png"},
			wantErr: ErrOutputNotFound,
		},
		{
			name:    "future version",
			d:       Descriptor{Version: DescriptorVersion + 1, Name: "plot", Path: "exact/result.png"},
			wantErr: ErrUnsupportedDescriptor,
		},
	}

	l := NewLocator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Resolve(root, tt.d)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != filepath.Join(root, filepath.FromSlash(tt.want)) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
