package recipe

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Copernicus/internal/config"
	"github.com/shaiso/Copernicus/internal/domain"
)

func TestDefaultRegistry(t *testing.T) {
	tests := []struct {
		flavor Flavor
		diags  []string
		recipe string
	}{
		{FlavorRecipe, []string{"perfmetrics", "rainfarm", "zmnam"}, "recipe.yml"},
		{FlavorNamelist, []string{"perfmetrics"}, "namelist.xml"},
	}

	for _, tt := range tests {
		t.Run(string(tt.flavor), func(t *testing.T) {
			reg, err := DefaultRegistry(tt.flavor)
			if err != nil {
				t.Fatalf("DefaultRegistry: %v", err)
			}
			got := reg.Diagnostics()
			if strings.Join(got, ",") != strings.Join(tt.diags, ",") {
				t.Errorf("diagnostics = %v, want %v", got, tt.diags)
			}
			if reg.Layout().RecipeFile != tt.recipe {
				t.Errorf("recipe file = %q, want %q", reg.Layout().RecipeFile, tt.recipe)
			}
		})
	}
}

func TestFlavorForStyle(t *testing.T) {
	if got := FlavorForStyle(config.StyleExternal); got != FlavorNamelist {
		t.Errorf("external style flavor = %q, want %q", got, FlavorNamelist)
	}
	if got := FlavorForStyle(config.StyleInProcess); got != FlavorRecipe {
		t.Errorf("inprocess style flavor = %q, want %q", got, FlavorRecipe)
	}
}

func TestNewRegistry_FailFast(t *testing.T) {
	fsys := fstest.MapFS{
		"config.yml.tmpl": {Data: []byte("output_dir: {{ .OutputDir }}\n")},
		"broken.yml.tmpl": {Data: []byte("diag: {{ .Diag \n")},
	}

	// Отсутствующий шаблон
	_, err := NewRegistry(fsys, FlavorRecipe, map[string]string{"x": "missing.yml.tmpl"})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}

	// Некорректный шаблон
	_, err = NewRegistry(fsys, FlavorRecipe, map[string]string{"x": "broken.yml.tmpl"})
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}

	// Неизвестный формат
	_, err = NewRegistry(fsys, Flavor("cwl"), nil)
	if !errors.Is(err, ErrUnknownFlavor) {
		t.Errorf("expected ErrUnknownFlavor, got %v", err)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg, err := DefaultRegistry(FlavorRecipe)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Lookup("nonexistent"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
	if reg.Has("nonexistent") {
		t.Error("Has should be false for unknown diagnostic")
	}
}

func TestRegistry_RenderRecipe_ValidYAML(t *testing.T) {
	reg, err := DefaultRegistry(FlavorRecipe)
	if err != nil {
		t.Fatal(err)
	}

	constraints := domain.Constraints{}
	constraints.Set(domain.DimModel, "MPI-ESM-LR").
		Set(domain.DimExperiment, "historical").
		Set(domain.DimEnsemble, "r1i1p1")

	options := map[string]any{
		"subset":          "4,13,44,53",
		"regridding":      true,
		"slope":           0,
		"num_ens_members": 2,
		"num_subdivs":     8,
	}

	for _, diag := range reg.Diagnostics() {
		t.Run(diag, func(t *testing.T) {
			out, err := reg.RenderRecipe(diag, RecipeData{
				Diag:        diag,
				Workdir:     "/tmp/job",
				StartYear:   2000,
				EndYear:     2001,
				Constraints: constraints,
				Options:     options,
			})
			if err != nil {
				t.Fatalf("RenderRecipe: %v", err)
			}

			var doc map[string]any
			if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
				t.Fatalf("rendered recipe is not valid YAML: %v\n%s", err, out)
			}

			datasets, ok := doc["datasets"].([]any)
			if !ok || len(datasets) == 0 {
				t.Fatalf("datasets missing in %s", out)
			}
			first := datasets[0].(map[string]any)
			if first["dataset"] != "MPI-ESM-LR" {
				t.Errorf("dataset = %v, want MPI-ESM-LR", first["dataset"])
			}
			if first["start_year"] != 2000 || first["end_year"] != 2001 {
				t.Errorf("years = %v..%v, want 2000..2001", first["start_year"], first["end_year"])
			}
			if _, ok := doc["diagnostics"].(map[string]any)[diag]; !ok {
				t.Errorf("diagnostic %s missing in recipe", diag)
			}
		})
	}
}

func TestRegistry_RenderRecipe_MultipleCandidates(t *testing.T) {
	reg, err := DefaultRegistry(FlavorRecipe)
	if err != nil {
		t.Fatal(err)
	}

	constraints := domain.Constraints{}
	constraints.Add(domain.DimModel, "MPI-ESM-LR").
		Add(domain.DimModel, "MPI-ESM-MR").
		Set(domain.DimExperiment, "historical").
		Set(domain.DimEnsemble, "r1i1p1")

	out, err := reg.RenderRecipe("zmnam", RecipeData{Constraints: constraints, StartYear: 1980, EndYear: 1989})
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Datasets []map[string]any `yaml:"datasets"`
	}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Datasets) != 2 {
		t.Errorf("expected 2 datasets, got %d", len(doc.Datasets))
	}
}

func TestRegistry_RenderRecipe_RainfarmRegion(t *testing.T) {
	reg, err := DefaultRegistry(FlavorRecipe)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		options   map[string]any
		wantRegid bool
		wantLon   int
	}{
		{"defaults", nil, false, 4},
		{"custom subset", map[string]any{"subset": "5, 15, 40, 50", "regridding": true}, true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := reg.RenderRecipe("rainfarm", RecipeData{Constraints: domain.Constraints{}, Options: tt.options})
			if err != nil {
				t.Fatal(err)
			}
			var doc struct {
				Preprocessors map[string]map[string]map[string]any `yaml:"preprocessors"`
			}
			if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
				t.Fatalf("invalid YAML: %v\n%s", err, out)
			}
			pp := doc.Preprocessors["preproc"]
			if got := pp["extract_region"]["start_longitude"]; got != tt.wantLon {
				t.Errorf("start_longitude = %v, want %d", got, tt.wantLon)
			}
			if _, ok := pp["regrid"]; ok != tt.wantRegid {
				t.Errorf("regrid present = %v, want %v", ok, tt.wantRegid)
			}
		})
	}
}

func TestRegistry_RenderConfig(t *testing.T) {
	reg, err := DefaultRegistry(FlavorRecipe)
	if err != nil {
		t.Fatal(err)
	}

	out, err := reg.RenderConfig(ConfigData{
		ArchiveRoot:  "/data/cmip5",
		ObsRoot:      "/data/obs",
		OutputDir:    "/tmp/job/output",
		OutputFormat: "png",
	})
	if err != nil {
		t.Fatal(err)
	}

	var cfg struct {
		OutputDir      string            `yaml:"output_dir"`
		OutputFileType string            `yaml:"output_file_type"`
		RootPath       map[string]string `yaml:"rootpath"`
	}
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/tmp/job/output" {
		t.Errorf("output_dir = %q", cfg.OutputDir)
	}
	if cfg.OutputFileType != "png" {
		t.Errorf("output_file_type = %q", cfg.OutputFileType)
	}
	if cfg.RootPath["CMIP5"] != "/data/cmip5" || cfg.RootPath["OBS"] != "/data/obs" {
		t.Errorf("rootpath = %v", cfg.RootPath)
	}
}

func TestRenderString(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     any
		expected string
		wantErr  error
	}{
		{"plain", "Plain text", nil, "Plain text", nil},
		{"default", `{{ default "Amon" .Table }}`, struct{ Table string }{}, "Amon", nil},
		{"join", `{{ join "," .Items }}`, struct{ Items []string }{[]string{"a", "b"}}, "a,b", nil},
		{"quote", `{{ quote .S }}`, struct{ S string }{"x y"}, `"x y"`, nil},
		{"yesno", `{{ yesno .B }}`, struct{ B string }{"1"}, "true", nil},
		{"parse error", "{{ .Broken ", nil, "", ErrTemplateParse},
		{"render error", "{{ .Missing.Field }}", struct{}{}, "", ErrTemplateRender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderString(tt.template, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
