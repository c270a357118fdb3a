package recipe

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/shaiso/Copernicus/internal/config"
	"github.com/shaiso/Copernicus/internal/domain"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// Flavor — формат файлов, которые понимает toolchain.
type Flavor string

const (
	// FlavorRecipe — текущий toolchain: config.yml + recipe.yml.
	FlavorRecipe Flavor = "recipe"

	// FlavorNamelist — старый toolchain: esgf_config.xml + namelist.xml.
	FlavorNamelist Flavor = "namelist"
)

// FlavorForStyle возвращает формат файлов для стиля запуска toolchain:
// внешний процесс понимает только namelist.
func FlavorForStyle(style string) Flavor {
	if style == config.StyleExternal {
		return FlavorNamelist
	}
	return FlavorRecipe
}

// Layout — имена шаблона конфигурации и итоговых файлов для формата.
type Layout struct {
	ConfigTemplate string
	ConfigFile     string
	RecipeFile     string
}

var layouts = map[Flavor]Layout{
	FlavorRecipe: {
		ConfigTemplate: "config.yml.tmpl",
		ConfigFile:     "config.yml",
		RecipeFile:     "recipe.yml",
	},
	FlavorNamelist: {
		ConfigTemplate: "esgf_config.xml.tmpl",
		ConfigFile:     "esgf_config.xml",
		RecipeFile:     "namelist.xml",
	},
}

// DefaultDiagnostics — встроенное соответствие "диагностика → шаблон рецепта".
func DefaultDiagnostics(flavor Flavor) map[string]string {
	switch flavor {
	case FlavorNamelist:
		return map[string]string{
			"perfmetrics": "namelist_perfmetrics.xml.tmpl",
		}
	default:
		return map[string]string{
			"perfmetrics": "recipe_perfmetrics.yml.tmpl",
			"zmnam":       "recipe_zmnam.yml.tmpl",
			"rainfarm":    "recipe_rainfarm.yml.tmpl",
		}
	}
}

// ConfigData — данные для шаблона конфигурации.
type ConfigData struct {
	ArchiveRoot  string
	ObsRoot      string
	OutputDir    string
	OutputFormat string
	Workdir      string
}

// RecipeData — данные для шаблона рецепта.
//
// Доступ из шаблона:
//   - {{ .Constraints.First "model" }}
//   - {{ range .Constraints.Values "ensemble" }}...{{ end }}
//   - {{ .Options.slope }}
type RecipeData struct {
	Diag         string
	Workdir      string
	Prefix       string
	ObsRoot      string
	OutputFormat string
	StartYear    int
	EndYear      int
	Constraints  domain.Constraints
	Options      map[string]any
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// split — разбивает строку на слайс с обрезкой пробелов
	"split": func(sep, s string) []string {
		parts := strings.Split(s, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	},

	// quote — строка в двойных кавычках (YAML/JSON совместимо)
	"quote": strconv.Quote,

	// yesno — bool в виде true/false для YAML
	"yesno": func(v any) string {
		switch b := v.(type) {
		case bool:
			return strconv.FormatBool(b)
		case string:
			ok, _ := strconv.ParseBool(b)
			return strconv.FormatBool(ok)
		default:
			return "false"
		}
	},

	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// Registry — реестр разобранных шаблонов одного формата.
//
// Создаётся один раз при старте и дальше только читается,
// поэтому безопасен для конкурентного использования.
type Registry struct {
	flavor  Flavor
	layout  Layout
	config  *template.Template
	recipes map[string]*template.Template
}

// NewRegistry разбирает шаблон конфигурации и все шаблоны рецептов из fsys.
//
// diagnostics — явная карта "диагностика → имя файла шаблона".
// Отсутствующий или некорректный шаблон — ошибка при создании реестра.
func NewRegistry(fsys fs.FS, flavor Flavor, diagnostics map[string]string) (*Registry, error) {
	layout, ok := layouts[flavor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlavor, flavor)
	}

	config, err := parse(fsys, layout.ConfigTemplate)
	if err != nil {
		return nil, err
	}

	recipes := make(map[string]*template.Template, len(diagnostics))
	for diag, resource := range diagnostics {
		t, err := parse(fsys, resource)
		if err != nil {
			return nil, fmt.Errorf("diagnostic %s: %w", diag, err)
		}
		recipes[diag] = t
	}

	return &Registry{
		flavor:  flavor,
		layout:  layout,
		config:  config,
		recipes: recipes,
	}, nil
}

// DefaultRegistry создаёт реестр из встроенных шаблонов.
func DefaultRegistry(flavor Flavor) (*Registry, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return NewRegistry(sub, flavor, DefaultDiagnostics(flavor))
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	t, err := template.New(name).Funcs(templateFuncs).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateParse, name, err)
	}
	return t, nil
}

// Flavor возвращает формат реестра.
func (r *Registry) Flavor() Flavor { return r.flavor }

// Layout возвращает имена итоговых файлов.
func (r *Registry) Layout() Layout { return r.layout }

// Has проверяет, зарегистрирована ли диагностика.
func (r *Registry) Has(diag string) bool {
	_, ok := r.recipes[diag]
	return ok
}

// Diagnostics возвращает зарегистрированные диагностики в отсортированном порядке.
func (r *Registry) Diagnostics() []string {
	out := make([]string, 0, len(r.recipes))
	for diag := range r.recipes {
		out = append(out, diag)
	}
	sort.Strings(out)
	return out
}

// Lookup возвращает шаблон рецепта для диагностики.
func (r *Registry) Lookup(diag string) (*template.Template, error) {
	t, ok := r.recipes[diag]
	if !ok {
		return nil, fmt.Errorf("%w: diagnostic %q", ErrTemplateNotFound, diag)
	}
	return t, nil
}

// RenderConfig рендерит конфигурацию toolchain.
func (r *Registry) RenderConfig(data ConfigData) (string, error) {
	return Render(r.config, data)
}

// RenderRecipe рендерит рецепт диагностики.
func (r *Registry) RenderRecipe(diag string, data RecipeData) (string, error) {
	t, err := r.Lookup(diag)
	if err != nil {
		return "", err
	}
	return Render(t, data)
}

// Render исполняет разобранный шаблон с данными.
func Render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateRender, t.Name(), err)
	}
	return buf.String(), nil
}

// RenderString разбирает и рендерит строковый шаблон.
// Строка без шаблонных выражений возвращается как есть.
func RenderString(tmpl string, data any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return Render(t, data)
}
