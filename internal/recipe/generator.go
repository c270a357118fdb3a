package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// Значения по умолчанию для запроса генерации.
const (
	DefaultStartYear    = 2000
	DefaultEndYear      = 2005
	DefaultOutputFormat = "pdf"

	// OutputDirName — подкаталог workdir, куда toolchain пишет результаты.
	OutputDirName = "output"
)

// Preparer подготавливает приватную копию toolchain в рабочей директории.
// Возвращает путь к домашнему каталогу toolchain.
type Preparer interface {
	Prepare(ctx context.Context, workdir string) (string, error)
}

// Request — параметры генерации рецепта.
type Request struct {
	// Diagnostic — идентификатор диагностики (ключ реестра шаблонов).
	Diagnostic string

	// Constraints — ограничения поиска данных.
	Constraints domain.Constraints

	// Options — произвольные параметры диагностики.
	Options map[string]any

	StartYear    int
	EndYear      int
	OutputFormat string

	// Workdir — рабочая директория job. Пустая строка — текущий каталог.
	Workdir string
}

// Files — пути к сгенерированным файлам (абсолютные).
type Files struct {
	Recipe        string
	Config        string
	OutputDir     string
	ToolchainHome string
}

// GeneratorConfig — конфигурация генератора.
type GeneratorConfig struct {
	Registry *Registry

	// Preparer — подготовка toolchain. nil — шаг пропускается.
	Preparer Preparer

	ArchiveRoot string
	ObsRoot     string

	Logger *slog.Logger
}

// Generator генерирует конфигурацию и рецепт в рабочей директории job.
type Generator struct {
	registry    *Registry
	preparer    Preparer
	archiveRoot string
	obsRoot     string
	logger      *slog.Logger
}

// NewGenerator создаёт генератор.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{
		registry:    cfg.Registry,
		preparer:    cfg.Preparer,
		archiveRoot: cfg.ArchiveRoot,
		obsRoot:     cfg.ObsRoot,
		logger:      telemetry.OrDefault(cfg.Logger),
	}
}

// Registry возвращает реестр шаблонов генератора.
func (g *Generator) Registry() *Registry {
	return g.registry
}

// Generate пишет файл конфигурации и рецепт в req.Workdir.
//
// Неизвестная диагностика отклоняется до создания каких-либо файлов.
// Семантическая корректность ограничений не проверяется.
func (g *Generator) Generate(ctx context.Context, req Request) (*Files, error) {
	if _, err := g.registry.Lookup(req.Diagnostic); err != nil {
		return nil, err
	}

	workdir := req.Workdir
	if workdir == "" {
		workdir = "."
	}
	workdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFile, err)
	}

	home := ""
	if g.preparer != nil {
		home, err = g.preparer.Prepare(ctx, workdir)
		if err != nil {
			return nil, err
		}
	}

	format := req.OutputFormat
	if format == "" {
		format = DefaultOutputFormat
	}
	startYear, endYear := req.StartYear, req.EndYear
	if startYear == 0 {
		startYear = DefaultStartYear
	}
	if endYear == 0 {
		endYear = DefaultEndYear
	}
	constraints := req.Constraints
	if constraints == nil {
		constraints = domain.Constraints{}
	}

	layout := g.registry.Layout()
	files := &Files{
		Recipe:        filepath.Join(workdir, layout.RecipeFile),
		Config:        filepath.Join(workdir, layout.ConfigFile),
		OutputDir:     filepath.Join(workdir, OutputDirName),
		ToolchainHome: home,
	}

	// Рендерим оба файла до записи, чтобы ошибка рендеринга не оставляла половину результата.
	config, err := g.registry.RenderConfig(ConfigData{
		ArchiveRoot:  g.archiveRoot,
		ObsRoot:      g.obsRoot,
		OutputDir:    files.OutputDir,
		OutputFormat: format,
		Workdir:      workdir,
	})
	if err != nil {
		return nil, err
	}

	recipe, err := g.registry.RenderRecipe(req.Diagnostic, RecipeData{
		Diag:         req.Diagnostic,
		Workdir:      workdir,
		Prefix:       home,
		ObsRoot:      g.obsRoot,
		OutputFormat: format,
		StartYear:    startYear,
		EndYear:      endYear,
		Constraints:  constraints,
		Options:      req.Options,
	})
	if err != nil {
		return nil, err
	}

	if err := writeFile(files.Config, config); err != nil {
		return nil, err
	}
	if err := writeFile(files.Recipe, recipe); err != nil {
		return nil, err
	}

	g.logger.Debug("recipe generated",
		"diagnostic", req.Diagnostic,
		"flavor", g.registry.Flavor(),
		"constraints", constraints.String(),
		"recipe", files.Recipe,
		"config", files.Config,
	)

	return files, nil
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFile, path, err)
	}
	return nil
}
