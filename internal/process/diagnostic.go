package process

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/output"
	"github.com/shaiso/Copernicus/internal/recipe"
	"github.com/shaiso/Copernicus/internal/telemetry"
	"github.com/shaiso/Copernicus/internal/toolchain"
)

// Runtime — общие зависимости диагностических процессов.
type Runtime struct {
	Generator *recipe.Generator
	Invoker   toolchain.Invoker
	Locator   *output.Locator
	Logger    *slog.Logger
}

// diagnostic — процесс "сгенерировать рецепт → запустить toolchain → собрать результаты".
type diagnostic struct {
	desc Description

	// diag — ключ в реестре шаблонов.
	diag   string
	format string

	constraints func(Values) domain.Constraints
	options     func(Values) map[string]any

	// plots — результаты, которые ищутся в каталоге графиков.
	plots []output.Descriptor

	// success — публиковать литерал success.
	success bool

	// archive — упаковать каталог output в zip.
	archive bool

	rt Runtime
}

func (d *diagnostic) Description() Description {
	return d.desc
}

// Execute реализует Process.
func (d *diagnostic) Execute(ctx context.Context, req *Request) (*Result, error) {
	logger := telemetry.WithProcess(telemetry.OrDefault(d.rt.Logger), d.desc.ID).
		With("job_id", req.JobID)

	req.status("starting ...", 0)

	constraints := d.constraints(req.Inputs)
	var options map[string]any
	if d.options != nil {
		options = d.options(req.Inputs)
	}

	req.status("generate recipe ...", 10)
	files, err := d.rt.Generator.Generate(ctx, recipe.Request{
		Diagnostic:   d.diag,
		Constraints:  constraints,
		Options:      options,
		StartYear:    req.Inputs.Int("start_year"),
		EndYear:      req.Inputs.Int("end_year"),
		OutputFormat: d.format,
		Workdir:      req.Workspace.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("generate recipe: %w", err)
	}

	req.status("running diagnostic ...", 20)
	started := time.Now()
	run, err := d.rt.Invoker.Run(ctx, files.Recipe, files.Config)
	if err != nil {
		return nil, fmt.Errorf("run diagnostic: %w", err)
	}
	telemetry.ObserveDiagnostic(d.desc.ID, string(run.Outcome), time.Since(started))

	result := &Result{
		Outputs: map[string]string{"log": run.LogFile},
		Outcome: run.Outcome,
	}
	if d.success {
		result.Outputs["success"] = strconv.FormatBool(run.Success())
	}

	if !run.Success() {
		logger.Error("diagnostic failed",
			"outcome", run.Outcome,
			"log", run.LogFile,
			"error", run.Err(),
		)
		result.Message = run.Message
		return result, nil
	}

	result.Outputs["recipe"] = files.Recipe

	req.status("collecting output ...", 80)
	for _, plot := range d.plots {
		path, err := d.rt.Locator.Resolve(run.PlotDir, plot)
		if err != nil {
			telemetry.OutputMissing(d.desc.ID, plot.Name)
			return d.partial(run, fmt.Errorf("collect %s: %w", plot.Name, err))
		}
		result.Outputs[plot.Name] = path
	}

	if d.archive {
		req.status("creating archive of diagnostic result ...", 90)
		dest, err := output.Archive(files.OutputDir, req.Workspace.ArchiveFile())
		if err != nil {
			return d.partial(run, fmt.Errorf("archive output: %w", err))
		}
		result.Outputs["archive"] = dest
	}

	result.Success = true
	logger.Info("diagnostic finished", "outputs", len(result.Outputs))
	req.status("done.", 100)
	return result, nil
}

// partial возвращает ошибку после успешного запуска toolchain
// вместе с результатом, в котором есть только лог запуска.
func (d *diagnostic) partial(run *domain.RunResult, err error) (*Result, error) {
	result := &Result{
		Outputs: map[string]string{"log": run.LogFile},
		Outcome: run.Outcome,
		Message: err.Error(),
	}
	if d.success {
		result.Outputs["success"] = "false"
	}
	return result, err
}

// yearRange проверяет, что start_year не больше end_year.
func yearRange(v Values) error {
	if v.Int("start_year") > v.Int("end_year") {
		return fmt.Errorf("start_year %d is after end_year %d", v.Int("start_year"), v.Int("end_year"))
	}
	return nil
}

// modelExperimentEnsemble — стандартный набор параметров выбора данных.
func modelExperimentEnsemble(models, experiments, ensembles []string, years Range, defaults [2]int) []Input {
	inputs := []Input{
		{
			Name:          "model",
			Title:         "Model",
			Abstract:      "Choose a model like " + models[0] + ".",
			Type:          TypeString,
			AllowedValues: models,
			Default:       models[0],
		},
		{
			Name:          "experiment",
			Title:         "Experiment",
			Abstract:      "Choose an experiment like " + experiments[0] + ".",
			Type:          TypeString,
			AllowedValues: experiments,
			Default:       experiments[0],
		},
	}
	if len(ensembles) > 0 {
		inputs = append(inputs, Input{
			Name:          "ensemble",
			Title:         "Ensemble",
			Abstract:      "Choose an ensemble like " + ensembles[0] + ".",
			Type:          TypeString,
			AllowedValues: ensembles,
			Default:       ensembles[0],
		})
	}
	return append(inputs,
		Input{
			Name:     "start_year",
			Title:    "Start year",
			Abstract: "Start year of model data.",
			Type:     TypeInteger,
			Default:  strconv.Itoa(defaults[0]),
			Range:    &Range{Min: years.Min, Max: years.Max},
		},
		Input{
			Name:     "end_year",
			Title:    "End year",
			Abstract: "End year of model data.",
			Type:     TypeInteger,
			Default:  strconv.Itoa(defaults[1]),
			Range:    &Range{Min: years.Min, Max: years.Max},
		},
	)
}

// defaultOutputs — результаты, общие для всех диагностик.
func defaultOutputs() []Output {
	return []Output{
		{Name: "recipe", Title: "Recipe", Abstract: "Recipe used for processing.", MimeType: "text/plain"},
		{Name: "log", Title: "Log File", Abstract: "Log file of the toolchain run.", MimeType: "text/plain"},
	}
}

// selection строит ограничения поиска из model/experiment/ensemble.
func selection(v Values) domain.Constraints {
	c := domain.Constraints{}
	c.Set(domain.DimModel, v.String("model")).
		Set(domain.DimExperiment, v.String("experiment"))
	if e := v.String("ensemble"); e != "" {
		c.Set(domain.DimEnsemble, e)
	}
	return c
}

// NewDefaultRegistry регистрирует встроенные процессы, для которых
// в реестре шаблонов генератора есть рецепт.
func NewDefaultRegistry(rt Runtime) *Registry {
	r := NewRegistry()
	for _, d := range []*diagnostic{
		newPerfmetrics(rt),
		newStratosphereTroposphere(rt),
		newRainfarm(rt),
	} {
		if rt.Generator.Registry().Has(d.diag) {
			r.Register(d)
		}
	}
	return r
}

// NewCatalog возвращает реестр процессов, доступных при данном формате
// шаблонов. Процессы каталога нельзя выполнять: у них нет invoker.
func NewCatalog(flavor recipe.Flavor, logger *slog.Logger) (*Registry, error) {
	templates, err := recipe.DefaultRegistry(flavor)
	if err != nil {
		return nil, err
	}
	return NewDefaultRegistry(Runtime{
		Generator: recipe.NewGenerator(recipe.GeneratorConfig{Registry: templates, Logger: logger}),
		Logger:    logger,
	}), nil
}
