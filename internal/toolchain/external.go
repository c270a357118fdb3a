package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// Preparer подготавливает приватную копию toolchain и возвращает её путь.
type Preparer interface {
	Prepare(ctx context.Context, workdir string) (string, error)
}

// ExternalConfig — конфигурация ExternalInvoker.
type ExternalConfig struct {
	Preparer Preparer

	// Interpreter — интерпретатор, например "python".
	Interpreter string

	// Script — скрипт относительно домашнего каталога toolchain.
	Script string

	// LogFile — имя лога в рабочей директории.
	LogFile string

	// SentinelFile — признак отсутствия данных. Пустая строка отключает проверку.
	SentinelFile string

	Logger *slog.Logger
}

// ExternalInvoker запускает toolchain отдельным процессом:
//
//	<interpreter> <home>/main.py <recipe>
//
// с рабочим каталогом <home>. Рабочая директория job — каталог файла рецепта.
type ExternalInvoker struct {
	preparer    Preparer
	interpreter string
	script      string
	logFile     string
	sentinel    string
	logger      *slog.Logger
}

// NewExternalInvoker создаёт ExternalInvoker.
func NewExternalInvoker(cfg ExternalConfig) *ExternalInvoker {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python"
	}
	if cfg.Script == "" {
		cfg.Script = "main.py"
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "log.txt"
	}
	return &ExternalInvoker{
		preparer:    cfg.Preparer,
		interpreter: cfg.Interpreter,
		script:      cfg.Script,
		logFile:     cfg.LogFile,
		sentinel:    cfg.SentinelFile,
		logger:      telemetry.OrDefault(cfg.Logger),
	}
}

// Run реализует Invoker.
func (i *ExternalInvoker) Run(ctx context.Context, recipeFile, configFile string) (*domain.RunResult, error) {
	workdir := filepath.Dir(recipeFile)

	home, err := i.preparer.Prepare(ctx, workdir)
	if err != nil {
		return nil, err
	}

	res := &domain.RunResult{
		LogFile: filepath.Join(workdir, i.logFile),
		WorkDir: filepath.Join(workdir, "work"),
		PlotDir: filepath.Join(workdir, "work", "plots"),
		RunDir:  workdir,
	}

	script := filepath.Join(home, i.script)
	cmd := exec.CommandContext(ctx, i.interpreter, script, recipeFile)
	cmd.Dir = home

	logger := i.logger.With("recipe", recipeFile, "config", configFile)
	logger.Info("running toolchain", "command", cmd.String())

	out, runErr := cmd.CombinedOutput()

	if err := os.WriteFile(res.LogFile, out, 0o644); err != nil {
		return nil, fmt.Errorf("write toolchain log: %w", err)
	}

	if runErr != nil {
		execErr := &ExecutionError{
			Command:  strings.Join(cmd.Args, " "),
			ExitCode: -1,
			Output:   string(out),
			Err:      runErr,
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		logger.Error("toolchain failed", "exit_code", execErr.ExitCode, "log", res.LogFile, "error", runErr)
		return failure(res, execErr), nil
	}

	missing, err := noDataFound(workdir, i.sentinel)
	if err != nil {
		return nil, fmt.Errorf("check sentinel file: %w", err)
	}
	if missing {
		logger.Warn("toolchain found no input data", "sentinel", i.sentinel)
		return missingData(res, workdir, i.sentinel), nil
	}

	res.Outcome = domain.OutcomeSuccess
	logger.Info("toolchain finished", "log", res.LogFile)
	return res, nil
}
