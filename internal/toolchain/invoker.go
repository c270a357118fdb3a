// Package toolchain запускает диагностический toolchain для сгенерированного рецепта.
//
// Два способа запуска реализуют общий интерфейс Invoker:
//   - ExternalInvoker — отдельный процесс интерпретатора, вывод в log.txt
//   - InProcessInvoker — вызов entry point Toolchain с разобранной конфигурацией
//
// Оба возвращают domain.RunResult: сбой toolchain не является ошибкой Go,
// а отражается в Outcome. Ошибкой возвращаются только проблемы подготовки запуска.
package toolchain

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shaiso/Copernicus/internal/domain"
)

// DefaultSentinelFile — файл, которым toolchain сообщает об отсутствии данных.
const DefaultSentinelFile = "esgf_coupling_report.txt"

// Invoker запускает toolchain для рецепта и конфигурации.
//
// Таймаут не навязывается: отмена приходит только через ctx.
type Invoker interface {
	Run(ctx context.Context, recipeFile, configFile string) (*domain.RunResult, error)
}

// noDataFound проверяет sentinel-файл в каталоге dir.
func noDataFound(dir, sentinel string) (bool, error) {
	if sentinel == "" {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(dir, sentinel))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// failure заполняет результат для сбоя toolchain.
func failure(res *domain.RunResult, cause error) *domain.RunResult {
	res.Outcome = domain.OutcomeToolchainFailure
	res.Message = cause.Error()
	res.Cause = cause
	return res
}

// missingData заполняет результат для случая "данных нет".
func missingData(res *domain.RunResult, dir, sentinel string) *domain.RunResult {
	res.Outcome = domain.OutcomeNoDataFound
	res.Message = "no input data found, see " + filepath.Join(dir, sentinel)
	res.Cause = ErrNoDataFound
	return res
}
