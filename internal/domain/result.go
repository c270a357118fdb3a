package domain

import "errors"

// Outcome — вариант результата запуска toolchain.
type Outcome string

const (
	// OutcomeSuccess — toolchain завершился успешно.
	OutcomeSuccess Outcome = "SUCCESS"

	// OutcomeToolchainFailure — toolchain упал (ненулевой код выхода или ошибка entry point).
	OutcomeToolchainFailure Outcome = "TOOLCHAIN_FAILURE"

	// OutcomeNoDataFound — toolchain отработал, но в архиве не нашлось данных
	// (обнаружен sentinel-файл).
	OutcomeNoDataFound Outcome = "NO_DATA_FOUND"
)

// RunResult — результат одного запуска toolchain.
//
// Создаётся один раз на вызов и дальше не меняется. Каталоги определяет
// сам toolchain (схема имён и timestamp), мы лишь читаем их из его конфигурации.
type RunResult struct {
	// Outcome — вариант результата.
	Outcome Outcome `json:"outcome"`

	// LogFile — путь к логу (log.txt или main_log.txt).
	LogFile string `json:"log_file,omitempty"`

	// PlotDir — каталог с графиками.
	PlotDir string `json:"plot_dir,omitempty"`

	// WorkDir — рабочий каталог toolchain.
	WorkDir string `json:"work_dir,omitempty"`

	// RunDir — каталог запуска (промежуточные данные и логи).
	RunDir string `json:"run_dir,omitempty"`

	// Message — описание ошибки для неуспешных вариантов.
	Message string `json:"message,omitempty"`

	// Cause — исходная ошибка (ExecutionError, ToolchainInternalError, ...).
	Cause error `json:"-"`
}

// Success возвращает true для OutcomeSuccess.
func (r *RunResult) Success() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// Err возвращает ошибку, соответствующую варианту результата, или nil при успехе.
func (r *RunResult) Err() error {
	if r == nil || r.Outcome == OutcomeSuccess {
		return nil
	}
	if r.Cause == nil {
		return errors.New(r.Message)
	}
	return r.Cause
}
