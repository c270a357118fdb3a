package toolchain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDataFound — toolchain не нашёл данных по ограничениям (sentinel-файл).
	ErrNoDataFound = errors.New("no input data found")

	// ErrRunDirExists — каталог запуска уже существует, toolchain не вызывается.
	ErrRunDirExists = errors.New("run directory already exists")

	// ErrSessionNotFound — toolchain не создал каталог сессии.
	ErrSessionNotFound = errors.New("toolchain session not found")

	// ErrInvalidConfig — файл конфигурации toolchain не читается или некорректен.
	ErrInvalidConfig = errors.New("invalid toolchain config")
)

// ExecutionError — внешний процесс toolchain завершился с ошибкой.
type ExecutionError struct {
	Command  string
	ExitCode int

	// Output — объединённый stdout+stderr процесса.
	Output string

	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("toolchain execution failed (exit code %d): %s", e.ExitCode, e.tail())
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// tail возвращает последние строки вывода для сообщения об ошибке.
func (e *ExecutionError) tail() string {
	lines := strings.Split(strings.TrimRight(e.Output, "\n"), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

// ToolchainInternalError — ошибка или panic внутри in-process toolchain.
type ToolchainInternalError struct {
	Err   error
	Stack string
}

func (e *ToolchainInternalError) Error() string {
	return fmt.Sprintf("toolchain internal error: %v", e.Err)
}

func (e *ToolchainInternalError) Unwrap() error { return e.Err }
