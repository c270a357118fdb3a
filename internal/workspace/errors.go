package workspace

import (
	"errors"
	"fmt"
)

// ErrSetup — не удалось подготовить рабочую директорию или копию toolchain.
var ErrSetup = errors.New("workspace setup failed")

// SetupError — ошибка подготовки с путями источника и назначения.
type SetupError struct {
	Source string
	Target string
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%v: copy %s -> %s: %v", ErrSetup, e.Source, e.Target, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Is позволяет проверять ошибку через errors.Is(err, ErrSetup).
func (e *SetupError) Is(target error) bool { return target == ErrSetup }
